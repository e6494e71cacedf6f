// Package test starts the containers used by integration tests: MongoDB for
// storage, MailHog for outgoing mail and MinIO for documents.
package test

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MailServer is a running MailHog container with its mapped ports.
type MailServer struct {
	testcontainers.Container
	Host     string
	SMTPPort int
	// APIPort serves the captured messages over HTTP.
	APIPort int
}

// StartMailServer starts MailHog and waits for its SMTP listener. The caller
// terminates the container.
func StartMailServer(ctx context.Context) (*MailServer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mailhog/mailhog",
			ExposedPorts: []string{"1025/tcp", "8025/tcp"},
			WaitingFor:   wait.ForListeningPort("1025/tcp"),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}
	srv := &MailServer{Container: container}
	if srv.Host, err = container.Host(ctx); err != nil {
		return srv, fmt.Errorf("mail container host: %w", err)
	}
	smtp, err := container.MappedPort(ctx, "1025/tcp")
	if err != nil {
		return srv, fmt.Errorf("mail container smtp port: %w", err)
	}
	api, err := container.MappedPort(ctx, "8025/tcp")
	if err != nil {
		return srv, fmt.Errorf("mail container api port: %w", err)
	}
	srv.SMTPPort, srv.APIPort = smtp.Int(), api.Int()
	return srv, nil
}
