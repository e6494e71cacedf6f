package test

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// S3Port is the API port of the S3 compatible test container.
	S3Port = "9000"
	// S3AccessKey and S3SecretKey are the credentials of the test container.
	S3AccessKey = "rental-test"
	S3SecretKey = "rental-test-secret"
)

// StartS3Container starts a MinIO container. Callers get the endpoint with
// Endpoint(ctx, "http") and must use path style addressing.
func StartS3Container(ctx context.Context) (testcontainers.Container, error) {
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "minio/minio:latest",
				ExposedPorts: []string{S3Port + "/tcp"},
				Cmd:          []string{"server", "/data"},
				Env: map[string]string{
					"MINIO_ROOT_USER":     S3AccessKey,
					"MINIO_ROOT_PASSWORD": S3SecretKey,
				},
				WaitingFor: wait.ForHTTP("/minio/health/live").
					WithPort(S3Port + "/tcp").
					WithStartupTimeout(2 * time.Minute),
			},
			Started: true,
		})
}
