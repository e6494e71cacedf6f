package test

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/rentalhq/backoffice/internal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// MongoPort is the port exposed by the MongoDB test container.
const MongoPort = "27017"

// StartMongoContainer starts a single-node MongoDB container. Callers get the
// connection string with Endpoint(ctx, "mongodb") and must Terminate it.
func StartMongoContainer(ctx context.Context) (testcontainers.Container, error) {
	port := nat.Port(MongoPort + "/tcp")
	return testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{string(port)},
				WaitingFor: wait.ForAll(
					wait.ForLog("Waiting for connections"),
					wait.ForListeningPort(port),
				).WithDeadline(2 * time.Minute),
			},
			Started: true,
		})
}

// RandomDatabaseName returns a database name unique enough to isolate a test
// run sharing a container with others.
func RandomDatabaseName() string {
	return fmt.Sprintf("rental-test-%s", internal.RandomHex(8))
}
