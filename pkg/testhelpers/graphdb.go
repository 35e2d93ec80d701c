package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lineagraph/lineage-engine/pkg/config"
)

// Neo4jTestImage backs the lineage graph store in integration tests. 5.26 is
// the oldest LTS carrying vector indexes.
const Neo4jTestImage = "neo4j:5.26"

const graphTestPassword = "integration_password"

// GraphDB holds a shared Neo4j container. Tests build their own client and
// store from Config so the helper stays decoupled from the graph package.
type GraphDB struct {
	Container testcontainers.Container
	Config    *config.GraphConfig
}

var (
	sharedGraphDB     *GraphDB
	sharedGraphDBOnce sync.Once
	sharedGraphDBErr  error
)

// GetGraphDB returns a shared Neo4j container for integration tests. The
// container is created once and reused across all tests in the run.
func GetGraphDB(t *testing.T) *GraphDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedGraphDBOnce.Do(func() {
		sharedGraphDB, sharedGraphDBErr = setupGraphDB()
	})

	if sharedGraphDBErr != nil {
		t.Fatalf("Failed to setup graph database: %v", sharedGraphDBErr)
	}

	return sharedGraphDB
}

func setupGraphDB() (*GraphDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        Neo4jTestImage,
		ExposedPorts: []string{"7687/tcp"},
		Env: map[string]string{
			"NEO4J_AUTH": "neo4j/" + graphTestPassword,
		},
		WaitingFor: wait.ForLog("Started.").
			WithStartupTimeout(120 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := container.MappedPort(ctx, "7687")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}

	return &GraphDB{
		Container: container,
		Config: &config.GraphConfig{
			URI:            fmt.Sprintf("bolt://%s:%s", host, port.Port()),
			User:           "neo4j",
			Password:       graphTestPassword,
			TimeoutSeconds: 30,
		},
	}, nil
}
