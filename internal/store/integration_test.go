package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/arzan03/mediadrop/internal/db"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// startContainer runs image for the duration of the test and returns the
// host:port mapped to port. Skipped unless TEST_INTEGRATION is set.
func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION is not set")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "start %s", req.Image)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate %s: %v", req.Image, err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, nat.Port(port))
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

func TestMongo(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}, "27017/tcp")

	ctx := context.Background()
	client, err := db.ConnectMongoDB(ctx, "mongodb://"+addr)
	require.NoError(t, err)

	n := 0
	testStore(t, func(t *testing.T) Store {
		n++
		s, err := NewMongo(ctx, client, fmt.Sprintf("mediadrop_test_%d", n), 0)
		require.NoError(t, err)
		return s
	})
	require.NoError(t, client.Disconnect(ctx))
}

func TestMongo_TTLIndexFollowsConfig(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}, "27017/tcp")

	ctx := context.Background()
	client, err := db.ConnectMongoDB(ctx, "mongodb://"+addr)
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	_, err = NewMongo(ctx, client, "mediadrop_ttl", 10*time.Minute)
	require.NoError(t, err)
	// A changed TTL must replace the index instead of failing startup.
	_, err = NewMongo(ctx, client, "mediadrop_ttl", 24*time.Hour)
	require.NoError(t, err)
	assert.Contains(t, mongoIndexNames(t, client, "mediadrop_ttl"), ttlIndexName)

	// Disabling the TTL removes the index; doing it twice is harmless.
	for i := 0; i < 2; i++ {
		_, err = NewMongo(ctx, client, "mediadrop_ttl", 0)
		require.NoError(t, err)
	}
	names := mongoIndexNames(t, client, "mediadrop_ttl")
	assert.NotContains(t, names, ttlIndexName)
	assert.Contains(t, names, "code_unique")
}

func mongoIndexNames(t *testing.T, client *mongo.Client, database string) []string {
	t.Helper()
	ctx := context.Background()
	cur, err := client.Database(database).Collection(bindingsCollection).Indexes().List(ctx)
	require.NoError(t, err)
	var specs []bson.M
	require.NoError(t, cur.All(ctx, &specs))
	names := make([]string, 0, len(specs))
	for _, spec := range specs {
		names = append(names, fmt.Sprint(spec["name"]))
	}
	return names
}

func TestPostgres(t *testing.T) {
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:17-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "mediadrop_test",
			"POSTGRES_USER":     "mediadrop",
			"POSTGRES_PASSWORD": "test-password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432/tcp")

	dsn := fmt.Sprintf("postgres://mediadrop:test-password@%s/mediadrop_test?sslmode=disable", addr)
	testStore(t, func(t *testing.T) Store {
		sqlDB, err := db.OpenSQL(db.DriverPostgres, dsn)
		require.NoError(t, err)
		_, err = sqlDB.Exec(`DELETE FROM media_bindings`)
		require.NoError(t, err)
		s := NewSQL(sqlDB)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
