// Package dbchecktest holds small test helpers shared by the
// integration-style suites under internal/dbcheck/..., which need a
// live mongod/replica set and so skip themselves when one isn't
// configured, mirroring the teacher's IntegrationTestSuite pattern.
package dbchecktest

import (
	"context"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoURIEnvVar names the environment variable an integration-style
// test reads to find a replica set to run against.
const MongoURIEnvVar = "DBCHECK_TEST_MONGO_URI"

// RequireLiveServer skips the calling test unless MongoURIEnvVar is set,
// then returns a connected client that is disconnected automatically
// when the test finishes.
func RequireLiveServer(t *testing.T) *mongo.Client {
	t.Helper()

	uri := os.Getenv(MongoURIEnvVar)
	if uri == "" {
		t.Skipf("skipping: set %s to run against a live replica set", MongoURIEnvVar)
	}

	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connecting to %s: %v", MongoURIEnvVar, err)
	}

	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})

	return client
}
