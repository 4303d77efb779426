//go:build integration

package graph

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/notegraph/internal/models"
)

var testDriver neo4j.DriverWithContext

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		fmt.Printf("Could not connect to docker: %s\n", err)
		os.Exit(1)
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "neo4j",
		Tag:        "4.4",
		Env: []string{
			"NEO4J_AUTH=neo4j/password",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
	})
	if err != nil {
		fmt.Printf("Could not start resource: %s\n", err)
		os.Exit(1)
	}

	pool.MaxWait = 120 * time.Second

	if err := pool.Retry(func() error {
		var err error
		testDriver, err = neo4j.NewDriverWithContext(
			"bolt://localhost:"+resource.GetPort("7687/tcp"),
			neo4j.BasicAuth("neo4j", "password", ""),
		)
		if err != nil {
			return err
		}
		return testDriver.VerifyConnectivity(context.Background())
	}); err != nil {
		fmt.Printf("Could not connect to docker: %s\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if err := pool.Purge(resource); err != nil {
		fmt.Printf("Could not purge resource: %s\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func note(id int64, title string, tags ...string) models.Note {
	return models.Note{ID: id, UserID: 1, Title: title, Category: "Work", Importance: 5, Tags: tags, UpdatedAt: time.Now()}
}

func TestNoteAndConnectionLifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewNeo4j(testDriver)

	require.NoError(t, g.UpsertNote(ctx, note(101, "Plan", "plan")))
	require.NoError(t, g.UpsertNote(ctx, note(102, "Step 1")))
	require.NoError(t, g.UpsertNote(ctx, note(103, "Step 2")))
	// Upserting twice keeps a single node.
	require.NoError(t, g.UpsertNote(ctx, note(101, "Plan v2", "plan", "q3")))

	require.NoError(t, g.UpsertConnection(ctx, models.Connection{ID: 1, SourceID: 101, TargetID: 102, Relation: models.RelationPlanStep, CreatedAt: time.Now()}))
	require.NoError(t, g.UpsertConnection(ctx, models.Connection{ID: 2, SourceID: 102, TargetID: 103, Relation: models.RelationFollowUp, CreatedAt: time.Now()}))

	ids, err := g.Neighbors(ctx, 101, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{102}, ids)

	ids, err = g.Neighbors(ctx, 101, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{102, 103}, ids)

	require.NoError(t, g.DeleteConnection(ctx, 2))
	ids, err = g.Neighbors(ctx, 101, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{102}, ids)

	require.NoError(t, g.DeleteNote(ctx, 102))
	ids, err = g.Neighbors(ctx, 101, 2)
	require.NoError(t, err)
	assert.Empty(t, ids)

	assert.NoError(t, g.DeleteNote(ctx, 101))
	assert.NoError(t, g.DeleteNote(ctx, 103))
}
