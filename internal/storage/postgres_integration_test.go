//go:build integration

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pinkittys/flowerstory/internal/catalog"
)

func TestPostgres_Repositories(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("flowerstory_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/flowerstory_test?sslmode=disable", host, port.Port())

	db, err := Open(ctx, DriverPostgres, dsn)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db, DriverPostgres))
	require.NoError(t, Migrate(ctx, db, DriverPostgres), "second run is a no-op")

	def, err := catalog.Default()
	require.NoError(t, err)
	repo := NewCatalogRepository(db)
	require.NoError(t, repo.ReplaceAll(ctx, def.Candidates()))

	loaded, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, def.Len(), loaded.Len())

	history := NewHistoryRepository(db)
	rec := &HistoryRecord{
		Fingerprint: "fp",
		Story:       "생일 축하",
		Tier:        "rule",
		CandidateID: def.Candidates()[0].ID,
		Score:       42.5,
		Context:     json.RawMessage(`{"tier":"rule"}`),
	}
	require.NoError(t, history.Save(ctx, rec))

	got, err := history.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.InDelta(t, 42.5, got.Score, 1e-9)
	assert.JSONEq(t, `{"tier":"rule"}`, string(got.Context))
}
