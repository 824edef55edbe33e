package persistence

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrationNames_Sorted(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_init.sql", names[0])
	for _, name := range names {
		assert.True(t, strings.HasSuffix(name, ".sql"))
	}
}

func TestMigrations_CreateEveryTable(t *testing.T) {
	names, err := MigrationNames()
	require.NoError(t, err)
	var schema strings.Builder
	for _, name := range names {
		content, err := migrationFiles.ReadFile("migrations/" + name)
		require.NoError(t, err)
		schema.Write(content)
	}
	for _, table := range []string{"tickets", "reporters", "technicians", "ticket_history"} {
		assert.Contains(t, schema.String(), "CREATE TABLE IF NOT EXISTS "+table)
	}
}

func TestRunMigrations_NoPoolIsNoop(t *testing.T) {
	assert.NoError(t, RunMigrations(context.Background(), nil, zap.NewNop()))
}
