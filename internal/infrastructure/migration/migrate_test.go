package migration

import (
	"io/fs"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmastock/internal/core/types"
	"pharmastock/migrations"
)

func TestDriverURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/stock?sslmode=disable", DriverURL("postgres://u:p@db:5432/stock?sslmode=disable"))
	assert.Equal(t, "pgx5://db/stock", DriverURL("postgresql://db/stock"))
	assert.Equal(t, "pgx5://db/stock", DriverURL("pgx5://db/stock"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations.FS, "*.down.sql")
	require.NoError(t, err)

	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

var quantityColumn = regexp.MustCompile(`(?m)^\s*\w*quantity\w*\s+NUMERIC\((\d+),\s*(\d+)\)`)

func TestQuantityColumnsMatchStorableScale(t *testing.T) {
	ups, err := fs.Glob(migrations.FS, "*.up.sql")
	require.NoError(t, err)

	found := 0
	for _, name := range ups {
		sql, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		for _, m := range quantityColumn.FindAllStringSubmatch(string(sql), -1) {
			precision, _ := strconv.Atoi(m[1])
			scale, _ := strconv.Atoi(m[2])
			assert.Equal(t, types.QuantityPrecision, precision, "%s: %s", name, m[0])
			assert.Equal(t, types.QuantityScale, scale, "%s: %s", name, m[0])
			found++
		}
	}
	assert.GreaterOrEqual(t, found, 3)
}
