package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/flippy?sslmode=disable":   "pgx5://u:p@localhost:5432/flippy?sslmode=disable",
		"postgresql://u:p@localhost:5432/flippy?sslmode=disable": "pgx5://u:p@localhost:5432/flippy?sslmode=disable",
		"pgx5://already": "pgx5://already",
	}

	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in))
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)

	var ups, downs int
	for _, e := range entries {
		switch {
		case len(e.Name()) > 7 && e.Name()[len(e.Name())-7:] == ".up.sql":
			ups++
		case len(e.Name()) > 9 && e.Name()[len(e.Name())-9:] == ".down.sql":
			downs++
		}
	}
	assert.Equal(t, ups, downs)
	assert.NotZero(t, ups)
}
