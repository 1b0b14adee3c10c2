package store

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbedded(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.EqualValues(t, 1, first)

	r, _, err := src.ReadUp(first)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()

	sql := string(body)
	assert.True(t, strings.Contains(sql, "UNIQUE (student_id, lecture_id)"))
	assert.True(t, strings.Contains(sql, "token      TEXT NOT NULL UNIQUE"))

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	down.Close()
}

func TestNilHandlesAreUnhealthy(t *testing.T) {
	var db *DB
	var rdb *Redis
	assert.False(t, db.Healthy(context.Background()))
	assert.False(t, rdb.Healthy(context.Background()))
	assert.NoError(t, db.Close())
	assert.NoError(t, rdb.Close())
}

func TestMigrationsCascadeClaims(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	next, err := src.Next(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, next)

	r, _, err := src.ReadUp(next)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	r.Close()

	sql := string(body)
	for _, fk := range []string{
		"FOREIGN KEY (subject_id) REFERENCES subjects (id) ON DELETE CASCADE",
		"FOREIGN KEY (lecture_id) REFERENCES lectures (id) ON DELETE CASCADE",
	} {
		assert.Contains(t, sql, fk)
	}
	assert.Equal(t, 2, strings.Count(sql, "REFERENCES subjects (id) ON DELETE CASCADE"))
}
