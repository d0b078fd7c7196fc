package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpensAndPings(t *testing.T) {
	for _, profile := range []Profile{ProfileLedger, ProfileCache, ProfileStandard} {
		t.Run(string(profile), func(t *testing.T) {
			db, err := New(Config{
				Path:    filepath.Join(t.TempDir(), "test.db"),
				Profile: profile,
				Name:    "test",
			})
			require.NoError(t, err)
			defer db.Close()

			require.NotNil(t, db.Conn())
			assert.NoError(t, db.Conn().Ping())

			var journalMode string
			require.NoError(t, db.Conn().QueryRow("PRAGMA journal_mode").Scan(&journalMode))
			assert.Equal(t, "wal", journalMode)
		})
	}
}

func TestNewDefaultsToStandardProfile(t *testing.T) {
	db, err := New(Config{Path: filepath.Join(t.TempDir(), "test.db"), Name: "test"})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, ProfileStandard, db.profile)
}

func TestNewCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "test.db")
	db, err := New(Config{Path: path, Name: "test"})
	require.NoError(t, err)
	defer db.Close()
	assert.NoError(t, db.Conn().Ping())
}
