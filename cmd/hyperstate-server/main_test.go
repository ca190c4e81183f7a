package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"

	"github.com/diwise/hyperstate/internal/pkg/application/session"
)

func TestDefaultConfigurationWithoutPath(t *testing.T) {
	is := is.New(t)

	cfg, err := loadConfiguration("")
	is.NoErr(err)
	is.Equal(cfg.Backend, session.BackendMemory)
}

func TestLoadConfigurationFromFile(t *testing.T) {
	is := is.New(t)

	path := filepath.Join(t.TempDir(), "hyperstate.yaml")
	is.NoErr(os.WriteFile(path, []byte("title: Accounts\nbackend: postgres\n"), 0644))

	cfg, err := loadConfiguration(path)
	is.NoErr(err)
	is.Equal(cfg.Title, "Accounts")
	is.Equal(cfg.Backend, session.BackendPostgres)
}

func TestMissingConfigurationFile(t *testing.T) {
	is := is.New(t)

	_, err := loadConfiguration(filepath.Join(t.TempDir(), "nope.yaml"))
	is.True(err != nil)
}
