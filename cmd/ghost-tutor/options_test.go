package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjawhar/ghost-tutor/internal/config"
	"github.com/sjawhar/ghost-tutor/internal/storage"
)

func TestParseOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		opts, err := parseOptions(nil)
		require.NoError(t, err)
		assert.Equal(t, "config.yaml", opts.Config)
		assert.Empty(t, opts.Addr)
		assert.Empty(t, opts.LogLevel)
	})

	t.Run("flags", func(t *testing.T) {
		opts, err := parseOptions([]string{"-c", "/etc/tutor.yaml", "--addr", ":9090", "--log-level", "debug", "--user", "Sam"})
		require.NoError(t, err)
		assert.Equal(t, "/etc/tutor.yaml", opts.Config)
		assert.Equal(t, ":9090", opts.Addr)
		assert.Equal(t, "debug", opts.LogLevel)
		assert.Equal(t, "Sam", opts.User)
	})

	t.Run("help", func(t *testing.T) {
		_, err := parseOptions([]string{"--help"})
		require.Error(t, err)
		assert.True(t, flags.WroteHelp(err))
	})

	t.Run("unknown flag", func(t *testing.T) {
		_, err := parseOptions([]string{"--bogus"})
		require.Error(t, err)
		assert.False(t, flags.WroteHelp(err))
	})
}

func TestOptionsApply(t *testing.T) {
	cfg := config.Config{Addr: ":8080", LogLevel: "info"}
	cfg.User.Name = "Learner"

	(&options{}).apply(&cfg)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "Learner", cfg.User.Name)

	(&options{Addr: "127.0.0.1:3000", LogLevel: "warn", User: "Ada"}).apply(&cfg)
	assert.Equal(t, "127.0.0.1:3000", cfg.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "Ada", cfg.User.Name)
}

type seederStub struct {
	existing []storage.Companion
	created  []storage.Companion
	listErr  error
	failName string
}

func (s *seederStub) ListCompanions(context.Context, string) ([]storage.Companion, error) {
	return s.existing, s.listErr
}

func (s *seederStub) CreateCompanion(_ context.Context, c storage.Companion) (storage.Companion, error) {
	if c.Name == s.failName {
		return storage.Companion{}, errors.New("insert failed")
	}
	c.ID = "id-" + c.Name
	s.created = append(s.created, c)
	return c, nil
}

func TestSeedCompanions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	seeds := []config.Companion{
		{Name: "Neura", Subject: "science", Topic: "Neural networks", Style: "formal"},
		{Name: "Incomplete", Subject: "maths"},
		{Name: "Countsy", Subject: "maths", Topic: "Derivatives", DurationMinutes: 20},
	}

	t.Run("empty library", func(t *testing.T) {
		store := &seederStub{}
		require.NoError(t, seedCompanions(context.Background(), store, seeds, logger))
		require.Len(t, store.created, 2)
		assert.Equal(t, "Neura", store.created[0].Name)
		assert.Equal(t, "formal", store.created[0].Style)
		assert.Equal(t, 20, store.created[1].DurationMinutes)
	})

	t.Run("existing library untouched", func(t *testing.T) {
		store := &seederStub{existing: []storage.Companion{{ID: "x"}}}
		require.NoError(t, seedCompanions(context.Background(), store, seeds, logger))
		assert.Empty(t, store.created)
	})

	t.Run("list error", func(t *testing.T) {
		store := &seederStub{listErr: errors.New("db locked")}
		err := seedCompanions(context.Background(), store, seeds, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db locked")
	})

	t.Run("create error keeps going", func(t *testing.T) {
		store := &seederStub{failName: "Neura"}
		err := seedCompanions(context.Background(), store, seeds, logger)
		require.Error(t, err)
		require.Len(t, store.created, 1)
		assert.Equal(t, "Countsy", store.created[0].Name)
	})
}
