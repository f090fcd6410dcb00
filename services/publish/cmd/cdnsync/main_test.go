package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdnsync/pkg/telemetry"
	"cdnsync/services/config"
)

func TestTextfileMetrics(t *testing.T) {
	file := filepath.Join(t.TempDir(), "cdnsync.prom")
	metrics, flush, err := textfileMetrics(file)
	require.NoError(t, err)
	require.NotNil(t, metrics)
	require.NoError(t, flush())

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "cdnsync_publish_errors_total 0")
}

func TestTextfileMetricsDisabled(t *testing.T) {
	metrics, flush, err := textfileMetrics("")
	require.NoError(t, err)
	assert.Nil(t, metrics)
	require.NoError(t, flush())
}

func TestOpenLedgerOpensMigratedDatabase(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := &session{
		logger: telemetry.Discard(),
		env:    config.Env{DatabaseURL: "postgres://cdnsync@127.0.0.1:1/cdnsync?sslmode=disable&connect_timeout=2"},
	}
	defer s.Close()

	ledger, err := s.openLedger(ctx)
	require.Error(t, err)
	assert.Nil(t, ledger)
	assert.Contains(t, err.Error(), "connect database")
	assert.Nil(t, s.orm)
}

func TestOpenLedgerWithoutDatabase(t *testing.T) {
	s := &session{logger: telemetry.Discard()}
	ledger, err := s.openLedger(context.Background())
	require.NoError(t, err)
	assert.Nil(t, ledger)
	assert.Nil(t, s.pool)
}
