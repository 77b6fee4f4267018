package database

import (
	"fmt"
	"strings"
	"testing"

	"stockledger/internal/config"
	"stockledger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func openObserved(t *testing.T) (*gorm.DB, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := &config.Config{
		DatabaseDriver: "sqlite",
		DatabaseDSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
	}
	db, err := Open(cfg, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	return db, logs
}

func TestRecordNotFoundIsNotLogged(t *testing.T) {
	db, logs := openObserved(t)
	require.NoError(t, Migrate(db))

	var snap models.StockSnapshot
	err := db.Where("name = ? AND unit = ?", "rice", "kg").First(&snap).Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.Zero(t, logs.Len(), "a miss is a normal lookup result")
}

func TestQueryErrorsGoToZap(t *testing.T) {
	db, logs := openObserved(t)

	var snap models.StockSnapshot
	err := db.First(&snap).Error
	require.Error(t, err, "tables were not migrated")

	entries := logs.All()
	require.NotEmpty(t, entries)
	assert.Equal(t, "gorm", entries[0].LoggerName)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Contains(t, entries[0].Message, "no such table")
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(&config.Config{DatabaseDriver: "mongo"}, zap.NewNop())
	assert.ErrorContains(t, err, "mongo")
}
