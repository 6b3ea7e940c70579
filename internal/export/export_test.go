package export_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DimBertolami/latestbot/internal/export"
	"github.com/DimBertolami/latestbot/internal/model"
)

func TestWriter_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "paper_trading_status.json")
	w := export.NewWriter(path)

	status := model.Status{
		IsRunning:    true,
		Mode:         "paper",
		Balance:      decimal.NewFromInt(10000),
		BaseCurrency: "USDT",
		Holdings:     map[string]decimal.Decimal{},
		LastUpdated:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, w.Write(status))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, true, got["is_running"])
	assert.Equal(t, "paper", got["mode"])
	assert.Equal(t, "10000", got["balance"])

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestWriter_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := export.NewWriter(path)

	require.NoError(t, w.Write(model.Status{Mode: "paper", IsRunning: true}))
	require.NoError(t, w.Write(model.Status{Mode: "paper", IsRunning: false}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got model.Status
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.False(t, got.IsRunning)
}

func TestWriter_NilIsNoop(t *testing.T) {
	w := export.NewWriter("")
	assert.Nil(t, w)
	assert.NoError(t, w.Write(model.Status{}))
	assert.Empty(t, w.Path())
}
