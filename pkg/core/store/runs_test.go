package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sotp_valuation/pkg/core/valuation"
)

func TestRunArchive_FileFallback(t *testing.T) {
	ctx := context.Background()
	archive := NewRunArchive(nil, t.TempDir())

	older := &RunRecord{
		Ticker:     "uhs",
		FiscalYear: 2023,
		CreatedAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, archive.Save(ctx, older))
	assert.NotEqual(t, uuid.Nil, older.ID)
	assert.Equal(t, "UHS", older.Ticker)

	newer := &RunRecord{
		Ticker:     "UHS",
		FiscalYear: 2024,
		Scenarios: []valuation.ScenarioRow{{
			Scenario: "base",
			Result:   &valuation.ValuationResult{Scenario: "base", PerShare: 437.51},
		}},
		Summary: json.RawMessage(`{"ticker":"UHS"}`),
	}
	require.NoError(t, archive.Save(ctx, newer))

	got, err := archive.Get(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, 2023, got.FiscalYear)

	latest, err := archive.Latest(ctx, "uhs")
	require.NoError(t, err)
	assert.Equal(t, newer.ID, latest.ID)
	require.Len(t, latest.Scenarios, 1)
	assert.InDelta(t, 437.51, latest.Scenarios[0].Result.PerShare, 1e-9)
	assert.JSONEq(t, `{"ticker":"UHS"}`, string(latest.Summary))
}

func TestRunArchive_NotFound(t *testing.T) {
	ctx := context.Background()
	archive := NewRunArchive(nil, t.TempDir())

	_, err := archive.Get(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrRunNotFound))

	_, err = archive.Latest(ctx, "THC")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}
