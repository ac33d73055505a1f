package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sotp_valuation/pkg/core/valuation"
)

var ErrRunNotFound = errors.New("valuation run not found")

// RunRecord is one archived valuation run.
type RunRecord struct {
	ID         uuid.UUID               `json:"id"`
	Ticker     string                  `json:"ticker"`
	FiscalYear int                     `json:"fiscal_year"`
	Scenarios  []valuation.ScenarioRow `json:"scenarios"`
	Summary    json.RawMessage         `json:"summary,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// RunArchive stores runs in Postgres when a pool is given, otherwise as
// JSON files under fileDir/<ticker>/<id>.json.
type RunArchive struct {
	pool    *pgxpool.Pool
	fileDir string
}

func NewRunArchive(pool *pgxpool.Pool, dir string) *RunArchive {
	if pool == nil && dir == "" {
		dir = filepath.Join(".cache", "runs")
	}
	return &RunArchive{pool: pool, fileDir: dir}
}

// Save upserts a run, assigning an id and timestamp if missing.
func (a *RunArchive) Save(ctx context.Context, rec *RunRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Ticker = strings.ToUpper(rec.Ticker)

	if a.pool != nil {
		scenarios, err := json.Marshal(rec.Scenarios)
		if err != nil {
			return fmt.Errorf("failed to marshal scenarios: %w", err)
		}
		var summary []byte
		if len(rec.Summary) > 0 {
			summary = rec.Summary
		}

		query := `
			INSERT INTO valuation_runs (id, ticker, fiscal_year, scenarios, summary, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id)
			DO UPDATE SET
				ticker = EXCLUDED.ticker,
				fiscal_year = EXCLUDED.fiscal_year,
				scenarios = EXCLUDED.scenarios,
				summary = EXCLUDED.summary;
		`
		if _, err := a.pool.Exec(ctx, query, rec.ID, rec.Ticker, rec.FiscalYear, scenarios, summary, rec.CreatedAt); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		return nil
	}

	dir := filepath.Join(a.fileDir, rec.Ticker)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, rec.ID.String()+".json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to save run to file: %w", err)
	}
	return nil
}

// Get loads a run by id.
func (a *RunArchive) Get(ctx context.Context, id uuid.UUID) (*RunRecord, error) {
	if a.pool != nil {
		query := `SELECT id, ticker, fiscal_year, scenarios, summary, created_at FROM valuation_runs WHERE id = $1`
		return a.scanOne(ctx, query, id)
	}

	matches, err := filepath.Glob(filepath.Join(a.fileDir, "*", id.String()+".json"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return loadRunFile(matches[0])
}

// Latest returns the most recent run for a ticker.
func (a *RunArchive) Latest(ctx context.Context, ticker string) (*RunRecord, error) {
	ticker = strings.ToUpper(ticker)
	if a.pool != nil {
		query := `
			SELECT id, ticker, fiscal_year, scenarios, summary, created_at
			FROM valuation_runs
			WHERE ticker = $1
			ORDER BY created_at DESC
			LIMIT 1
		`
		return a.scanOne(ctx, query, ticker)
	}

	files, err := filepath.Glob(filepath.Join(a.fileDir, ticker, "*.json"))
	if err != nil {
		return nil, err
	}
	var runs []*RunRecord
	for _, f := range files {
		rec, err := loadRunFile(f)
		if err != nil {
			fmt.Printf("[STORE] skipping %s: %v\n", f, err)
			continue
		}
		runs = append(runs, rec)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%s: %w", ticker, ErrRunNotFound)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.After(runs[j].CreatedAt) })
	return runs[0], nil
}

func (a *RunArchive) scanOne(ctx context.Context, query string, arg any) (*RunRecord, error) {
	var (
		rec       RunRecord
		scenarios []byte
		summary   []byte
	)
	err := a.pool.QueryRow(ctx, query, arg).Scan(&rec.ID, &rec.Ticker, &rec.FiscalYear, &scenarios, &summary, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%v: %w", arg, ErrRunNotFound)
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	if err := json.Unmarshal(scenarios, &rec.Scenarios); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scenarios: %w", err)
	}
	if len(summary) > 0 {
		rec.Summary = summary
	}
	return &rec, nil
}

func loadRunFile(path string) (*RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &rec, nil
}
