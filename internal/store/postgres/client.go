// internal/store/postgres/client.go
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fawad-mazhar/flowstate/internal/config"
	"github.com/fawad-mazhar/flowstate/internal/models"
	"github.com/fawad-mazhar/flowstate/internal/store"
	"github.com/lib/pq"
)

// Client is a PostgreSQL-backed JobStore. The run document lives in a
// jsonb column next to an integer version; the compare-and-swap contract
// rides on a conditional UPDATE keyed on that version.
type Client struct {
	db *sql.DB
}

func NewClient(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{db: db}
	if err := client.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			job_name   TEXT NOT NULL,
			status     TEXT NOT NULL,
			version    BIGINT NOT NULL,
			state      JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS runs_status_idx ON runs (status);`

	if _, err := c.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// CreateRun persists a fresh run at version 1
func (c *Client) CreateRun(ctx context.Context, run *models.RunState) error {
	run.Version = 1
	data, err := run.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		INSERT INTO runs (id, job_name, status, version, state)
		VALUES ($1, $2, $3, $4, $5)`

	_, err = c.db.ExecContext(ctx, query, run.ID, run.JobName, run.Status, run.Version, data)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetRun loads the latest persisted state of a run
func (c *Client) GetRun(ctx context.Context, runID string) (*models.RunState, error) {
	query := `SELECT state FROM runs WHERE id = $1`

	var data []byte
	err := c.db.QueryRowContext(ctx, query, runID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var run models.RunState
	if err := run.FromJSON(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// CompareAndSwap writes the run only if the stored version is unchanged.
// Zero rows affected means either a concurrent writer bumped the version
// or the run vanished; a follow-up existence check tells the two apart.
func (c *Client) CompareAndSwap(ctx context.Context, run *models.RunState) error {
	expected := run.Version
	run.Version++
	data, err := run.ToJSON()
	if err != nil {
		run.Version = expected
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $1, version = $2, state = $3, updated_at = NOW()
		WHERE id = $4 AND version = $5`

	result, err := c.db.ExecContext(ctx, query, run.Status, run.Version, data, run.ID, expected)
	if err != nil {
		run.Version = expected
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		run.Version = expected
		return err
	}
	if rows == 0 {
		run.Version = expected
		if _, getErr := c.GetRun(ctx, run.ID); getErr == store.ErrNotFound {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	return nil
}

// ListActive returns every run still in RUNNING status
func (c *Client) ListActive(ctx context.Context) ([]*models.RunState, error) {
	query := `SELECT state FROM runs WHERE status = $1`

	rows, err := c.db.QueryContext(ctx, query, models.RunStatusRunning)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.RunState
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var run models.RunState
		if err := run.FromJSON(data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
