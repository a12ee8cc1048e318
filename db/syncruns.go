package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"

	"feedsync/models"
)

const syncRunColumns = `id, account_id, kind, status, pages_fetched, articles_fetched,
	articles_new, articles_updated, articles_unchanged, error, started_at, completed_at`

func scanSyncRun(row interface{ Scan(...any) error }) (*models.SyncRun, error) {
	var run models.SyncRun
	var errMsg sql.NullString
	var completed sql.NullTime
	err := row.Scan(
		&run.Id,
		&run.AccountId,
		&run.Kind,
		&run.Status,
		&run.Pages,
		&run.Fetched,
		&run.New,
		&run.Updated,
		&run.Unchanged,
		&errMsg,
		&run.StartedAt,
		&completed,
	)
	if err != nil {
		return nil, err
	}
	run.Error = errMsg.String
	if completed.Valid {
		t := completed.Time.UTC()
		run.CompletedAt = &t
	}
	return &run, nil
}

// CreateSyncRun records the start of a run in the running state.
func (db *DB) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"run":        run.Id,
		"account_id": run.AccountId,
		"kind":       run.Kind,
	}).Info("Starting sync run")

	err := db.db.QueryRowContext(ctx, `
		INSERT INTO sync_runs (id, account_id, kind, status)
		VALUES ($1, $2, $3, $4)
		RETURNING started_at`,
		run.Id, run.AccountId, run.Kind, models.RunRunning,
	).Scan(&run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert error: %w", err)
	}
	run.Status = models.RunRunning

	return nil
}

// CompleteSyncRun writes the single terminal transition of a run. Rows are
// never touched again afterwards.
func (db *DB) CompleteSyncRun(ctx context.Context, run *models.SyncRun) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}

	now := time.Now().UTC()
	_, err := db.db.ExecContext(ctx, `
		UPDATE sync_runs SET
			status = $2, pages_fetched = $3, articles_fetched = $4, articles_new = $5,
			articles_updated = $6, articles_unchanged = $7, error = $8, completed_at = $9
		WHERE id = $1 AND status = $10`,
		run.Id,
		run.Status,
		run.Pages,
		run.Fetched,
		run.New,
		run.Updated,
		run.Unchanged,
		errMsg,
		now,
		models.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	run.CompletedAt = &now

	return nil
}

// ListSyncRuns returns the most recent runs, optionally for one account.
func (db *DB) ListSyncRuns(ctx context.Context, accountId int64, limit int) ([]models.SyncRun, error) {
	if limit < 1 {
		limit = 20
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(syncRunColumns).From("sync_runs")
	if accountId != 0 {
		sb.Where(sb.Equal("account_id", accountId))
	}
	sb.OrderBy("started_at").Desc()
	sb.Limit(limit)

	sqlStr, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var runs []models.SyncRun
	for rows.Next() {
		run, err := scanSyncRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

// GetLatestSyncRun returns the most recent run across all accounts.
func (db *DB) GetLatestSyncRun(ctx context.Context) (*models.SyncRun, error) {
	row := db.db.QueryRowContext(ctx,
		"SELECT "+syncRunColumns+" FROM sync_runs ORDER BY started_at DESC LIMIT 1")

	run, err := scanSyncRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return run, nil
}
