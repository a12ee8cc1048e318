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

const accountColumns = "id, feed_id, name, description, avatar_url, feed_url, is_active, created_at, updated_at"

func scanAccount(row interface{ Scan(...any) error }) (*models.Account, error) {
	var account models.Account
	err := row.Scan(
		&account.Id,
		&account.FeedId,
		&account.Name,
		&account.Description,
		&account.AvatarUrl,
		&account.FeedUrl,
		&account.Active,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (db *DB) CreateAccount(ctx context.Context, account *models.Account) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"feed_id": account.FeedId,
		"name":    account.Name,
	}).Info("Creating account")

	err := db.db.QueryRowContext(ctx, `
		INSERT INTO accounts (feed_id, name, description, avatar_url, feed_url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		account.FeedId,
		account.Name,
		account.Description,
		account.AvatarUrl,
		account.FeedUrl,
	).Scan(&account.Id, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert error: %w", err)
	}
	account.Active = true

	return nil
}

func (db *DB) GetAccountByFeedId(ctx context.Context, feedId string) (*models.Account, error) {
	row := db.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE feed_id = $1", feedId)

	account, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return account, nil
}

func (db *DB) ListAccounts(ctx context.Context, activeOnly bool) ([]models.Account, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(accountColumns).From("accounts")
	if activeOnly {
		sb.Where(sb.Equal("is_active", true))
	}
	sb.OrderBy("id").Asc()

	query, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		accounts = append(accounts, *account)
	}

	return accounts, rows.Err()
}

// UpdateAccountMetadata refreshes the display fields from upstream feed
// info. The feed id itself never changes.
func (db *DB) UpdateAccountMetadata(ctx context.Context, id int64, name, description, avatarUrl string) error {
	_, err := db.db.ExecContext(ctx, `
		UPDATE accounts SET name = $2, description = $3, avatar_url = $4, updated_at = NOW()
		WHERE id = $1`,
		id, name, description, avatarUrl,
	)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	return nil
}

// DeactivateAccount marks an account inactive. Accounts are never deleted
// so their articles and sync history stay reachable.
func (db *DB) DeactivateAccount(ctx context.Context, feedId string) error {
	res, err := db.db.ExecContext(ctx,
		"UPDATE accounts SET is_active = FALSE, updated_at = NOW() WHERE feed_id = $1", feedId)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}

	log.WithFields(log.Fields{"feed_id": feedId}).Info("Deactivated account")
	return nil
}
