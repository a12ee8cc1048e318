package syncer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"feedsync/db"
	"feedsync/models"
	"feedsync/normalize"
)

// MergeConflictError is a store-level constraint violation the update path
// could not resolve. It indicates a data-integrity bug and fails the run.
type MergeConflictError struct {
	AccountId int64
	Guid      string
	Err       error
}

func (e *MergeConflictError) Error() string {
	return fmt.Sprintf("merge conflict for account %d guid %s: %v", e.AccountId, e.Guid, e.Err)
}

func (e *MergeConflictError) Unwrap() error {
	return e.Err
}

// merge reconciles one batch of normalized records against the store.
// Every record is classified as exactly one of new, updated or unchanged,
// so the outcome counts always sum to the batch size. Merge never deletes:
// absence from a fetched page is not evidence of upstream deletion.
func merge(ctx context.Context, store Store, account models.Account, records []normalize.Normalized) (models.MergeOutcome, error) {
	var outcome models.MergeOutcome

	for _, record := range records {
		class, err := mergeOne(ctx, store, account, record)
		if err != nil {
			return outcome, err
		}
		switch class {
		case classNew:
			outcome.New++
		case classUpdated:
			outcome.Updated++
		case classUnchanged:
			outcome.Unchanged++
		}
	}

	log.WithFields(log.Fields{
		"account_id": account.Id,
		"batch":      outcome.Total(),
		"new":        outcome.New,
		"updated":    outcome.Updated,
	}).Debug("Merged batch")

	return outcome, nil
}

type mergeClass int

const (
	classNew mergeClass = iota
	classUpdated
	classUnchanged
)

func mergeOne(ctx context.Context, store Store, account models.Account, record normalize.Normalized) (mergeClass, error) {
	// Articles from feeds that omit the author inherit the account name
	if record.Author == "" || strings.EqualFold(record.Author, "unknown") {
		record.Author = account.Name
	}

	existing, err := store.GetArticleByGuid(ctx, account.Id, record.Guid)
	if errors.Is(err, db.ErrNotFound) {
		article := toArticle(account.Id, record)
		insertErr := store.InsertArticle(ctx, article)
		if insertErr == nil {
			return classNew, nil
		}
		if !errors.Is(insertErr, db.ErrDuplicate) {
			return 0, fmt.Errorf("insert article %s: %w", record.Guid, insertErr)
		}

		// A concurrent writer won the insert; the unique constraint is the
		// authoritative guard, so fall through to the update path.
		log.WithFields(log.Fields{
			"account_id": account.Id,
			"guid":       record.Guid,
		}).Warn("Insert raced with concurrent writer, retrying as update")

		existing, err = store.GetArticleByGuid(ctx, account.Id, record.Guid)
		if err != nil {
			return 0, &MergeConflictError{AccountId: account.Id, Guid: record.Guid, Err: err}
		}
	} else if err != nil {
		return 0, fmt.Errorf("lookup article %s: %w", record.Guid, err)
	}

	if !contentChanged(existing, record) {
		return classUnchanged, nil
	}

	// Update mutable fields only; user flags and the original creation
	// timestamp are preserved by the store
	if err := store.UpdateArticleContent(ctx, existing.Id, toArticle(account.Id, record)); err != nil {
		return 0, fmt.Errorf("update article %s: %w", record.Guid, err)
	}
	return classUpdated, nil
}

// contentChanged reports whether any sync-owned compared field differs.
func contentChanged(existing *models.Article, record normalize.Normalized) bool {
	if existing.Content != record.Content {
		return true
	}
	if existing.Summary != record.Summary {
		return true
	}
	if !timesEqual(existing.PublishedAt, record.PublishedAt) {
		return true
	}
	if existing.CoverImage != record.CoverImage {
		return true
	}
	return !slices.Equal(existing.Images, record.Images)
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func toArticle(accountId int64, record normalize.Normalized) *models.Article {
	return &models.Article{
		AccountId:   accountId,
		Title:       record.Title,
		Author:      record.Author,
		Url:         record.Url,
		Guid:        record.Guid,
		ContentHtml: record.ContentHtml,
		Content:     record.Content,
		Summary:     record.Summary,
		Language:    record.Language,
		CoverImage:  record.CoverImage,
		Images:      record.Images,
		PublishedAt: record.PublishedAt,
		WordCount:   record.WordCount,
		ReadingTime: record.ReadingTime,
	}
}
