package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"feedsync/models"
	"feedsync/query"
)

const articleColumns = `id, account_id, title, author, url, guid, content_html, content, summary,
	language, cover_image, images, published_at, word_count, reading_time,
	is_read, is_favorite,
	read_count, like_count, wow_count, comment_count, share_count, favorite_count,
	engagement_rate, virality_index, content_value_index, heat_score, metrics_updated_at,
	created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func scanArticle(row interface{ Scan(...any) error }) (*models.Article, error) {
	var article models.Article
	var published, metricsUpdated sql.NullTime
	err := row.Scan(
		&article.Id,
		&article.AccountId,
		&article.Title,
		&article.Author,
		&article.Url,
		&article.Guid,
		&article.ContentHtml,
		&article.Content,
		&article.Summary,
		&article.Language,
		&article.CoverImage,
		pq.Array(&article.Images),
		&published,
		&article.WordCount,
		&article.ReadingTime,
		&article.Read,
		&article.Favorite,
		&article.Metrics.ReadCount,
		&article.Metrics.LikeCount,
		&article.Metrics.WowCount,
		&article.Metrics.CommentCount,
		&article.Metrics.ShareCount,
		&article.Metrics.FavoriteCount,
		&article.Scores.EngagementRate,
		&article.Scores.ViralityIndex,
		&article.Scores.ContentValueIndex,
		&article.Scores.HeatScore,
		&metricsUpdated,
		&article.CreatedAt,
		&article.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if published.Valid {
		t := published.Time.UTC()
		article.PublishedAt = &t
	}
	if metricsUpdated.Valid {
		t := metricsUpdated.Time.UTC()
		article.MetricsUpdatedAt = &t
	}
	return &article, nil
}

// GetArticleByGuid looks up the merge key (account_id, guid).
func (db *DB) GetArticleByGuid(ctx context.Context, accountId int64, guid string) (*models.Article, error) {
	row := db.db.QueryRowContext(ctx,
		"SELECT "+articleColumns+" FROM articles WHERE account_id = $1 AND guid = $2",
		accountId, guid)

	article, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return article, nil
}

// InsertArticle stores a new article. A unique-constraint violation on
// (account_id, guid) is reported as ErrDuplicate so the merge engine can
// fall back to the update path.
func (db *DB) InsertArticle(ctx context.Context, article *models.Article) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	log.WithFields(log.Fields{
		"account_id": article.AccountId,
		"guid":       article.Guid,
		"title":      article.Title,
	}).Debug("Creating article")

	var published sql.NullTime
	if article.PublishedAt != nil {
		published = sql.NullTime{Time: *article.PublishedAt, Valid: true}
	}

	err := db.db.QueryRowContext(ctx, `
		INSERT INTO articles (account_id, title, author, url, guid, content_html, content,
			summary, language, cover_image, images, published_at, word_count, reading_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`,
		article.AccountId,
		article.Title,
		article.Author,
		article.Url,
		article.Guid,
		article.ContentHtml,
		article.Content,
		article.Summary,
		article.Language,
		article.CoverImage,
		pq.Array(article.Images),
		published,
		article.WordCount,
		article.ReadingTime,
	).Scan(&article.Id, &article.CreatedAt, &article.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert error: %w", err)
	}

	return nil
}

// UpdateArticleContent overwrites the sync-owned fields of an article.
// User flags and the creation timestamp are deliberately left alone; the
// single UPDATE keeps the change atomic for concurrent readers.
func (db *DB) UpdateArticleContent(ctx context.Context, id int64, article *models.Article) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var published sql.NullTime
	if article.PublishedAt != nil {
		published = sql.NullTime{Time: *article.PublishedAt, Valid: true}
	}

	_, err := db.db.ExecContext(ctx, `
		UPDATE articles SET
			title = $2, author = $3, url = $4, content_html = $5, content = $6,
			summary = $7, language = $8, cover_image = $9, images = $10,
			published_at = $11, word_count = $12, reading_time = $13, updated_at = NOW()
		WHERE id = $1`,
		id,
		article.Title,
		article.Author,
		article.Url,
		article.ContentHtml,
		article.Content,
		article.Summary,
		article.Language,
		article.CoverImage,
		pq.Array(article.Images),
		published,
		article.WordCount,
		article.ReadingTime,
	)
	if err != nil {
		return fmt.Errorf("update error: %w", err)
	}
	return nil
}

// UpdateArticleMetrics stores fresh engagement counts together with the
// scores derived from them, so counts and scores never disagree.
func (db *DB) UpdateArticleMetrics(ctx context.Context, id int64, metrics models.ArticleMetrics) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	scores := metrics.Scores()
	res, err := db.db.ExecContext(ctx, `
		UPDATE articles SET
			read_count = $2, like_count = $3, wow_count = $4, comment_count = $5,
			share_count = $6, favorite_count = $7,
			engagement_rate = $8, virality_index = $9, content_value_index = $10,
			heat_score = $11, metrics_updated_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		id,
		metrics.ReadCount,
		metrics.LikeCount,
		metrics.WowCount,
		metrics.CommentCount,
		metrics.ShareCount,
		metrics.FavoriteCount,
		scores.EngagementRate,
		scores.ViralityIndex,
		scores.ContentValueIndex,
		scores.HeatScore,
	)
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
	return nil
}

// SetArticleFlags updates the user-owned read/favorite flags. Sync never
// calls this; it belongs to the HTTP surface.
func (db *DB) SetArticleFlags(ctx context.Context, id int64, read, favorite bool) error {
	res, err := db.db.ExecContext(ctx,
		"UPDATE articles SET is_read = $2, is_favorite = $3, updated_at = NOW() WHERE id = $1",
		id, read, favorite)
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
	return nil
}

// ListArticles runs the shared range query used by the HTTP API, the CLI
// and the exporter.
func (db *DB) ListArticles(ctx context.Context, q query.Articles) ([]models.Article, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(articleColumns).From("articles")

	if q.AccountId != 0 {
		sb.Where(sb.Equal("account_id", q.AccountId))
	}
	if q.Before != 0 {
		sb.Where(sb.LessThan("id", q.Before))
	}
	if q.Since != nil {
		sb.Where(sb.GreaterEqualThan("published_at", *q.Since))
	}
	if q.Until != nil {
		sb.Where(sb.LessThan("published_at", *q.Until))
	}
	if q.FavoritesOnly {
		sb.Where(sb.Equal("is_favorite", true))
	}
	if q.UnreadOnly {
		sb.Where(sb.Equal("is_read", false))
	}

	sb.OrderBy("id").Desc()
	sb.Limit(q.EffectiveLimit())

	sqlStr, args := sb.Build()
	rows, err := db.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		articles = append(articles, *article)
	}

	return articles, rows.Err()
}

// CountArticles returns the number of stored articles, optionally for one
// account.
func (db *DB) CountArticles(ctx context.Context, accountId int64) (int64, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("count(*)").From("articles")
	if accountId != 0 {
		sb.Where(sb.Equal("account_id", accountId))
	}

	sqlStr, args := sb.Build()
	var count int64
	if err := db.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("query error: %w", err)
	}
	return count, nil
}
