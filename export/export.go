package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"feedsync/models"
)

// Format selects the export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// ParseFormat maps a user-supplied format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want json or csv)", s)
	}
}

// Articles writes the given articles to w in the requested format.
func Articles(w io.Writer, format Format, articles []models.Article) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, articles)
	case FormatCSV:
		return writeCSV(w, articles)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func writeJSON(w io.Writer, articles []models.Article) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if articles == nil {
		articles = []models.Article{}
	}
	if err := enc.Encode(articles); err != nil {
		return fmt.Errorf("encode articles: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"id", "account_id", "title", "author", "url", "guid", "summary",
	"language", "published_at", "word_count", "reading_time", "read", "favorite",
	"read_count", "heat_score",
}

func writeCSV(w io.Writer, articles []models.Article) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, article := range articles {
		published := ""
		if article.PublishedAt != nil {
			published = article.PublishedAt.UTC().Format(time.RFC3339)
		}
		record := []string{
			strconv.FormatInt(article.Id, 10),
			strconv.FormatInt(article.AccountId, 10),
			article.Title,
			article.Author,
			article.Url,
			article.Guid,
			article.Summary,
			article.Language,
			published,
			strconv.Itoa(article.WordCount),
			strconv.Itoa(article.ReadingTime),
			strconv.FormatBool(article.Read),
			strconv.FormatBool(article.Favorite),
			strconv.Itoa(article.Metrics.ReadCount),
			strconv.FormatFloat(article.Scores.HeatScore, 'f', -1, 64),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write article %d: %w", article.Id, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
