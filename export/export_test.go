package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/models"
)

func sampleArticles() []models.Article {
	published := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return []models.Article{
		{
			Id:          1,
			AccountId:   1,
			Title:       "First, with a comma",
			Author:      "Alice",
			Url:         "https://example.com/1",
			Guid:        "g1",
			Summary:     "A summary",
			Language:    "en",
			PublishedAt: &published,
			WordCount:   400,
			ReadingTime: 2,
			Favorite:    true,
			Metrics:     models.ArticleMetrics{ReadCount: 1000, LikeCount: 30, WowCount: 10},
			Scores:      models.ArticleScores{HeatScore: 22.5},
		},
		{
			Id:        2,
			AccountId: 1,
			Title:     "Second",
			Url:       "https://example.com/2",
			Guid:      "g2",
		},
	}
}

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, format)

	format, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, format)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Articles(&buf, FormatJSON, sampleArticles()))

	var decoded []models.Article
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "g1", decoded[0].Guid)
	assert.True(t, decoded[0].Favorite)
	assert.Nil(t, decoded[1].PublishedAt)
}

func TestJSONEmptySliceIsArray(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Articles(&buf, FormatJSON, nil))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestCSVQuotesAndFormatsFields(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Articles(&buf, FormatCSV, sampleArticles()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "First, with a comma", records[1][2])
	assert.Equal(t, "2024-03-01T10:00:00Z", records[1][8])
	assert.Equal(t, "true", records[1][12])
	assert.Equal(t, "1000", records[1][13])
	assert.Equal(t, "22.5", records[1][14])
	assert.Equal(t, "", records[2][8], "missing published_at stays empty")
}
