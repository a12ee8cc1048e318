package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedsync/models"
)

func TestArticleStripsMarkup(t *testing.T) {
	n := New()

	record := n.Article(models.RawItem{
		Title:    "  Hello   World  ",
		Link:     "https://example.com/a",
		Guid:     "g1",
		HtmlBody: `<p>First paragraph.</p><script>alert(1)</script><style>p{}</style><p>Second.</p>`,
	})

	assert.Equal(t, "Hello World", record.Title)
	assert.Contains(t, record.Content, "First paragraph.")
	assert.Contains(t, record.Content, "Second.")
	assert.NotContains(t, record.ContentHtml, "<script>")
	assert.NotContains(t, record.Content, "alert")
}

func TestArticleIsDeterministic(t *testing.T) {
	n := New()
	item := models.RawItem{
		Title:       "Deterministic",
		Link:        "https://example.com/d",
		Guid:        "g2",
		HtmlBody:    `<p>Some body text with an <img src="https://img.example.com/1.png"> image.</p>`,
		PublishedAt: "2024-03-01T10:00:00Z",
	}

	first := n.Article(item)
	second := n.Article(item)
	assert.Equal(t, first, second)
}

func TestExtractImages(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "src attribute",
			html: `<img src="https://img.example.com/a.png">`,
			want: []string{"https://img.example.com/a.png"},
		},
		{
			name: "data-src wins over placeholder src",
			html: `<img data-src="https://img.example.com/real.png" src="data:image/gif;base64,x">`,
			want: []string{"https://img.example.com/real.png"},
		},
		{
			name: "relative urls skipped",
			html: `<img src="/local.png"><img src="https://img.example.com/b.png">`,
			want: []string{"https://img.example.com/b.png"},
		},
		{
			name: "duplicates collapse preserving order",
			html: `<img src="https://a/1"><img src="https://a/2"><img src="https://a/1">`,
			want: []string{"https://a/1", "https://a/2"},
		},
		{
			name: "no images",
			html: `<p>text only</p>`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractImages(tt.html))
		})
	}
}

func TestRecordStaysConsistentWithSanitizedHtml(t *testing.T) {
	n := New()

	record := n.Article(models.RawItem{
		Guid: "g-consistent",
		HtmlBody: `<p>Body text.</p>` +
			`<img data-src="https://img.example.com/lazy.png" src="data:image/gif;base64,x">` +
			`<img src="https://img.example.com/plain.png" onerror="steal()">`,
	})

	// Lazy-load URLs survive sanitization and extraction
	assert.Contains(t, record.Images, "https://img.example.com/lazy.png")
	assert.Contains(t, record.Images, "https://img.example.com/plain.png")

	// Every extracted image is present in the stored HTML
	for _, img := range record.Images {
		assert.Contains(t, record.ContentHtml, img)
	}
	assert.NotContains(t, record.ContentHtml, "onerror")
}

func TestCoverImageFallsBackToFirstImage(t *testing.T) {
	n := New()

	record := n.Article(models.RawItem{
		Guid:     "g3",
		HtmlBody: `<img src="https://img.example.com/first.png"><img src="https://img.example.com/second.png">`,
	})
	assert.Equal(t, "https://img.example.com/first.png", record.CoverImage)

	record = n.Article(models.RawItem{
		Guid:          "g4",
		HtmlBody:      `<img src="https://img.example.com/body.png">`,
		CoverImageUrl: "https://img.example.com/cover.png",
	})
	assert.Equal(t, "https://img.example.com/cover.png", record.CoverImage)
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"latin words", "one two three", 3},
		{"cjk characters count individually", "今天天气很好", 6},
		{"mixed", "Go 语言 is fun", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, countWords(tt.text))
		})
	}
}

func TestReadingTime(t *testing.T) {
	assert.Equal(t, 1, readingTime(0))
	assert.Equal(t, 1, readingTime(1))
	assert.Equal(t, 1, readingTime(200))
	assert.Equal(t, 2, readingTime(201))
	assert.Equal(t, 5, readingTime(1000))
}

func TestSummarize(t *testing.T) {
	short := "A short piece of text."
	assert.Equal(t, short, summarize(short))

	// Sentence boundary past half the limit wins
	first := strings.Repeat("a", 150) + "."
	long := first + " " + strings.Repeat("b", 100)
	assert.Equal(t, first, summarize(long))

	// No usable boundary: hard cut with ellipsis
	unbroken := strings.Repeat("c", 300)
	got := summarize(unbroken)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.Equal(t, 203, len([]rune(got)))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *time.Time
	}{
		{"rfc3339", "2024-03-01T10:00:00Z", timePtr(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))},
		{"space separated", "2024-03-01 10:00:00", timePtr(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))},
		{"date only", "2024-03-01", timePtr(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))},
		{"empty", "", nil},
		{"garbage", "yesterday-ish", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTime(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got))
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestLanguageDetection(t *testing.T) {
	n := New()

	english := n.Article(models.RawItem{
		Guid:     "g5",
		HtmlBody: "<p>The quick brown fox jumps over the lazy dog near the river bank.</p>",
	})
	assert.Equal(t, "en", english.Language)

	chinese := n.Article(models.RawItem{
		Guid:     "g6",
		HtmlBody: "<p>今天天气很好，我们一起去公园散步，顺便买一些水果回家。</p>",
	})
	assert.Equal(t, "zh", chinese.Language)
}
