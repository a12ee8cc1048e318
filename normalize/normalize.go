package normalize

import (
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	lingua "github.com/pemistahl/lingua-go"
	"github.com/samber/lo"

	"feedsync/models"
)

// Articles are assumed to be read at 200 words per minute.
const readingSpeed = 200

// Normalized is the pure transformation result for one raw feed item,
// ready to be merged against the store.
type Normalized struct {
	Title       string
	Author      string
	Url         string
	Guid        string
	ContentHtml string
	Content     string
	Summary     string
	Language    string
	CoverImage  string
	Images      []string
	PublishedAt *time.Time
	WordCount   int
	ReadingTime int
}

// Normalizer turns raw article payloads into normalized records. It is
// deterministic: the same input always yields the same output.
type Normalizer struct {
	policy   *bluemonday.Policy
	detector lingua.LanguageDetector
}

// New builds a normalizer detecting among the given languages. With no
// languages given it distinguishes English and Chinese.
func New(languages ...lingua.Language) *Normalizer {
	if len(languages) == 0 {
		languages = []lingua.Language{lingua.English, lingua.Chinese}
	}
	// Lazy-loaded images carry the real URL in data-src, which the stock
	// policy would strip
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("data-src").OnElements("img")
	return &Normalizer{
		policy: policy,
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(languages...).
			Build(),
	}
}

// Article normalizes one raw feed item.
func (n *Normalizer) Article(item models.RawItem) Normalized {
	// Text and images are extracted from the sanitized document, so nothing
	// the policy strips can leak into the record
	html := n.policy.Sanitize(item.HtmlBody)
	text := htmlToText(html)
	images := extractImages(html)

	cover := item.CoverImageUrl
	if cover == "" && len(images) > 0 {
		cover = images[0]
	}

	words := countWords(text)

	language := ""
	if text != "" {
		if detected, ok := n.detector.DetectLanguageOf(text); ok {
			language = strings.ToLower(detected.IsoCode639_1().String())
		}
	}

	return Normalized{
		Title:       collapseWhitespace(item.Title),
		Author:      collapseWhitespace(item.Author),
		Url:         item.Link,
		Guid:        item.Guid,
		ContentHtml: html,
		Content:     text,
		Summary:     summarize(text),
		Language:    language,
		CoverImage:  cover,
		Images:      images,
		PublishedAt: parseTime(item.PublishedAt),
		WordCount:   words,
		ReadingTime: readingTime(words),
	}
}

// htmlToText strips markup and collapses whitespace. Scripts, styles and
// embedded frames never contribute text.
func htmlToText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseWhitespace(html)
	}
	doc.Find("script, style, iframe, noscript").Remove()
	return collapseWhitespace(doc.Text())
}

// extractImages returns the ordered, de-duplicated list of absolute image
// URLs embedded in the HTML. Lazy-loaded images carry the real URL in
// data-src.
func extractImages(html string) []string {
	if html == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var images []string
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("data-src")
		if !ok || src == "" {
			src, _ = s.Attr("src")
		}
		if strings.HasPrefix(src, "http") {
			images = append(images, src)
		}
	})

	return lo.Uniq(images)
}

// summarize takes the opening of the plain text, preferring to cut at a
// sentence boundary once past half the limit.
func summarize(text string) string {
	const limit = 200

	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	head := runes[:limit]
	cut := -1
	for i := len(head) - 1; i >= 0; i-- {
		if head[i] == '。' || head[i] == '.' || head[i] == '!' || head[i] == '?' {
			cut = i
			break
		}
	}
	if cut > limit/2 {
		return string(head[:cut+1])
	}
	return string(head) + "..."
}

// countWords counts CJK characters individually and everything else as
// whitespace-delimited tokens, so Chinese articles get sensible counts.
func countWords(text string) int {
	if text == "" {
		return 0
	}

	han := 0
	var rest strings.Builder
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			han++
			rest.WriteRune(' ')
			continue
		}
		rest.WriteRune(r)
	}

	return han + len(strings.Fields(rest.String()))
}

func readingTime(words int) int {
	minutes := (words + readingSpeed - 1) / readingSpeed
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var timeLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime tries the common feed timestamp layouts. An unparseable
// timestamp yields nil rather than an error; the record is still usable.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}
