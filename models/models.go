package models

import "time"

// Account is a tracked upstream feed. Accounts are never deleted, only
// deactivated, so articles always keep an owner.
type Account struct {
	Id          int64     `json:"id"`
	FeedId      string    `json:"feedId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	AvatarUrl   string    `json:"avatarUrl,omitempty"`
	FeedUrl     string    `json:"feedUrl"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Article is one stored upstream content item. (AccountId, Guid) is the
// merge key and is unique in the store. Guid never changes once assigned;
// Read and Favorite are user flags and are never touched by sync.
type Article struct {
	Id          int64      `json:"id"`
	AccountId   int64      `json:"accountId"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	Url         string     `json:"url"`
	Guid        string     `json:"guid"`
	ContentHtml string     `json:"contentHtml,omitempty"`
	Content     string     `json:"content"`
	Summary     string     `json:"summary,omitempty"`
	Language    string     `json:"language,omitempty"`
	CoverImage  string     `json:"coverImage,omitempty"`
	Images      []string   `json:"images,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	WordCount   int        `json:"wordCount"`
	ReadingTime int        `json:"readingTimeMinutes"`
	Read        bool       `json:"read"`
	Favorite    bool       `json:"favorite"`

	Metrics          ArticleMetrics `json:"metrics"`
	Scores           ArticleScores  `json:"scores"`
	MetricsUpdatedAt *time.Time     `json:"metricsUpdatedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ArticleMetrics are upstream engagement counts for one article.
type ArticleMetrics struct {
	ReadCount     int `json:"readCount"`
	LikeCount     int `json:"likeCount"`
	WowCount      int `json:"wowCount"`
	CommentCount  int `json:"commentCount"`
	ShareCount    int `json:"shareCount"`
	FavoriteCount int `json:"favoriteCount"`
}

// ArticleScores are importance scores derived from engagement counts.
type ArticleScores struct {
	EngagementRate    float64 `json:"engagementRate"`
	ViralityIndex     float64 `json:"viralityIndex"`
	ContentValueIndex float64 `json:"contentValueIndex"`
	HeatScore         float64 `json:"heatScore"`
}

// Scores derives the importance scores from the raw counts. The read count
// is clamped to at least 1 to avoid dividing by zero.
func (m ArticleMetrics) Scores() ArticleScores {
	reads := float64(m.ReadCount)
	if reads < 1 {
		reads = 1
	}
	likes := float64(m.LikeCount)
	wow := float64(m.WowCount)
	comments := float64(m.CommentCount)
	shares := float64(m.ShareCount)
	favorites := float64(m.FavoriteCount)

	return ArticleScores{
		EngagementRate:    (likes + wow) / reads * 1000,
		ViralityIndex:     (shares*2 + wow) / reads * 1000,
		ContentValueIndex: (favorites*2 + comments) / reads * 1000,
		HeatScore:         (likes + wow*2 + comments*3 + favorites*4 + shares*5) / reads * 100,
	}
}

// RawItem is one article as returned by the upstream feed source, before
// normalization. Required fields are validated by the feed client.
type RawItem struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Link          string `json:"link"`
	Guid          string `json:"guid"`
	PublishedAt   string `json:"publishedAt"`
	HtmlBody      string `json:"htmlBody"`
	CoverImageUrl string `json:"coverImageUrl"`
}

// FeedPage is one page of raw items plus pagination state. HasMore false
// together with an empty NextCursor signals natural feed exhaustion.
type FeedPage struct {
	Items      []RawItem `json:"items"`
	NextCursor string    `json:"nextCursor"`
	HasMore    bool      `json:"hasMore"`
}

// FeedInfo is upstream feed-level metadata, used when registering accounts.
type FeedInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AvatarUrl   string `json:"avatarUrl"`
}

type RunKind string

const (
	RunIncremental RunKind = "incremental"
	RunFull        RunKind = "full"
)

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// SyncRun is one orchestrator invocation for one account. Rows form an
// append-only audit log: created running, completed exactly once.
type SyncRun struct {
	Id          string     `json:"id"`
	AccountId   int64      `json:"accountId"`
	Kind        RunKind    `json:"kind"`
	Status      RunStatus  `json:"status"`
	Pages       int        `json:"pagesFetched"`
	Fetched     int        `json:"articlesFetched"`
	New         int        `json:"articlesNew"`
	Updated     int        `json:"articlesUpdated"`
	Unchanged   int        `json:"articlesUnchanged"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// MergeOutcome reports how one batch of normalized records was applied.
// New + Updated + Unchanged always equals the batch size.
type MergeOutcome struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
}

func (o MergeOutcome) Total() int {
	return o.New + o.Updated + o.Unchanged
}
