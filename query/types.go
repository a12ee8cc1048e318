package query

import "time"

// Articles holds the range-query parameters shared by the HTTP API, the
// CLI listings and the exporter. The zero value selects the most recent
// articles across all accounts.
type Articles struct {
	// AccountId restricts results to one account when non-zero
	AccountId int64

	// Since/Until bound the published timestamp when set
	Since *time.Time
	Until *time.Time

	// Before is a pagination cursor: only articles with a smaller id
	Before int64

	// Limit caps the result size; callers get a default when zero
	Limit int

	FavoritesOnly bool
	UnreadOnly    bool
}

const DefaultLimit = 50

func (q Articles) EffectiveLimit() int {
	if q.Limit < 1 {
		return DefaultLimit
	}
	return q.Limit
}
