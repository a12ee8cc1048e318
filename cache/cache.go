package cache

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	log "github.com/sirupsen/logrus"

	"feedsync/models"
)

// ResponseCache is a short-TTL cache for upstream fetch results, keyed by
// (feed id, cursor). It is advisory only: a miss always falls through to
// the feed client, and it is never used for writes.
type ResponseCache struct {
	lru *expirable.LRU[string, *models.FeedPage]
}

func New(size int, ttl time.Duration) *ResponseCache {
	if size < 1 {
		size = 128
	}
	return &ResponseCache{
		lru: expirable.NewLRU[string, *models.FeedPage](size, nil, ttl),
	}
}

func key(feedId string, cursor string) string {
	return fmt.Sprintf("%s|%s", feedId, cursor)
}

func (c *ResponseCache) Get(feedId string, cursor string) (*models.FeedPage, bool) {
	page, ok := c.lru.Get(key(feedId, cursor))
	if ok {
		log.WithFields(log.Fields{
			"feed":   feedId,
			"cursor": cursor,
		}).Debug("Response cache hit")
	}
	return page, ok
}

func (c *ResponseCache) Put(feedId string, cursor string, page *models.FeedPage) {
	c.lru.Add(key(feedId, cursor), page)
}

// Purge drops all entries. Used when a full sync must see fresh pages.
func (c *ResponseCache) Purge() {
	c.lru.Purge()
}
