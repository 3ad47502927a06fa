package ledger

import (
	"context"

	"github.com/google/uuid"

	perr "seriate/internal/platform/errors"
)

// flight is one in-progress content fetch shared by concurrent callers
type flight struct {
	token string
	done  chan struct{}
	body  string
	err   error
}

type contentParams struct {
	Author  string `json:"author"`
	Locator string `json:"locator"`
}

type contentResult struct {
	Author  string `json:"author"`
	Locator string `json:"locator"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

// FetchContent reads back a published entry's body. Concurrent fetches
// for the same entry share one upstream call; the flight entry is
// removed only by the owner whose session token still matches, so a
// slow finisher never evicts a successor's flight
func (c *Client) FetchContent(ctx context.Context, author, locator string) (string, error) {
	if locator == "" {
		return "", perr.InvalidArgf("ledger: empty locator")
	}
	key := author + "/" + locator

	c.mu.Lock()
	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.body, f.err
		case <-ctx.Done():
			return "", perr.Cancelledf("ledger: fetch %s cancelled", key)
		}
	}
	f := &flight{token: uuid.NewString(), done: make(chan struct{})}
	c.flights[key] = f
	c.mu.Unlock()

	var res contentResult
	err := c.call(ctx, "content.get", contentParams{Author: author, Locator: locator}, &res)
	f.body, f.err = res.Body, err
	close(f.done)

	c.mu.Lock()
	if cur, ok := c.flights[key]; ok && cur.token == f.token {
		delete(c.flights, key)
	}
	c.mu.Unlock()

	return f.body, f.err
}

// Item is one discovery result
type Item struct {
	Author  string   `json:"author"`
	Locator string   `json:"locator"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
	Created string   `json:"created"`
}

type queryParams struct {
	Tag   string `json:"tag"`
	Limit int    `json:"limit"`
}

// beginQuery claims the one query slot; a second query while one is
// active is rejected, not queued
func (c *Client) beginQuery() (string, error) {
	c.searchMu.Lock()
	defer c.searchMu.Unlock()
	if c.searchTok != "" {
		return "", perr.Conflictf("ledger: a query is already in flight")
	}
	tok := uuid.NewString()
	c.searchTok = tok
	return tok, nil
}

// endQuery releases the slot only for the session that owns it, so a
// slow finisher never clears a successor's claim
func (c *Client) endQuery(tok string) {
	c.searchMu.Lock()
	if c.searchTok == tok {
		c.searchTok = ""
	}
	c.searchMu.Unlock()
}

// QueryByTag lists entries carrying a tag, newest first. Limits above
// the response ceiling are rejected rather than silently clipped
func (c *Client) QueryByTag(ctx context.Context, tag string, limit int) ([]Item, error) {
	if tag == "" {
		return nil, perr.InvalidArgf("ledger: empty tag")
	}
	if limit <= 0 {
		limit = queryCeiling
	}
	if limit > queryCeiling {
		return nil, perr.Exhaustedf("ledger: limit %d exceeds ceiling %d", limit, queryCeiling)
	}
	tok, err := c.beginQuery()
	if err != nil {
		return nil, err
	}
	defer c.endQuery(tok)

	var items []Item
	if err := c.call(ctx, "content.query", queryParams{Tag: tag, Limit: limit}, &items); err != nil {
		return nil, err
	}
	if len(items) > queryCeiling {
		items = items[:queryCeiling]
	}
	return items, nil
}
