package ledger

import (
	"context"

	perr "seriate/internal/platform/errors"
	"seriate/internal/services/manifest"
	pipedom "seriate/internal/services/pipeline/domain"
)

type publishParams struct {
	Author        string             `json:"author"`
	Title         string             `json:"title"`
	Body          string             `json:"body"`
	Tags          []string           `json:"tags,omitempty"`
	SuggestedID   string             `json:"suggested_id,omitempty"`
	ParentAuthor  string             `json:"parent_author,omitempty"`
	ParentLocator string             `json:"parent_locator,omitempty"`
	Metadata      *manifest.Manifest `json:"metadata,omitempty"`
}

type publishResult struct {
	Author  string `json:"author"`
	Locator string `json:"locator"`
}

// Publish submits one payload and returns where it landed. It satisfies
// the pipeline's transport port
func (c *Client) Publish(ctx context.Context, p pipedom.Payload) (manifest.Ref, error) {
	if p.Author == "" || p.Body == "" {
		return manifest.Ref{}, perr.InvalidArgf("ledger: publish needs an author and a body")
	}
	var res publishResult
	err := c.call(ctx, "content.publish", publishParams{
		Author:        p.Author,
		Title:         p.Title,
		Body:          p.Body,
		Tags:          p.Tags,
		SuggestedID:   p.SuggestedID,
		ParentAuthor:  p.ParentAuthor,
		ParentLocator: p.ParentLocator,
		Metadata:      p.Manifest,
	}, &res)
	if err != nil {
		return manifest.Ref{}, err
	}
	if res.Locator == "" {
		return manifest.Ref{}, perr.Newf(perr.ErrorCodeTransportTransient, "ledger: publish returned no locator")
	}
	if res.Author == "" {
		res.Author = p.Author
	}
	return manifest.Ref{Author: res.Author, Locator: res.Locator}, nil
}
