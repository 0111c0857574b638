package adplatform

import (
	"context"
	"net/url"

	"go.uber.org/zap"
)

type Edge[T any] struct {
	Data   []T    `json:"data"`
	Paging Paging `json:"paging"`
}

type Paging struct {
	Next    string `json:"next,omitempty"`
	Cursors struct {
		Before string `json:"before,omitempty"`
		After  string `json:"after,omitempty"`
	} `json:"cursors"`
}

func listAll[T any](ctx context.Context, c *Client, endpoint, path string, params url.Values) ([]T, error) {
	return follow[T](ctx, c, endpoint, c.url(path, params), c.opts.MaxPages, nil)
}

func follow[T any](ctx context.Context, c *Client, endpoint, next string, maxPages int, acc []T) ([]T, error) {
	seen := make(map[string]struct{})
	pages := 0
	for next != "" && pages < maxPages {
		if _, ok := seen[next]; ok { // cursor cíclico
			c.log.Warn("platform returned a repeated cursor", zap.String("endpoint", endpoint), zap.Int("pages", pages))
			return acc, nil
		}
		seen[next] = struct{}{}

		var page Edge[T]
		if err := c.getJSON(ctx, endpoint, next, &page); err != nil {
			return acc, err
		}
		acc = append(acc, page.Data...)
		next = page.Paging.Next
		pages++
	}
	if next != "" {
		c.log.Debug("page cap reached", zap.String("endpoint", endpoint), zap.Int("max_pages", maxPages))
	}
	return acc, nil
}
