package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"signal_bot/internal/model"
)

type listing struct {
	Data struct {
		Children []struct {
			Kind string      `json:"kind"`
			Data listingPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type listingPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Author     string  `json:"author"`
	Subreddit  string  `json:"subreddit"`
	Permalink  string  `json:"permalink"`
	Score      int     `json:"score"`
	CreatedUTC float64 `json:"created_utc"`
}

// FetchNew returns up to limit of the newest posts of topic, newest first.
func (c *Client) FetchNew(ctx context.Context, topic, token string, limit int) ([]model.ContentItem, error) {
	u := fmt.Sprintf("%s/r/%s/new.json?limit=%d&raw_json=1", c.apiURL, url.PathEscape(topic), limit)
	body, err := c.get(ctx, u, token)
	if err != nil {
		return nil, err
	}

	var l listing
	if err := json.Unmarshal(body, &l); err != nil {
		return nil, fmt.Errorf("decode listing: %w: %v", ErrUnexpectedResponse, err)
	}

	items := make([]model.ContentItem, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		p := child.Data
		if p.ID == "" {
			continue
		}
		sub := p.Subreddit
		if sub == "" {
			sub = topic
		}
		items = append(items, model.ContentItem{
			ExternalID: p.ID,
			Title:      p.Title,
			Body:       p.Selftext,
			Author:     p.Author,
			Topic:      sub,
			URL:        "https://reddit.com" + p.Permalink,
			Score:      p.Score,
			CreatedAt:  time.Unix(int64(p.CreatedUTC), 0).UTC(),
		})
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, u, token string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
