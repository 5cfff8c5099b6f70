package platform

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"signal_bot/internal/model"
)

// FetchPublic reads the public RSS feed of topic without credentials. It is the
// fallback source when the authenticated listing rejects the token. Entry bodies
// are reduced to plain post text.
func (c *Client) FetchPublic(ctx context.Context, topic string, limit int) ([]model.ContentItem, error) {
	u := fmt.Sprintf("%s/r/%s/new/.rss?limit=%d", c.publicURL, url.PathEscape(topic), limit)
	body, err := c.get(ctx, u, "")
	if err != nil {
		return nil, err
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w: %v", ErrUnexpectedResponse, err)
	}

	items := make([]model.ContentItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		id := FeedItemID(it)
		if id == "" {
			continue
		}
		items = append(items, model.ContentItem{
			ExternalID: id,
			Title:      it.Title,
			Body:       feedItemBody(it),
			Author:     feedItemAuthor(it),
			Topic:      topic,
			URL:        it.Link,
			CreatedAt:  feedItemTime(it),
		})
		if limit > 0 && len(items) == limit {
			break
		}
	}
	return items, nil
}

// FeedItemID extracts the bare post id from an entry id such as "t3_abc123".
func FeedItemID(item *gofeed.Item) string {
	id := strings.TrimSpace(item.GUID)
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return strings.TrimPrefix(id, "t3_")
}

// feedItemBody returns the post text of an entry as plain text. Feed entries wrap
// self text in <div class="md"> followed by a "submitted by ... [link] [comments]"
// trailer; link posts carry only the trailer.
func feedItemBody(item *gofeed.Item) string {
	raw := item.Content
	if raw == "" {
		raw = item.Description
	}
	return feedText(raw)
}

func feedText(raw string) string {
	if !strings.Contains(raw, "<") {
		return collapseSpace(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	if md := doc.Find("div.md"); md.Length() > 0 {
		var parts []string
		md.First().Contents().Each(func(_ int, sel *goquery.Selection) {
			parts = append(parts, sel.Text())
		})
		return collapseSpace(strings.Join(parts, " "))
	}
	text := doc.Text()
	if i := strings.Index(text, "submitted by"); i >= 0 {
		text = text[:i]
	}
	return collapseSpace(text)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func feedItemAuthor(item *gofeed.Item) string {
	if item.Author == nil {
		return ""
	}
	return strings.TrimPrefix(item.Author.Name, "/u/")
}

func feedItemTime(item *gofeed.Item) time.Time {
	switch {
	case item.PublishedParsed != nil:
		return item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		return item.UpdatedParsed.UTC()
	default:
		return time.Now().UTC()
	}
}
