// Package filter implements the keyword matching engine for content items.
package filter

import "strings"

// Item is the text of a content item matched against keywords.
type Item struct {
	Title string
	Body  string
}

// Keywords drops blank entries and lower-cases the rest.
func Keywords(raw []string) []string {
	var out []string
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// Match reports whether the item's title or body contains at least one keyword,
// case-insensitively. An empty keyword set (after dropping blanks) matches everything.
func Match(item Item, keywords []string) bool {
	kws := Keywords(keywords)
	if len(kws) == 0 {
		return true
	}

	title := strings.ToLower(item.Title)
	body := strings.ToLower(item.Body)
	for _, kw := range kws {
		if strings.Contains(title, kw) || strings.Contains(body, kw) {
			return true
		}
	}
	return false
}

// Apply returns the items that match keywords, preserving order.
func Apply[T any](items []T, keywords []string, text func(T) Item) []T {
	kws := Keywords(keywords)
	if len(kws) == 0 {
		return items
	}
	var out []T
	for _, it := range items {
		if Match(text(it), kws) {
			out = append(out, it)
		}
	}
	return out
}
