package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// PublishStatus is the outcome class of a publish call.
type PublishStatus int

// Publish outcomes.
const (
	Published PublishStatus = iota
	AuthExpired
	RateLimited
	PublishFailed
)

func (s PublishStatus) String() string {
	switch s {
	case Published:
		return "published"
	case AuthExpired:
		return "auth_expired"
	case RateLimited:
		return "rate_limited"
	case PublishFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PublishResult is the classified response of a publish call.
type PublishResult struct {
	Status  PublishStatus
	Code    int
	Message string
	Err     error
}

var rateLimitMarkers = []string{"RATELIMIT", "doing that a lot", "doing that too much"}

// Publish submits text as a reply to the post with the given external id.
func (c *Client) Publish(ctx context.Context, externalID, token, text string) PublishResult {
	if err := c.limiter.Wait(ctx); err != nil {
		return PublishResult{Status: PublishFailed, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	form := url.Values{}
	form.Set("thing_id", "t3_"+externalID)
	form.Set("text", text)
	form.Set("api_type", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/comment", strings.NewReader(form.Encode()))
	if err != nil {
		return PublishResult{Status: PublishFailed, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return PublishResult{Status: PublishFailed, Err: fmt.Errorf("http post: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return PublishResult{Status: PublishFailed, Code: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	return ClassifyPublish(resp.StatusCode, body)
}

type commentResponse struct {
	JSON *struct {
		Errors [][]any `json:"errors"`
	} `json:"json"`
	JQuery  json.RawMessage `json:"jquery"`
	Success *bool           `json:"success"`
}

// ClassifyPublish maps a raw publish response to a PublishResult.
func ClassifyPublish(code int, body []byte) PublishResult {
	text := string(body)
	switch {
	case code == http.StatusUnauthorized:
		return PublishResult{Status: AuthExpired, Code: code, Message: text}
	case code == http.StatusTooManyRequests || hasRateLimitMarker(text) && code >= 400:
		return PublishResult{Status: RateLimited, Code: code, Message: text}
	case code < 200 || code > 299:
		return PublishResult{Status: PublishFailed, Code: code, Message: text, Err: &StatusError{Code: code, Body: text}}
	}

	var cr commentResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		// Some endpoints answer a successful post with a non-JSON body.
		return PublishResult{Status: Published, Code: code}
	}

	failed := false
	if cr.JSON != nil && len(cr.JSON.Errors) > 0 {
		failed = true
	}
	if len(cr.JQuery) > 0 && cr.Success != nil && !*cr.Success {
		failed = true
	}
	if !failed {
		return PublishResult{Status: Published, Code: code}
	}
	if hasRateLimitMarker(text) {
		return PublishResult{Status: RateLimited, Code: code, Message: text}
	}
	return PublishResult{
		Status:  PublishFailed,
		Code:    code,
		Message: text,
		Err:     fmt.Errorf("platform rejected reply: %w", ErrUnexpectedResponse),
	}
}

func hasRateLimitMarker(text string) bool {
	for _, m := range rateLimitMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
