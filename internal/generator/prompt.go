package generator

import (
	"fmt"
	"strings"
)

// DefaultPrompt is used when a user has not written their own.
const DefaultPrompt = `You're replying to a Reddit thread.

Keep the tone casual, honest and human, like you're just another Redditor.
Don't sound like an ad, a bot or a press release.
Use personal experience or relatable examples if possible.
Keep it concise but clear. Break longer replies into short paragraphs.
Avoid buzzwords and corporate speak.
Match the subreddit's vibe.
Always answer the question or contribute to the conversation.
Do not use emoji, exclamation marks, quotes or em dashes.`

// SystemPrompt assembles the instruction block sent to the model.
func SystemPrompt(req Request) string {
	var b strings.Builder

	base := strings.TrimSpace(req.Prompt)
	if base == "" {
		base = DefaultPrompt
	}
	b.WriteString(base)

	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		b.WriteString("\n\nContext about the business/user:\n")
		b.WriteString(ctx)
	}
	if req.TargetWords > 0 {
		fmt.Fprintf(&b, "\n\nTarget length: approximately %d words.", req.TargetWords)
	}
	if req.Tone != "" {
		fmt.Fprintf(&b, "\n\nStrictly use this tone for the reply: %s", req.Tone)
	}
	return b.String()
}

// UserPrompt describes the post being replied to.
func UserPrompt(req Request) string {
	return fmt.Sprintf("Generate a reply for this Reddit post:\nTitle: %s\nContent: %s\nSubreddit: r/%s",
		req.Title, req.Body, req.Topic)
}
