// Package pacing chooses the randomized delays, reply lengths and tones that make
// automated activity look like a person's.
package pacing

import (
	"context"
	"math/rand/v2"
	"time"

	"signal_bot/internal/model"
)

// Pre-publish delay bounds in seconds.
const (
	PrePublishMinSeconds = 5
	PrePublishMaxSeconds = 15
)

// FallbackTone is used when no tone options are available.
const FallbackTone = "Professional"

// DefaultTones is the tone set offered when a user has not configured one.
var DefaultTones = []model.Tone{
	{Value: "professional", Label: "Professional"},
	{Value: "angry", Label: "Angry"},
	{Value: "sarcastic", Label: "Sarcastic"},
	{Value: "genuine", Label: "Genuine"},
	{Value: "storyteller", Label: "Storyteller"},
	{Value: "enthusiastic", Label: "Enthusiastic"},
	{Value: "analytical", Label: "Analytical"},
	{Value: "casual", Label: "Casual"},
	{Value: "empathetic", Label: "Empathetic"},
	{Value: "witty", Label: "Witty"},
	{Value: "helpful", Label: "Helpful"},
	{Value: "confident", Label: "Confident"},
}

// Rand is the random source used for every pacing decision.
type Rand interface {
	// IntN returns a value in [0, n). n is always > 0.
	IntN(n int) int
}

// NewRand returns a Rand backed by the runtime's random generator.
func NewRand() Rand {
	return runtimeRand{}
}

type runtimeRand struct{}

func (runtimeRand) IntN(n int) int { return rand.IntN(n) }

// Between returns a uniformly random integer in [lo, hi]. Swapped bounds are
// reordered and negatives are clamped to zero.
func Between(r Rand, lo, hi int) int {
	if lo < 0 {
		lo = 0
	}
	if hi < 0 {
		hi = 0
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return lo
	}
	return lo + r.IntN(hi-lo+1)
}

// Delay returns a uniformly random whole-second delay in [minSeconds, maxSeconds].
func Delay(r Rand, minSeconds, maxSeconds int) time.Duration {
	return time.Duration(Between(r, minSeconds, maxSeconds)) * time.Second
}

// GenerationDelay picks the pause before generating a reply.
func GenerationDelay(r Rand, p model.PromptConfig) time.Duration {
	p = p.WithDefaults()
	return Delay(r, p.MinDelaySeconds, p.MaxDelaySeconds)
}

// PublishDelay picks the pause between generation and publishing.
func PublishDelay(r Rand) time.Duration {
	return Delay(r, PrePublishMinSeconds, PrePublishMaxSeconds)
}

// WordCount picks the target reply length.
func WordCount(r Rand, p model.PromptConfig) int {
	p = p.WithDefaults()
	return Between(r, p.MinWords, p.MaxWords)
}

// PickTone chooses one tone label uniformly at random.
func PickTone(r Rand, tones []model.Tone) string {
	if len(tones) == 0 {
		return FallbackTone
	}
	return tones[r.IntN(len(tones))].Label
}

// Sleeper pauses between network actions.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer and stops early when ctx is cancelled.
type TimerSleeper struct{}

// Sleep blocks for d or until ctx is done.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
