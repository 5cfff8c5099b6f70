// Package model defines the domain types used across the application.
package model

import (
	"math"
	"time"
)

// SignalStatus is the lifecycle state of a campaign.
type SignalStatus string

// Supported signal statuses.
const (
	SignalActive    SignalStatus = "active"
	SignalPaused    SignalStatus = "paused"
	SignalCompleted SignalStatus = "completed"
)

// Signal is a user campaign scoped to one topic with an optional keyword set.
type Signal struct {
	ID        int64
	UserID    string
	Name      string
	Topic     string
	Keywords  []string
	Status    SignalStatus
	CreatedAt time.Time
}

// MinFrequency is the smallest schedule granularity.
const MinFrequency = 15 * time.Minute

// ScheduledSignal is the recurring-execution record attached to a Signal.
type ScheduledSignal struct {
	ID                  int64
	SignalID            int64
	StartTime           time.Time
	FrequencyHours      float64
	IsActive            bool
	LastRun             *time.Time
	NextRun             time.Time
	ConsecutiveFailures int

	// Signal is populated by queries that join the parent campaign.
	Signal Signal
}

// Interval converts FrequencyHours into a duration, never shorter than MinFrequency.
func (s ScheduledSignal) Interval() time.Duration {
	d := time.Duration(math.Round(s.FrequencyHours * float64(time.Hour)))
	if d < MinFrequency {
		return MinFrequency
	}
	return d
}

// ContentItem is a deduplicated external post associated with a Signal.
type ContentItem struct {
	ID         int64
	SignalID   int64
	ExternalID string
	Title      string
	Body       string
	Author     string
	Topic      string
	URL        string
	Score      int
	CreatedAt  time.Time
	FetchedAt  time.Time
}

// GeneratedArtifact is the generated reply for a ContentItem.
type GeneratedArtifact struct {
	ID            int64
	ContentItemID int64
	UserID        string
	Text          string
	Tone          string
	TargetWords   int
	IsPublished   bool
	PublishedAt   *time.Time
}

// PromptConfig holds per (user, signal) generation settings.
type PromptConfig struct {
	UserID          string
	SignalID        int64
	Prompt          string
	MinWords        int
	MaxWords        int
	MinDelaySeconds int
	MaxDelaySeconds int
}

// Default prompt settings applied when a user has not configured a signal.
const (
	DefaultMinWords        = 20
	DefaultMaxWords        = 50
	DefaultMinDelaySeconds = 30
	DefaultMaxDelaySeconds = 120
)

// WithDefaults returns a copy where unset bounds are replaced with defaults.
func (p PromptConfig) WithDefaults() PromptConfig {
	if p.MinWords <= 0 {
		p.MinWords = DefaultMinWords
	}
	if p.MaxWords <= 0 {
		p.MaxWords = DefaultMaxWords
	}
	if p.MinDelaySeconds <= 0 {
		p.MinDelaySeconds = DefaultMinDelaySeconds
	}
	if p.MaxDelaySeconds <= 0 {
		p.MaxDelaySeconds = DefaultMaxDelaySeconds
	}
	return p
}

// Tone is a stylistic directive applied to generation.
type Tone struct {
	Value string
	Label string
}

// Context is free-form personality or business text a user attaches to replies.
type Context struct {
	ID        int64
	UserID    string
	Name      string
	Text      string
	CreatedAt time.Time
}

// ExternalCredential is a user's access to the external platform.
type ExternalCredential struct {
	UserID       string
	Username     string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	UpdatedAt    time.Time
}

// TickResult summarises one scheduler invocation.
type TickResult struct {
	SignalsFound        int
	Processed           int
	Errors              int
	SuccessfulPublishes int
	Timestamp           time.Time
}
