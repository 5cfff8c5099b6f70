// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"signal_bot/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateSignal(ctx context.Context, s *model.Signal) error
	GetSignal(ctx context.Context, id int64) (*model.Signal, error)

	CreateSchedule(ctx context.Context, s *model.ScheduledSignal) error
	GetSchedule(ctx context.Context, id int64) (*model.ScheduledSignal, error)
	ListDueSchedules(ctx context.Context, now time.Time) ([]model.ScheduledSignal, error)
	RescheduleSignal(ctx context.Context, id int64, lastRun, nextRun time.Time) error
	RecordScheduleFailure(ctx context.Context, id int64, maxFailures int) (deactivated bool, err error)
	ResetScheduleFailures(ctx context.Context, id int64) error
	ListSchedules(ctx context.Context) ([]model.ScheduledSignal, error)
	SetScheduleActive(ctx context.Context, id int64, active bool) error
	SetScheduleFrequency(ctx context.Context, id int64, hours float64) error

	ContentItemExists(ctx context.Context, externalID string) (bool, error)
	InsertContentItem(ctx context.Context, item *model.ContentItem) (inserted bool, err error)
	ListContentItems(ctx context.Context, signalID int64) ([]model.ContentItem, error)

	UpsertArtifact(ctx context.Context, a *model.GeneratedArtifact) error
	GetArtifact(ctx context.Context, contentItemID int64) (*model.GeneratedArtifact, error)
	MarkArtifactPublished(ctx context.Context, id int64, at time.Time) error

	SavePromptConfig(ctx context.Context, p *model.PromptConfig) error
	GetPromptConfig(ctx context.Context, userID string, signalID int64) (*model.PromptConfig, error)
	CreateContext(ctx context.Context, c *model.Context) error
	LatestContext(ctx context.Context, userID string) (*model.Context, error)
	SaveTone(ctx context.Context, userID string, t model.Tone) error
	ListTones(ctx context.Context, userID string) ([]model.Tone, error)

	SaveCredential(ctx context.Context, c *model.ExternalCredential) error
	GetCredential(ctx context.Context, userID string) (*model.ExternalCredential, error)
	UpdateAccessToken(ctx context.Context, userID, token string, expiresAt *time.Time) error

	Close() error
}
