// Package processor turns one due schedule into at most one published reply.
//
// Processing is a linear sequence of stages:
//
//	Discover -> Delay -> Generate -> Persist -> PublishDelay -> Publish [-> Refresh -> Publish] -> Finalize
//
// Every stage either advances or ends the run with an Outcome naming the stage
// it stopped at. Nothing escapes Run: errors and panics become failed outcomes.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"signal_bot/internal/filter"
	"signal_bot/internal/generator"
	"signal_bot/internal/model"
	"signal_bot/internal/pacing"
	"signal_bot/internal/platform"
	"signal_bot/internal/storage"
)

// ErrRateLimited is reported when the platform throttles a publish.
var ErrRateLimited = errors.New("platform rate limit")

// Stage identifies a step of the processing sequence.
type Stage int

// Processing stages in execution order.
const (
	StageLoad Stage = iota
	StageDiscover
	StageDelay
	StageGenerate
	StagePersist
	StagePublishDelay
	StagePublish
	StageRefresh
	StagePublishRetry
	StageFinalize
	StageDone
)

var stageNames = [...]string{
	StageLoad:         "load",
	StageDiscover:     "discover",
	StageDelay:        "delay",
	StageGenerate:     "generate",
	StagePersist:      "persist",
	StagePublishDelay: "publish_delay",
	StagePublish:      "publish",
	StageRefresh:      "refresh",
	StagePublishRetry: "publish_retry",
	StageFinalize:     "finalize",
	StageDone:         "done",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Outcome is the result of processing one schedule.
type Outcome struct {
	// Stage is where processing stopped; StageDone only when the reply was published.
	Stage Stage
	// NoContent is set when no new item was found. It is not an error.
	NoContent     bool
	Published     bool
	RateLimited   bool
	Refreshed     bool
	ContentItemID int64
	ArtifactID    int64
	Err           error
}

// Failed reports whether processing stopped because of an error.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// ContentSource lists recent posts of a topic.
type ContentSource interface {
	FetchNew(ctx context.Context, topic, token string, limit int) ([]model.ContentItem, error)
	FetchPublic(ctx context.Context, topic string, limit int) ([]model.ContentItem, error)
}

// Generator writes reply text.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (string, error)
}

// Publisher submits replies.
type Publisher interface {
	Publish(ctx context.Context, externalID, token, text string) platform.PublishResult
}

// Credentials reads and refreshes user credentials.
type Credentials interface {
	Get(ctx context.Context, userID string) (*model.ExternalCredential, error)
	Refresh(ctx context.Context, userID string) (*model.ExternalCredential, error)
}

// Store is the persistence the processor needs.
type Store interface {
	ContentItemExists(ctx context.Context, externalID string) (bool, error)
	InsertContentItem(ctx context.Context, item *model.ContentItem) (bool, error)
	UpsertArtifact(ctx context.Context, a *model.GeneratedArtifact) error
	MarkArtifactPublished(ctx context.Context, id int64, at time.Time) error
	GetPromptConfig(ctx context.Context, userID string, signalID int64) (*model.PromptConfig, error)
	LatestContext(ctx context.Context, userID string) (*model.Context, error)
	ListTones(ctx context.Context, userID string) ([]model.Tone, error)
}

// Deps bundles the collaborators of a Processor.
type Deps struct {
	Store       Store
	Source      ContentSource
	Generator   Generator
	Publisher   Publisher
	Credentials Credentials
	Rand        pacing.Rand
	Sleeper     pacing.Sleeper
	Log         *slog.Logger
	// FetchLimit is the listing page size; zero means 10.
	FetchLimit int
	// Now defaults to time.Now.
	Now func() time.Time
}

// Processor runs the per-schedule sequence.
type Processor struct {
	store   Store
	source  ContentSource
	gen     Generator
	pub     Publisher
	creds   Credentials
	rand    pacing.Rand
	sleeper pacing.Sleeper
	log     *slog.Logger
	limit   int
	now     func() time.Time
}

// New creates a Processor.
func New(d Deps) *Processor {
	p := &Processor{
		store:   d.Store,
		source:  d.Source,
		gen:     d.Generator,
		pub:     d.Publisher,
		creds:   d.Credentials,
		rand:    d.Rand,
		sleeper: d.Sleeper,
		log:     d.Log,
		limit:   d.FetchLimit,
		now:     d.Now,
	}
	if p.rand == nil {
		p.rand = pacing.NewRand()
	}
	if p.sleeper == nil {
		p.sleeper = pacing.TimerSleeper{}
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	if p.limit <= 0 {
		p.limit = 10
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// job is the loaded input of one run.
type job struct {
	schedule model.ScheduledSignal
	cred     *model.ExternalCredential
	prompt   model.PromptConfig
	context  string
	tones    []model.Tone
	log      *slog.Logger
}

// Run processes one due schedule. It never panics and never returns an error:
// failures are reported in the Outcome.
func (p *Processor) Run(ctx context.Context, sch model.ScheduledSignal) (out Outcome) {
	log := p.log.With("schedule_id", sch.ID, "signal_id", sch.SignalID, "user_id", sch.Signal.UserID)

	defer func() {
		if r := recover(); r != nil {
			out.Published = false
			out.Err = fmt.Errorf("panic in stage %s: %v", out.Stage, r)
			log.Error("processing panicked", "stage", out.Stage.String(), "error", out.Err)
		}
	}()

	j, err := p.load(ctx, sch, log)
	if err != nil {
		log.Error("load schedule inputs", "error", err)
		return Outcome{Stage: StageLoad, Err: err}
	}

	out = p.process(ctx, j, &out)
	switch {
	case out.Published:
		log.Info("reply published", "content_item_id", out.ContentItemID, "artifact_id", out.ArtifactID)
	case out.NoContent:
		log.Info("no new content")
	case out.Err != nil:
		log.Error("processing failed", "stage", out.Stage.String(), "content_item_id", out.ContentItemID, "error", out.Err)
	}
	return out
}

func (p *Processor) load(ctx context.Context, sch model.ScheduledSignal, log *slog.Logger) (*job, error) {
	userID := sch.Signal.UserID

	cred, err := p.creds.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get credential: %w", err)
	}

	prompt := model.PromptConfig{UserID: userID, SignalID: sch.SignalID}
	pc, err := p.store.GetPromptConfig(ctx, userID, sch.SignalID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.Debug("no prompt settings, using defaults")
	case err != nil:
		return nil, fmt.Errorf("get prompt config: %w", err)
	default:
		prompt = *pc
	}

	var contextText string
	c, err := p.store.LatestContext(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("get context: %w", err)
	default:
		contextText = c.Text
	}

	tones, err := p.store.ListTones(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tones: %w", err)
	}
	if len(tones) == 0 {
		tones = pacing.DefaultTones
	}

	return &job{
		schedule: sch,
		cred:     cred,
		prompt:   prompt.WithDefaults(),
		context:  contextText,
		tones:    tones,
		log:      log,
	}, nil
}

// process walks the stages. out is updated in place so a panic handler sees
// the stage reached so far.
func (p *Processor) process(ctx context.Context, j *job, out *Outcome) Outcome {
	sig := j.schedule.Signal

	out.Stage = StageDiscover
	item, err := p.discover(ctx, j)
	if err != nil {
		out.Err = err
		return *out
	}
	if item == nil {
		out.NoContent = true
		return *out
	}
	out.ContentItemID = item.ID
	j.log = j.log.With("content_item_id", item.ID, "external_id", item.ExternalID)

	out.Stage = StageDelay
	delay := pacing.GenerationDelay(p.rand, j.prompt)
	j.log.Debug("waiting before generation", "delay", delay)
	if err := p.sleeper.Sleep(ctx, delay); err != nil {
		out.Err = fmt.Errorf("generation delay: %w", err)
		return *out
	}

	out.Stage = StageGenerate
	words := pacing.WordCount(p.rand, j.prompt)
	tone := pacing.PickTone(p.rand, j.tones)
	j.log.Debug("generating reply", "target_words", words, "tone", tone)
	text, err := p.gen.Generate(ctx, generator.Request{
		Title:       item.Title,
		Body:        item.Body,
		Topic:       sig.Topic,
		Prompt:      j.prompt.Prompt,
		Context:     j.context,
		TargetWords: words,
		Tone:        tone,
	})
	if err != nil {
		out.Err = fmt.Errorf("generate reply: %w", err)
		return *out
	}

	out.Stage = StagePersist
	artifact := model.GeneratedArtifact{
		ContentItemID: item.ID,
		UserID:        sig.UserID,
		Text:          text,
		Tone:          tone,
		TargetWords:   words,
	}
	if err := p.store.UpsertArtifact(ctx, &artifact); err != nil {
		out.Err = fmt.Errorf("save artifact: %w", err)
		return *out
	}
	out.ArtifactID = artifact.ID

	out.Stage = StagePublishDelay
	delay = pacing.PublishDelay(p.rand)
	j.log.Debug("waiting before publish", "delay", delay)
	if err := p.sleeper.Sleep(ctx, delay); err != nil {
		out.Err = fmt.Errorf("publish delay: %w", err)
		return *out
	}

	out.Stage = StagePublish
	res := p.pub.Publish(ctx, item.ExternalID, j.cred.AccessToken, text)
	if res.Status == platform.AuthExpired {
		out.Stage = StageRefresh
		j.log.Info("access token rejected, refreshing")
		cred, err := p.creds.Refresh(ctx, sig.UserID)
		if err != nil {
			out.Err = fmt.Errorf("refresh credential: %w", err)
			return *out
		}
		j.cred = cred
		out.Refreshed = true

		out.Stage = StagePublishRetry
		res = p.pub.Publish(ctx, item.ExternalID, j.cred.AccessToken, text)
	}

	switch res.Status {
	case platform.Published:
	case platform.RateLimited:
		out.RateLimited = true
		out.Err = fmt.Errorf("publish: %w (status %d)", ErrRateLimited, res.Code)
		return *out
	case platform.AuthExpired:
		out.Err = fmt.Errorf("publish: credential still rejected after refresh (status %d)", res.Code)
		return *out
	case platform.PublishFailed:
		out.Err = publishError(res)
		return *out
	default:
		out.Err = fmt.Errorf("publish: unknown result %v", res.Status)
		return *out
	}

	out.Stage = StageFinalize
	if err := p.store.MarkArtifactPublished(ctx, artifact.ID, p.now().UTC()); err != nil {
		out.Err = fmt.Errorf("mark artifact published: %w", err)
		return *out
	}

	out.Stage = StageDone
	out.Published = true
	return *out
}

// discover returns the newest unseen matching item, already persisted, or nil
// when there is nothing new.
func (p *Processor) discover(ctx context.Context, j *job) (*model.ContentItem, error) {
	sig := j.schedule.Signal

	items, err := p.source.FetchNew(ctx, sig.Topic, j.cred.AccessToken, p.limit)
	var se *platform.StatusError
	if errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		// The token is refreshed at publish time; discovery can use the public listing.
		j.log.Warn("listing rejected token, using public feed")
		items, err = p.source.FetchPublic(ctx, sig.Topic, p.limit)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch content: %w", err)
	}

	matched := filter.Apply(items, sig.Keywords, func(it model.ContentItem) filter.Item {
		return filter.Item{Title: it.Title, Body: it.Body}
	})
	j.log.Debug("fetched content", "fetched", len(items), "matched", len(matched))

	for _, it := range matched {
		exists, err := p.store.ContentItemExists(ctx, it.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("check content item %s: %w", it.ExternalID, err)
		}
		if exists {
			continue
		}

		item := it
		item.SignalID = sig.ID
		if item.Topic == "" {
			item.Topic = sig.Topic
		}
		inserted, err := p.store.InsertContentItem(ctx, &item)
		if err != nil {
			return nil, fmt.Errorf("save content item %s: %w", it.ExternalID, err)
		}
		if !inserted {
			// Another run stored it between the check and the insert.
			return nil, nil
		}
		return &item, nil
	}
	return nil, nil
}

func publishError(res platform.PublishResult) error {
	if res.Err != nil {
		return fmt.Errorf("publish: %w", res.Err)
	}
	return fmt.Errorf("publish: status %d: %s", res.Code, res.Message)
}
