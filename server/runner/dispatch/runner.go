// Package dispatch runs the outbound scheduling jobs: draining due messages
// through the delivery gateway, enqueueing onboarding and follow-up
// campaigns, and refreshing stale lead classifications.
package dispatch

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/zf-portal/leadflow/server/classifier"
	"github.com/zf-portal/leadflow/server/gateway"
	"github.com/zf-portal/leadflow/server/internal/observability"
	"github.com/zf-portal/leadflow/server/session"
	"github.com/zf-portal/leadflow/server/stats"
	"github.com/zf-portal/leadflow/store"
)

// Store is the slice of the persistence layer the dispatcher needs.
type Store interface {
	GetLead(ctx context.Context, find *store.FindLead) (*store.Lead, error)
	ListLeadsByStage(ctx context.Context, stage store.FunnelStage, limit int) ([]*store.Lead, error)
	ListLeadsForClassification(ctx context.Context, staleBefore int64, limit int) ([]*store.Lead, error)
	UpdateFunnelStage(ctx context.Context, id int32, stage store.FunnelStage, score int) (*store.Lead, error)
	TouchLastContact(ctx context.Context, id int32, ts int64) error

	ListInteractions(ctx context.Context, find *store.FindInteraction) ([]*store.Interaction, error)
	ListOutboundSince(ctx context.Context, leadID int32, since int64) ([]*store.Interaction, error)
	CreateInteraction(ctx context.Context, create *store.Interaction) (*store.Interaction, error)

	CreateScheduledMessage(ctx context.Context, create *store.ScheduledMessage) (*store.ScheduledMessage, error)
	ListScheduledMessages(ctx context.Context, find *store.FindScheduledMessage) ([]*store.ScheduledMessage, error)
	ListScheduledMessagesDue(ctx context.Context, now int64) ([]*store.ScheduledMessage, error)
	MarkScheduledMessage(ctx context.Context, update *store.UpdateScheduledMessageStatus) (bool, error)

	ListFunnelTemplatesByStage(ctx context.Context, stage store.FunnelStage) ([]*store.FunnelTemplate, error)
}

// Renderer resolves template content for a message.
type Renderer interface {
	RenderRef(ctx context.Context, templateID int32, params map[string]string) (string, error)
}

// Config holds the dispatcher tunables.
type Config struct {
	// Timezone anchors business hours and the daily job slots.
	Timezone *time.Location

	DrainInterval      time.Duration
	ReclassifyInterval time.Duration
	// OnboardingAt and FollowUpAt are daily slots, "15:04" format.
	OnboardingAt string
	FollowUpAt   string

	OnboardingCap     int
	FollowUpCapPer    int
	ReclassifyCap     int
	CandidateFetchCap int

	// SendsPerMinute paces gateway sends during a drain pass.
	SendsPerMinute int
}

func (c *Config) applyDefaults() {
	if c.Timezone == nil {
		c.Timezone = time.UTC
	}
	if c.DrainInterval == 0 {
		c.DrainInterval = 5 * time.Minute
	}
	if c.ReclassifyInterval == 0 {
		c.ReclassifyInterval = time.Hour
	}
	if c.OnboardingAt == "" {
		c.OnboardingAt = "09:00"
	}
	if c.FollowUpAt == "" {
		c.FollowUpAt = "13:00"
	}
	if c.OnboardingCap == 0 {
		c.OnboardingCap = 20
	}
	if c.FollowUpCapPer == 0 {
		c.FollowUpCapPer = 10
	}
	if c.ReclassifyCap == 0 {
		c.ReclassifyCap = 100
	}
	if c.CandidateFetchCap == 0 {
		c.CandidateFetchCap = 200
	}
	if c.SendsPerMinute == 0 {
		c.SendsPerMinute = 20
	}
}

type job struct {
	name    string
	nextRun time.Time
	// schedule computes the run after the given one.
	schedule func(after time.Time) time.Time
	run      func(ctx context.Context)
}

// Runner evaluates the job table once per second and fires jobs whose slot
// has come up. Jobs never propagate errors; failures are logged and the next
// occurrence stays scheduled.
type Runner struct {
	store         Store
	renderer      Renderer
	classifier    classifier.Classifier
	gateway       gateway.Gateway
	sessionStatus func() session.Status
	limiter       *rate.Limiter
	stats         *stats.Collector
	config        Config

	now func() time.Time
	rng *rand.Rand

	jobs []*job
}

// NewRunner creates the dispatch runner.
func NewRunner(
	s Store,
	renderer Renderer,
	cls classifier.Classifier,
	gw gateway.Gateway,
	sessionStatus func() session.Status,
	config Config,
) *Runner {
	config.applyDefaults()
	r := &Runner{
		store:         s,
		renderer:      renderer,
		classifier:    cls,
		gateway:       gw,
		sessionStatus: sessionStatus,
		limiter:       rate.NewLimiter(rate.Limit(float64(config.SendsPerMinute)/60.0), 1),
		stats:         stats.NewCollector(s),
		config:        config,
		now:           time.Now,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	r.jobs = r.buildJobs()
	return r
}

func (r *Runner) buildJobs() []*job {
	now := r.now().In(r.config.Timezone)
	return []*job{
		{
			// Drain and reclassify fire once at startup, then on their
			// intervals.
			name:     "drain",
			nextRun:  now,
			schedule: every(r.config.DrainInterval),
			run:      r.RunDrain,
		},
		{
			name:     "reclassify",
			nextRun:  now,
			schedule: every(r.config.ReclassifyInterval),
			run:      r.RunReclassify,
		},
		{
			// Daily slots missed while the process was down are not
			// back-filled; only the next occurrence runs.
			name:     "onboarding",
			nextRun:  nextDaily(now, r.config.OnboardingAt, r.config.Timezone),
			schedule: daily(r.config.OnboardingAt, r.config.Timezone),
			run:      r.RunOnboarding,
		},
		{
			name:     "follow-up",
			nextRun:  nextDaily(now, r.config.FollowUpAt, r.config.Timezone),
			schedule: daily(r.config.FollowUpAt, r.config.Timezone),
			run:      r.RunFollowUp,
		},
	}
}

// Run starts the job loop and blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) {
	slog.Info("dispatch runner started",
		"timezone", r.config.Timezone.String(),
		"drain_interval", r.config.DrainInterval,
		"onboarding_at", r.config.OnboardingAt,
		"follow_up_at", r.config.FollowUpAt,
	)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick(ctx)
		case <-ctx.Done():
			slog.Info("dispatch runner stopped")
			return
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	now := r.now().In(r.config.Timezone)
	for _, j := range r.jobs {
		if now.Before(j.nextRun) {
			continue
		}
		j.nextRun = j.schedule(now)
		r.runJob(ctx, j)
	}
}

func (r *Runner) runJob(ctx context.Context, j *job) {
	metrics := observability.GlobalMetrics()
	metrics.RecordRun(j.name)
	start := r.now()

	defer func() {
		metrics.RecordDuration(j.name, r.now().Sub(start))
		if rec := recover(); rec != nil {
			metrics.RecordFailure(j.name)
			slog.Error("dispatch job panicked", "job", j.name, "recover", rec)
		}
	}()

	j.run(ctx)
}

func every(interval time.Duration) func(time.Time) time.Time {
	return func(after time.Time) time.Time {
		return after.Add(interval)
	}
}

func daily(at string, tz *time.Location) func(time.Time) time.Time {
	return func(after time.Time) time.Time {
		return nextDaily(after, at, tz)
	}
}

// nextDaily returns the first occurrence of the "15:04" slot strictly after
// the given time.
func nextDaily(after time.Time, at string, tz *time.Location) time.Time {
	slot, err := time.Parse("15:04", at)
	if err != nil {
		slog.Error("invalid daily slot, defaulting to midnight", "at", at, "error", err)
		slot = time.Time{}
	}

	local := after.In(tz)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), slot.Hour(), slot.Minute(), 0, 0, tz)
	if !candidate.After(local) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// inBusinessHours reports whether t falls on a weekday between 08:00 and
// 17:59 in the configured timezone.
func (r *Runner) inBusinessHours(t time.Time) bool {
	local := t.In(r.config.Timezone)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return local.Hour() >= 8 && local.Hour() < 18
}

// messageParams builds the template parameter set for a lead.
func messageParams(lead *store.Lead) map[string]string {
	return map[string]string{
		"nome":    lead.Name,
		"empresa": lead.Company,
		"cargo":   lead.Title,
	}
}

// templateAt picks the stage template at the wanted position, falling back to
// the first one. Nil when the stage has no templates.
func templateAt(list []*store.FunnelTemplate, position int) *store.FunnelTemplate {
	if len(list) == 0 {
		return nil
	}
	for _, candidate := range list {
		if candidate.Position == position {
			return candidate
		}
	}
	return list[0]
}
