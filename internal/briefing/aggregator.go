// ABOUTME: Briefing Aggregator producing a cached daily summary from local data
// ABOUTME: Asks the assistant to phrase it and degrades to template or fallback text

package briefing

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/2389/coven-dashboard/internal/gateway"
)

// Snapshot sources
const (
	SourceAI       = "ai"
	SourceTemplate = "template"
	SourceFallback = "fallback"
)

// Defaults used when Options leaves a field empty.
const (
	DefaultCacheWindow = 30 * time.Minute
	DefaultAITimeout   = 30 * time.Second
	DefaultUserName    = "there"
)

// Snapshot is one generated briefing. Cached snapshots are returned as the
// same pointer until the cache window passes.
type Snapshot struct {
	Text        string    `json:"briefing"`
	GeneratedAt time.Time `json:"generatedAt"`
	Source      string    `json:"source"`
}

// Phraser turns a prompt into prose. The gateway client satisfies it.
type Phraser interface {
	SendMessage(ctx context.Context, text string) (string, error)
}

// Options tunes an Aggregator.
type Options struct {
	UserName    string
	CacheWindow time.Duration
	AITimeout   time.Duration

	// Location is the zone used for greetings and "today". Defaults to time.Local.
	Location *time.Location

	// OnGenerated, when set, is called with the source of every newly
	// generated snapshot.
	OnGenerated func(source string)
}

// Aggregator builds and caches briefings.
type Aggregator struct {
	sources Sources
	phraser Phraser
	opts    Options
	logger  *slog.Logger
	now     func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	cached   *Snapshot
	cachedAt time.Time
	epoch    uint64 // bumped by Invalidate; builds from an older epoch are not cached
}

// New creates an Aggregator. phraser may be nil, in which case briefings
// always use the template.
func New(sources Sources, phraser Phraser, opts Options, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.UserName == "" {
		opts.UserName = DefaultUserName
	}
	if opts.CacheWindow <= 0 {
		opts.CacheWindow = DefaultCacheWindow
	}
	if opts.AITimeout <= 0 {
		opts.AITimeout = DefaultAITimeout
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Aggregator{
		sources: sources,
		phraser: phraser,
		opts:    opts,
		logger:  logger.With("component", "briefing"),
		now:     time.Now,
	}
}

// Generate returns the cached briefing if it is younger than the cache
// window, otherwise builds a new one. Concurrent callers share one build.
// It never fails.
func (a *Aggregator) Generate(ctx context.Context) *Snapshot {
	if snap := a.fresh(); snap != nil {
		a.logger.Debug("returning cached briefing")
		return snap
	}

	v, _, _ := a.group.Do("briefing", func() (any, error) {
		if snap := a.fresh(); snap != nil {
			return snap, nil
		}
		// Callers that join this build must not lose it to the first caller leaving.
		return a.build(context.WithoutCancel(ctx)), nil
	})
	return v.(*Snapshot)
}

// Refresh drops the cached briefing and builds a new one.
func (a *Aggregator) Refresh(ctx context.Context) *Snapshot {
	a.Invalidate()
	return a.Generate(ctx)
}

// Invalidate drops the cached briefing. A build already in flight still
// answers its callers but is not cached, and later callers start a new one.
func (a *Aggregator) Invalidate() {
	a.mu.Lock()
	a.cached = nil
	a.cachedAt = time.Time{}
	a.epoch++
	a.mu.Unlock()
	a.group.Forget("briefing")
}

func (a *Aggregator) fresh() *Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cached != nil && a.now().Sub(a.cachedAt) < a.opts.CacheWindow {
		return a.cached
	}
	return nil
}

func (a *Aggregator) build(ctx context.Context) *Snapshot {
	a.mu.Lock()
	epoch := a.epoch
	a.mu.Unlock()

	now := a.now().In(a.opts.Location)
	a.logger.Info("generating briefing")

	f, ok := a.gather(ctx, now)
	if !ok {
		a.logger.Warn("no briefing data available, using fallback")
		snap := &Snapshot{
			Text:        fallbackText(a.opts.UserName, now),
			GeneratedAt: now,
			Source:      SourceFallback,
		}
		a.generated(snap)
		return snap
	}

	snap := &Snapshot{GeneratedAt: now}
	if text, ok := a.phrase(ctx, f); ok {
		snap.Text, snap.Source = text, SourceAI
	} else {
		snap.Text, snap.Source = templateText(a.opts.UserName, f), SourceTemplate
	}

	a.mu.Lock()
	if a.epoch == epoch {
		a.cached = snap
		a.cachedAt = a.now()
	} else {
		a.logger.Debug("briefing invalidated during build, not caching")
	}
	a.mu.Unlock()

	a.generated(snap)
	return snap
}

func (a *Aggregator) phrase(ctx context.Context, f *facts) (string, bool) {
	if a.phraser == nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.AITimeout)
	defer cancel()

	reply, err := a.phraser.SendMessage(ctx, prompt(a.opts.UserName, contextLines(f)))
	if err != nil {
		a.logger.Warn("assistant briefing failed, using template", "error", err)
		return "", false
	}
	if !usable(reply) {
		a.logger.Warn("assistant briefing unusable, using template")
		return "", false
	}
	return strings.TrimSpace(reply), true
}

// usable rejects empty replies and formatted gateway errors.
func usable(reply string) bool {
	reply = strings.TrimSpace(reply)
	if reply == "" || reply == gateway.NoResponse {
		return false
	}
	for _, prefix := range []string{"**Error**", "**Timeout**", "**Connection Error**"} {
		if strings.HasPrefix(reply, prefix) {
			return false
		}
	}
	return true
}

func (a *Aggregator) generated(snap *Snapshot) {
	a.logger.Info("briefing generated", "source", snap.Source)
	if a.opts.OnGenerated != nil {
		a.opts.OnGenerated(snap.Source)
	}
}
