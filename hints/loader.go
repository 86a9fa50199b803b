package hints

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skosovsky/autotool"
)

// AutoConfigurator proposes an overlay from a sample of a root's members.
type AutoConfigurator interface {
	Configure(ctx context.Context, sample autotool.Sample) (Response, error)
}

// Response is an AutoConfigurator result. Confidence is in [0, 1].
type Response struct {
	Confidence float64   `json:"confidence"`
	Hints      *HintFile `json:"overlay"`
}

const (
	// DefaultMinConfidence is the lowest confidence an auto overlay is used with.
	DefaultMinConfidence = 0.3
	// DefaultAutoTimeout bounds one AutoConfigurator call.
	DefaultAutoTimeout = 30 * time.Second
)

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithSource sets where explicit hint files come from.
func WithSource(s Source) LoaderOption {
	return func(l *Loader) { l.source = s }
}

// WithStore sets where auto-generated overlays are persisted.
func WithStore(s Store) LoaderOption {
	return func(l *Loader) { l.store = s }
}

// WithAutoConfigurator enables auto-generated overlays.
func WithAutoConfigurator(a AutoConfigurator) LoaderOption {
	return func(l *Loader) { l.auto = a }
}

// WithMinConfidence overrides DefaultMinConfidence.
func WithMinConfidence(c float64) LoaderOption {
	return func(l *Loader) { l.minConfidence = c }
}

// WithAutoTimeout overrides DefaultAutoTimeout.
func WithAutoTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) {
		if d > 0 {
			l.autoTimeout = d
		}
	}
}

// WithLogger sets the logger for degraded loads. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// Loader resolves the overlay for a root with precedence explicit > stored
// auto > fresh auto > default. Each root is resolved once per Loader; failures
// are logged as OverlayLoadErrors and degrade to the next tier.
type Loader struct {
	source        Source
	store         Store
	auto          AutoConfigurator
	minConfidence float64
	autoTimeout   time.Duration
	logger        *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]*autotool.Overlay
}

// NewLoader returns a Loader. Without options every root gets the default overlay.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		minConfidence: DefaultMinConfidence,
		autoTimeout:   DefaultAutoTimeout,
		logger:        slog.Default(),
		cache:         make(map[string]*autotool.Overlay),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ autotool.OverlayResolver = (*Loader)(nil)

// Resolve implements autotool.OverlayResolver. It never fails. Loading is
// detached from ctx; a caller whose ctx ends first gets the default overlay,
// which is not cached.
func (l *Loader) Resolve(ctx context.Context, root string, sample autotool.Sample) *autotool.Overlay {
	l.mu.Lock()
	if ov, ok := l.cache[root]; ok {
		l.mu.Unlock()
		return ov
	}
	l.mu.Unlock()

	lctx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(root, func() (any, error) {
		l.mu.Lock()
		if ov, ok := l.cache[root]; ok {
			l.mu.Unlock()
			return ov, nil
		}
		l.mu.Unlock()
		ov := l.load(lctx, root, sample)
		l.mu.Lock()
		l.cache[root] = ov
		l.mu.Unlock()
		return ov, nil
	})
	select {
	case res := <-ch:
		return res.Val.(*autotool.Overlay)
	case <-ctx.Done():
		l.logger.WarnContext(ctx, "overlay resolution abandoned", "root", root, "error", ctx.Err())
		return autotool.DefaultOverlay()
	}
}

// Invalidate forgets the cached overlay for root.
func (l *Loader) Invalidate(root string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cache, root)
}

func (l *Loader) load(ctx context.Context, root string, sample autotool.Sample) *autotool.Overlay {
	if l.source != nil {
		h, err := l.source.Load(ctx, root)
		if err != nil {
			l.degrade(ctx, root, autotool.SourceExplicit, err)
		} else if h != nil {
			ov, err := h.Overlay(autotool.SourceExplicit)
			if err == nil {
				return ov
			}
			l.degrade(ctx, root, autotool.SourceExplicit, err)
		}
	}

	if l.store != nil {
		h, found, err := l.store.Get(ctx, root)
		switch {
		case err != nil:
			l.degrade(ctx, root, autotool.SourceAuto, err)
		case found:
			ov, err := h.Overlay(autotool.SourceAuto)
			if err == nil {
				return ov
			}
			l.degrade(ctx, root, autotool.SourceAuto, err)
		}
	}

	if l.auto != nil {
		if ov := l.generate(ctx, root, sample); ov != nil {
			return ov
		}
	}
	return autotool.DefaultOverlay()
}

func (l *Loader) generate(ctx context.Context, root string, sample autotool.Sample) *autotool.Overlay {
	actx, cancel := context.WithTimeout(ctx, l.autoTimeout)
	defer cancel()
	resp, err := l.auto.Configure(actx, sample)
	if err != nil {
		l.degrade(ctx, root, autotool.SourceAuto, err)
		return nil
	}
	if resp.Hints == nil || resp.Confidence < l.minConfidence {
		l.logger.InfoContext(ctx, "auto overlay rejected", "root", root, "confidence", resp.Confidence, "min", l.minConfidence)
		return nil
	}
	ov, err := resp.Hints.Overlay(autotool.SourceAuto)
	if err != nil {
		l.degrade(ctx, root, autotool.SourceAuto, err)
		return nil
	}
	if l.store != nil {
		if err := l.store.Put(ctx, root, resp.Hints); err != nil {
			l.logger.WarnContext(ctx, "auto overlay not persisted", "root", root, "error", err)
		}
	}
	return ov
}

func (l *Loader) degrade(ctx context.Context, root string, source autotool.OverlaySource, err error) {
	e := &autotool.Error{Kind: autotool.OverlayLoadError, Root: root, Message: err.Error(), Err: err}
	l.logger.WarnContext(ctx, "overlay degraded", "root", root, "source", source, "error", e)
}
