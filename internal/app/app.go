// Package app wires the autotool services for the CLI using go.uber.org/dig.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/dig"

	"github.com/skosovsky/autotool"
	"github.com/skosovsky/autotool/autoconfig"
	"github.com/skosovsky/autotool/ext/autotoolotel"
	"github.com/skosovsky/autotool/ext/autotoolprom"
	"github.com/skosovsky/autotool/hints"
	"github.com/skosovsky/autotool/internal/demo"
	"github.com/skosovsky/autotool/mcp"
	"github.com/skosovsky/autotool/reflectprovider"
)

const Version = "0.1.0"

// Config is the CLI configuration, read from flags and the environment.
type Config struct {
	Root     string
	HintsDir string // AUTOTOOL_HINTS_DIR
	BoltPath string // AUTOTOOL_BOLT_PATH
	RedisURL string // AUTOTOOL_REDIS_URL
	CacheTTL time.Duration

	OpenAIKey     string // OPENAI_API_KEY
	OpenAIBaseURL string // OPENAI_BASE_URL
	Model         string
	MinConfidence float64

	MaxTools       int
	MaxConcurrency int
	Strict         bool
	Auth           map[string]any

	Logger *slog.Logger
}

// App holds the resolved services.
type App struct {
	toolset  *autotool.Toolset
	bridge   *autotool.Bridge
	server   *mcpsdk.Server
	registry *prometheus.Registry
	closers  []io.Closer
}

func (a *App) Toolset() *autotool.Toolset     { return a.toolset }
func (a *App) Bridge() *autotool.Bridge       { return a.bridge }
func (a *App) Server() *mcpsdk.Server         { return a.server }
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Close shuts the bridge down and releases overlay stores.
func (a *App) Close(ctx context.Context) error {
	err := a.bridge.Close(ctx)
	for _, c := range a.closers {
		err = errors.Join(err, c.Close())
	}
	return err
}

// storeResult carries the overlay store and, when it holds a connection, its
// closer.
type storeResult struct {
	store  hints.Store
	closer io.Closer
}

type loaderParams struct {
	dig.In

	Config *Config
	Logger *slog.Logger
	Store  storeResult
	Auto   hints.AutoConfigurator `optional:"true"`
}

// New builds and wires all services from cfg. The toolset is built once, here.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.Root == "" {
		cfg.Root = demo.Root
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	d := dig.New()

	provides := []any{
		func() context.Context { return ctx },
		func() *Config { return &cfg },
		func(c *Config) *slog.Logger { return c.Logger },
		newProvider,
		newStore,
		newLoader,
		newToolset,
		prometheus.NewRegistry,
		newMetrics,
		newBridge,
		newServer,
	}
	for _, fn := range provides {
		if err := d.Provide(fn); err != nil {
			return nil, err
		}
	}
	if cfg.OpenAIKey != "" {
		if err := d.Provide(newAutoConfigurator); err != nil {
			return nil, err
		}
	}

	var result *App
	err := d.Invoke(func(
		ts *autotool.Toolset,
		b *autotool.Bridge,
		s *mcpsdk.Server,
		reg *prometheus.Registry,
		st storeResult,
	) {
		result = &App{toolset: ts, bridge: b, server: s, registry: reg}
		if st.closer != nil {
			result.closers = append(result.closers, st.closer)
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}
	return result, nil
}

func newProvider() (*reflectprovider.Provider, error) {
	p := reflectprovider.New()
	if err := demo.Register(p, demo.New()); err != nil {
		return nil, err
	}
	return p, nil
}

func newStore(cfg *Config) (storeResult, error) {
	switch {
	case cfg.RedisURL != "":
		s, err := hints.NewRedisStoreFromURL(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return storeResult{}, fmt.Errorf("overlay cache: %w", err)
		}
		return storeResult{store: s, closer: s}, nil
	case cfg.BoltPath != "":
		s, err := hints.OpenBoltStore(cfg.BoltPath)
		if err != nil {
			return storeResult{}, fmt.Errorf("overlay cache: %w", err)
		}
		return storeResult{store: s, closer: s}, nil
	}
	return storeResult{store: hints.NewMemoryStore()}, nil
}

func newAutoConfigurator(cfg *Config, logger *slog.Logger) (hints.AutoConfigurator, error) {
	return autoconfig.New(autoconfig.Config{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.Model,
		Logger:  logger,
	})
}

func newLoader(p loaderParams) (*hints.Loader, error) {
	var source hints.Source
	if p.Config.HintsDir != "" {
		source = hints.DirSource{Dir: p.Config.HintsDir}
	} else {
		h, err := demo.Hints()
		if err != nil {
			return nil, err
		}
		source = hints.StaticSource{demo.Root: h}
	}
	opts := []hints.LoaderOption{
		hints.WithSource(source),
		hints.WithStore(p.Store.store),
		hints.WithLogger(p.Logger),
	}
	if p.Auto != nil {
		opts = append(opts, hints.WithAutoConfigurator(p.Auto))
	}
	if p.Config.MinConfidence > 0 {
		opts = append(opts, hints.WithMinConfidence(p.Config.MinConfidence))
	}
	return hints.NewLoader(opts...), nil
}

func newToolset(ctx context.Context, cfg *Config, p *reflectprovider.Provider, l *hints.Loader, logger *slog.Logger) (*autotool.Toolset, error) {
	opts := []autotool.BuildOption{autotool.WithOverlayResolver(l), autotool.WithLogger(logger)}
	if cfg.MaxTools > 0 {
		opts = append(opts, autotool.WithMaxTools(cfg.MaxTools))
	}
	return autotool.Build(ctx, p, cfg.Root, opts...)
}

func newMetrics(reg *prometheus.Registry) (*autotoolprom.Metrics, error) {
	return autotoolprom.New(reg, "")
}

func newBridge(cfg *Config, p *reflectprovider.Provider, ts *autotool.Toolset, m *autotoolprom.Metrics, logger *slog.Logger) *autotool.Bridge {
	opts := []autotool.BridgeOption{autotool.WithBridgeLogger(logger)}
	if cfg.MaxConcurrency > 0 {
		opts = append(opts, autotool.WithMaxConcurrency(cfg.MaxConcurrency))
	}
	if cfg.Strict {
		opts = append(opts, autotool.WithStrictArguments())
	}
	if cfg.Auth != nil {
		opts = append(opts, autotool.WithAuthConfig(cfg.Auth))
	}
	b := autotool.NewBridge(p, ts, opts...)
	b.Use(
		autotoolotel.Middleware(),
		m.Middleware(),
		autotool.WithLogging(logger),
		autotool.WithRecovery(),
	)
	return b
}

func newServer(b *autotool.Bridge, ts *autotool.Toolset, logger *slog.Logger) *mcpsdk.Server {
	return mcp.NewServer(b, &mcpsdk.Implementation{Name: "autotool-" + ts.Root, Version: Version},
		mcp.WithLogger(logger),
		mcp.WithInstructions(fmt.Sprintf("Tools generated from the %s library. Destructive tools are annotated.", ts.Root)),
	)
}
