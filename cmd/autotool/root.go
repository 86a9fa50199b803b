package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/skosovsky/autotool/internal/app"
)

type rootOptions struct {
	cfg      app.Config
	logLevel string
	auth     string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "autotool",
		Short:         "Generate agent tools from a library's callable surface",
		Version:       app.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	f := cmd.PersistentFlags()
	f.StringVar(&o.cfg.Root, "root", "inventory", "root identifier to expose")
	f.StringVar(&o.cfg.HintsDir, "hints-dir", os.Getenv("AUTOTOOL_HINTS_DIR"), "directory of <root>.yaml hint files")
	f.StringVar(&o.cfg.BoltPath, "bolt", os.Getenv("AUTOTOOL_BOLT_PATH"), "bbolt file caching generated overlays")
	f.StringVar(&o.cfg.RedisURL, "redis", os.Getenv("AUTOTOOL_REDIS_URL"), "redis URL caching generated overlays")
	f.DurationVar(&o.cfg.CacheTTL, "cache-ttl", 24*time.Hour, "lifetime of cached overlays in redis")
	f.StringVar(&o.cfg.Model, "model", os.Getenv("AUTOTOOL_MODEL"), "chat model proposing overlays")
	f.Float64Var(&o.cfg.MinConfidence, "min-confidence", 0, "minimum confidence of generated overlays")
	f.IntVar(&o.cfg.MaxTools, "max-tools", envInt("AUTOTOOL_MAX_TOOLS"), "maximum number of published tools")
	f.IntVar(&o.cfg.MaxConcurrency, "max-concurrency", 0, "maximum concurrent invocations, 0 for unbounded")
	f.BoolVar(&o.cfg.Strict, "strict", false, "validate arguments against the input schema before coercion")
	f.StringVar(&o.auth, "auth", "", "JSON object overriding the overlay's auth configuration")
	f.StringVar(&o.logLevel, "log-level", "warn", "debug, info, warn or error")

	cmd.AddCommand(newInspectCmd(o), newInvokeCmd(o), newServeCmd(o), newSchemaCmd())
	return cmd
}

func envInt(key string) int {
	n, _ := strconv.Atoi(os.Getenv(key))
	return n
}

// open builds the application from flags and the environment.
func (o *rootOptions) open(ctx context.Context, stderr io.Writer) (*app.App, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.logLevel)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	cfg := o.cfg
	cfg.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	if o.auth != "" {
		if err := json.Unmarshal([]byte(o.auth), &cfg.Auth); err != nil {
			return nil, fmt.Errorf("--auth: %w", err)
		}
	}
	return app.New(ctx, cfg)
}

func closeApp(a *app.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.Close(ctx)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
