package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/skosovsky/autotool"
	"github.com/skosovsky/autotool/hints"
)

func newInspectCmd(o *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List the generated tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := o.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)
			ts := a.Toolset()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"root":       ts.Root,
					"overlay":    ts.Overlay.SourceOrDefault(),
					"discovered": ts.Discovered,
					"skipped":    ts.Skipped,
					"tools":      ts.Tools,
					"groups":     ts.Groups,
					"analysis":   ts.Analysis,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "root %s: %d tools from %d callables (%d skipped), overlay %s\n\n",
				ts.Root, len(ts.Tools), ts.Discovered, ts.Skipped, ts.Overlay.SourceOrDefault())
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCATEGORY\tFLAGS\tDESCRIPTION")
			for _, td := range ts.Tools {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", td.ID, td.Category, td.Flags, td.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the toolset as JSON")
	return cmd
}

func newInvokeCmd(o *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "invoke <tool-id> [json-arguments]",
		Short: "Invoke one tool and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)
			raw := "{}"
			if len(args) == 2 {
				raw = args[1]
			}
			res := a.Bridge().Invoke(cmd.Context(), autotool.Call{Tool: args[0], Args: []byte(raw), Timeout: timeout})
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			return res.Err()
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-call timeout, 0 for none")
	return cmd
}

func newServeCmd(o *rootOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a, err := o.open(ctx, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeApp(a)

			if metricsAddr != "" {
				srv := &http.Server{
					Addr:              metricsAddr,
					Handler:           promhttp.HandlerFor(a.Registry(), promhttp.HandlerOpts{}),
					ReadHeaderTimeout: 5 * time.Second,
				}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						fmt.Fprintln(cmd.ErrOrStderr(), "metrics:", err)
					}
				}()
				defer func() {
					sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(sctx)
				}()
			}
			err = a.Server().Run(ctx, &mcpsdk.StdioTransport{})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema of hint documents",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := hints.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
}
