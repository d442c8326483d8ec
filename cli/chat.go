package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roundslab/rounds/engine/orchestrator"
	"github.com/roundslab/rounds/engine/streaming"
	"github.com/roundslab/rounds/pkg/logger"
)

// chatHistoryWindow caps the exchanges the REPL feeds back into the next
// turn; the orchestrator applies its own configured window on top.
const chatHistoryWindow = 10

func ChatCmd() *cobra.Command {
	var sessionID string
	var metricsAddr string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive REPL against the turn engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := fromCommand(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer eng.Close(context.WithoutCancel(ctx))

			if metricsAddr == "" {
				metricsAddr = a.cfg.Monitoring.Addr
			}
			group, ctx := errgroup.WithContext(ctx)
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			if metricsAddr != "" && eng.monitoring.IsInitialized() {
				serveMetrics(ctx, group, eng, metricsAddr, a.cfg.Monitoring.Path)
			}
			group.Go(func() error {
				defer cancel()
				return repl(ctx, cmd.OutOrStdout(), cmd.InOrStdin(), eng, sessionID, verbose)
			})
			return group.Wait()
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "repl", "session id for the conversation")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "show per-node progress after each turn")
	return cmd
}

func serveMetrics(ctx context.Context, group *errgroup.Group, eng *engine, addr, path string) {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, eng.monitoring.ExporterHandler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	group.Go(func() error {
		logger.FromContext(ctx).Info("serving metrics", "addr", addr, "path", path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

func repl(ctx context.Context, out io.Writer, in io.Reader, eng *engine, sessionID string, verbose bool) error {
	fmt.Fprintln(out, figure.NewFigure("ROUNDS", "standard", true).String())
	fmt.Fprintln(out, "Type a question, or \"exit\" to leave.")
	fmt.Fprintln(out)

	var history []orchestrator.Exchange
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		query := strings.TrimSpace(scanner.Text())
		switch query {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := eng.orch.Run(ctx, orchestrator.Input{
			SessionID: sessionID,
			Query:     query,
			History:   history,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "error: %v\n\n", err)
			continue
		}
		if verbose {
			printEvents(ctx, out, eng.publisher, result)
		}
		fmt.Fprintf(out, "%s\n\n", result.Response)

		history = append(history, orchestrator.Exchange{Query: query, Response: result.Response})
		if len(history) > chatHistoryWindow {
			history = history[len(history)-chatHistoryWindow:]
		}
		eng.publisher.Drop(result.TurnID)
	}
}

// printEvents replays the finished turn's lifecycle log. The memory
// publisher retains it until Drop, so nothing is lost by reading after
// the fact.
func printEvents(ctx context.Context, out io.Writer, publisher *streaming.MemoryPublisher, result *orchestrator.Outcome) {
	envelopes, err := publisher.Replay(ctx, result.TurnID, 0, 0)
	if err != nil {
		return
	}
	for _, envelope := range envelopes {
		var data map[string]any
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			continue
		}
		switch envelope.Type {
		case streaming.EventTypeNodeEnd:
			fmt.Fprintf(out, "  · %v #%v (%vms)\n", data["node"], data["iteration"], data["duration_ms"])
		case streaming.EventTypeToolCallEnd:
			fmt.Fprintf(out, "  · %v → %v (%vms)\n", data["tool_label"], data["outcome"], data["duration_ms"])
		case streaming.EventTypeWarning:
			fmt.Fprintf(out, "  ! %v\n", data["message"])
		}
	}
}
