package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hummingbird-labs/hummingbird/internal/logfilter"
	"github.com/hummingbird-labs/hummingbird/internal/shutdown"
	"github.com/hummingbird-labs/hummingbird/internal/stream"
)

var (
	logsFilter string
	logsJSON   bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <session-id>",
	Short: "Follow the backend log stream of a session",
	Long: `Connect to the log stream of a session and print every log entry
as it arrives.

The stream reconnects with exponential backoff after unexpected closes
and gives up once the retry ceiling (stream.max_retry_attempts) is
reached. Press Ctrl+C to stop.

Use --filter to print only entries matching a CEL expression. The
variables level, message, timestamp and tag are available:
  hummingbird logs abc123 --filter 'level != "INFO"'
  hummingbird logs abc123 --filter 'message.contains("competitor")'`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsFilter, "filter", "", "CEL expression selecting which entries to print")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "Print entries as JSON lines")
	addMetricsFlag(logsCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	filter, err := logfilter.Compile(logsFilter)
	if err != nil {
		return err
	}
	resolver, err := newResolver()
	if err != nil {
		return err
	}

	sm := shutdown.New(cmd.Context())
	sm.Start()
	defer sm.Shutdown("logs command finished")

	out := newEntryPrinter(cmd.OutOrStdout(), filter, logsJSON)
	status := cmd.ErrOrStderr()

	m, err := startClientMetrics(status, sm)
	if err != nil {
		return err
	}

	client := newStreamClient(resolver, m, stream.Callbacks{
		OnStateChange: func(_ string, s stream.State) {
			fmt.Fprintf(status, "stream %s\n", s)
		},
		OnLog: func(_ string, e stream.LogEntry) {
			out.Print(e)
		},
		OnReconnectScheduled: func(_ string, attempt int, delay time.Duration) {
			fmt.Fprintf(status, "reconnecting in %s (attempt %d/%d)\n", delay, attempt, cfg.Stream.MaxRetryAttempts)
		},
	})
	sm.AddCleanup(func(string) { client.Close() })

	sessionID := args[0]
	if err := client.Start(sm.Context(), sessionID); err != nil {
		return err
	}

	select {
	case <-client.Done():
	case <-sm.Context().Done():
	}

	if client.State() == stream.StateFailed {
		return fmt.Errorf("log stream for session %s failed after %d attempts", sessionID, client.Attempts())
	}
	return nil
}

// entryPrinter writes log entries that pass its filter.
type entryPrinter struct {
	mu     sync.Mutex
	w      io.Writer
	filter *logfilter.Filter
	json   bool
}

func newEntryPrinter(w io.Writer, filter *logfilter.Filter, asJSON bool) *entryPrinter {
	return &entryPrinter{w: w, filter: filter, json: asJSON}
}

// Print writes e unless the filter rejects it. It reports whether e was written.
func (p *entryPrinter) Print(e stream.LogEntry) bool {
	if !p.filter.Match(e) {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.json {
		data, err := json.Marshal(e)
		if err != nil {
			return false
		}
		fmt.Fprintf(p.w, "%s\n", data)
		return true
	}
	fmt.Fprintf(p.w, "%s [%-5s] %s\n", e.Timestamp, e.Level, e.Message)
	return true
}
