package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
	"github.com/google/uuid"
	"github.com/reeflective/readline"
	"github.com/spf13/cobra"

	"github.com/hummingbird-labs/hummingbird/internal/appdir"
	"github.com/hummingbird-labs/hummingbird/internal/conversation"
	"github.com/hummingbird-labs/hummingbird/internal/discovery"
	"github.com/hummingbird-labs/hummingbird/internal/fileutil"
	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/shutdown"
	"github.com/hummingbird-labs/hummingbird/internal/stream"
)

var (
	chatSessionID string
	chatNoSave    bool
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Pitch your product and get recommendations",
	Long: `Start an interactive discovery session.

Describe your product; the assistant answers each message. When you
are done, /end finishes the conversation, starts following the
backend's analysis log, and fetches the recommendations.

Commands:
  /end                - End the conversation and fetch recommendations
  /products           - Show the current recommendations
  /refresh            - Fetch the recommendations again
  /logs               - Show the analysis log received so far
  /transcript [file]  - Save the conversation as HTML
  /quit, /exit        - Exit
  /help               - Show available commands`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Session identifier; a saved session is resumed (default: a new random id)")
	chatCmd.Flags().BoolVar(&chatNoSave, "no-save", false, "Keep the conversation in memory only")
	addMetricsFlag(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	resolver, err := newResolver()
	if err != nil {
		return err
	}

	id := chatSessionID
	if id == "" {
		id = uuid.NewString()
	}
	store, err := openConversationStore(id, chatNoSave)
	if err != nil {
		return err
	}
	conv, err := conversation.New(conversation.Options{ID: id, Store: store})
	if err != nil {
		return err
	}

	sm := shutdown.New(cmd.Context())
	sm.Start()
	defer sm.Shutdown("chat finished")

	m, err := startClientMetrics(cmd.ErrOrStderr(), sm)
	if err != nil {
		return err
	}

	logger := logging.WithSession(logging.Conversation(), conv.ID())
	streamer := newStreamClient(resolver, m, stream.Callbacks{
		OnStateChange: func(_ string, s stream.State) {
			logger.Debug("Log stream state changed", "state", s.String())
		},
	})
	session := discovery.NewSession(conv, streamer, newProductsClient(resolver, m), nil)
	sm.AddCleanup(func(string) { session.Close() })

	chat := newChatSession(cmd.OutOrStdout(), session, conversation.NewRenderer())
	return chat.run(sm.Context())
}

// openConversationStore returns the store for session id: a file under the
// sessions directory, or memory when saving is disabled.
func openConversationStore(id string, memoryOnly bool) (conversation.Store, error) {
	if memoryOnly {
		return conversation.NewMemoryStore(), nil
	}
	if id == "." || id == ".." || filepath.Base(id) != id {
		return nil, fmt.Errorf("invalid session id %q", id)
	}
	dir, err := appdir.SessionsDir()
	if err != nil {
		return nil, err
	}
	return conversation.NewFileStore(filepath.Join(dir, id+".json"))
}

type slashCommand struct {
	name        string
	description string
}

// slashCommands defines the available slash commands with their descriptions.
var slashCommands = []slashCommand{
	{"/help", "Show available commands"},
	{"/end", "End the conversation and fetch recommendations"},
	{"/products", "Show the current recommendations"},
	{"/refresh", "Fetch the recommendations again"},
	{"/logs", "Show the analysis log received so far"},
	{"/transcript", "Save the conversation as HTML"},
	{"/quit", "Exit"},
	{"/exit", "Exit (alias)"},
}

// chatSession is the REPL state of one discovery session.
type chatSession struct {
	out      io.Writer
	session  *discovery.Session
	renderer *conversation.Renderer
}

func newChatSession(out io.Writer, session *discovery.Session, renderer *conversation.Renderer) *chatSession {
	return &chatSession{out: out, session: session, renderer: renderer}
}

func (c *chatSession) run(ctx context.Context) error {
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return "you> " })

	var history readline.History = readline.NewInMemoryHistory()
	if path := historyFile(); path != "" {
		if h, err := readline.NewHistoryFromFile(path); err == nil {
			history = h
		}
	}
	rl.History.Add("default", history)

	rl.Completer = func(line []rune, cursor int) readline.Completions {
		return completeInput(line, cursor)
	}

	c.greet()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				fmt.Fprintln(c.out, "\n👋 Goodbye!")
				return nil
			}
			return err
		}

		if quit := c.handleLine(ctx, line); quit {
			return nil
		}
	}
}

// greet prints a welcome line and the conversation so far.
func (c *chatSession) greet() {
	fmt.Fprintf(c.out, "🐦 %s\n", conversation.Welcome())
	fmt.Fprintf(c.out, "   Session %s. Type /help for commands, /end when you are done.\n\n", c.session.ID())

	msgs, err := c.session.Conversation().Messages()
	if err != nil {
		return
	}
	for _, m := range msgs {
		c.printMessage(m)
	}
}

// handleLine processes one line of input and reports whether the REPL should exit.
func (c *chatSession) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if strings.HasPrefix(line, "/") {
		return c.handleCommand(ctx, line)
	}

	_, reply, err := c.session.Conversation().Say(line)
	switch {
	case errors.Is(err, conversation.ErrEnded):
		fmt.Fprintln(c.out, "The conversation has ended. Use /products, /logs or /transcript.")
	case err != nil:
		fmt.Fprintf(c.out, "❌ %v\n", err)
	default:
		c.printMessage(reply)
	}
	return false
}

func (c *chatSession) handleCommand(ctx context.Context, line string) bool {
	parts, err := shlex.Split(strings.TrimPrefix(line, "/"))
	if err != nil {
		fmt.Fprintf(c.out, "❌ %v\n", err)
		return false
	}
	if len(parts) == 0 {
		return false
	}

	switch strings.ToLower(parts[0]) {
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "👋 Goodbye!")
		return true
	case "help", "h", "?":
		c.printHelp()
	case "end":
		items, err := c.session.End(ctx)
		if err != nil {
			fmt.Fprintf(c.out, "❌ %v\n", err)
		} else {
			fmt.Fprintln(c.out, "✅ Conversation ended, analysing your product...")
		}
		printItems(c.out, items)
	case "products":
		if !c.session.Conversation().Ended() {
			fmt.Fprintln(c.out, "No recommendations yet. Use /end first.")
			return false
		}
		printItems(c.out, c.session.Products())
	case "refresh":
		items, err := c.session.Refresh(ctx)
		if errors.Is(err, discovery.ErrNotEnded) {
			fmt.Fprintln(c.out, "No recommendations yet. Use /end first.")
			return false
		}
		printItems(c.out, items)
	case "logs":
		logs := c.session.Logs()
		fmt.Fprintf(c.out, "Log stream %s, %d entries\n", c.session.StreamState(), len(logs))
		p := newEntryPrinter(c.out, nil, false)
		for _, e := range logs {
			p.Print(e)
		}
	case "transcript":
		path := "hummingbird-" + c.session.ID() + ".html"
		if len(parts) > 1 {
			path = parts[1]
		}
		if err := c.writeTranscript(path); err != nil {
			fmt.Fprintf(c.out, "❌ %v\n", err)
			return false
		}
		fmt.Fprintf(c.out, "📄 Transcript written to %s\n", path)
	default:
		fmt.Fprintf(c.out, "❓ Unknown command: %s (use /help for available commands)\n", parts[0])
	}
	return false
}

func (c *chatSession) writeTranscript(path string) error {
	msgs, err := c.session.Conversation().Messages()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	title := "Hummingbird session " + c.session.ID()
	if err := c.renderer.RenderTranscript(&buf, title, msgs, c.session.Products()); err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

func (c *chatSession) printMessage(m conversation.Message) {
	if m.Sender == conversation.SenderUser {
		fmt.Fprintf(c.out, "you> %s\n", m.Text)
		return
	}
	fmt.Fprintf(c.out, "🐦 %s\n", m.Text)
}

func (c *chatSession) printHelp() {
	fmt.Fprintln(c.out, `
Available commands:
  /end                - End the conversation and fetch recommendations
  /products           - Show the current recommendations
  /refresh            - Fetch the recommendations again
  /logs               - Show the analysis log received so far
  /transcript [file]  - Save the conversation as HTML
  /quit, /exit        - Exit
  /help               - Show this help message

Tips:
  - Mention your website or what your product does
  - Use Ctrl+C or Ctrl+D to exit
  - Use Tab to autocomplete slash commands`)
}

// completeInput provides tab completion for slash commands.
func completeInput(line []rune, cursor int) readline.Completions {
	matches := matchingCommands(completionPrefix(line, cursor))
	if len(matches) == 0 {
		return readline.Completions{}
	}

	pairs := make([]string, 0, len(matches)*2)
	for _, cmd := range matches {
		pairs = append(pairs, cmd.name, cmd.description)
	}
	return readline.CompleteValuesDescribed(pairs...).
		Tag("commands").
		NoSpace('/')
}

// completionPrefix returns the input before the cursor. The cursor counts
// runes, not bytes.
func completionPrefix(line []rune, cursor int) string {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(line) {
		cursor = len(line)
	}
	return string(line[:cursor])
}

// matchingCommands returns the slash commands completing text.
func matchingCommands(text string) []slashCommand {
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	var out []slashCommand
	for _, cmd := range slashCommands {
		if strings.HasPrefix(cmd.name, text) {
			out = append(out, cmd)
		}
	}
	return out
}
