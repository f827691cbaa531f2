package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jholhewres/shopclaw/pkg/shopclaw/copilot"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const cliSessionID = "cli"

// newChatCmd creates the `shopclaw chat` command.
func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the assistant from the terminal",
		Long: `Send a single message, or start an interactive conversation when no
message is given. The conversation keeps one session until exit.

Examples:
  shopclaw chat "ikra elbise fiyatı nedir?"
  shopclaw chat`,
		Args: cobra.MaximumNArgs(1),
		RunE: runChat,
	}

	cmd.Flags().StringP("session", "s", cliSessionID, "session id")
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig(cmd)
	if err != nil {
		return err
	}
	logger := quietLogging(cmd, cfg.Logging)

	ctx := cmd.Context()
	assistant, err := copilot.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating assistant: %w", err)
	}
	defer assistant.Stop()

	session, _ := cmd.Flags().GetString("session")
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		reply := assistant.Chat(ctx, session, args[0])
		fmt.Fprintln(out, reply.Text)
		return nil
	}

	fmt.Fprintf(out, "%s assistant. Type 'exit' to quit.\n\n", cfg.Name)
	return chatLoop(ctx, out, func(line string) string {
		return assistant.Chat(ctx, session, line).Text
	})
}

// chatLoop reads lines until EOF or "exit". A readline prompt with history
// is used on a terminal, plain line reading otherwise.
func chatLoop(ctx context.Context, out io.Writer, answer func(string) string) error {
	next, closeFn, err := lineReader()
	if err != nil {
		return err
	}
	defer closeFn()

	for ctx.Err() == nil {
		line, err := next()
		if errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit", "/exit":
			return nil
		}
		fmt.Fprintf(out, "\n%s\n\n", answer(line))
	}
	return nil
}

func lineReader() (next func() (string, error), closeFn func(), err error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		sc := bufio.NewScanner(os.Stdin)
		return func() (string, error) {
			if !sc.Scan() {
				if err := sc.Err(); err != nil {
					return "", err
				}
				return "", io.EOF
			}
			return sc.Text(), nil
		}, func() {}, nil
	}

	history := ""
	if home, err := os.UserHomeDir(); err == nil {
		history = filepath.Join(home, ".shopclaw_history")
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("starting prompt: %w", err)
	}
	return rl.Readline, func() { _ = rl.Close() }, nil
}
