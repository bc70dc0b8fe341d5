package chatcmder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const chatLongDesc string = `Talk to a running callflow relay as a caller would.

Each line you enter is posted to /callflow with the same call-id header, so
the relay replays the conversation so far. A fresh call id is generated
unless --call-id is given. When stdin or stdout is not a terminal, lines are
read from stdin and replies printed one per turn.

Examples:
  callflow chat http://localhost:8000
  callflow chat --call-id demo-42 http://localhost:8000
  echo "do you cover jet skis?" | callflow chat http://localhost:8000`

const chatShortDesc string = "Chat with a running relay"

type chatCommander struct {
	callID string
	plain  bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat <server-url>",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&cmder.callID, "call-id", "", "Call identifier to send (default: random)")
	cmd.Flags().BoolVar(&cmder.plain, "plain", false, "Disable the interactive interface")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command, serverURL string) error {
	callID := c.callID
	if callID == "" {
		callID = uuid.NewString()
	}
	cl := newCaller(serverURL, callID)

	if c.plain || !isTerminal(cmd.InOrStdin()) || !isTerminal(cmd.OutOrStdout()) {
		return runPlain(ctx, cl, cmd.InOrStdin(), cmd.OutOrStdout())
	}

	program := tea.NewProgram(
		newChatModel(ctx, cl, glamourStyle()),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("chat interface failed: %w", err)
	}
	return nil
}

// runPlain reads one utterance per line and prints each reply.
func runPlain(ctx context.Context, cl *caller, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "call %s\n", cl.callID)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		reply, err := cl.say(ctx, text)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "agent: %s\n", strings.TrimSpace(reply))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not read input: %w", err)
	}
	return nil
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
