package historycmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/callflow/cmd/callflow/turnlog"
	"github.com/papercomputeco/callflow/pkg/config"
	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/logger"
	"github.com/papercomputeco/callflow/pkg/storage"
)

const historyLongDesc string = `Print stored turns.

Without arguments the most recent turns across all calls are shown. With a
call id, the turns of that call found within the most recent --limit turns
are shown: exactly the context the relay would replay for that call.

Examples:
  callflow history
  callflow history 5f2c9a --limit 20
  callflow history --driver sqlite --store turns.db --json`

const historyShortDesc string = "Print stored turns"

// defaultWidth is used when stdout is not a terminal.
const defaultWidth = 120

type historyCommander struct {
	storePath string
	driver    string
	limit     int
	asJSON    bool
	debug     bool
}

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history [call-id]",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callID := ""
			if len(args) == 1 {
				callID = args[0]
			}
			return cmder.run(cmd.Context(), cmd, callID)
		},
	}

	defaults := config.Default()
	cmd.Flags().StringVarP(&cmder.storePath, "store", "s", defaults.Store.Path, "Path to the turn log")
	cmd.Flags().StringVar(&cmder.driver, "driver", defaults.Store.Driver, "Turn log driver (jsonfile, sqlite)")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", storage.DefaultLimit, "Number of recent turns to consider (0 for all)")
	cmd.Flags().BoolVar(&cmder.asJSON, "json", false, "Print turns as JSON")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Log store activity to stderr")

	return cmd
}

func (c *historyCommander) run(ctx context.Context, cmd *cobra.Command, callID string) error {
	if c.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}

	log := zap.NewNop()
	if c.debug {
		log = logger.New(cmd.ErrOrStderr(), true)
	}

	historyLimit := c.limit
	if historyLimit == 0 {
		// Drivers treat a non-positive history limit as the default.
		historyLimit = math.MaxInt
	}

	driver, err := turnlog.Open(ctx, c.driver, c.storePath, historyLimit, log)
	if err != nil {
		return err
	}
	defer driver.Close()

	var turns []llm.Turn
	if callID != "" {
		turns = driver.HistoryFor(ctx, callID)
	} else {
		turns = driver.Load(ctx, c.limit)
	}

	if c.asJSON {
		return writeJSON(cmd.OutOrStdout(), turns)
	}

	if len(turns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No turns found.")
		return nil
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable(turns, terminalWidth(cmd.OutOrStdout())))
	return nil
}

func writeJSON(w io.Writer, turns []llm.Turn) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(turns); err != nil {
		return fmt.Errorf("could not encode turns: %w", err)
	}
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// renderTable lays turns out one per row, truncating request and response so
// that the table fits in width columns.
func renderTable(turns []llm.Turn, width int) string {
	// timestamp (26) + call id (12) + index (4) + borders and padding
	textWidth := (width - 26 - 12 - 4 - 16) / 2
	if textWidth < 12 {
		textWidth = 12
	}

	rows := make([][]string, 0, len(turns))
	for i, t := range turns {
		callID := t.CallIDString()
		if callID == "" {
			callID = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			t.Timestamp,
			ansi.Truncate(callID, 12, "…"),
			ansi.Truncate(flatten(t.Request), textWidth, "…"),
			ansi.Truncate(flatten(t.Response), textWidth, "…"),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers("#", "TIMESTAMP", "CALL ID", "REQUEST", "RESPONSE").
		Rows(rows...).
		String()
}

func flatten(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			r = ' '
		}
		out = append(out, r)
	}
	return string(out)
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
