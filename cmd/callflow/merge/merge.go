package mergecmder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/callflow/cmd/callflow/turnlog"
	"github.com/papercomputeco/callflow/pkg/config"
	"github.com/papercomputeco/callflow/pkg/llm"
	"github.com/papercomputeco/callflow/pkg/storage"
)

const mergeLongDesc string = `Merge one or more source turn logs into a target.

Turns already present in the target (same call id, request, response and
timestamp) are skipped, so merging the same source twice is harmless.
Sources and target may use different drivers; a driver is inferred from the
file extension (.db, .sqlite, .sqlite3 for sqlite, anything else jsonfile)
unless given explicitly.

Examples:
  callflow merge old-messages.json
  callflow merge --store turns.db --driver sqlite messages.json
  callflow merge --store merged.json a.json b.json`

const mergeShortDesc string = "Merge turn logs"

type mergeCommander struct {
	storePath    string
	driver       string
	sourceDriver string
}

func NewMergeCmd() *cobra.Command {
	cmder := &mergeCommander{}

	cmd := &cobra.Command{
		Use:   "merge [sources...]",
		Short: mergeShortDesc,
		Long:  mergeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.storePath, "store", "s", config.Default().Store.Path, "Path to the target turn log")
	cmd.Flags().StringVar(&cmder.driver, "driver", "", "Target driver (jsonfile, sqlite; default: from extension)")
	cmd.Flags().StringVar(&cmder.sourceDriver, "source-driver", "", "Source driver (jsonfile, sqlite; default: from extension)")

	return cmd
}

func (c *mergeCommander) run(ctx context.Context, cmd *cobra.Command, sources []string) error {
	logger := zap.NewNop()

	target, err := turnlog.Open(ctx, driverFor(c.driver, c.storePath), c.storePath, storage.DefaultLimit, logger)
	if err != nil {
		return fmt.Errorf("could not open target: %w", err)
	}
	defer target.Close()

	seen := make(map[turnKey]struct{})
	for _, t := range target.Load(ctx, storage.Unbounded) {
		seen[keyOf(t)] = struct{}{}
	}

	var totalNew, totalDuped int

	for _, srcPath := range sources {
		if _, err := os.Stat(srcPath); err != nil {
			return fmt.Errorf("could not read source %s: %w", srcPath, err)
		}

		source, err := turnlog.Open(ctx, driverFor(c.sourceDriver, srcPath), srcPath, storage.DefaultLimit, logger)
		if err != nil {
			return fmt.Errorf("could not open source %s: %w", srcPath, err)
		}

		turns := source.Load(ctx, storage.Unbounded)

		var srcNew, srcDuped int
		for _, t := range turns {
			key := keyOf(t)
			if _, ok := seen[key]; ok {
				srcDuped++
				continue
			}
			if !target.Append(ctx, t) {
				source.Close()
				return fmt.Errorf("could not append turn %s from %s", t.Timestamp, srcPath)
			}
			seen[key] = struct{}{}
			srcNew++
		}

		totalNew += srcNew
		totalDuped += srcDuped
		source.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "  %s: %d new, %d already existed\n", srcPath, srcNew, srcDuped)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Merged %d new turns from %d sources (%d already existed) into %s\n",
		totalNew, len(sources), totalDuped, c.storePath)

	return nil
}

type turnKey struct {
	callID    string
	anonymous bool
	request   string
	response  string
	timestamp string
}

func keyOf(t llm.Turn) turnKey {
	return turnKey{
		callID:    t.CallIDString(),
		anonymous: t.CallID == nil,
		request:   t.Request,
		response:  t.Response,
		timestamp: t.Timestamp,
	}
}

// driverFor returns explicit when set, otherwise guesses from the extension.
func driverFor(explicit, path string) string {
	if explicit != "" {
		return explicit
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return config.DriverSQLite
	default:
		return config.DriverJSONFile
	}
}
