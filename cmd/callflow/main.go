package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/callflow/cmd/callflow/chat"
	historycmder "github.com/papercomputeco/callflow/cmd/callflow/history"
	mergecmder "github.com/papercomputeco/callflow/cmd/callflow/merge"
	servecmder "github.com/papercomputeco/callflow/cmd/callflow/serve"
	"github.com/papercomputeco/callflow/relay"
)

const rootLongDesc string = `callflow relays caller speech to a chat completion service.

The relay accepts transcribed caller text on POST /callflow, answers it with
the caller's recent turns as context and records every exchange in a turn
log. The remaining commands inspect, merge and exercise that log.`

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "callflow",
		Short:         "Conversational relay for voice calls",
		Long:          rootLongDesc,
		Version:       relay.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		servecmder.NewServeCmd(),
		historycmder.NewHistoryCmd(),
		chatcmder.NewChatCmd(),
		mergecmder.NewMergeCmd(),
	)

	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
