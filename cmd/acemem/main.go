// Command acemem operates the memory substrate from the shell: run the
// reflection worker, add and search memories, and inspect the task queue.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"acemem/internal/config"
	"acemem/internal/logging"
)

var (
	flagConfig  string
	flagSession string
	flagDebug   bool

	cfg config.Config
)

func main() {
	root := &cobra.Command{
		Use:   "acemem",
		Short: "Long-term memory store and reflection worker",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logging.Init(flagDebug); err != nil {
				return err
			}
			if flagConfig != "" {
				loaded, err := config.LoadFile(flagConfig)
				if err != nil {
					return err
				}
				cfg = loaded
			} else {
				cfg = config.FromEnv()
			}
			if flagSession == "new" {
				flagSession = uuid.NewString()
				fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", flagSession)
			}
			return cfg.Validate()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Sync()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (yaml); env vars used when unset")
	root.PersistentFlags().StringVar(&flagSession, "session", "", "session id ('new' generates one; empty uses the shared store)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "verbose logging")

	root.AddCommand(
		newWorkerCmd(),
		newAddCmd(),
		newSearchCmd(),
		newTasksCmd(),
		newRequeueCmd(),
		newStatsCmd(),
		newClearCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
