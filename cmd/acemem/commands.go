package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"acemem/internal/embedding"
	"acemem/internal/logging"
	"acemem/internal/memory"
	"acemem/internal/oracle"
	"acemem/internal/prompts"
	"acemem/internal/reflection"
)

func openStore() (*memory.Store, error) {
	engine, err := embedding.Shared(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	logger := logging.Named("store")
	if flagSession != "" {
		return memory.OpenSession(cfg, engine, flagSession, memory.WithLogger(logger))
	}
	return memory.Open(cfg, engine, memory.WithLogger(logger))
}

func newWorkerCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the reflection worker until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			client, err := oracle.New(cfg.Oracle)
			if err != nil {
				return err
			}

			queue := memory.NewQueue(store.DB(), logging.Named("queue"))
			worker := reflection.NewWorker(store, queue, client, prompts.Normalize(cfg.Language),
				reflection.WithPollInterval(interval),
				reflection.WithWorkerLogger(logging.Named("reflection")),
			)
			worker.Start()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			worker.Stop()
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "idle polling interval")
	return cmd
}

func newAddCmd() *cobra.Command {
	var (
		entities     []string
		problemClass string
	)
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Store a memory directly, bypassing reflection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.Add(cmd.Context(), args[0], entities, problemClass)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored document %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&entities, "entity", nil, "entity tag (repeatable)")
	cmd.Flags().StringVar(&problemClass, "class", "", "problem class")
	return cmd
}

func newSearchCmd() *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Recall memories relevant to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			docs, err := store.Search(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no results")
				return nil
			}
			for i, doc := range docs {
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "---")
				}
				fmt.Fprintln(cmd.OutOrStdout(), doc)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", 3, "maximum results")
	return cmd
}

func newTasksCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List recent reflection tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			tasks, err := memory.NewQueue(store.DB(), nil).ListRecent(limit)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				line := fmt.Sprintf("%d\t%s\tretries=%d\t%s", t.ID, t.Status, t.Retries, firstLine(t.UserInput))
				if t.ErrorMsg != "" {
					line += "\terr=" + t.ErrorMsg
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum tasks to show")
	return cmd
}

func newRequeueCmd() *cobra.Command {
	var (
		maxAge     time.Duration
		maxRetries int
	)
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Return stale processing tasks to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			requeued, failed, err := memory.NewQueue(store.DB(), logging.Named("queue")).RequeueStale(maxAge, maxRetries)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d, failed %d\n", requeued, failed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 10*time.Minute, "age after which a processing task is stale")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 3, "retries before a stale task is failed")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store and queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			docs, err := store.Count()
			if err != nil {
				return err
			}
			byStatus, err := memory.NewQueue(store.DB(), nil).CountByStatus()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "documents: %d\n", docs)
			fmt.Fprintf(out, "indexed:   %d\n", store.IndexCount())
			fmt.Fprintf(out, "db:        %s\n", store.DBPath())
			fmt.Fprintf(out, "index:     %s\n", store.IndexPath())
			for _, status := range []string{memory.StatusPending, memory.StatusProcessing, memory.StatusDone, memory.StatusFailed} {
				if n := byStatus[status]; n > 0 {
					fmt.Fprintf(out, "tasks %s: %d\n", status, n)
				}
			}
			return nil
		},
	}
}

func newClearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all memories, the index, and the task queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear without --yes")
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Clear()
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if r := []rune(s); len(r) > 80 {
		s = string(r[:80]) + "…"
	}
	return s
}
