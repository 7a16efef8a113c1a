// cmd/logsentry/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalnine/logsentry/internal/app"
	"github.com/signalnine/logsentry/internal/archive"
	"github.com/signalnine/logsentry/internal/config"
	"github.com/signalnine/logsentry/internal/dashboard"
	"github.com/signalnine/logsentry/internal/history"
	"github.com/signalnine/logsentry/internal/logparser"
	"github.com/signalnine/logsentry/internal/report"
)

var (
	configPath string
	filter     string
	search     string
	noSave     bool
)

var rootCmd = &cobra.Command{
	Use:          "logsentry",
	Short:        "Classify request logs as benign or malicious via LLM",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local dashboard API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv, err := dashboard.NewServer(ctx, cfg)
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Analyze a CSV of request logs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		entries, err := logparser.Parse(string(data))
		if err != nil {
			var fe *logparser.FormatError
			if errors.As(err, &fe) {
				return fmt.Errorf("%s: %w", args[0], fe)
			}
			return err
		}

		runner, err := app.NewRunner(cfg.Classifier)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out := cmd.ErrOrStderr()
		fileName := filepath.Base(args[0])
		log.Printf("Analyzing %d entries from %s", len(entries), fileName)
		result, stats := runner.Run(ctx, fileName, entries, func(p float64) {
			fmt.Fprintf(out, "\r%s", report.ProgressLine(p, 40))
		})
		fmt.Fprintln(out)
		if stats.Cancelled {
			return fmt.Errorf("analysis cancelled: %d of %d entries not analyzed, nothing saved", stats.Skipped, len(entries))
		}

		if !noSave {
			store, closeDB, err := app.OpenHistory(cfg.DBPath)
			if err != nil {
				return err
			}
			defer closeDB()
			if err := store.Append(context.WithoutCancel(ctx), result); err != nil {
				return fmt.Errorf("save history: %w", err)
			}

			archiver, err := app.OpenArchive(ctx, cfg.Archive)
			if err != nil {
				log.Printf("Archive unavailable: %v", err)
			} else {
				archive.Best(ctx, archiver, result.ID, fileName, data)
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), report.RenderResult(result, filter, search))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analyses, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openStore()
		if err != nil {
			return err
		}
		defer closeDB()

		list, err := store.List(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.RenderHistory(list))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a past analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeDB, err := openStore()
		if err != nil {
			return err
		}
		defer closeDB()

		result, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), report.RenderResult(result, filter, search))
		return nil
	},
}

func openStore() (*history.Store, func() error, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return app.OpenHistory(cfg.DBPath)
}

func init() {
	defaultConfig := "logsentry.yaml"
	if v := os.Getenv("LOGSENTRY_CONFIG"); v != "" {
		defaultConfig = v
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")

	for _, cmd := range []*cobra.Command{analyzeCmd, showCmd} {
		cmd.Flags().StringVar(&filter, "filter", "all", "show only all, benign or malicious results")
		cmd.Flags().StringVarP(&search, "search", "s", "", "case-insensitive search in path and body")
	}
	analyzeCmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the run in history")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
