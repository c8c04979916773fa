package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ricesearch/disaster-response/internal/bus"
	"github.com/ricesearch/disaster-response/internal/config"
	"github.com/ricesearch/disaster-response/internal/metrics"
	"github.com/ricesearch/disaster-response/internal/pipeline"
	"github.com/ricesearch/disaster-response/internal/pkg/logger"
	"github.com/ricesearch/disaster-response/internal/pkg/security"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "disaster-response",
		Short: "Disaster Response - multi-label message classifier",
		Long: `Disaster Response cleans labeled disaster messages, trains a random forest
per category with a cross-validated grid search, and classifies new messages.

Examples:
  disaster-response process --messages data/disaster_messages.csv --categories data/disaster_categories.csv
  disaster-response train --database data/DisasterResponse.db --model-dir models/classifier
  disaster-response classify "We need water and food"`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose logging")

	rootCmd.AddCommand(
		processCmd(),
		trainCmd(),
		classifyCmd(),
		historyCmd(),
		eventsCmd(),
		versionCmd(),
	)

	return rootCmd
}

// setup loads the config and builds the logger shared by every command.
func setup(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if cfg.IsDevelopment() {
		log.Debug("Configuration loaded",
			"config", configPath,
			"bus", cfg.Bus.Type,
			"event_log", cfg.Bus.EventLogEnabled,
			"history", cfg.History.Type,
		)
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func processCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Clean the raw tables and save them to the database",
		Long: `Merge the messages and categories tables on id, expand the encoded
categories into one 0/1 column per label, drop exact duplicates and save the
result to the SQLite database.

The default label policy is strict: any category value other than 0 or 1
fails the run. The upstream dataset carries rows with related-2, so pass
--label-policy clamp to map such values to 1 instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("messages") {
				cfg.Data.MessagesPath, _ = flags.GetString("messages")
			}
			if flags.Changed("categories") {
				cfg.Data.CategoriesPath, _ = flags.GetString("categories")
			}
			if flags.Changed("database") {
				cfg.Data.DatabasePath, _ = flags.GetString("database")
			}
			if flags.Changed("table") {
				cfg.Data.Table, _ = flags.GetString("table")
			}
			if flags.Changed("label-policy") {
				cfg.Data.LabelPolicy, _ = flags.GetString("label-policy")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			eventBus, err := bus.NewBus(cfg.Bus, log)
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}
			defer func() { _ = eventBus.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			res, err := pipeline.NewProcessor(pipeline.ProcessorConfigFrom(cfg), log, eventBus).
				Run(ctx, cfg.Data.MessagesPath, cfg.Data.CategoriesPath, cfg.Data.DatabasePath)
			if err != nil {
				return err
			}

			fmt.Printf("Saved %d rows with %d categories to %s (table %s)\n",
				res.Rows, len(res.Labels), cfg.Data.DatabasePath, res.Table)
			return nil
		},
	}

	cmd.Flags().String("messages", "", "messages CSV path")
	cmd.Flags().String("categories", "", "categories CSV path")
	cmd.Flags().String("database", "", "SQLite database path")
	cmd.Flags().String("table", "", "table name")
	cmd.Flags().String("label-policy", "", "label values outside {0,1}: strict or clamp")

	return cmd
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train and evaluate the classifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("database") {
				cfg.Data.DatabasePath, _ = flags.GetString("database")
			}
			if flags.Changed("table") {
				cfg.Data.Table, _ = flags.GetString("table")
			}
			if flags.Changed("model-dir") {
				cfg.Train.ModelDir, _ = flags.GetString("model-dir")
			}
			if flags.Changed("seed") {
				cfg.Train.Seed, _ = flags.GetInt64("seed")
			}
			if flags.Changed("folds") {
				cfg.Train.Folds, _ = flags.GetInt("folds")
			}
			if flags.Changed("trees") {
				cfg.Train.Trees, _ = flags.GetInt("trees")
			}
			if flags.Changed("workers") {
				cfg.Train.Workers, _ = flags.GetInt("workers")
			}
			if flags.Changed("scoring") {
				cfg.Train.Scoring, _ = flags.GetString("scoring")
			}
			if flags.Changed("shuffle") {
				cfg.Train.ShuffleFolds, _ = flags.GetBool("shuffle")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			eventBus, err := bus.NewBus(cfg.Bus, log)
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}
			defer func() { _ = eventBus.Close() }()

			history, err := metrics.NewStorage(cfg.History)
			if err != nil {
				log.Warn("Run history unavailable, falling back to memory",
					"redis_url", security.RedactURL(cfg.History.RedisURL),
					"error", err.Error(),
				)
				history = metrics.NewMemoryStorage()
			}
			defer func() { _ = history.Close() }()

			ctx, cancel := signalContext()
			defer cancel()

			res, err := pipeline.NewTrainer(pipeline.TrainerConfigFrom(cfg), log, eventBus, history).
				WithReport(os.Stdout).
				Run(ctx, cfg.Data.DatabasePath, cfg.Train.ModelDir)
			if err != nil {
				return err
			}

			fmt.Printf("\nBest parameters: %s (cv %s %.4f)\n", res.Search.Best, res.Search.Scoring, res.Search.BestScore)
			fmt.Printf("Model saved to %s\n", cfg.Train.ModelDir)
			return nil
		},
	}

	cmd.Flags().String("database", "", "SQLite database path")
	cmd.Flags().String("table", "", "table name")
	cmd.Flags().String("model-dir", "", "model output directory")
	cmd.Flags().Int64("seed", 0, "random seed")
	cmd.Flags().Int("folds", 0, "cross-validation folds")
	cmd.Flags().Int("trees", 0, "trees per forest")
	cmd.Flags().Int("workers", 0, "parallel fits (0 = NumCPU)")
	cmd.Flags().String("scoring", "", "label_accuracy, subset_accuracy or f1_macro")
	cmd.Flags().Bool("shuffle", false, "shuffle rows before assigning folds")

	return cmd
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [message...]",
		Short: "Classify messages with a trained model",
		Long: `Classify messages given as arguments, or one message per line on stdin
when no arguments are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("model-dir") {
				cfg.Train.ModelDir, _ = cmd.Flags().GetString("model-dir")
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			messages := args
			if len(messages) == 0 {
				messages, err = readLines(os.Stdin)
				if err != nil {
					return err
				}
			}

			clf, err := pipeline.LoadClassifier(cfg.Train.ModelDir, nil)
			if err != nil {
				return err
			}
			preds, err := clf.Classify(messages)
			if err != nil {
				return err
			}
			for _, p := range preds {
				log.Debug("Classified message", "message", security.SanitizeForLog(p.Message), "labels", len(p.Labels))
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(preds)
			}
			for _, p := range preds {
				labels := "(none)"
				if len(p.Labels) > 0 {
					labels = strings.Join(p.Labels, ", ")
				}
				fmt.Printf("%s\n  -> %s\n", p.Message, labels)
			}
			return nil
		},
	}

	cmd.Flags().String("model-dir", "", "model directory")
	cmd.Flags().Bool("json", false, "print predictions as JSON")

	return cmd
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded training runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := setup(cmd)
			if err != nil {
				return err
			}
			since, _ := cmd.Flags().GetDuration("since")

			history, err := metrics.NewStorage(cfg.History)
			if err != nil {
				return err
			}
			defer func() { _ = history.Close() }()

			runs, err := history.LoadRuns(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded")
				return nil
			}
			for _, r := range runs {
				fmt.Printf("%s  %s  max_depth=%d min_samples_leaf=%d  cv=%.4f  f1=%.4f\n",
					r.Time.Format(time.RFC3339), r.ID, r.MaxDepth, r.MinSamplesLeaf, r.CVScore, r.MeanF1)
			}
			if best, ok := metrics.Best(runs); ok {
				fmt.Printf("\nBest run: %s (cv %.4f)\n", best.ID, best.CVScore)
			}
			return nil
		},
	}

	cmd.Flags().Duration("since", 30*24*time.Hour, "only show runs newer than this")

	return cmd
}

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events [run-id]",
		Short: "List, replay or follow pipeline events",
		Long: `List events recorded in the event log. With a run id only that run's
events are listed, otherwise events newer than --since.

--replay publishes the listed events again on the configured bus.
--follow subscribes to every pipeline topic and prints events as they
arrive until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			since, _ := flags.GetDuration("since")
			limit, _ := flags.GetInt("limit")
			replay, _ := flags.GetBool("replay")
			follow, _ := flags.GetBool("follow")

			ctx, cancel := signalContext()
			defer cancel()

			if follow {
				return followEvents(ctx, cfg.Bus, log)
			}

			eventLog, err := bus.NewEventLogger(cfg.Bus.EventLogPath, true)
			if err != nil {
				return err
			}
			defer func() { _ = eventLog.Close() }()

			var runID string
			var events []bus.LoggedEvent
			if len(args) == 1 {
				runID = args[0]
				events, err = eventLog.RunEvents(runID)
			} else {
				events, err = eventLog.Events(time.Now().Add(-since), limit)
			}
			if err != nil {
				return err
			}
			if len(events) == 0 {
				fmt.Printf("No events in %s\n", eventLog.Path())
				return nil
			}
			for _, e := range events {
				printEvent(e.Topic, e.Event)
			}
			if !replay {
				return nil
			}

			// The replayed events are already in the log.
			busCfg := cfg.Bus
			busCfg.EventLogEnabled = false
			target, err := bus.NewBus(busCfg, log)
			if err != nil {
				return fmt.Errorf("failed to create event bus: %w", err)
			}
			defer func() { _ = target.Close() }()

			if runID != "" {
				err = eventLog.ReplayRun(ctx, target, runID)
			} else {
				err = eventLog.Replay(ctx, target, time.Now().Add(-since))
			}
			if err != nil {
				return err
			}
			fmt.Printf("\nReplayed events on the %s bus\n", busCfg.Type)
			return nil
		},
	}

	cmd.Flags().Duration("since", 24*time.Hour, "only show events newer than this")
	cmd.Flags().Int("limit", 0, "maximum events to list (0 = all)")
	cmd.Flags().Bool("replay", false, "publish the listed events on the configured bus")
	cmd.Flags().Bool("follow", false, "print live events until interrupted")

	return cmd
}

func followEvents(ctx context.Context, cfg config.BusConfig, log *logger.Logger) error {
	cfg.EventLogEnabled = false
	eventBus, err := bus.NewBus(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer func() { _ = eventBus.Close() }()

	var mu sync.Mutex
	for _, topic := range []string{bus.TopicDatasetCleaned, bus.TopicCandidateScored, bus.TopicModelTrained, bus.TopicModelEvaluated} {
		err := eventBus.Subscribe(ctx, topic, func(_ context.Context, e bus.Event) error {
			mu.Lock()
			defer mu.Unlock()
			printEvent(topic, e)
			return nil
		})
		if err != nil {
			return err
		}
	}

	log.Info("Following pipeline events", "bus", cfg.Type)
	<-ctx.Done()
	return nil
}

func printEvent(topic string, e bus.Event) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		payload = []byte(fmt.Sprintf("%v", e.Payload))
	}
	fmt.Printf("%s  %-24s %s  %s\n",
		time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339), topic, e.RunID, payload)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("disaster-response %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

func readLines(f *os.File) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading stdin: %w", err)
	}
	return lines, nil
}
