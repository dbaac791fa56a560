package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/config"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/core"
	"github.com/dot-org-ai/primitives.org.ai-sub003/pkg/docdb"
)

var (
	configPath string
	dataDir    string
	namespace  string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "docdb",
	Short: "Document, graph and event store on SQLite",
	Long: `docdb stores typed JSON documents with relationships, an append-only
event log and cached embeddings, one SQLite unit per namespace.`,
	SilenceUsage: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the schema of a namespace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *core.SQLiteStore) error {
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to initialize %s: %w", namespace, err)
			}
			fmt.Printf("Namespace %q initialized at %s\n", namespace, store.Config().Path)
			return nil
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *core.SQLiteStore) error {
			doc, err := store.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(doc)
		})
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <Type/id>",
	Short: "Rebuild a document by folding its event history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *core.SQLiteStore) error {
			doc, err := store.Rebuild(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to rebuild %s: %w", args[0], err)
			}
			return printJSON(doc)
		})
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List events",
	RunE: func(cmd *cobra.Command, args []string) error {
		event, _ := cmd.Flags().GetString("event")
		object, _ := cmd.Flags().GetString("object")
		limit, _ := cmd.Flags().GetInt("limit")
		order, _ := cmd.Flags().GetString("order")

		return withStore(func(ctx context.Context, store *core.SQLiteStore) error {
			events, err := store.ListEvents(ctx, core.EventQuery{Event: event, Object: object, Limit: limit, Order: order})
			if err != nil {
				return err
			}
			return printJSON(events)
		})
	},
}

// flushCmd re-exports stored events through the pipeline. The in-memory
// buffer of a running server is not reachable from here.
var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Export stored events to the configured pipeline sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetDuration("since")
		event, _ := cmd.Flags().GetString("event")

		return withStore(func(ctx context.Context, store *core.SQLiteStore) error {
			opts := core.ReplayOptions{Event: event}
			if since > 0 {
				opts.Since = time.Now().Add(-since)
			}
			events, err := store.Replay(ctx, opts)
			if err != nil {
				return err
			}

			buf := store.Pipeline()
			batches := 0
			for _, ev := range events {
				res, err := buf.Append(ctx, ev)
				if err != nil {
					return fmt.Errorf("failed to export events: %w", err)
				}
				if res != nil {
					batches++
				}
			}
			res, err := buf.Flush(ctx)
			if err != nil {
				return fmt.Errorf("failed to export events: %w", err)
			}
			if res != nil {
				batches++
			}

			fmt.Printf("Exported %d events in %d batches\n", len(events), batches)
			return nil
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Dump a namespace as JSON Lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skipEvents, _ := cmd.Flags().GetBool("skip-events")

		return withStore(func(ctx context.Context, store *core.SQLiteStore) error {
			stats, err := store.DumpToFile(ctx, args[0], core.DumpOptions{SkipEvents: skipEvents})
			if err != nil {
				return err
			}
			fmt.Printf("Exported %d documents, %d relationships, %d subscriptions, %d events\n",
				stats.Documents, stats.Relationships, stats.Subscriptions, stats.Events)
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load a JSON Lines dump into a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		replace, _ := cmd.Flags().GetBool("replace")

		return withStore(func(ctx context.Context, store *core.SQLiteStore) error {
			stats, err := store.LoadFromFile(ctx, args[0], core.LoadOptions{Replace: replace})
			if err != nil {
				return err
			}
			fmt.Println(stats.String())
			return nil
		})
	},
}

var backupCmd = &cobra.Command{
	Use:   "backup <file>",
	Short: "Copy a namespace database into a new file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *core.SQLiteStore) error {
			if err := store.Backup(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Namespace %q backed up to %s\n", namespace, args[0])
			return nil
		})
	},
}

// withStore builds the runtime from configuration and runs fn against the
// selected namespace
func withStore(fn func(ctx context.Context, store *core.SQLiteStore) error) error {
	rt, err := openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	store, err := rt.Registry.Get(namespace)
	if err != nil {
		return err
	}
	return fn(context.Background(), store)
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

func openRuntime() (*docdb.Runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return docdb.NewRuntime(cfg, docdb.NewLogger(cfg.Logging, os.Stderr))
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search for docdb.yaml)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Directory holding one database per namespace")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", core.DefaultNamespace, "Namespace to operate on")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	eventsCmd.Flags().String("event", "", "Event name or wildcard pattern")
	eventsCmd.Flags().String("object", "", "Object name")
	eventsCmd.Flags().Int("limit", core.DefaultEventLimit, "Maximum number of events")
	eventsCmd.Flags().String("order", "asc", "Sort order (asc/desc)")

	flushCmd.Flags().Duration("since", 0, "Only export events newer than this (0 for all)")
	flushCmd.Flags().String("event", "", "Event name or wildcard pattern")

	exportCmd.Flags().Bool("skip-events", false, "Leave the event log out of the dump")
	importCmd.Flags().Bool("replace", false, "Overwrite existing rows instead of skipping them")

	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
	mcpCmd.Flags().String("transport", "stdio", "Transport mode: stdio or http")
	mcpCmd.Flags().String("addr", ":8788", "HTTP listen address (only used with --transport http)")

	rootCmd.AddCommand(
		initCmd,
		serveCmd,
		mcpCmd,
		getCmd,
		eventsCmd,
		rebuildCmd,
		flushCmd,
		exportCmd,
		importCmd,
		backupCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
