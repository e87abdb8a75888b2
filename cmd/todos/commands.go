package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pbaille/todos/internal/api"
	"github.com/pbaille/todos/internal/config"
	"github.com/pbaille/todos/internal/store"
	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	dbPath     string
	driver     string
	verbose    bool

	cfg config.Config
}

func rootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "todos",
		Short:        "A small to-do list service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "database path (overrides DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.driver, "driver", "", "SQL driver: sqlite3 (cgo) or sqlite (pure Go)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(serveCmd(opts))
	root.AddCommand(addCmd(opts))
	root.AddCommand(listCmd(opts))
	root.AddCommand(showCmd(opts))
	root.AddCommand(editCmd(opts))
	root.AddCommand(rmCmd(opts))

	return root
}

// load resolves config and sets up logging. Flags win over file and env.
func (o *options) load(cmd *cobra.Command) error {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db") {
		cfg.DatabaseURL = o.dbPath
	}
	if cmd.Flags().Changed("driver") {
		cfg.Driver = o.driver
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}

func (o *options) openStore() (*store.Store, error) {
	if err := o.cfg.EnsureDir(); err != nil {
		return nil, err
	}
	slog.Debug("opening database", "driver", o.cfg.Driver, "path", o.cfg.DatabaseURL)
	return store.Open(o.cfg.Driver, o.cfg.DatabaseURL)
}

func serveCmd(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server and web page",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				opts.cfg.Addr = addr
			}

			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() {
				if err := s.Close(); err != nil {
					slog.Error("error closing database", "error", err)
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s\n", opts.cfg.Addr)
			return api.New(s, opts.cfg.Addr, slog.Default()).Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (overrides PORT)")
	return cmd
}

func addCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add [text]",
		Short: "Add a new item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			item, err := s.Create(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added item %d: %s\n", item.ID, item.Text)
			return nil
		},
	}
}

func listCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			items, err := s.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, "No items yet. Use 'todos add' to create one.")
				return nil
			}

			for _, it := range items {
				fmt.Fprintf(out, "%4d  %s  %s\n", it.ID, it.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(it.Text, 60))
			}
			return nil
		},
	}
}

func showCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show item details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			item, err := s.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:      %d\n", item.ID)
			fmt.Fprintf(out, "Created: %s\n", item.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Text:\n%s\n", item.Text)
			return nil
		},
	}
}

func editCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "edit [id] [text]",
		Short: "Replace the text of an item",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			item, err := s.Update(cmd.Context(), id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Updated item %d: %s\n", item.ID, item.Text)
			return nil
		},
	}
}

func rmCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [id]",
		Aliases: []string{"delete"},
		Short:   "Delete an item",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := opts.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Delete(cmd.Context(), id); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted item %d\n", id)
			return nil
		},
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %s", s)
	}
	return id, nil
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
