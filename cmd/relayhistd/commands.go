package main

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xtxerr/relayhist/internal/app"
	"github.com/xtxerr/relayhist/internal/config"
	"github.com/xtxerr/relayhist/internal/errors"
	"github.com/xtxerr/relayhist/internal/graph"
	"github.com/xtxerr/relayhist/internal/logging"
	"github.com/xtxerr/relayhist/internal/validation"
)

type options struct {
	configPath string
	now        string
}

func rootCmd() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "relayhistd",
		Short:         "relayhistd maintains relay status histories and renders their graphs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&o.configPath, "config", "config.yaml", "config file path")
	cmd.PersistentFlags().StringVar(&o.now, "now", "", "evaluation time as RFC 3339 (default: current time)")

	cmd.AddCommand(
		ingestCmd(o),
		replayCmd(o),
		renderCmd(o),
		listCmd(o),
		requirementsCmd(o),
		versionCmd(),
	)
	return cmd
}

// loadConfig loads the config file, falling back to defaults when it
// does not exist.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.DefaultConfig()
		err = nil
	}
	if err != nil {
		return nil, err
	}
	if err := app.SetupLogging(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *options) open() (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func (o *options) nowMillis() (int64, error) {
	if o.now == "" {
		return app.Now(), nil
	}
	t, err := time.Parse(time.RFC3339, o.now)
	if err != nil {
		return 0, fmt.Errorf("--now: %w", err)
	}
	return t.UnixMilli(), nil
}

func ingestCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file]",
		Short: "Merge observations into status records",
		Long: `Reads one observation per line, "family entity start end field...",
from file or standard input, and merges them into the stored records.
Leftover journal batches are replayed first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := o.nowMillis()
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			a, err := o.open()
			if err != nil {
				return err
			}
			defer a.Close()

			log := logging.Component("ingest")
			raw, skipped, err := app.ReadObservations(in, log)
			if err != nil {
				return err
			}

			r, err := a.Ingest(cmd.Context(), now, raw)
			if err != nil {
				return err
			}
			log.Info("ingest finished", "lines_skipped", skipped, "report", r.String())
			fmt.Fprintln(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func replayCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Apply journaled batches left by an interrupted run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := o.nowMillis()
			if err != nil {
				return err
			}
			a, err := o.open()
			if err != nil {
				return err
			}
			defer a.Close()

			r, err := a.Replay(cmd.Context(), now)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

type renderDocument struct {
	Family string        `json:"family"`
	Entity string        `json:"entity"`
	Graphs []graph.Graph `json:"graphs"`
}

func renderCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "render family entity | render family/entity",
		Short: "Print the graphs of one record as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				ref, err := validation.ParseRecordRef(args[0])
				if err != nil {
					return err
				}
				args = []string{ref.Family, ref.Entity}
			}
			now, err := o.nowMillis()
			if err != nil {
				return err
			}
			a, err := o.open()
			if err != nil {
				return err
			}
			defer a.Close()

			graphs, err := a.Render(cmd.Context(), args[0], args[1], now)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(renderDocument{Family: args[0], Entity: args[1], Graphs: graphs})
		},
	}
}

func listCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list family",
		Short: "List the entities stored for a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.open()
			if err != nil {
				return err
			}
			defer a.Close()

			entities, err := a.Entities(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, e := range entities {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
}

func requirementsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "requirements",
		Short: "Estimate storage for the configured scale",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			req, err := cfg.CalculateRequirements()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), req.FormatRequirements())
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "relayhistd %s\n", Version)
		},
	}
}
