// Command dbcrossbar moves tabular data between databases, cloud data
// warehouses, object stores and local files.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbcrossbar/dbcrossbar/config"
	"github.com/dbcrossbar/dbcrossbar/driver"
	_ "github.com/dbcrossbar/dbcrossbar/drivers"
	"github.com/dbcrossbar/dbcrossbar/engine"
	"github.com/dbcrossbar/dbcrossbar/internal/logctx"
)

type cpFlags struct {
	schemaLocator  string
	ifExists       string
	temporaries    []string
	fromArgs       []string
	toArgs         []string
	where          string
	maxStreams     int
	fromFormat     string
	toFormat       string
	enableUnstable bool
}

type countFlags struct {
	schemaLocator  string
	fromArgs       []string
	where          string
	enableUnstable bool
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "dbcrossbar",
		Short:         "Copy tabular data between databases and storage systems",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	}

	rootCmd.AddCommand(cpCmd())
	rootCmd.AddCommand(countCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(featuresCmd())

	if err := rootCmd.Execute(); err != nil {
		printErrorChain(err)
		os.Exit(1)
	}
}

// printErrorChain writes the error and its cause chain to stderr.
func printErrorChain(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %s\n", err)
	for {
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return
		}
		if err = unwrapper.Unwrap(); err == nil {
			return
		}
		fmt.Fprintf(os.Stderr, "  caused by: %s\n", err)
	}
}

func cpCmd() *cobra.Command {
	var flags cpFlags
	cmd := &cobra.Command{
		Use:   "cp SRC DEST",
		Short: "Copy table data from one locator to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ifExists, err := driver.ParseIfExists(flags.ifExists)
			if err != nil {
				return err
			}
			temporaries, err := temporariesWithConfig(flags.temporaries)
			if err != nil {
				return err
			}
			_, err = engine.Copy(loggedCtx(cmd.Context()), engine.CopyOptions{
				Source:         args[0],
				Dest:           args[1],
				SchemaLocator:  flags.schemaLocator,
				IfExists:       ifExists,
				Temporaries:    temporaries,
				FromArgs:       flags.fromArgs,
				ToArgs:         flags.toArgs,
				Where:          flags.where,
				MaxStreams:     flags.maxStreams,
				FromFormat:     flags.fromFormat,
				ToFormat:       flags.toFormat,
				EnableUnstable: flags.enableUnstable,
			})
			return err
		},
	}
	cmd.Flags().StringVar(&flags.schemaLocator, "schema", "", "portable schema locator")
	cmd.Flags().StringVar(&flags.ifExists, "if-exists", "error", "what to do if the destination exists: error, append, overwrite, upsert-on:COL[,COL...]")
	cmd.Flags().StringArrayVar(&flags.temporaries, "temporary", nil, "scratch storage locator (repeatable)")
	cmd.Flags().StringArrayVar(&flags.fromArgs, "from-arg", nil, "driver-specific source argument KEY=VALUE (repeatable)")
	cmd.Flags().StringArrayVar(&flags.toArgs, "to-arg", nil, "driver-specific destination argument KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&flags.where, "where", "", "SQL WHERE clause applied at the source")
	cmd.Flags().IntVar(&flags.maxStreams, "max-streams", driver.DefaultMaxStreams, "maximum streams processed in parallel")
	cmd.Flags().StringVar(&flags.fromFormat, "from-format", "", "source data format: csv or jsonl")
	cmd.Flags().StringVar(&flags.toFormat, "to-format", "", "destination data format: csv or jsonl")
	cmd.Flags().BoolVar(&flags.enableUnstable, "enable-unstable", false, "permit unstable drivers")
	return cmd
}

func countCmd() *cobra.Command {
	var flags countFlags
	cmd := &cobra.Command{
		Use:   "count SRC",
		Short: "Count the rows at a locator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := engine.Count(loggedCtx(cmd.Context()), engine.CountOptions{
				Source:         args[0],
				SchemaLocator:  flags.schemaLocator,
				FromArgs:       flags.fromArgs,
				Where:          flags.where,
				EnableUnstable: flags.enableUnstable,
			})
			if err != nil {
				return err
			}
			fmt.Println(count)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.schemaLocator, "schema", "", "portable schema locator")
	cmd.Flags().StringArrayVar(&flags.fromArgs, "from-arg", nil, "driver-specific source argument KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&flags.where, "where", "", "SQL WHERE clause applied at the source")
	cmd.Flags().BoolVar(&flags.enableUnstable, "enable-unstable", false, "permit unstable drivers")
	return cmd
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Work with table schemas",
	}
	var ifExistsStr string
	var enableUnstable bool
	conv := &cobra.Command{
		Use:   "conv SRC DEST",
		Short: "Read a schema from one locator and write it to another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ifExists, err := driver.ParseIfExists(ifExistsStr)
			if err != nil {
				return err
			}
			return engine.SchemaConv(loggedCtx(cmd.Context()), args[0], args[1], ifExists, enableUnstable)
		},
	}
	conv.Flags().StringVar(&ifExistsStr, "if-exists", "error", "what to do if the destination exists")
	conv.Flags().BoolVar(&enableUnstable, "enable-unstable", false, "permit unstable drivers")
	cmd.AddCommand(conv)
	return cmd
}

func featuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List the capabilities of every driver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, info := range driver.Drivers() {
				fmt.Printf("%s:\n%s\n", info.Scheme, info.Features)
			}
			return nil
		},
	}
}

// temporariesWithConfig appends the configuration file's temporary
// locators after the command-line ones.
func temporariesWithConfig(flags []string) ([]string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return append(flags, cfg.Temporary...), nil
}

func loggedCtx(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return logctx.With(ctx, slog.Default())
}
