// Package cli implements the nodeflow command line: running, validating
// and inspecting workflow documents.
package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the nodeflow command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "nodeflow",
		Short: "Dataflow workflow engine",
		Long:  "nodeflow runs node graphs described in YAML or JSON workflow documents, recomputing only what changed.",
		// Errors are reported by main through the exit code.
		SilenceUsage:      true,
		PersistentPreRunE: loadEnv,
	}
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.PersistentFlags().String("env-file", ".env", "Load environment variables from this file when it exists")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("nodeflow version %s\n", version))

	root.AddCommand(NewRunCmd())
	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewTypesCmd())
	return root
}

// loadEnv reads the env file without overriding variables already set.
func loadEnv(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// newLogger writes text logs to w at warn level, or debug with --verbose.
func newLogger(cmd *cobra.Command, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
