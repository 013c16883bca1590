package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow/nodes"
	"github.com/randalmurphal/nodeflow/pkg/nodeflow/registry"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a workflow document against the built-in node types",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	def, err := loadDefinition(args[0])
	if err != nil {
		return err
	}
	reg, err := builtinRegistry()
	if err != nil {
		return err
	}
	if err := def.ValidateTypes(reg); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return exitError(exitValidation, "validation failed")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: valid (%d nodes, %d connections)\n",
		args[0], len(def.Nodes), len(def.Connections))
	return nil
}

// builtinRegistry registers the built-in types without an LLM client,
// for commands that inspect but never execute.
func builtinRegistry() (*registry.Registry, error) {
	reg := registry.New()
	if err := nodes.RegisterBuiltins(reg, nodes.Deps{}); err != nil {
		return nil, err
	}
	return reg, nil
}
