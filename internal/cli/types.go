package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/nodeflow/pkg/nodeflow"
)

// NewTypesCmd creates the "types" subcommand.
func NewTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List the available node types",
		Args:  cobra.NoArgs,
		RunE:  runTypes,
	}
	cmd.Flags().Bool("ports", false, "Show input and output ports")
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

type typeInfo struct {
	Type        string              `json:"type"`
	Category    string              `json:"category"`
	Description string              `json:"description"`
	Async       bool                `json:"async,omitempty"`
	Inputs      []nodeflow.PortSpec `json:"inputs"`
	Outputs     []nodeflow.PortSpec `json:"outputs"`
	Properties  map[string]any      `json:"properties"`
}

func runTypes(cmd *cobra.Command, _ []string) error {
	reg, err := builtinRegistry()
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	showPorts, _ := cmd.Flags().GetBool("ports")
	out := cmd.OutOrStdout()

	entries := reg.Entries()
	if format == "json" {
		infos := make([]typeInfo, 0, len(entries))
		for _, e := range entries {
			spec := e.Factory()
			infos = append(infos, typeInfo{
				Type:        e.Type,
				Category:    e.Category,
				Description: e.Description,
				Async:       spec.Async,
				Inputs:      spec.Inputs,
				Outputs:     spec.Outputs,
				Properties:  spec.Properties,
			})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCATEGORY\tDESCRIPTION")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Type, e.Category, e.Description)
		if showPorts {
			spec := e.Factory()
			for _, p := range spec.Inputs {
				fmt.Fprintf(tw, "\t  in\t%s (%s)\n", p.Name, p.Kind)
			}
			for _, p := range spec.Outputs {
				fmt.Fprintf(tw, "\t  out\t%s (%s)\n", p.Name, p.Kind)
			}
		}
	}
	return tw.Flush()
}
