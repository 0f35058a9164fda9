package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/warp/points-engine/points"
)

// NewRegenCommand creates the regen-logs command.
func NewRegenCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regen-logs <category>",
		Short: "Re-render log text for a category",
		Long: `Re-render the display text of every log record in a category from
its kind, delta, and stored metadata. Only records whose text changes
are rewritten. Run this after changing a text renderer.

Example:
  pointsd regen-logs --config points.yaml points`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegen(cmd, rootOpts, points.Category(args[0]))
		},
	}
	return cmd
}

func runRegen(cmd *cobra.Command, opts *RootOptions, category points.Category) error {
	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	touched, updated, err := eng.service.RegenerateLogText(cmd.Context(), category)
	if err != nil {
		return err
	}

	fmt.Printf("updated %d record(s) across %d user/category pair(s)\n", updated, len(touched))
	return nil
}
