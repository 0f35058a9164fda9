package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/warp/points-engine/points"
)

// DeleteCategoryOptions holds flags for the delete-category command.
type DeleteCategoryOptions struct {
	*RootOptions
	Yes bool
}

// NewDeleteCategoryCommand creates the delete-category command.
func NewDeleteCategoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeleteCategoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete-category <slug>",
		Short: "Cascade-delete a category",
		Long: `Delete a category and everything attached to it: log metadata,
log records, and balances. The deletion is irreversible; it prompts
for confirmation unless --yes is given.

The category must exist in the configured registry.

Example:
  pointsd delete-category --config points.yaml credits --yes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeleteCategory(cmd, opts, points.Category(args[0]))
		},
	}

	cmd.Flags().BoolVarP(&opts.Yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runDeleteCategory(cmd *cobra.Command, opts *DeleteCategoryOptions, category points.Category) error {
	if !opts.Yes {
		fmt.Printf("delete category %q and all of its balances and logs? [y/N]: ", category)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	eng, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.service.DeleteCategory(cmd.Context(), category); err != nil {
		return err
	}

	fmt.Printf("category %q deleted\n", category)
	return nil
}
