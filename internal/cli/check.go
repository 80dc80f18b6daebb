package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <item-id> [item-id...]",
	Short: "Run an immediate check for one or more items",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, 0, len(args))
		for _, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q: %w", arg, err)
			}
			ids = append(ids, id)
		}
		return getApp().Check(cmd.Context(), ids)
	},
}
