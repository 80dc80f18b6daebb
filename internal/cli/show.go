package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"priceflow/internal/app"
)

var (
	showLimit int
)

var showCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Display an item's state and recent observations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid item id %q: %w", args[0], err)
		}

		opts := app.ShowOptions{
			ItemID: id,
			Limit:  showLimit,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of observations to display")
}
