package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints one item's current state and its recent observations.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	item, err := store.GetItem(ctx, opts.ItemID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Item #%d: %s\n", item.ID, item.Name)
	fmt.Fprintf(os.Stdout, "URL: %s\n", item.URL)

	price := "unknown"
	if item.CurrentPrice != nil {
		price = item.CurrentPrice.StringFixed(2) + " €"
	}
	stock := "unknown"
	if item.InStock != nil {
		stock = "out of stock"
		if *item.InStock {
			stock = "in stock"
		}
	}
	fmt.Fprintf(os.Stdout, "Current price: %s\tStock: %s\tAvailable: %t\n", price, stock, item.IsAvailable)

	if item.TargetPrice != nil {
		fmt.Fprintf(os.Stdout, "Target price: %s €\n", item.TargetPrice.StringFixed(2))
	}
	if item.LastChecked != nil {
		fmt.Fprintf(os.Stdout, "Last checked: %s\n", item.LastChecked.UTC().Format(time.RFC3339))
	}
	if item.LastError != nil {
		fmt.Fprintf(os.Stdout, "Last error: %s\n", sanitizeInline(*item.LastError))
	}

	observations, err := store.ListObservations(ctx, opts.ItemID, opts.Limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no observations recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice\tPriceConf\tStockConf\tModel\tRepair")

	for _, obs := range observations {
		price := ""
		if obs.Price != nil {
			price = obs.Price.StringFixed(2)
		}
		model := ""
		if obs.Model != nil {
			model = *obs.Model
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%t\n",
			obs.Timestamp.UTC().Format(time.RFC3339),
			price,
			formatConfidence(obs.PriceConfidence),
			formatConfidence(obs.InStockConfidence),
			model,
			obs.RepairUsed,
		)
	}

	writer.Flush()
	return nil
}

func formatConfidence(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
