package commands

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Andhanc/minecalc/internal/app"
)

// pricesCmd represents the prices command
var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Run one price aggregation cycle and print the result",
	Long: `Run a single aggregation cycle over the configured symbols and print the
resolved quotes with the source tier each one came from.`,
	RunE: runPrices,
}

func init() {
	rootCmd.AddCommand(pricesCmd)
}

func runPrices(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	fresh, failed, err := application.RefreshOnce(ctx)
	if err != nil {
		return fmt.Errorf("aggregation cycle: %w", err)
	}

	symbols := make([]string, 0, len(fresh))
	for symbol := range fresh {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	rate := application.Rates().Rate(ctx)
	fmt.Printf("USD/RUB rate: %.2f\n\n", rate)
	fmt.Printf("%-6s %16s %18s %9s %10s\n", "COIN", "USD", "RUB", "24H", "SOURCE")
	for _, symbol := range symbols {
		quote := fresh[symbol]
		fmt.Printf("%-6s %16s %18s %8.2f%% %10s\n",
			symbol,
			humanize.CommafWithDigits(quote.PriceUSD, 2),
			humanize.CommafWithDigits(quote.PriceRub, 2),
			quote.Change24h,
			quote.Tier,
		)
	}

	if len(failed) > 0 {
		fmt.Printf("\nUnpriced symbols: %v\n", failed)
	}
	return nil
}
