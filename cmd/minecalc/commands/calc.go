package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Andhanc/minecalc/internal/app"
	"github.com/Andhanc/minecalc/internal/calc"
	"github.com/Andhanc/minecalc/internal/config"
	"github.com/Andhanc/minecalc/internal/fx"
	"github.com/Andhanc/minecalc/internal/pricing"
)

// calcCmd represents the calc command
var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Compute mining profitability for a device",
	Long: `Compute projected income, electricity cost and net profit for a mining
device over day, week, month and year.

The first coin in --coins drives the network share unless --primary names
another one; every other coin only denominates the resulting income.

Examples:
  # 100 TH/s SHA-256 miner at 3500W
  minecalc calc --hashrate 100 --unit th/s --power 3500

  # Scrypt miner, LTC primary, live prices
  minecalc calc --hashrate 9500 --unit mh/s --power 3425 --coins LTC,DOGE --live`,
	RunE: runCalc,
}

func init() {
	rootCmd.AddCommand(calcCmd)

	calcCmd.Flags().Float64("hashrate", 0, "Device hash rate (required)")
	calcCmd.Flags().String("unit", "th/s", "Hash rate unit: h/s, kh/s, mh/s, gh/s, th/s, ph/s")
	calcCmd.Flags().Float64("power", 0, "Power draw in watts")
	calcCmd.Flags().Float64("electricity", -1, "Electricity price in RUB per kWh (default from config)")
	calcCmd.Flags().StringSlice("coins", nil, "Coin symbols to report (default: all configured coins)")
	calcCmd.Flags().String("primary", "", "Primary coin symbol (default: first of --coins)")
	calcCmd.Flags().Float64("rub", 0, "USD/RUB rate override (0 fetches the live rate)")
	calcCmd.Flags().Bool("live", false, "Refresh coin prices through the aggregation pipeline first")

	_ = calcCmd.MarkFlagRequired("hashrate")
}

func runCalc(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	hashRate, _ := cmd.Flags().GetFloat64("hashrate")
	unit, _ := cmd.Flags().GetString("unit")
	power, _ := cmd.Flags().GetFloat64("power")
	electricity, _ := cmd.Flags().GetFloat64("electricity")
	symbols, _ := cmd.Flags().GetStringSlice("coins")
	primary, _ := cmd.Flags().GetString("primary")
	rubRate, _ := cmd.Flags().GetFloat64("rub")
	live, _ := cmd.Flags().GetBool("live")

	if electricity < 0 {
		electricity = cfg.Calculator.ElectricityPriceRub
	}
	if len(symbols) == 0 {
		for _, coin := range cfg.Calculator.Coins {
			symbols = append(symbols, coin.Symbol)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	coins, rate, err := assembleCoins(ctx, cfg, logger, symbols, live, rubRate)
	if err != nil {
		return err
	}

	report, err := calc.New().Calculate(calc.Input{
		HashRate:            hashRate,
		HashRateUnit:        unit,
		PowerWatts:          power,
		ElectricityPriceRub: electricity,
		UsdToRub:            rate,
		PrimarySymbol:       primary,
		Coins:               coins,
	})
	if err != nil {
		return err
	}

	fmt.Print(report.FormatUSD(symbols, rate))
	fmt.Println()
	fmt.Print(report.FormatRub())
	return nil
}

// assembleCoins builds the calculation's coin contexts from configuration,
// optionally repriced by a live aggregation cycle, and resolves the USD/RUB
// rate unless the caller pinned one.
func assembleCoins(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	symbols []string,
	live bool,
	rubRate float64,
) ([]calc.CoinContext, float64, error) {
	var quotes map[string]pricing.Quote

	if live {
		application, err := app.New(ctx, cfg, logger)
		if err != nil {
			return nil, 0, err
		}
		defer application.Close()

		if _, _, err := application.RefreshOnce(ctx); err != nil {
			return nil, 0, fmt.Errorf("price refresh: %w", err)
		}
		quotes = application.Quotes()
		if rubRate <= 0 {
			rubRate = application.Rates().Rate(ctx)
		}
	} else if rubRate <= 0 {
		rubRate = fx.New(cfg.FX, nil, logger).Rate(ctx)
	}

	coins := make([]calc.CoinContext, 0, len(symbols))
	for _, symbol := range symbols {
		seed, ok := cfg.Calculator.Coin(symbol)
		if !ok {
			return nil, 0, fmt.Errorf("coin %s is not configured", symbol)
		}
		price := seed.PriceUSD
		if quote, ok := quotes[symbol]; ok && quote.PriceUSD > 0 {
			price = quote.PriceUSD
		}
		coins = append(coins, calc.CoinContext{
			Symbol:            seed.Symbol,
			PriceUSD:          price,
			NetworkHashRate:   seed.NetworkHashRate,
			NetworkHashUnit:   seed.NetworkHashUnit,
			BlockReward:       seed.BlockReward,
			Algorithm:         seed.Algorithm,
			BlockTimeOverride: seed.BlockTimeOverride,
		})
	}
	return coins, rubRate, nil
}
