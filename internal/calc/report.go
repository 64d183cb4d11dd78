package calc

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Period names, in display order. Every period figure is the daily figure
// multiplied by these constants; nothing is computed per period independently.
var periodOrder = []string{"day", "week", "month", "year"}

var periodMultipliers = map[string]float64{
	"day":   1,
	"week":  7,
	"month": 30,
	"year":  365,
}

// PeriodFigures holds one period's projected figures. Coins maps symbol to the
// coin amount the period's USD income converts to at that coin's price.
type PeriodFigures struct {
	Coins          map[string]float64
	IncomeUSD      float64
	IncomeRub      float64
	ElectricityUSD float64
	ElectricityRub float64
	ProfitUSD      float64
	ProfitRub      float64
}

// Report is the result of one profitability calculation. Immutable once
// returned.
type Report struct {
	DailyIncomeUSD      float64
	DailyIncomeRub      float64
	DailyElectricityUSD float64
	DailyElectricityRub float64
	DailyProfitUSD      float64
	DailyProfitRub      float64
	Periods             map[string]PeriodFigures
	HashRateUnit        string
	OriginalHashRate    float64
	PowerWatts          float64
	GeneratedAt         time.Time
}

// Period returns the figures for a named period, zero value if absent.
func (r *Report) Period(name string) PeriodFigures {
	return r.Periods[name]
}

// FormatUSD renders the report as USD-denominated text with per-coin amounts.
// Symbols limits which coins appear; extra symbols without figures print as 0.
func (r *Report) FormatUSD(symbols []string, usdToRub float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Coins: %s\n", strings.Join(symbols, ", "))
	fmt.Fprintf(&b, "Hash rate: %s %s\n", humanize.Commaf(r.OriginalHashRate), strings.ToUpper(r.HashRateUnit))
	fmt.Fprintf(&b, "Power draw: %.1fW\n", r.PowerWatts)
	fmt.Fprintf(&b, "USD/RUB rate: %.2f\n\n", usdToRub)

	b.WriteString("Income in coins:\n")
	for _, period := range periodOrder {
		figures := r.Period(period)
		amounts := make([]string, 0, len(symbols))
		for _, symbol := range symbols {
			amounts = append(amounts, formatCoinAmount(figures.Coins[symbol], symbol))
		}
		fmt.Fprintf(&b, "  per %s: %s\n", period, strings.Join(amounts, " | "))
	}

	b.WriteString("\nIncome in USD:\n")
	for _, period := range periodOrder {
		fmt.Fprintf(&b, "  per %s: $%s\n", period, formatMoney(r.Period(period).IncomeUSD))
	}

	b.WriteString("\nElectricity cost:\n")
	for _, period := range periodOrder {
		fmt.Fprintf(&b, "  per %s: $%s\n", period, formatMoney(r.Period(period).ElectricityUSD))
	}

	b.WriteString("\nNet profit:\n")
	for _, period := range periodOrder {
		fmt.Fprintf(&b, "  per %s: $%s\n", period, formatMoney(r.Period(period).ProfitUSD))
	}

	fmt.Fprintf(&b, "\nGenerated at %s\n", r.GeneratedAt.Format("02.01.2006 15:04"))
	return b.String()
}

// FormatRub renders the ruble-denominated variant of the report.
func (r *Report) FormatRub() string {
	var b strings.Builder

	b.WriteString("Profitability in rubles\n")
	fmt.Fprintf(&b, "Power draw: %.1fW\n\n", r.PowerWatts)

	b.WriteString("Income:\n")
	for _, period := range periodOrder {
		fmt.Fprintf(&b, "  per %s: %s RUB\n", period, formatMoney(r.Period(period).IncomeRub))
	}

	b.WriteString("\nElectricity cost:\n")
	for _, period := range periodOrder {
		fmt.Fprintf(&b, "  per %s: %s RUB\n", period, formatMoney(r.Period(period).ElectricityRub))
	}

	b.WriteString("\nNet profit:\n")
	for _, period := range periodOrder {
		fmt.Fprintf(&b, "  per %s: %s RUB\n", period, formatMoney(r.Period(period).ProfitRub))
	}

	fmt.Fprintf(&b, "\nGenerated at %s\n", r.GeneratedAt.Format("02.01.2006 15:04"))
	return b.String()
}

// formatCoinAmount picks precision by magnitude: BTC always gets satoshi
// precision, dust amounts get more digits, whole amounts fewer.
func formatCoinAmount(amount float64, symbol string) string {
	switch {
	case amount == 0:
		return fmt.Sprintf("0.000000 %s", symbol)
	case symbol == "BTC":
		return fmt.Sprintf("%.8f %s", amount, symbol)
	case amount < 0.001:
		return fmt.Sprintf("%.6f %s", amount, symbol)
	case amount < 1:
		return fmt.Sprintf("%.4f %s", amount, symbol)
	default:
		return fmt.Sprintf("%.2f %s", amount, symbol)
	}
}

func formatMoney(value float64) string {
	abs := value
	if abs < 0 {
		abs = -abs
	}
	switch {
	case value == 0:
		return "0.00"
	case abs < 0.01:
		return fmt.Sprintf("%.4f", value)
	case abs < 1:
		return fmt.Sprintf("%.3f", value)
	default:
		return humanize.CommafWithDigits(value, 2)
	}
}
