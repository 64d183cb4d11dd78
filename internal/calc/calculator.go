package calc

import (
	"errors"
	"fmt"
	"time"

	"github.com/Andhanc/minecalc/internal/units"
)

// ErrInvalidInput marks a caller error: empty coin set, negative hash rate or
// power draw, missing primary coin. Never retried.
var ErrInvalidInput = errors.New("invalid calculator input")

const secondsPerDay = 86400

// CoinContext carries one coin's network parameters for a calculation. The
// calculator does not own coin data; callers assemble contexts from whatever
// source priced them.
type CoinContext struct {
	Symbol          string
	PriceUSD        float64
	NetworkHashRate float64
	// NetworkHashUnit overrides the algorithm's canonical unit for this coin's
	// network hash rate. Empty means the canonical unit applies.
	NetworkHashUnit string
	BlockReward     float64
	Algorithm       string
	// BlockTimeOverride in seconds; 0 means the algorithm default applies.
	BlockTimeOverride float64
}

// Input is a single profitability request.
type Input struct {
	HashRate            float64
	HashRateUnit        string
	PowerWatts          float64
	ElectricityPriceRub float64
	UsdToRub            float64
	Algorithm           string
	// PrimarySymbol designates the coin whose network parameters drive share
	// and blocks per day. Empty means the first coin in Coins.
	PrimarySymbol string
	Coins         []CoinContext
}

// Calculator computes mining profitability reports. It is pure and holds no
// state, so a single value is safe for concurrent use.
type Calculator struct{}

func New() *Calculator {
	return &Calculator{}
}

// Calculate produces a profitability report for the given device and coin set.
//
// The primary coin's network parameters determine the miner's share of the
// network and the expected daily coin yield; every other coin in the set only
// converts the resulting USD income into its own denomination.
func (c *Calculator) Calculate(in Input) (*Report, error) {
	if len(in.Coins) == 0 {
		return nil, fmt.Errorf("%w: coin set is empty", ErrInvalidInput)
	}
	if in.HashRate < 0 {
		return nil, fmt.Errorf("%w: negative hash rate %f", ErrInvalidInput, in.HashRate)
	}
	if in.PowerWatts < 0 {
		return nil, fmt.Errorf("%w: negative power draw %f", ErrInvalidInput, in.PowerWatts)
	}
	if in.UsdToRub <= 0 {
		return nil, fmt.Errorf("%w: usd/rub rate must be positive, got %f", ErrInvalidInput, in.UsdToRub)
	}

	primary, err := primaryCoin(in)
	if err != nil {
		return nil, err
	}

	algorithm := primary.Algorithm
	if algorithm == "" {
		algorithm = in.Algorithm
	}
	params := units.ParamsFor(algorithm)

	// Both hash rates go through the same base unit before the division, so the
	// share is invariant under whatever units the caller quoted them in.
	minerHash, err := units.Normalize(in.HashRate, in.HashRateUnit)
	if err != nil {
		return nil, err
	}
	networkUnit := primary.NetworkHashUnit
	if networkUnit == "" {
		networkUnit = params.HashRateUnit
	}
	networkHash, err := units.Normalize(primary.NetworkHashRate, networkUnit)
	if err != nil {
		return nil, err
	}

	share := 0.0
	if networkHash > 0 {
		share = minerHash / networkHash
	}

	blockTime := params.BlockTime
	if primary.BlockTimeOverride > 0 {
		blockTime = primary.BlockTimeOverride
	}
	blocksPerDay := secondsPerDay / blockTime

	dailyCoins := share * blocksPerDay * primary.BlockReward * params.EfficiencyFactor

	dailyIncomeUSD := dailyCoins * primary.PriceUSD
	dailyIncomeRub := dailyIncomeUSD * in.UsdToRub
	dailyElectricityRub := (in.PowerWatts / 1000) * 24 * in.ElectricityPriceRub
	dailyElectricityUSD := dailyElectricityRub / in.UsdToRub
	dailyProfitUSD := dailyIncomeUSD - dailyElectricityUSD
	dailyProfitRub := dailyIncomeRub - dailyElectricityRub

	report := &Report{
		DailyIncomeUSD:      dailyIncomeUSD,
		DailyIncomeRub:      dailyIncomeRub,
		DailyElectricityUSD: dailyElectricityUSD,
		DailyElectricityRub: dailyElectricityRub,
		DailyProfitUSD:      dailyProfitUSD,
		DailyProfitRub:      dailyProfitRub,
		Periods:             make(map[string]PeriodFigures, len(periodMultipliers)),
		HashRateUnit:        in.HashRateUnit,
		OriginalHashRate:    in.HashRate,
		PowerWatts:          in.PowerWatts,
		GeneratedAt:         time.Now(),
	}

	for name, multiplier := range periodMultipliers {
		coins := make(map[string]float64, len(in.Coins))
		for _, coin := range in.Coins {
			// Coin amounts always derive from the already-converted USD income
			// divided by each coin's own price; daily coin yield exists only
			// for the primary coin.
			if coin.PriceUSD > 0 {
				coins[coin.Symbol] = dailyIncomeUSD / coin.PriceUSD * multiplier
			} else {
				coins[coin.Symbol] = 0
			}
		}
		report.Periods[name] = PeriodFigures{
			Coins:          coins,
			IncomeUSD:      dailyIncomeUSD * multiplier,
			IncomeRub:      dailyIncomeRub * multiplier,
			ElectricityUSD: dailyElectricityUSD * multiplier,
			ElectricityRub: dailyElectricityRub * multiplier,
			ProfitUSD:      dailyProfitUSD * multiplier,
			ProfitRub:      dailyProfitRub * multiplier,
		}
	}

	return report, nil
}

func primaryCoin(in Input) (CoinContext, error) {
	if in.PrimarySymbol == "" {
		return in.Coins[0], nil
	}
	for _, coin := range in.Coins {
		if coin.Symbol == in.PrimarySymbol {
			return coin, nil
		}
	}
	return CoinContext{}, fmt.Errorf("%w: primary coin %s not in coin set", ErrInvalidInput, in.PrimarySymbol)
}
