package units

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedUnit is returned for hash rate units outside the known ladder.
// A silent unit mismatch is the most damaging bug class in this domain, so
// unknown units fail loudly instead of being guessed.
var ErrUnsupportedUnit = errors.New("unsupported hash rate unit")

// AlgorithmParams holds the per-algorithm defaults used by the profitability
// calculator: the unit network hash rates are quoted in, the block time in
// seconds, and an efficiency factor applied to the daily coin yield.
type AlgorithmParams struct {
	Algorithm        string
	HashRateUnit     string
	BlockTime        float64
	EfficiencyFactor float64
}

var defaultParams = AlgorithmParams{
	Algorithm:        "generic",
	HashRateUnit:     "th/s",
	BlockTime:        600,
	EfficiencyFactor: 1.0,
}

// algorithmTable is the single source of truth for algorithm parameters.
// Everything downstream is a lookup; no algorithm is special-cased by name.
// kHeavyHash's 86400 blocks per day falls out of its 1 second block time.
var algorithmTable = map[string]AlgorithmParams{
	"sha-256":      {Algorithm: "sha-256", HashRateUnit: "th/s", BlockTime: 600, EfficiencyFactor: 1.0},
	"sha256":       {Algorithm: "sha-256", HashRateUnit: "th/s", BlockTime: 600, EfficiencyFactor: 1.0},
	"scrypt":       {Algorithm: "scrypt", HashRateUnit: "mh/s", BlockTime: 150, EfficiencyFactor: 1.0},
	"etchash":      {Algorithm: "etchash", HashRateUnit: "mh/s", BlockTime: 13, EfficiencyFactor: 1.0},
	"ethash":       {Algorithm: "etchash", HashRateUnit: "mh/s", BlockTime: 13, EfficiencyFactor: 1.0},
	"kheavyhash":   {Algorithm: "kheavyhash", HashRateUnit: "gh/s", BlockTime: 1, EfficiencyFactor: 1.0},
	"blake2s":      {Algorithm: "blake2s", HashRateUnit: "gh/s", BlockTime: 30, EfficiencyFactor: 1.0},
	"blake2b+sha3": {Algorithm: "blake2b+sha3", HashRateUnit: "gh/s", BlockTime: 60, EfficiencyFactor: 1.0},
	"blake2b_sha3": {Algorithm: "blake2b+sha3", HashRateUnit: "gh/s", BlockTime: 60, EfficiencyFactor: 1.0},
}

var unitMultipliers = map[string]float64{
	"h/s":  1,
	"kh/s": 1e3,
	"mh/s": 1e6,
	"gh/s": 1e9,
	"th/s": 1e12,
	"ph/s": 1e15,
}

// ParamsFor returns the parameters for an algorithm. The lookup is total:
// unknown identifiers get the generic defaults rather than an error.
func ParamsFor(algorithm string) AlgorithmParams {
	if params, ok := algorithmTable[strings.ToLower(strings.TrimSpace(algorithm))]; ok {
		return params
	}
	return defaultParams
}

// Multiplier returns the factor that converts a value in the given unit to H/s.
func Multiplier(unit string) (float64, error) {
	m, ok := unitMultipliers[strings.ToLower(strings.TrimSpace(unit))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedUnit, unit)
	}
	return m, nil
}

// Normalize converts a hash rate expressed in the given unit to H/s.
func Normalize(value float64, unit string) (float64, error) {
	m, err := Multiplier(unit)
	if err != nil {
		return 0, err
	}
	return value * m, nil
}
