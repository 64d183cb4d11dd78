package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiplierLadder(t *testing.T) {
	tests := []struct {
		unit     string
		expected float64
	}{
		{"h/s", 1},
		{"kh/s", 1e3},
		{"mh/s", 1e6},
		{"gh/s", 1e9},
		{"th/s", 1e12},
		{"ph/s", 1e15},
	}

	for _, tt := range tests {
		m, err := Multiplier(tt.unit)
		require.NoError(t, err, "unit %s", tt.unit)
		assert.Equal(t, tt.expected, m, "unit %s", tt.unit)
	}
}

func TestMultiplierCaseInsensitive(t *testing.T) {
	m, err := Multiplier("TH/s")
	require.NoError(t, err)
	assert.Equal(t, 1e12, m)

	m, err = Multiplier(" GH/S ")
	require.NoError(t, err)
	assert.Equal(t, 1e9, m)
}

func TestMultiplierUnknownUnit(t *testing.T) {
	_, err := Multiplier("eh/s")
	assert.ErrorIs(t, err, ErrUnsupportedUnit)

	_, err = Multiplier("")
	assert.ErrorIs(t, err, ErrUnsupportedUnit)
}

func TestNormalize(t *testing.T) {
	v, err := Normalize(100, "th/s")
	require.NoError(t, err)
	assert.Equal(t, 100e12, v)

	_, err = Normalize(1, "parsecs")
	assert.ErrorIs(t, err, ErrUnsupportedUnit)
}

func TestParamsForKnownAlgorithms(t *testing.T) {
	tests := []struct {
		algorithm string
		unit      string
		blockTime float64
	}{
		{"sha-256", "th/s", 600},
		{"sha256", "th/s", 600},
		{"scrypt", "mh/s", 150},
		{"etchash", "mh/s", 13},
		{"ethash", "mh/s", 13},
		{"kheavyhash", "gh/s", 1},
		{"blake2s", "gh/s", 30},
		{"blake2b+sha3", "gh/s", 60},
		{"blake2b_sha3", "gh/s", 60},
	}

	for _, tt := range tests {
		params := ParamsFor(tt.algorithm)
		assert.Equal(t, tt.unit, params.HashRateUnit, "algorithm %s", tt.algorithm)
		assert.Equal(t, tt.blockTime, params.BlockTime, "algorithm %s", tt.algorithm)
		assert.Equal(t, 1.0, params.EfficiencyFactor, "algorithm %s", tt.algorithm)
	}
}

func TestParamsForIsTotal(t *testing.T) {
	params := ParamsFor("x11")
	assert.Equal(t, "th/s", params.HashRateUnit)
	assert.Equal(t, 600.0, params.BlockTime)
	assert.Equal(t, 1.0, params.EfficiencyFactor)

	assert.Equal(t, params, ParamsFor(""))
}

func TestParamsForCaseInsensitive(t *testing.T) {
	assert.Equal(t, ParamsFor("scrypt"), ParamsFor("Scrypt"))
	assert.Equal(t, ParamsFor("kheavyhash"), ParamsFor("KHeavyHash"))
}
