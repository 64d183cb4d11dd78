package store

import (
	"context"

	"github.com/Andhanc/minecalc/internal/pricing"
)

// QuoteStore persists the last known good price table. The contract is
// intentionally minimal: read last known values, overwrite on success.
type QuoteStore interface {
	Load(ctx context.Context) (map[string]pricing.Quote, error)
	Save(ctx context.Context, quotes map[string]pricing.Quote) error
}
