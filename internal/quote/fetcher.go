package quote

import "context"

// Fetcher returns the latest price for an upper-cased stock symbol.
// Any returned error means "no price"; callers do not distinguish an unknown
// symbol from an upstream failure.
type Fetcher interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, symbol string) (float64, error)

func (f FetcherFunc) Price(ctx context.Context, symbol string) (float64, error) {
	return f(ctx, symbol)
}
