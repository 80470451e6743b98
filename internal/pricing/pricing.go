// internal/pricing/pricing.go
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ledgersnipe/xrpl-bot/internal/ledger"
)

// Quoter provides the current market price for an issued token.
type Quoter interface {
	// UnitPrice returns the best available price in XRP per token unit.
	UnitPrice(ctx context.Context, currency, issuer string) (decimal.Decimal, error)
}

// BookReader is the slice of the ledger client the quoter needs.
type BookReader interface {
	BookOffers(ctx context.Context, currency, issuer string) ([]ledger.Offer, error)
}

// BookQuoter derives prices from the on-ledger order book.
type BookQuoter struct {
	book   BookReader
	logger *zap.Logger
}

// NewBookQuoter creates a quoter backed by book_offers queries.
func NewBookQuoter(book BookReader, logger *zap.Logger) *BookQuoter {
	return &BookQuoter{
		book:   book,
		logger: logger.Named("pricing"),
	}
}

// UnitPrice returns the price of the best offer selling the token for XRP.
// The book is sorted best-first, so the first offer with a usable size wins.
func (q *BookQuoter) UnitPrice(ctx context.Context, currency, issuer string) (decimal.Decimal, error) {
	offers, err := q.book.BookOffers(ctx, currency, issuer)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch order book: %w", err)
	}
	if len(offers) == 0 {
		return decimal.Zero, fmt.Errorf("no offers for %s.%s", currency, issuer)
	}

	for _, offer := range offers {
		if offer.TakerGets.Value.IsZero() {
			continue
		}
		price := offer.TakerPays.Value.Div(offer.TakerGets.Value)
		q.logger.Debug("Order book quote",
			zap.String("currency", currency),
			zap.String("issuer", issuer),
			zap.String("price_xrp", price.String()))
		return price, nil
	}

	return decimal.Zero, fmt.Errorf("no priced offers for %s.%s", currency, issuer)
}
