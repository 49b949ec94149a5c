package quote

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/pestline/pestline/internal/model"
)

// ErrStaleQuote is returned when a quote's version changed between the read
// and the totals write of a recalculation.
var ErrStaleQuote = eris.New("quote: stale quote version")

// Store is the persistence the recalculator needs. Lookups return (nil, nil)
// when the row does not exist.
type Store interface {
	GetQuote(ctx context.Context, id string) (*model.Quote, error)
	// LockQuote reads a quote and holds it against concurrent writers for the
	// rest of the enclosing transaction.
	LockQuote(ctx context.Context, id string) (*model.Quote, error)
	GetPricingSettings(ctx context.Context, companyID string) (*model.CompanyPricingSettings, error)
	// ListLineItems returns a quote's items with their plan joined. The plan
	// is nil when it no longer exists.
	ListLineItems(ctx context.Context, quoteID string) ([]model.QuoteLineItem, error)
	GetDiscount(ctx context.Context, id string) (*model.CompanyDiscount, error)
	UpdateLineItemPrices(ctx context.Context, itemID string, p model.LineItemPrices) error
	UpdateQuoteSizes(ctx context.Context, quoteID string, sizes model.SizeSelection) error
	// UpdateQuoteTotals writes totals and bumps the version if the quote is
	// still at version. Otherwise it returns ErrStaleQuote.
	UpdateQuoteTotals(ctx context.Context, quoteID string, version int64, initial, recurring float64) error

	GetServiceAddress(ctx context.Context, id string) (*model.ServiceAddress, error)
	UpdateServiceAddressSizes(ctx context.Context, id string, sizes model.SizeSelection) error
	ListQuoteIDsByServiceAddress(ctx context.Context, addressID string) ([]string, error)
	ListQuoteIDsByCompany(ctx context.Context, companyID string) ([]string, error)

	// InTx runs fn in a transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
