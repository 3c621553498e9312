package enever

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote is a single time-stamped price quotation. Time marks the start
// of the interval the prices apply to; Prices maps provider codes to the
// quoted price, with absent codes meaning no price was published. A quote is
// never modified after construction.
type PriceQuote struct {
	Time   time.Time
	Prices map[string]decimal.Decimal
}

// Price returns the quoted price for a provider code, and whether one was
// published at all.
func (q PriceQuote) Price(code string) (decimal.Decimal, bool) {
	p, ok := q.Prices[code]
	return p, ok
}

// FeedBatch is one calendar day of quotes, ordered by time ascending. A batch
// is produced wholesale by a successful fetch and never partially updated.
type FeedBatch []PriceQuote

// Empty reports whether the batch contains no quotes.
func (b FeedBatch) Empty() bool {
	return len(b) == 0
}

// Start returns the timestamp of the first quote, or the zero time for an
// empty batch. The first quote's date identifies the day the batch covers.
func (b FeedBatch) Start() time.Time {
	if len(b) == 0 {
		return time.Time{}
	}
	return b[0].Time
}
