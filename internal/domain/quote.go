package domain

import "github.com/shopspring/decimal"

// Quote is the top of book as reported by an exchange. Stale quotes are
// possible: best_bid <= last <= best_ask must not be assumed.
type Quote struct {
	Last decimal.Decimal
	Bid  decimal.Decimal
	Ask  decimal.Decimal
}

// FlatQuote builds a quote where the last traded price stands in for both
// sides of the book. Used when a venue cannot serve best bid/ask.
func FlatQuote(last decimal.Decimal) Quote {
	return Quote{Last: last, Bid: last, Ask: last}
}
