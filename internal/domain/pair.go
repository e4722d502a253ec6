// Package domain defines the core data structures shared by the
// rebalancing engine, the execution ledger and the exchange adapters.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const symbolSeparator = "/"

// Pair is a trading pair: a trade coin quoted against a base (fiat) currency.
type Pair struct {
	// Coin is the traded cryptocurrency symbol, e.g. BTC.
	Coin string
	// Base is the base currency symbol, e.g. JPY.
	Base string
}

// ParsePair parses a symbol of the form "BTC/JPY".
func ParsePair(symbol string) (Pair, error) {
	parts := strings.Split(symbol, symbolSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, errors.Errorf("invalid symbol %q, expected format like BTC/JPY", symbol)
	}
	return Pair{Coin: strings.ToUpper(parts[0]), Base: strings.ToUpper(parts[1])}, nil
}

// String returns the canonical "COIN/BASE" representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s%s%s", p.Coin, symbolSeparator, p.Base)
}

// Symbol returns the concatenated representation used by SDK-style exchanges.
func (p Pair) Symbol() string {
	return p.Coin + p.Base
}
