package domain

import "github.com/pkg/errors"

// Side is the direction of an order or a fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide normalizes an exchange-reported side string.
func ParseSide(s string) (Side, error) {
	switch s {
	case "buy", "BUY", "Buy":
		return SideBuy, nil
	case "sell", "SELL", "Sell":
		return SideSell, nil
	}
	return "", errors.Errorf("unknown order side %q", s)
}

// String returns the lower-case side name.
func (s Side) String() string {
	return string(s)
}

// Opposite returns the counter side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}
