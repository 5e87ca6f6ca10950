// Package rates provides the exchange rate used to convert order totals to
// the foreign currency.
package rates

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when no valid exchange rate can be obtained.
var ErrUnavailable = errors.New("exchange rate unavailable")

// Provider returns the current number of local currency units per foreign
// unit. The value is always positive.
type Provider interface {
	Rate(ctx context.Context) (decimal.Decimal, error)
}

// Fixed is a Provider that always returns the same rate.
type Fixed decimal.Decimal

// Rate implements Provider.
func (f Fixed) Rate(context.Context) (decimal.Decimal, error) {
	r := decimal.Decimal(f)
	if !r.IsPositive() {
		return decimal.Zero, ErrUnavailable
	}
	return r, nil
}

// ParseLocaleDecimal parses a number written with '.' as the thousands
// separator and ',' as the decimal separator, such as "1.234,50". A value
// without a comma is parsed as a plain decimal.
func ParseLocaleDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %q", s)
	}
	return d, nil
}
