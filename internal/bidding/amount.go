package bidding

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/live-auction/internal/biddingerrors"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// ParseAmount accepts a decimal string such as "150" or "150.00" and returns
// it as whole currency units.  Fractional, non-positive and above-ceiling
// amounts are rejected with ErrInvalidAmount.  A ceiling <= 0 disables the
// configured bound; amounts that do not fit an int64 are always rejected.
func ParseAmount(raw string, ceiling int64) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: amount is required", biddingerrors.ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", biddingerrors.ErrInvalidAmount, raw)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("%w: amount must be a whole number of units", biddingerrors.ErrInvalidAmount)
	}
	if d.Sign() <= 0 {
		return 0, fmt.Errorf("%w: amount must be positive", biddingerrors.ErrInvalidAmount)
	}
	if d.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: amount is out of range", biddingerrors.ErrInvalidAmount)
	}
	if ceiling > 0 && d.GreaterThan(decimal.NewFromInt(ceiling)) {
		return 0, fmt.Errorf("%w: amount exceeds the maximum of %d", biddingerrors.ErrInvalidAmount, ceiling)
	}
	return d.IntPart(), nil
}
