package bidding

import (
	"errors"
	"math"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/iliyamo/live-auction/internal/biddingerrors"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]int64{
		"1":        1,
		"150":      150,
		" 150 ":    150,
		"150.00":   150,
		"10000000": 10_000_000,
	} {
		got, err := ParseAmount(raw, 10_000_000)
		assert.NoError(t, err)
		check.Equal(t, want, got)
	}

	for _, raw := range []string{"", "abc", "150.5", "0.01", "0", "-3", "10000001", "1e9"} {
		_, err := ParseAmount(raw, 10_000_000)
		check.True(t, errors.Is(err, biddingerrors.ErrInvalidAmount))
	}
}

func TestParseAmountWithoutCeiling(t *testing.T) {
	t.Parallel()

	got, err := ParseAmount("99999999999", 0)
	assert.NoError(t, err)
	check.Equal(t, int64(99999999999), got)

	got, err = ParseAmount("9223372036854775807", 0)
	assert.NoError(t, err)
	check.Equal(t, int64(math.MaxInt64), got)

	for _, raw := range []string{"9223372036854775808", "100000000000000000000"} {
		_, err = ParseAmount(raw, 0)
		check.True(t, errors.Is(err, biddingerrors.ErrInvalidAmount))
	}
}
