package biddingerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"amount", ErrInvalidAmount, KindValidation},
		{"wrapped id", fmt.Errorf("bidding: %w: auction id", ErrInvalidID), KindValidation},
		{"too low", fmt.Errorf("bidding: %w: bid amount must be at least 101", ErrBidTooLow), KindBusinessRule},
		{"self bid", ErrSelfBid, KindBusinessRule},
		{"not owner", ErrNotOwner, KindBusinessRule},
		{"lock", ErrLockNotAcquired, KindContention},
		{"version", fmt.Errorf("x: %w", ErrVersionConflict), KindContention},
		{"not found", ErrAuctionNotFound, KindNotFound},
		{"unknown", errors.New("connection refused"), KindInfrastructure},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestIsRetryableOnlyForContention(t *testing.T) {
	t.Parallel()

	require.True(t, IsRetryable(ErrLockNotAcquired))
	require.True(t, IsRetryable(fmt.Errorf("wrap: %w", ErrVersionConflict)))
	require.False(t, IsRetryable(ErrBidTooLow))
	require.False(t, IsRetryable(errors.New("boom")))
	require.False(t, IsRetryable(nil))
}
