// Package commission computes how a payment is divided between a payer's
// ancestors. All math is integer cents; no fractional cent ever leaves this
// package.
package commission

import (
	"errors"

	"github.com/bwmarrin/snowflake"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
)

var (
	ErrInvalidAmount = errors.New("invalid_amount")
	// ErrConfiguration means the ancestor rates sum past 100%. Rate
	// assignment guards against this, so hitting it here is corrupted data.
	ErrConfiguration = errors.New("commission_rate_configuration")
)

// Share is one ancestor's cut of a payment.
type Share struct {
	PartyID     snowflake.ID
	Rate        int
	AmountCents int64
}

// Split is the full division of one payment: per-ancestor shares, the total
// commission pool and the net remainder.
type Split struct {
	Shares    []Share
	PoolCents int64
	NetCents  int64
}

// Compute divides amountCents across the payer's ancestors, ordered nearest
// first. Each ancestor earns floor(amount*rate/100) of the original amount;
// the pool is floor(amount*sumRates/100) and the cent difference between the
// pool and the individual floors accrues to the top-most ancestor. The net
// is what remains after the pool, so shares and net always rebuild the exact
// amount.
func Compute(ancestors []partydomain.PartyNode, amountCents int64) (Split, error) {
	if amountCents < 0 {
		return Split{}, ErrInvalidAmount
	}

	sumRates := 0
	for _, ancestor := range ancestors {
		if ancestor.CommissionRate < 0 || ancestor.CommissionRate > 100 {
			return Split{}, ErrConfiguration
		}
		sumRates += ancestor.CommissionRate
	}
	if sumRates > 100 {
		return Split{}, ErrConfiguration
	}

	pool := amountCents * int64(sumRates) / 100

	shares := make([]Share, 0, len(ancestors))
	var allocated int64
	for _, ancestor := range ancestors {
		cut := amountCents * int64(ancestor.CommissionRate) / 100
		allocated += cut
		shares = append(shares, Share{
			PartyID:     ancestor.ID,
			Rate:        ancestor.CommissionRate,
			AmountCents: cut,
		})
	}

	// Floor rounding can leave the pool a cent or two ahead of the
	// individual cuts; the top of the chain absorbs the difference.
	if remainder := pool - allocated; remainder > 0 && len(shares) > 0 {
		shares[len(shares)-1].AmountCents += remainder
	}

	return Split{
		Shares:    shares,
		PoolCents: pool,
		NetCents:  amountCents - pool,
	}, nil
}

// ValidateRateSum checks that a candidate rate fits alongside the given
// ancestor rates.
func ValidateRateSum(rate int, ancestorRates []int) error {
	if rate < 0 || rate > 100 {
		return ErrConfiguration
	}
	sum := rate
	for _, r := range ancestorRates {
		sum += r
	}
	if sum > 100 {
		return ErrConfiguration
	}
	return nil
}
