package commission

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	partydomain "github.com/smallbiznis/licensia/internal/party/domain"
	"github.com/stretchr/testify/assert"
)

func chain(node *snowflake.Node, rates ...int) []partydomain.PartyNode {
	out := make([]partydomain.PartyNode, 0, len(rates))
	for _, rate := range rates {
		out = append(out, partydomain.PartyNode{
			ID:             node.Generate(),
			CommissionRate: rate,
		})
	}
	return out
}

func TestCompute_TwoLevelChain(t *testing.T) {
	node, _ := snowflake.NewNode(1)

	// A licensee under a sub-reseller (10%) under a root reseller (30%)
	// pays 100.00.
	ancestors := chain(node, 10, 30)
	split, err := Compute(ancestors, 10000)
	assert.NoError(t, err)

	assert.Len(t, split.Shares, 2)
	assert.Equal(t, int64(1000), split.Shares[0].AmountCents)
	assert.Equal(t, ancestors[0].ID, split.Shares[0].PartyID)
	assert.Equal(t, int64(3000), split.Shares[1].AmountCents)
	assert.Equal(t, ancestors[1].ID, split.Shares[1].PartyID)

	assert.Equal(t, int64(4000), split.PoolCents)
	assert.Equal(t, int64(6000), split.NetCents)
}

func TestCompute_SharesAndNetRebuildAmount(t *testing.T) {
	node, _ := snowflake.NewNode(1)

	cases := []struct {
		name   string
		rates  []int
		amount int64
	}{
		{"even split", []int{10, 30}, 10000},
		{"odd amount", []int{33, 33}, 103},
		{"single ancestor", []int{25}, 999},
		{"full pool", []int{50, 50}, 101},
		{"zero amount", []int{10, 30}, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			split, err := Compute(chain(node, tc.rates...), tc.amount)
			assert.NoError(t, err)

			var total int64
			for _, share := range split.Shares {
				total += share.AmountCents
			}
			assert.Equal(t, split.PoolCents, total)
			assert.Equal(t, tc.amount, split.PoolCents+split.NetCents)
		})
	}
}

func TestCompute_RemainderGoesToTopOfChain(t *testing.T) {
	node, _ := snowflake.NewNode(1)

	// 103 at 33% + 33%: pool is floor(103*66/100) = 67, individual cuts
	// floor to 33 each. The missing cent lands on the last (top-most) share.
	split, err := Compute(chain(node, 33, 33), 103)
	assert.NoError(t, err)

	assert.Equal(t, int64(67), split.PoolCents)
	assert.Equal(t, int64(33), split.Shares[0].AmountCents)
	assert.Equal(t, int64(34), split.Shares[1].AmountCents)
	assert.Equal(t, int64(36), split.NetCents)
}

func TestCompute_NoAncestors(t *testing.T) {
	split, err := Compute(nil, 19900)
	assert.NoError(t, err)
	assert.Empty(t, split.Shares)
	assert.Equal(t, int64(0), split.PoolCents)
	assert.Equal(t, int64(19900), split.NetCents)
}

func TestCompute_NegativeAmount(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	_, err := Compute(chain(node, 10), -1)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestCompute_RateSumOver100(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	_, err := Compute(chain(node, 60, 50), 10000)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = Compute(chain(node, -5), 10000)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestValidateRateSum(t *testing.T) {
	assert.NoError(t, ValidateRateSum(40, []int{30, 10}))
	assert.ErrorIs(t, ValidateRateSum(61, []int{30, 10}), ErrConfiguration)
	assert.ErrorIs(t, ValidateRateSum(101, nil), ErrConfiguration)
	assert.ErrorIs(t, ValidateRateSum(-1, nil), ErrConfiguration)
}
