package oracle

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestSimplePriceOracle(t *testing.T) {
	require := require.New(t)
	o := NewSimplePriceOracle()
	dai := ethcommon.HexToAddress("0xda1")
	pool := ethcommon.HexToAddress("0x5da1")

	_, ok := o.GetPrice(dai)
	require.False(ok)

	o.SetPrice(dai, uint256.NewInt(1_000_000_000_000_000_000))
	price, ok := o.GetPrice(dai)
	require.True(ok)
	require.Equal(uint64(1_000_000_000_000_000_000), price.Uint64())

	_, ok = o.GetUnderlyingPrice(pool)
	require.False(ok, "unregistered pool has no price")
	o.RegisterPool(pool, dai)
	price, ok = o.GetUnderlyingPrice(pool)
	require.True(ok)
	require.Equal(uint64(1_000_000_000_000_000_000), price.Uint64())

	price.SetUint64(1)
	again, _ := o.GetPrice(dai)
	require.NotEqual(uint64(1), again.Uint64(), "returned prices are copies")

	restore := o.Checkpoint()
	o.SetPrice(dai, nil)
	_, ok = o.GetPrice(dai)
	require.False(ok, "zero price clears the feed")
	restore()
	_, ok = o.GetPrice(dai)
	require.True(ok)
}
