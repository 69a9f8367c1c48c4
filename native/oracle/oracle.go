// Package oracle provides the settable price feed consulted by the controller.
package oracle

import (
	"math/big"
	"sort"
	"sync"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SimplePriceOracle stores operator-supplied prices. Prices are the value of
// one whole token scaled by 1e18.
type SimplePriceOracle struct {
	mu     sync.RWMutex
	prices map[ethcommon.Address]*uint256.Int
	pools  map[ethcommon.Address]ethcommon.Address
}

// NewSimplePriceOracle creates an oracle with no prices.
func NewSimplePriceOracle() *SimplePriceOracle {
	return &SimplePriceOracle{
		prices: make(map[ethcommon.Address]*uint256.Int),
		pools:  make(map[ethcommon.Address]ethcommon.Address),
	}
}

// SetPrice sets the price for an asset. A zero price clears it.
func (o *SimplePriceOracle) SetPrice(asset ethcommon.Address, price *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if price == nil || price.IsZero() {
		delete(o.prices, asset)
		return
	}
	o.prices[asset] = price.Clone()
}

// RegisterPool records the underlying asset of pool so GetUnderlyingPrice
// can resolve it.
func (o *SimplePriceOracle) RegisterPool(pool, underlying ethcommon.Address) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pools[pool] = underlying
}

// GetPrice returns the price for an asset.
func (o *SimplePriceOracle) GetPrice(asset ethcommon.Address) (*uint256.Int, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[asset]
	if !ok {
		return nil, false
	}
	return price.Clone(), true
}

// GetUnderlyingPrice returns the price of the asset backing pool.
func (o *SimplePriceOracle) GetUnderlyingPrice(pool ethcommon.Address) (*uint256.Int, bool) {
	o.mu.RLock()
	underlying, ok := o.pools[pool]
	o.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return o.GetPrice(underlying)
}

// PriceRecord is the persisted form of one price.
type PriceRecord struct {
	Asset ethcommon.Address
	Price *big.Int
}

// PoolRecord is the persisted form of one pool registration.
type PoolRecord struct {
	Pool       ethcommon.Address
	Underlying ethcommon.Address
}

// Record is the RLP-friendly export of the oracle.
type Record struct {
	Prices []PriceRecord
	Pools  []PoolRecord
}

// Export returns the persisted form, sorted by address.
func (o *SimplePriceOracle) Export() *Record {
	o.mu.RLock()
	defer o.mu.RUnlock()
	record := &Record{}
	for asset, price := range o.prices {
		record.Prices = append(record.Prices, PriceRecord{Asset: asset, Price: price.ToBig()})
	}
	for pool, underlying := range o.pools {
		record.Pools = append(record.Pools, PoolRecord{Pool: pool, Underlying: underlying})
	}
	sort.Slice(record.Prices, func(i, j int) bool { return record.Prices[i].Asset.Cmp(record.Prices[j].Asset) < 0 })
	sort.Slice(record.Pools, func(i, j int) bool { return record.Pools[i].Pool.Cmp(record.Pools[j].Pool) < 0 })
	return record
}

// Import replaces the oracle contents with a persisted record.
func (o *SimplePriceOracle) Import(record *Record) {
	prices := make(map[ethcommon.Address]*uint256.Int, len(record.Prices))
	for _, entry := range record.Prices {
		if price, overflow := uint256.FromBig(entry.Price); !overflow && !price.IsZero() {
			prices[entry.Asset] = price
		}
	}
	pools := make(map[ethcommon.Address]ethcommon.Address, len(record.Pools))
	for _, entry := range record.Pools {
		pools[entry.Pool] = entry.Underlying
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices = prices
	o.pools = pools
}

// Checkpoint captures all prices; the returned function restores them.
func (o *SimplePriceOracle) Checkpoint() func() {
	record := o.Export()
	return func() { o.Import(record) }
}
