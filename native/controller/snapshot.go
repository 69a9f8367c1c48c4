package controller

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
)

// Guardian flags are persisted as tri-state bytes so an unset flag survives
// a round trip.
const (
	flagUnset uint8 = iota
	flagOpen
	flagPaused
)

// MarketRecord is the persisted form of one registry entry.
type MarketRecord struct {
	Pool                 ethcommon.Address
	Underlying           ethcommon.Address
	CollateralFactor     *big.Int
	MintGuardianPaused   uint8
	BorrowGuardianPaused uint8
	BorrowCap            *big.Int
}

// Record is the RLP-friendly export of the controller. Markets keep their
// listing order.
type Record struct {
	Address                ethcommon.Address
	Manager                ethcommon.Address
	PendingManager         ethcommon.Address
	CloseFactor            *big.Int
	LiquidationIncentive   *big.Int
	SeizeGuardianPaused    bool
	TransferGuardianPaused bool
	FlashloanGateway       ethcommon.Address
	Markets                []MarketRecord
}

// Export returns the persisted form of the controller. The oracle and the
// pools are persisted by their owners.
func (c *Controller) Export() *Record {
	record := &Record{
		Address:                c.address,
		Manager:                c.admin.Manager,
		PendingManager:         c.admin.Pending,
		CloseFactor:            c.closeFactor.ToBig(),
		LiquidationIncentive:   c.liquidationIncentive.ToBig(),
		SeizeGuardianPaused:    c.seizeGuardianPaused,
		TransferGuardianPaused: c.transferGuardianPaused,
		FlashloanGateway:       c.flashloanGateway,
	}
	for _, pool := range c.allMarkets {
		state := c.markets[pool]
		record.Markets = append(record.Markets, MarketRecord{
			Pool:                 state.Pool,
			Underlying:           state.Underlying,
			CollateralFactor:     zeroIfNil(state.CollateralFactor).ToBig(),
			MintGuardianPaused:   encodeFlag(state.MintGuardianPaused),
			BorrowGuardianPaused: encodeFlag(state.BorrowGuardianPaused),
			BorrowCap:            zeroIfNil(state.BorrowCap).ToBig(),
		})
	}
	return record
}

// Restore rebuilds a controller from its persisted form. Every listed pool
// must be resolvable through pools.
func Restore(record *Record, oracle nativecommon.PriceOracle, pools map[ethcommon.Address]nativecommon.PoolRef) (*Controller, error) {
	closeFactor, err := fromBig(record.CloseFactor)
	if err != nil {
		return nil, err
	}
	incentive, err := fromBig(record.LiquidationIncentive)
	if err != nil {
		return nil, err
	}
	c := New(Config{
		Address:              record.Address,
		Manager:              record.Manager,
		Oracle:               oracle,
		CloseFactor:          closeFactor,
		LiquidationIncentive: incentive,
	})
	c.admin.Pending = record.PendingManager
	c.seizeGuardianPaused = record.SeizeGuardianPaused
	c.transferGuardianPaused = record.TransferGuardianPaused
	c.flashloanGateway = record.FlashloanGateway
	for _, entry := range record.Markets {
		ref, ok := pools[entry.Pool]
		if !ok || ref == nil {
			return nil, fmt.Errorf("controller: restore market %s: %w", entry.Pool.Hex(), ErrMarketNotListed)
		}
		cf, err := fromBig(entry.CollateralFactor)
		if err != nil {
			return nil, err
		}
		borrowCap, err := fromBig(entry.BorrowCap)
		if err != nil {
			return nil, err
		}
		c.allMarkets = append(c.allMarkets, entry.Pool)
		c.pools[entry.Pool] = ref
		c.underlyingPool[entry.Underlying] = entry.Pool
		c.markets[entry.Pool] = &MarketState{
			Pool:                 entry.Pool,
			Underlying:           entry.Underlying,
			CollateralFactor:     cf,
			MintGuardianPaused:   decodeFlag(entry.MintGuardianPaused),
			BorrowGuardianPaused: decodeFlag(entry.BorrowGuardianPaused),
			BorrowCap:            borrowCap,
		}
	}
	return c, nil
}

// Checkpoint captures the registry and risk parameters; the returned
// function restores them.
func (c *Controller) Checkpoint() func() {
	admin := c.admin
	oracle := c.oracle
	closeFactor := c.closeFactor.Clone()
	incentive := c.liquidationIncentive.Clone()
	seize, transfer := c.seizeGuardianPaused, c.transferGuardianPaused
	gateway := c.flashloanGateway
	allMarkets := append([]ethcommon.Address(nil), c.allMarkets...)
	markets := make(map[ethcommon.Address]*MarketState, len(c.markets))
	for addr, state := range c.markets {
		markets[addr] = state.Clone()
	}
	pools := make(map[ethcommon.Address]nativecommon.PoolRef, len(c.pools))
	for addr, ref := range c.pools {
		pools[addr] = ref
	}
	underlyingPool := make(map[ethcommon.Address]ethcommon.Address, len(c.underlyingPool))
	for underlying, pool := range c.underlyingPool {
		underlyingPool[underlying] = pool
	}
	return func() {
		c.admin = admin
		c.oracle = oracle
		c.closeFactor = closeFactor
		c.liquidationIncentive = incentive
		c.seizeGuardianPaused, c.transferGuardianPaused = seize, transfer
		c.flashloanGateway = gateway
		c.allMarkets = allMarkets
		c.markets = markets
		c.pools = pools
		c.underlyingPool = underlyingPool
	}
}

func encodeFlag(flag *bool) uint8 {
	switch {
	case flag == nil:
		return flagUnset
	case *flag:
		return flagPaused
	default:
		return flagOpen
	}
}

func decodeFlag(v uint8) *bool {
	switch v {
	case flagOpen:
		return boolPtr(false)
	case flagPaused:
		return boolPtr(true)
	default:
		return nil
	}
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("controller: value %s exceeds 256 bits", v.String())
	}
	return out, nil
}

var _ nativecommon.Checkpointer = (*Controller)(nil)
