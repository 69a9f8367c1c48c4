package protocol

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/lending"
)

// Administrative actions bypass the module pause so a halted deployment can
// still be repaired and resumed. Authorization is enforced by the component
// that owns each parameter.

func (p *Protocol) SetCollateralFactor(caller, pool ethcommon.Address, factor *uint256.Int) error {
	return p.execute("set_collateral_factor", caller, onPool(pool), false, func() error {
		if err := requireAmount(factor); err != nil {
			return err
		}
		return p.ctrl.SetCollateralFactor(caller, pool, factor)
	})
}

func (p *Protocol) SetBorrowCap(caller, pool ethcommon.Address, borrowCap *uint256.Int) error {
	return p.execute("set_borrow_cap", caller, onPool(pool), false, func() error {
		if err := requireAmount(borrowCap); err != nil {
			return err
		}
		return p.ctrl.SetBorrowCap(caller, pool, borrowCap)
	})
}

func (p *Protocol) SetMintPaused(caller, pool ethcommon.Address, paused bool) error {
	return p.execute("set_mint_paused", caller, onPool(pool), false, func() error {
		return p.ctrl.SetMintGuardianPaused(caller, pool, paused)
	})
}

func (p *Protocol) SetBorrowPaused(caller, pool ethcommon.Address, paused bool) error {
	return p.execute("set_borrow_paused", caller, onPool(pool), false, func() error {
		return p.ctrl.SetBorrowGuardianPaused(caller, pool, paused)
	})
}

func (p *Protocol) SetSeizePaused(caller ethcommon.Address, paused bool) error {
	return p.execute("set_seize_paused", caller, logTarget{}, false, func() error {
		return p.ctrl.SetSeizeGuardianPaused(caller, paused)
	})
}

func (p *Protocol) SetTransferPaused(caller ethcommon.Address, paused bool) error {
	return p.execute("set_transfer_paused", caller, logTarget{}, false, func() error {
		return p.ctrl.SetTransferGuardianPaused(caller, paused)
	})
}

func (p *Protocol) SetCloseFactor(caller ethcommon.Address, factor *uint256.Int) error {
	return p.execute("set_close_factor", caller, logTarget{}, false, func() error {
		if err := requireAmount(factor); err != nil {
			return err
		}
		return p.ctrl.SetCloseFactor(caller, factor)
	})
}

func (p *Protocol) SetLiquidationIncentive(caller ethcommon.Address, incentive *uint256.Int) error {
	return p.execute("set_liquidation_incentive", caller, logTarget{}, false, func() error {
		if err := requireAmount(incentive); err != nil {
			return err
		}
		return p.ctrl.SetLiquidationIncentive(caller, incentive)
	})
}

// SetReserveFactor accrues the pool and switches its reserve factor.
func (p *Protocol) SetReserveFactor(caller, pool ethcommon.Address, factor *uint256.Int) error {
	return p.execute("set_reserve_factor", caller, onPool(pool), false, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(factor); err != nil {
			return err
		}
		return m.pool.SetReserveFactor(caller, factor)
	})
}

// AddReserves moves amount of the manager's underlying into reserves.
func (p *Protocol) AddReserves(caller, pool ethcommon.Address, amount *uint256.Int) error {
	return p.execute("add_reserves", caller, onPool(pool), false, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		return withAllowance(m.asset, caller, pool, amount, func() error {
			return m.pool.AddReserves(caller, amount)
		})
	})
}

// ReduceReserves pays amount of reserves out to the manager.
func (p *Protocol) ReduceReserves(caller, pool ethcommon.Address, amount *uint256.Int) error {
	return p.execute("reduce_reserves", caller, onPool(pool), false, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		return m.pool.ReduceReserves(caller, amount)
	})
}

// SetModulePaused halts or resumes every user action.
func (p *Protocol) SetModulePaused(caller ethcommon.Address, paused bool) error {
	return p.execute("set_module_paused", caller, logTarget{}, false, func() error {
		if err := p.requireManager(caller); err != nil {
			return err
		}
		p.pauses.Set(lending.ModuleName, paused)
		return nil
	})
}
