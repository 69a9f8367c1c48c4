package lending

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/events"
	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

// AddReserves moves amount of underlying from the manager into reserves.
func (p *Pool) AddReserves(caller ethcommon.Address, amount *uint256.Int) error {
	if err := p.admin.Authorize(caller); err != nil {
		return err
	}
	if err := p.AccrueInterest(); err != nil {
		return err
	}
	if err := p.ensureFresh(); err != nil {
		return err
	}
	totalReservesNew, overflow := new(uint256.Int).AddOverflow(p.market.TotalReserves, amount)
	if overflow {
		return fixedpoint.ErrAdditionOverflow
	}
	if err := p.asset.TransferFrom(p.address, caller, p.address, amount); err != nil {
		return fmt.Errorf("lending: transfer in: %w", err)
	}
	p.market.TotalReserves = totalReservesNew
	p.emit(events.ReservesChanged{Pool: p.address, Account: caller, Amount: amount.Clone(), TotalReserves: totalReservesNew.Clone()})
	return nil
}

// ReduceReserves pays amount of reserves out to the manager.
func (p *Pool) ReduceReserves(caller ethcommon.Address, amount *uint256.Int) error {
	if err := p.admin.Authorize(caller); err != nil {
		return err
	}
	if err := p.AccrueInterest(); err != nil {
		return err
	}
	if err := p.ensureFresh(); err != nil {
		return err
	}
	if p.GetCash().Lt(amount) {
		return ErrReduceReservesCashNotAvailable
	}
	if amount.Gt(p.market.TotalReserves) {
		return ErrReduceReservesCashValidation
	}
	totalReservesNew := new(uint256.Int).Sub(p.market.TotalReserves, amount)
	if err := p.asset.Transfer(p.address, caller, amount); err != nil {
		return fmt.Errorf("lending: transfer out: %w", err)
	}
	p.market.TotalReserves = totalReservesNew
	p.emit(events.ReservesChanged{Pool: p.address, Account: caller, Amount: amount.Clone(), TotalReserves: totalReservesNew.Clone(), Reduced: true})
	return nil
}

// SweepToken sends the pool's whole balance of a foreign token to the
// manager. The underlying can never be swept.
func (p *Pool) SweepToken(caller, tokenAddr ethcommon.Address, ledger nativecommon.FungibleLedger) (*uint256.Int, error) {
	if err := p.admin.Authorize(caller); err != nil {
		return nil, err
	}
	if tokenAddr == p.underlying {
		return nil, ErrCannotSweepUnderlying
	}
	balance := ledger.BalanceOf(p.address)
	if balance.IsZero() {
		return balance, nil
	}
	if err := ledger.Transfer(p.address, p.admin.Manager, balance); err != nil {
		return nil, fmt.Errorf("lending: sweep: %w", err)
	}
	p.emit(events.TokenSwept{Pool: p.address, Token: tokenAddr, To: p.admin.Manager, Amount: balance.Clone()})
	return balance, nil
}

// SetController rewires the pool to another controller.
func (p *Pool) SetController(caller ethcommon.Address, controller nativecommon.ControllerRef) error {
	if err := p.admin.Authorize(caller); err != nil {
		return err
	}
	if controller == nil {
		return ErrControllerNotConfigured
	}
	p.controller = controller
	p.emit(events.ParameterUpdated{Market: p.address, Name: "controller", Value: controller.Address().Hex()})
	return nil
}

// SetInterestRateModel accrues with the old model, then switches.
func (p *Pool) SetInterestRateModel(caller ethcommon.Address, model nativecommon.InterestRateModel) error {
	if err := p.admin.Authorize(caller); err != nil {
		return err
	}
	if model == nil {
		return ErrRateModelNotConfigured
	}
	if err := p.AccrueInterest(); err != nil {
		return err
	}
	p.rateModel = model
	p.emit(events.ParameterUpdated{Market: p.address, Name: "interestRateModel", Value: fmt.Sprintf("%T", model)})
	return nil
}

// SetReserveFactor updates the share of future interest kept as reserves.
func (p *Pool) SetReserveFactor(caller ethcommon.Address, factor *uint256.Int) error {
	if err := p.admin.Authorize(caller); err != nil {
		return err
	}
	if err := p.AccrueInterest(); err != nil {
		return err
	}
	if err := p.ensureFresh(); err != nil {
		return err
	}
	if factor.Gt(reserveFactorMaxMantissa) {
		return ErrInvalidReserveFactor
	}
	p.market.ReserveFactor = factor.Clone()
	p.emit(events.ParameterUpdated{Market: p.address, Name: "reserveFactor", Value: factor.Dec()})
	return nil
}

// SetLiquidationThreshold updates the threshold in basis points. The
// threshold may not drop below the collateral factor the controller holds
// for this pool.
func (p *Pool) SetLiquidationThreshold(caller ethcommon.Address, bps uint64) error {
	if err := p.admin.Authorize(caller); err != nil {
		return err
	}
	if bps > fixedpoint.PercentageFactor {
		return ErrInvalidLiquidationThreshold
	}
	if p.controller != nil {
		threshold := new(uint256.Int).Mul(uint256.NewInt(bps), bpsToMantissa)
		if threshold.Lt(p.controller.CollateralFactor(p.address)) {
			return ErrThresholdBelowCollateralFactor
		}
	}
	p.market.LiquidationThreshold = bps
	p.emit(events.ParameterUpdated{Market: p.address, Name: "liquidationThreshold", Value: fmt.Sprintf("%d", bps)})
	return nil
}

// SetPendingManager proposes the next manager.
func (p *Pool) SetPendingManager(caller, next ethcommon.Address) error {
	if err := p.admin.Propose(caller, next); err != nil {
		return err
	}
	p.emit(events.ManagerChanged{Contract: p.address, Manager: next})
	return nil
}

// AcceptManager completes the handover started by SetPendingManager.
func (p *Pool) AcceptManager(caller ethcommon.Address) error {
	if err := p.admin.Accept(caller); err != nil {
		return err
	}
	p.emit(events.ManagerChanged{Contract: p.address, Manager: caller, Accepted: true})
	return nil
}
