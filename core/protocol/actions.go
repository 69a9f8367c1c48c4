package protocol

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/config"
)

// Mint supplies amount of underlying and returns the claim tokens minted.
func (p *Protocol) Mint(account, pool ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	var minted *uint256.Int
	err := p.execute("mint", account, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		return withAllowance(m.asset, account, pool, amount, func() error {
			minted, err = m.pool.Mint(account, amount)
			return err
		})
	})
	return minted, err
}

// Redeem burns claim tokens and returns the underlying paid out.
func (p *Protocol) Redeem(account, pool ethcommon.Address, tokens *uint256.Int) (*uint256.Int, error) {
	var paid *uint256.Int
	err := p.execute("redeem", account, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(tokens); err != nil {
			return err
		}
		paid, err = m.pool.Redeem(account, tokens)
		return err
	})
	return paid, err
}

// RedeemUnderlying withdraws amount of underlying and returns the claim
// tokens burned.
func (p *Protocol) RedeemUnderlying(account, pool ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	var burned *uint256.Int
	err := p.execute("redeem_underlying", account, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		burned, err = m.pool.RedeemUnderlying(account, amount)
		return err
	})
	return burned, err
}

func (p *Protocol) Borrow(account, pool ethcommon.Address, amount *uint256.Int) error {
	return p.execute("borrow", account, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		return m.pool.Borrow(account, amount)
	})
}

// RepayBorrow repays the caller's own debt. The maximum uint256 repays it
// in full. The amount actually repaid is returned.
func (p *Protocol) RepayBorrow(account, pool ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.repay("repay", account, account, pool, amount)
}

// RepayBorrowBehalf repays borrower's debt out of payer's balance.
func (p *Protocol) RepayBorrowBehalf(payer, borrower, pool ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.repay("repay_behalf", payer, borrower, pool, amount)
}

func (p *Protocol) repay(action string, payer, borrower, pool ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	var repaid *uint256.Int
	err := p.execute(action, payer, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		return withAllowance(m.asset, payer, pool, amount, func() error {
			if payer == borrower {
				repaid, err = m.pool.RepayBorrow(payer, amount)
			} else {
				repaid, err = m.pool.RepayBorrowBehalf(payer, borrower, amount)
			}
			return err
		})
	})
	return repaid, err
}

// LiquidateBorrow repays part of borrower's debt in pool and seizes claim
// tokens of the collateral pool. The seized token amount is returned.
func (p *Protocol) LiquidateBorrow(liquidator, borrower, pool ethcommon.Address, amount *uint256.Int, collateral ethcommon.Address) (*uint256.Int, error) {
	var seized *uint256.Int
	err := p.execute("liquidate", liquidator, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if _, err := p.market(collateral); err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		return withAllowance(m.asset, liquidator, pool, amount, func() error {
			seized, err = m.pool.LiquidateBorrow(liquidator, borrower, amount, collateral)
			return err
		})
	})
	return seized, err
}

// Transfer moves claim tokens between accounts, subject to the controller.
func (p *Protocol) Transfer(src, dst, pool ethcommon.Address, tokens *uint256.Int) error {
	return p.execute("transfer", src, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(tokens); err != nil {
			return err
		}
		return m.pool.Transfer(src, dst, tokens)
	})
}

// TransferFrom moves claim tokens on behalf of src using spender's allowance.
func (p *Protocol) TransferFrom(spender, src, dst, pool ethcommon.Address, tokens *uint256.Int) error {
	return p.execute("transfer_from", spender, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(tokens); err != nil {
			return err
		}
		return m.pool.TransferFrom(spender, src, dst, tokens)
	})
}

// Approve sets spender's allowance over owner's claim tokens.
func (p *Protocol) Approve(owner, spender, pool ethcommon.Address, amount *uint256.Int) error {
	return p.execute("approve", owner, onPool(pool), true, func() error {
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		return m.pool.Approve(owner, spender, amount)
	})
}

// AccrueInterest accrues one pool, or every pool when pool is the zero
// address.
func (p *Protocol) AccrueInterest(pool ethcommon.Address) error {
	return p.execute("accrue", ethcommon.Address{}, onPool(pool), true, func() error {
		if pool == (ethcommon.Address{}) {
			for _, m := range p.markets {
				if err := m.pool.AccrueInterest(); err != nil {
					return err
				}
			}
			return nil
		}
		m, err := p.market(pool)
		if err != nil {
			return err
		}
		return m.pool.AccrueInterest()
	})
}

// Faucet mints underlying asset to account. It exists for local and test
// deployments where the underlying has no other source.
func (p *Protocol) Faucet(asset, account ethcommon.Address, amount *uint256.Int) error {
	return p.execute("faucet", account, onAsset(asset), true, func() error {
		m, err := p.marketOfAsset(asset)
		if err != nil {
			return err
		}
		if err := requireAmount(amount); err != nil {
			return err
		}
		return m.asset.MintTo(account, amount)
	})
}

// SetPrice updates the oracle price of one whole unit of asset. Only the
// controller's manager may move prices; a zero price removes it.
func (p *Protocol) SetPrice(caller, asset ethcommon.Address, price *uint256.Int) error {
	return p.execute("set_price", caller, onAsset(asset), false, func() error {
		if err := p.requireManager(caller); err != nil {
			return err
		}
		if _, err := p.marketOfAsset(asset); err != nil {
			return err
		}
		if err := requireAmount(price); err != nil {
			return err
		}
		p.oracle.SetPrice(asset, price)
		p.log.Debug("price updated", "asset", asset.Hex(), "price", config.FormatMantissa(price))
		return nil
	})
}

// AdvanceTime moves the clock forward and returns the new time.
func (p *Protocol) AdvanceTime(ms uint64) uint64 {
	var now uint64
	_ = p.execute("advance_time", ethcommon.Address{}, logTarget{}, false, func() error {
		now = p.clock.Advance(ms)
		return nil
	})
	return now
}

func (p *Protocol) requireManager(caller ethcommon.Address) error {
	if caller != p.ctrl.Manager() {
		return ErrCallerIsNotManager
	}
	return nil
}
