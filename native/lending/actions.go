package lending

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/events"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/fixedpoint"
)

// Mint supplies amount of underlying from minter and credits the minted
// claim tokens, which are returned.
func (p *Pool) Mint(minter ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := p.AccrueInterest(); err != nil {
		return nil, err
	}
	return p.mintFresh(minter, amount)
}

func (p *Pool) mintFresh(minter ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := p.requireController(); err != nil {
		return nil, err
	}
	if err := p.controller.MintAllowed(p.address, minter, amount); err != nil {
		return nil, err
	}
	if err := p.ensureFresh(); err != nil {
		return nil, err
	}
	rate, err := p.ExchangeRateStored()
	if err != nil {
		return nil, err
	}
	mintTokens, err := fixedpoint.DivScalarByExpTruncate(amount, fixedpoint.NewExp(rate))
	if err != nil {
		return nil, err
	}
	if err := p.asset.TransferFrom(p.address, minter, p.address, amount); err != nil {
		return nil, fmt.Errorf("lending: transfer in: %w", err)
	}
	if err := p.tokens.MintTo(minter, mintTokens); err != nil {
		return nil, fmt.Errorf("lending: mint claim tokens: %w", err)
	}
	if err := p.controller.MintVerify(p.address, minter, amount, mintTokens); err != nil {
		return nil, err
	}
	p.emit(events.Mint{Pool: p.address, Minter: minter, Amount: amount.Clone(), Tokens: mintTokens.Clone()})
	p.emit(events.Transfer{Pool: p.address, From: p.address, To: minter, Amount: mintTokens.Clone()})
	return mintTokens, nil
}

// Redeem burns redeemTokens claim tokens of redeemer and pays out the
// corresponding underlying, which is returned.
func (p *Pool) Redeem(redeemer ethcommon.Address, redeemTokens *uint256.Int) (*uint256.Int, error) {
	if err := p.AccrueInterest(); err != nil {
		return nil, err
	}
	amount, _, err := p.redeemFresh(redeemer, redeemTokens, new(uint256.Int))
	return amount, err
}

// RedeemUnderlying pays out amount of underlying to redeemer, burning the
// claim tokens it is worth. The burnt token count is returned.
func (p *Pool) RedeemUnderlying(redeemer ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := p.AccrueInterest(); err != nil {
		return nil, err
	}
	_, tokens, err := p.redeemFresh(redeemer, new(uint256.Int), amount)
	return tokens, err
}

func (p *Pool) redeemFresh(redeemer ethcommon.Address, tokensIn, amountIn *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	tokensIn, amountIn = zeroIfNil(tokensIn), zeroIfNil(amountIn)
	if tokensIn.IsZero() == amountIn.IsZero() {
		return nil, nil, ErrOnlyEitherRedeemTokensOrRedeemAmountIsZero
	}
	if err := p.requireController(); err != nil {
		return nil, nil, err
	}
	rate, err := p.ExchangeRateStored()
	if err != nil {
		return nil, nil, err
	}
	var redeemTokens, redeemAmount *uint256.Int
	if !tokensIn.IsZero() {
		redeemTokens = tokensIn.Clone()
		if redeemAmount, err = fixedpoint.NewExp(rate).MulScalarTruncate(tokensIn); err != nil {
			return nil, nil, err
		}
	} else {
		if redeemTokens, err = fixedpoint.DivScalarByExpTruncate(amountIn, fixedpoint.NewExp(rate)); err != nil {
			return nil, nil, err
		}
		redeemAmount = amountIn.Clone()
	}

	attrs, err := p.attributesFor(redeemer)
	if err != nil {
		return nil, nil, err
	}
	if err := p.controller.RedeemAllowed(p.address, redeemer, redeemTokens, attrs); err != nil {
		return nil, nil, err
	}
	if err := p.ensureFresh(); err != nil {
		return nil, nil, err
	}
	if p.GetCash().Lt(redeemAmount) {
		return nil, nil, ErrRedeemTransferOutNotPossible
	}
	if p.tokens.BalanceOf(redeemer).Lt(redeemTokens) {
		return nil, nil, fmt.Errorf("lending: redeem %s tokens: %w", redeemTokens.Dec(), ErrInsufficientTokens)
	}
	if err := p.controller.RedeemVerify(p.address, redeemer, redeemAmount, redeemTokens); err != nil {
		return nil, nil, err
	}
	if err := p.tokens.BurnFrom(redeemer, redeemTokens); err != nil {
		return nil, nil, fmt.Errorf("lending: burn claim tokens: %w", err)
	}
	if err := p.asset.Transfer(p.address, redeemer, redeemAmount); err != nil {
		return nil, nil, fmt.Errorf("lending: transfer out: %w", err)
	}
	p.emit(events.Transfer{Pool: p.address, From: redeemer, To: p.address, Amount: redeemTokens.Clone()})
	p.emit(events.Redeem{Pool: p.address, Redeemer: redeemer, Amount: redeemAmount.Clone(), Tokens: redeemTokens.Clone()})
	return redeemAmount, redeemTokens, nil
}

// Borrow lends amount of underlying to borrower.
func (p *Pool) Borrow(borrower ethcommon.Address, amount *uint256.Int) error {
	if err := p.AccrueInterest(); err != nil {
		return err
	}
	return p.borrowFresh(borrower, amount)
}

func (p *Pool) borrowFresh(borrower ethcommon.Address, amount *uint256.Int) error {
	if err := p.requireController(); err != nil {
		return err
	}
	attrs, err := p.attributesFor(borrower)
	if err != nil {
		return err
	}
	if err := p.controller.BorrowAllowed(p.address, borrower, amount, attrs); err != nil {
		return err
	}
	if err := p.ensureFresh(); err != nil {
		return err
	}
	if p.GetCash().Lt(amount) {
		return ErrBorrowCashNotAvailable
	}
	accountBorrowsPrev, err := p.BorrowBalanceStored(borrower)
	if err != nil {
		return err
	}
	accountBorrowsNew, overflow := new(uint256.Int).AddOverflow(accountBorrowsPrev, amount)
	if overflow {
		return fixedpoint.ErrAdditionOverflow
	}
	totalBorrowsNew, overflow := new(uint256.Int).AddOverflow(p.market.TotalBorrows, amount)
	if overflow {
		return fixedpoint.ErrAdditionOverflow
	}
	if err := p.asset.Transfer(p.address, borrower, amount); err != nil {
		return fmt.Errorf("lending: transfer out: %w", err)
	}
	p.borrows[borrower] = &BorrowSnapshot{Principal: accountBorrowsNew, InterestIndex: p.market.BorrowIndex.Clone()}
	p.market.TotalBorrows = totalBorrowsNew
	if err := p.controller.BorrowVerify(p.address, borrower, amount); err != nil {
		return err
	}
	p.emit(events.Borrow{
		Pool:           p.address,
		Borrower:       borrower,
		Amount:         amount.Clone(),
		AccountBorrows: accountBorrowsNew.Clone(),
		TotalBorrows:   totalBorrowsNew.Clone(),
	})
	return nil
}

// RepayBorrow repays the caller's own debt. An amount of 2^256-1 repays the
// full balance. The amount actually repaid is returned.
func (p *Pool) RepayBorrow(payer ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	return p.RepayBorrowBehalf(payer, payer, amount)
}

// RepayBorrowBehalf repays the debt of borrower with funds from payer.
func (p *Pool) RepayBorrowBehalf(payer, borrower ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := p.AccrueInterest(); err != nil {
		return nil, err
	}
	return p.repayBorrowFresh(payer, borrower, amount)
}

func (p *Pool) repayBorrowFresh(payer, borrower ethcommon.Address, amount *uint256.Int) (*uint256.Int, error) {
	if err := p.requireController(); err != nil {
		return nil, err
	}
	if err := p.controller.RepayBorrowAllowed(p.address, payer, borrower, amount); err != nil {
		return nil, err
	}
	if err := p.ensureFresh(); err != nil {
		return nil, err
	}
	accountBorrowsPrev, err := p.BorrowBalanceStored(borrower)
	if err != nil {
		return nil, err
	}
	repayAmount := amount.Clone()
	if amount.Eq(maxUint256()) {
		repayAmount = accountBorrowsPrev.Clone()
	}
	if repayAmount.Gt(accountBorrowsPrev) {
		return nil, ErrRepayAmountExceedsBorrow
	}
	if err := p.asset.TransferFrom(p.address, payer, p.address, repayAmount); err != nil {
		return nil, fmt.Errorf("lending: transfer in: %w", err)
	}
	accountBorrowsNew := new(uint256.Int).Sub(accountBorrowsPrev, repayAmount)
	totalBorrowsNew := new(uint256.Int)
	if p.market.TotalBorrows.Gt(repayAmount) {
		totalBorrowsNew.Sub(p.market.TotalBorrows, repayAmount)
	}
	p.borrows[borrower] = &BorrowSnapshot{Principal: accountBorrowsNew, InterestIndex: p.market.BorrowIndex.Clone()}
	p.market.TotalBorrows = totalBorrowsNew
	if err := p.controller.RepayBorrowVerify(p.address, payer, borrower, repayAmount); err != nil {
		return nil, err
	}
	p.emit(events.RepayBorrow{
		Pool:           p.address,
		Payer:          payer,
		Borrower:       borrower,
		Amount:         repayAmount.Clone(),
		AccountBorrows: accountBorrowsNew.Clone(),
		TotalBorrows:   totalBorrowsNew.Clone(),
	})
	return repayAmount, nil
}

// Transfer moves claim tokens owned by src.
func (p *Pool) Transfer(src, dst ethcommon.Address, tokens *uint256.Int) error {
	return p.transferTokens(src, src, dst, tokens)
}

// TransferFrom moves claim tokens of src on behalf of spender.
func (p *Pool) TransferFrom(spender, src, dst ethcommon.Address, tokens *uint256.Int) error {
	return p.transferTokens(spender, src, dst, tokens)
}

// Approve lets spender move up to amount of owner's claim tokens.
func (p *Pool) Approve(owner, spender ethcommon.Address, amount *uint256.Int) error {
	return p.tokens.Approve(owner, spender, amount)
}

func (p *Pool) transferTokens(spender, src, dst ethcommon.Address, tokens *uint256.Int) error {
	if src == dst {
		return ErrTransferToSelf
	}
	if err := p.requireController(); err != nil {
		return err
	}
	attrs, err := p.attributesFor(src)
	if err != nil {
		return err
	}
	if err := p.controller.TransferAllowed(p.address, src, dst, tokens, attrs); err != nil {
		return err
	}
	if spender == src {
		err = p.tokens.Transfer(src, dst, tokens)
	} else {
		err = p.tokens.TransferFrom(spender, src, dst, tokens)
	}
	if err != nil {
		return fmt.Errorf("lending: transfer claim tokens: %w", err)
	}
	if err := p.controller.TransferVerify(p.address, src, dst, tokens); err != nil {
		return err
	}
	p.emit(events.Transfer{Pool: p.address, From: src, To: dst, Amount: tokens.Clone()})
	return nil
}
