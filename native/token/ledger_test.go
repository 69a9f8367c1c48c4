package token

import (
	"bytes"
	"errors"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	alice = ethcommon.HexToAddress("0xa11ce")
	bob   = ethcommon.HexToAddress("0xb0b")
	pool  = ethcommon.HexToAddress("0x9001")
)

func TestTransferFromConsumesAllowance(t *testing.T) {
	l := NewLedger("USDC", 6)
	if err := l.MintTo(alice, uint256.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.TransferFrom(pool, alice, pool, uint256.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
	if err := l.Approve(alice, pool, uint256.NewInt(30)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := l.TransferFrom(pool, alice, pool, uint256.NewInt(10)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if got := l.Allowance(alice, pool).Uint64(); got != 20 {
		t.Fatalf("expected allowance 20, got %d", got)
	}
	if l.BalanceOf(pool).Uint64() != 10 || l.BalanceOf(alice).Uint64() != 90 {
		t.Fatalf("unexpected balances")
	}
	if err := l.TransferFrom(pool, alice, pool, uint256.NewInt(25)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("expected allowance error, got %v", err)
	}
}

func TestUnlimitedAllowanceIsNotDecremented(t *testing.T) {
	l := NewLedger("DAI", 18)
	_ = l.MintTo(alice, uint256.NewInt(50))
	_ = l.Approve(alice, pool, new(uint256.Int).SetAllOne())
	if err := l.TransferFrom(pool, alice, bob, uint256.NewInt(50)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	if !l.Allowance(alice, pool).Eq(new(uint256.Int).SetAllOne()) {
		t.Fatalf("unlimited allowance must stay unlimited")
	}
}

func TestBurnAndSupply(t *testing.T) {
	l := NewLedger("sDAI", 8)
	_ = l.MintTo(alice, uint256.NewInt(40))
	_ = l.MintTo(bob, uint256.NewInt(2))
	if err := l.BurnFrom(alice, uint256.NewInt(41)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if err := l.BurnFrom(alice, uint256.NewInt(40)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if l.TotalSupply().Uint64() != 2 {
		t.Fatalf("unexpected supply %s", l.TotalSupply().Dec())
	}
	if holders := l.Holders(); len(holders) != 1 || holders[0] != bob {
		t.Fatalf("unexpected holders %v", holders)
	}
	if err := l.MintTo(ethcommon.Address{}, uint256.NewInt(1)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected zero address error, got %v", err)
	}
}

func TestCheckpointRestores(t *testing.T) {
	l := NewLedger("DAI", 18)
	_ = l.MintTo(alice, uint256.NewInt(10))
	restore := l.Checkpoint()
	_ = l.Transfer(alice, bob, uint256.NewInt(4))
	_ = l.Approve(alice, pool, uint256.NewInt(9))
	_ = l.MintTo(bob, uint256.NewInt(3))
	restore()
	if l.BalanceOf(alice).Uint64() != 10 || !l.BalanceOf(bob).IsZero() {
		t.Fatalf("balances not restored")
	}
	if !l.Allowance(alice, pool).IsZero() || l.TotalSupply().Uint64() != 10 {
		t.Fatalf("allowance or supply not restored")
	}
}

func TestExportImportIsDeterministic(t *testing.T) {
	l := NewLedger("DAI", 18)
	_ = l.MintTo(bob, uint256.NewInt(7))
	_ = l.MintTo(alice, uint256.NewInt(5))
	_ = l.Approve(alice, pool, uint256.NewInt(3))

	first, err := rlp.EncodeToBytes(l.Export())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded LedgerRecord
	if err := rlp.DecodeBytes(first, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	restored, err := ImportLedger(&decoded)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	second, err := rlp.EncodeToBytes(restored.Export())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("encoding changed after round trip")
	}
	if restored.Allowance(alice, pool).Uint64() != 3 || restored.Decimals() != 18 {
		t.Fatalf("unexpected restored ledger")
	}
}
