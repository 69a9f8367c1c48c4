package events

import (
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

func TestBufferFlushesOnlyOnCommit(t *testing.T) {
	pool := ethcommon.HexToAddress("0xaa")
	minter := ethcommon.HexToAddress("0xbb")
	journal := NewJournal(2)

	var buf Buffer
	buf.Emit(Mint{Pool: pool, Minter: minter, Amount: uint256.NewInt(10), Tokens: uint256.NewInt(500)})
	buf.Discard()
	if flushed := buf.Flush(7, journal); len(flushed) != 0 {
		t.Fatalf("discarded events must not flush, got %d", len(flushed))
	}

	buf.Emit(Mint{Pool: pool, Minter: minter, Amount: uint256.NewInt(10), Tokens: uint256.NewInt(500)})
	flushed := buf.Flush(9, journal)
	if len(flushed) != 1 {
		t.Fatalf("expected one event, got %d", len(flushed))
	}
	evt := flushed[0]
	if evt.Type != TypeLendingMint || evt.Timestamp != 9 || evt.ID == "" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if evt.Attributes["tokens"] != "500" || evt.Attributes["minter"] != minter.Hex() {
		t.Fatalf("unexpected attributes %+v", evt.Attributes)
	}
}

func TestJournalKeepsNewest(t *testing.T) {
	journal := NewJournal(2)
	var buf Buffer
	for i := 0; i < 3; i++ {
		buf.Emit(ParameterUpdated{Controller: true, Name: "closeFactor", Value: uint256.NewInt(uint64(i)).Dec()})
	}
	buf.Flush(1, journal)
	recent := journal.Recent(0)
	if len(recent) != 2 {
		t.Fatalf("expected capacity-bounded journal, got %d", len(recent))
	}
	if recent[0].Attributes["value"] != "1" || recent[1].Attributes["value"] != "2" {
		t.Fatalf("unexpected order %+v", recent)
	}
	if got := journal.Recent(1); len(got) != 1 || got[0].Attributes["value"] != "2" {
		t.Fatalf("expected newest event, got %+v", got)
	}
	if recent[0].Type != TypeControllerParameter {
		t.Fatalf("unexpected type %s", recent[0].Type)
	}
}
