package protocol

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	nativecommon "github.com/starlay-finance/starlay-protocol-wasm-sub000/native/common"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/controller"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/lending"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/oracle"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/native/token"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/storage"
)

const snapshotVersion = 1

var (
	manifestKey   = ethcrypto.Keccak256([]byte("lending:manifest"))
	controllerKey = ethcrypto.Keccak256([]byte("lending:controller"))
	oracleKey     = ethcrypto.Keccak256([]byte("lending:oracle"))
	marketPrefix  = []byte("lending:market:")
)

func marketKey(pool ethcommon.Address) []byte {
	buf := make([]byte, len(marketPrefix)+ethcommon.AddressLength)
	copy(buf, marketPrefix)
	copy(buf[len(marketPrefix):], pool.Bytes())
	return ethcrypto.Keccak256(buf)
}

type manifestRecord struct {
	Version uint64
	Clock   uint64
	Pools   []ethcommon.Address
	Paused  []string
}

type rateModelRecord struct {
	BaseRatePerMsec       *big.Int
	MultiplierPerMsec     *big.Int
	JumpMultiplierPerMsec *big.Int
	Kink                  *big.Int
}

type marketRecord struct {
	Symbol    string
	Pool      *lending.PoolRecord
	Asset     *token.LedgerRecord
	Tokens    *token.LedgerRecord
	RateModel rateModelRecord
}

// Save writes a snapshot of the whole deployment to db.
func (p *Protocol) Save(db storage.Database) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveLocked(db)
}

// The whole snapshot is committed as one batch, so a failed save leaves the
// previous snapshot intact.
func (p *Protocol) saveLocked(db storage.Database) error {
	manifest := manifestRecord{
		Version: snapshotVersion,
		Clock:   p.clock.Now(),
		Paused:  p.pauses.Modules(),
	}
	var batch snapshotBatch
	for _, m := range p.markets {
		record := marketRecord{
			Symbol: m.symbol,
			Pool:   m.pool.Export(),
			Asset:  m.asset.Export(),
			Tokens: m.tokens.Export(),
			RateModel: rateModelRecord{
				BaseRatePerMsec:       m.model.BaseRatePerMsec.ToBig(),
				MultiplierPerMsec:     m.model.MultiplierPerMsec.ToBig(),
				JumpMultiplierPerMsec: m.model.JumpMultiplierPerMsec.ToBig(),
				Kink:                  m.model.Kink.ToBig(),
			},
		}
		if err := batch.add(marketKey(m.pool.Address()), &record); err != nil {
			return fmt.Errorf("market %s: %w", m.symbol, err)
		}
		manifest.Pools = append(manifest.Pools, m.pool.Address())
	}
	if err := batch.add(controllerKey, p.ctrl.Export()); err != nil {
		return fmt.Errorf("controller: %w", err)
	}
	if err := batch.add(oracleKey, p.oracle.Export()); err != nil {
		return fmt.Errorf("oracle: %w", err)
	}
	if err := batch.add(manifestKey, &manifest); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return db.WriteBatch(batch)
}

// Load rebuilds a deployment from a snapshot written by Save. It returns
// storage.ErrNotFound when db holds no snapshot. The clock in opts, if any,
// is moved to the saved time unless it is already ahead of it.
func Load(db storage.Database, opts Options) (*Protocol, error) {
	var manifest manifestRecord
	if err := get(db, manifestKey, &manifest); err != nil {
		return nil, err
	}
	if manifest.Version != snapshotVersion {
		return nil, fmt.Errorf("protocol: unsupported snapshot version %d", manifest.Version)
	}
	p := newProtocol(opts)
	if p.clock.Now() < manifest.Clock {
		p.clock.Set(manifest.Clock)
	}
	for _, module := range manifest.Paused {
		p.pauses.Set(module, true)
	}

	var prices oracle.Record
	if err := get(db, oracleKey, &prices); err != nil {
		return nil, fmt.Errorf("protocol: oracle: %w", err)
	}
	p.oracle = oracle.NewSimplePriceOracle()
	p.oracle.Import(&prices)

	refs := make(map[ethcommon.Address]nativecommon.PoolRef, len(manifest.Pools))
	for _, addr := range manifest.Pools {
		m, err := loadMarket(db, p, addr)
		if err != nil {
			return nil, fmt.Errorf("protocol: market %s: %w", addr.Hex(), err)
		}
		p.add(m)
		refs[addr] = m.pool
	}

	var ctrlRecord controller.Record
	if err := get(db, controllerKey, &ctrlRecord); err != nil {
		return nil, fmt.Errorf("protocol: controller: %w", err)
	}
	ctrl, err := controller.Restore(&ctrlRecord, p.oracle, refs)
	if err != nil {
		return nil, err
	}
	p.ctrl = ctrl
	p.ctrl.SetEmitter(p.buffer)
	for _, m := range p.markets {
		if err := m.pool.SetController(m.pool.Manager(), p.ctrl); err != nil {
			return nil, fmt.Errorf("protocol: wire %s: %w", m.symbol, err)
		}
	}
	p.buffer.Discard()
	p.refreshGauges()
	return p, nil
}

func loadMarket(db storage.Database, p *Protocol, addr ethcommon.Address) (*market, error) {
	var record marketRecord
	if err := get(db, marketKey(addr), &record); err != nil {
		return nil, err
	}
	if record.Pool == nil || record.Asset == nil || record.Tokens == nil {
		return nil, errors.New("incomplete record")
	}
	asset, err := token.ImportLedger(record.Asset)
	if err != nil {
		return nil, err
	}
	tokens, err := token.ImportLedger(record.Tokens)
	if err != nil {
		return nil, err
	}
	model, err := record.RateModel.model()
	if err != nil {
		return nil, err
	}
	m := &market{symbol: record.Symbol, asset: asset, tokens: tokens, model: model}
	pool, err := lending.RestorePool(record.Pool, m.deps(p))
	if err != nil {
		return nil, err
	}
	m.pool = pool
	return m, nil
}

func (r rateModelRecord) model() (*lending.JumpRateModel, error) {
	fields := []*big.Int{r.BaseRatePerMsec, r.MultiplierPerMsec, r.JumpMultiplierPerMsec, r.Kink}
	values := make([]*uint256.Int, len(fields))
	for i, field := range fields {
		if field == nil {
			values[i] = new(uint256.Int)
			continue
		}
		v, overflow := uint256.FromBig(field)
		if overflow {
			return nil, fmt.Errorf("rate model value exceeds 256 bits")
		}
		values[i] = v
	}
	return &lending.JumpRateModel{
		BaseRatePerMsec:       values[0],
		MultiplierPerMsec:     values[1],
		JumpMultiplierPerMsec: values[2],
		Kink:                  values[3],
	}, nil
}

type snapshotBatch []storage.Entry

func (b *snapshotBatch) add(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	*b = append(*b, storage.Entry{Key: key, Value: encoded})
	return nil
}

func get(db storage.Database, key []byte, value interface{}) error {
	data, err := db.Get(key)
	if err != nil {
		return err
	}
	return rlp.DecodeBytes(data, value)
}
