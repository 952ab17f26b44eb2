package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"auctionhouse/core/types"
	"auctionhouse/native/auction"
	"auctionhouse/storage"
)

// Manager persists the auction registry and implements the engine's payment
// ledger and asset custody collaborators on top of a key-value database.
// Keys are keccak hashes of prefixed byte strings; values are RLP encoded.
// Balance mutations are serialised across all accounts: the engine locks per
// auction key, so transfers touching one account can arrive concurrently from
// distinct auctions.
type Manager struct {
	db        storage.Database
	balanceMu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	auctionPrefix = []byte("auction:")
	vaultPrefix   = []byte("auction-vault:")
	balancePrefix = []byte("balance:")
	assetPrefix   = []byte("asset:")
	eventsPrefix  = []byte("auction-events:")
)

func hashKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for _, part := range parts {
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func assetIDBytes(assetID *big.Int) []byte {
	padded := make([]byte, 32)
	if assetID != nil {
		b := assetID.Bytes()
		if len(b) > 32 {
			b = b[len(b)-32:]
		}
		copy(padded[32-len(b):], b)
	}
	return padded
}

// storedAuction mirrors auction.Auction with RLP-friendly field types.
type storedAuction struct {
	Collection            [20]byte
	AssetID               *big.Int
	Seller                [20]byte
	PaymentUnit           string
	MinPrice              *big.Int
	BidPeriodSeconds      uint64
	BidIncreasePercentage uint32
	HighestBid            *big.Int
	HighestBidder         [20]byte
	NFTRecipient          [20]byte
	AuctionEnd            uint64
	CreatedAt             uint64
}

// AuctionPut sanitises and persists an auction record under its registry key.
func (m *Manager) AuctionPut(a *auction.Auction) error {
	sanitized, err := auction.SanitizeAuction(a)
	if err != nil {
		return err
	}
	stored := &storedAuction{
		Collection:            sanitized.Collection,
		AssetID:               sanitized.AssetID,
		Seller:                sanitized.Seller,
		PaymentUnit:           sanitized.PaymentUnit,
		MinPrice:              sanitized.MinPrice,
		BidPeriodSeconds:      sanitized.BidPeriodSeconds,
		BidIncreasePercentage: sanitized.BidIncreasePercentage,
		HighestBid:            sanitized.HighestBid,
		HighestBidder:         sanitized.HighestBidder,
		NFTRecipient:          sanitized.NFTRecipient,
		AuctionEnd:            uint64(sanitized.AuctionEnd),
		CreatedAt:             uint64(sanitized.CreatedAt),
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	id := sanitized.ID()
	return m.db.Put(hashKey(auctionPrefix, id[:]), encoded)
}

// AuctionGet loads the auction record stored under the registry key.
func (m *Manager) AuctionGet(id [32]byte) (*auction.Auction, bool) {
	data, err := m.db.Get(hashKey(auctionPrefix, id[:]))
	if err != nil {
		return nil, false
	}
	stored := new(storedAuction)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false
	}
	return &auction.Auction{
		Collection:            stored.Collection,
		AssetID:               stored.AssetID,
		Seller:                stored.Seller,
		PaymentUnit:           stored.PaymentUnit,
		MinPrice:              stored.MinPrice,
		BidPeriodSeconds:      stored.BidPeriodSeconds,
		BidIncreasePercentage: stored.BidIncreasePercentage,
		HighestBid:            stored.HighestBid,
		HighestBidder:         stored.HighestBidder,
		NFTRecipient:          stored.NFTRecipient,
		AuctionEnd:            int64(stored.AuctionEnd),
		CreatedAt:             int64(stored.CreatedAt),
	}, true
}

// AuctionDelete removes the auction record.
func (m *Manager) AuctionDelete(id [32]byte) error {
	return m.db.Delete(hashKey(auctionPrefix, id[:]))
}

// AuctionVaultAddress derives the deterministic escrow address holding the
// highest bid and the custodied asset for a registry key.
func (m *Manager) AuctionVaultAddress(id [32]byte) ([20]byte, error) {
	digest := ethcrypto.Keccak256(vaultPrefix, id[:])
	var addr [20]byte
	copy(addr[:], digest[12:])
	return addr, nil
}

// --- Payment ledger ---

var errInsufficientBalance = errors.New("state: insufficient balance")

func balanceKey(addr [20]byte, unit string) []byte {
	return hashKey(balancePrefix, []byte(unit), []byte{':'}, addr[:])
}

// Balance reports the balance an address holds in the given unit. Unknown
// accounts hold zero.
func (m *Manager) Balance(addr [20]byte, unit string) (*big.Int, error) {
	normalized, err := auction.NormalizeUnit(unit)
	if err != nil {
		return nil, err
	}
	m.balanceMu.Lock()
	defer m.balanceMu.Unlock()
	return m.readBalance(addr, normalized)
}

func (m *Manager) readBalance(addr [20]byte, normalizedUnit string) (*big.Int, error) {
	data, err := m.db.Get(balanceKey(addr, normalizedUnit))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return big.NewInt(0), nil
		}
		return nil, err
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(data, balance); err != nil {
		return nil, err
	}
	return balance, nil
}

// SetBalance overwrites the balance an address holds in the given unit.
func (m *Manager) SetBalance(addr [20]byte, unit string, amount *big.Int) error {
	normalized, err := auction.NormalizeUnit(unit)
	if err != nil {
		return err
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	m.balanceMu.Lock()
	defer m.balanceMu.Unlock()
	return m.writeBalance(addr, normalized, amount)
}

func (m *Manager) writeBalance(addr [20]byte, normalizedUnit string, amount *big.Int) error {
	encoded, err := rlp.EncodeToBytes(amount)
	if err != nil {
		return err
	}
	return m.db.Put(balanceKey(addr, normalizedUnit), encoded)
}

// Transfer moves amount of the given unit between two parties. The source
// must already hold the amount. The read-modify-write runs as one critical
// section so concurrent transfers touching the same account never lose an
// update.
func (m *Manager) Transfer(from, to [20]byte, unit string, amount *big.Int) error {
	normalized, err := auction.NormalizeUnit(unit)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	m.balanceMu.Lock()
	defer m.balanceMu.Unlock()
	fromBal, err := m.readBalance(from, normalized)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	toBal, err := m.readBalance(to, normalized)
	if err != nil {
		return err
	}
	if err := m.writeBalance(from, normalized, new(big.Int).Sub(fromBal, amount)); err != nil {
		return err
	}
	return m.writeBalance(to, normalized, new(big.Int).Add(toBal, amount))
}

// --- Asset custody ---

var (
	errAssetNotFound = errors.New("state: asset not found")
	errNotAssetOwner = errors.New("state: caller is not the asset owner")
)

func assetKey(collection [20]byte, assetID *big.Int) []byte {
	return hashKey(assetPrefix, collection[:], assetIDBytes(assetID))
}

// RegisterAsset records the initial owner of an asset. Registration is
// one-shot; ownership afterwards moves only through TransferAsset.
func (m *Manager) RegisterAsset(collection [20]byte, assetID *big.Int, owner [20]byte) error {
	key := assetKey(collection, assetID)
	if ok, err := m.db.Has(key); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("state: asset already registered")
	}
	encoded, err := rlp.EncodeToBytes(owner)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// AssetOwner reports the current owner of an asset.
func (m *Manager) AssetOwner(collection [20]byte, assetID *big.Int) ([20]byte, error) {
	data, err := m.db.Get(assetKey(collection, assetID))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return [20]byte{}, errAssetNotFound
		}
		return [20]byte{}, err
	}
	var owner [20]byte
	if err := rlp.DecodeBytes(data, &owner); err != nil {
		return [20]byte{}, err
	}
	return owner, nil
}

// TransferAsset moves the asset to a new owner on instruction of the current
// owner.
func (m *Manager) TransferAsset(collection [20]byte, assetID *big.Int, from, to [20]byte) error {
	owner, err := m.AssetOwner(collection, assetID)
	if err != nil {
		return err
	}
	if owner != from {
		return errNotAssetOwner
	}
	encoded, err := rlp.EncodeToBytes(to)
	if err != nil {
		return err
	}
	return m.db.Put(assetKey(collection, assetID), encoded)
}

// --- Event history ---

// storedEvent flattens the attribute map into sorted key/value slices so the
// encoding stays deterministic.
type storedEvent struct {
	Type   string
	Keys   []string
	Values []string
}

// AppendEvent appends an event to the per-auction history.
func (m *Manager) AppendEvent(id [32]byte, evt *types.Event) error {
	if evt == nil {
		return fmt.Errorf("state: nil event")
	}
	history, err := m.loadEvents(id)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	stored := storedEvent{Type: evt.Type, Keys: keys}
	for _, k := range keys {
		stored.Values = append(stored.Values, evt.Attributes[k])
	}
	history = append(history, stored)
	encoded, err := rlp.EncodeToBytes(history)
	if err != nil {
		return err
	}
	return m.db.Put(hashKey(eventsPrefix, id[:]), encoded)
}

// Events returns the ordered event history recorded for an auction key.
func (m *Manager) Events(id [32]byte) ([]*types.Event, error) {
	history, err := m.loadEvents(id)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Event, 0, len(history))
	for _, stored := range history {
		evt := &types.Event{Type: stored.Type, Attributes: make(map[string]string, len(stored.Keys))}
		for i, k := range stored.Keys {
			if i < len(stored.Values) {
				evt.Attributes[k] = stored.Values[i]
			}
		}
		out = append(out, evt)
	}
	return out, nil
}

func (m *Manager) loadEvents(id [32]byte) ([]storedEvent, error) {
	data, err := m.db.Get(hashKey(eventsPrefix, id[:]))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var history []storedEvent
	if err := rlp.DecodeBytes(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}
