package auction

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"auctionhouse/core/events"
	"auctionhouse/core/types"
	"auctionhouse/observability/metrics"
)

var (
	errNilState   = errors.New("auction engine: state not configured")
	errNilLedger  = errors.New("auction engine: payment ledger not configured")
	errNilCustody = errors.New("auction engine: asset custody not configured")
)

// registryState persists auction records and derives the per-auction vault
// address that escrows the highest bid and custodies the asset.
type registryState interface {
	AuctionPut(*Auction) error
	AuctionGet(id [32]byte) (*Auction, bool)
	AuctionDelete(id [32]byte) error
	AuctionVaultAddress(id [32]byte) ([20]byte, error)
}

// PaymentLedger is the external payment primitive: it moves a quantity of a
// fungible unit between two parties and reports balances. The empty unit is
// native value.
type PaymentLedger interface {
	Transfer(from, to [20]byte, unit string, amount *big.Int) error
	Balance(addr [20]byte, unit string) (*big.Int, error)
}

// AssetCustody is the external custody primitive: it moves a uniquely
// identified asset between owners on instruction of the current owner and
// reports current ownership.
type AssetCustody interface {
	AssetOwner(collection [20]byte, assetID *big.Int) ([20]byte, error)
	TransferAsset(collection [20]byte, assetID *big.Int, from, to [20]byte) error
}

// Engine drives the auction registry state machine. All mutating operations
// on one key run under a per-key lock; operations on distinct keys never
// block each other. External ledger and custody calls are synchronous, and a
// failing call aborts the whole transition with compensating transfers so no
// partial state survives.
type Engine struct {
	state     registryState
	ledger    PaymentLedger
	custody   AssetCustody
	emitter   events.Emitter
	nowFn     func() int64
	extWindow uint64
	locks     lockTable
}

// NewEngine creates an auction engine with a no-op emitter. Callers override
// collaborators via the setters before use.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the registry backend used by the engine.
func (e *Engine) SetState(state registryState) { e.state = state }

// SetLedger configures the payment primitive used to escrow and refund bids.
func (e *Engine) SetLedger(ledger PaymentLedger) { e.ledger = ledger }

// SetCustody configures the asset custody primitive.
func (e *Engine) SetCustody(custody AssetCustody) { e.custody = custody }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetExtensionWindow sets the anti-snipe window in seconds: a qualifying bid
// landing within this many seconds of the running auction end pushes the end
// to now + bid period. Zero (the default) means the window spans the whole
// bid period, so every qualifying bid in the timed phase extends the clock.
func (e *Engine) SetExtensionWindow(seconds uint64) { e.extWindow = seconds }

func (e *Engine) emit(event *types.Event, id [32]byte) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(auctionEvent{id: id, evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) collaborators() error {
	switch {
	case e == nil || e.state == nil:
		return errNilState
	case e.ledger == nil:
		return errNilLedger
	case e.custody == nil:
		return errNilCustody
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// CreateAuction lists an asset for sale and takes custody of it. The caller
// must be the current owner of the asset; a key may carry at most one live
// listing.
func (e *Engine) CreateAuction(collection [20]byte, assetID *big.Int, seller [20]byte, paymentUnit string, minPrice *big.Int, bidPeriodSeconds uint64, bidIncreasePercentage uint32) (*Auction, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	unit, err := NormalizeUnit(paymentUnit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	price := cloneBigInt(minPrice)
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: minimum price must be positive", ErrInvalidState)
	}
	if bidPeriodSeconds == 0 {
		return nil, fmt.Errorf("%w: bid period must be positive", ErrInvalidState)
	}
	if assetID == nil || assetID.Sign() < 0 {
		return nil, fmt.Errorf("%w: asset id must be non-negative", ErrInvalidState)
	}

	id := AuctionID(collection, assetID)
	unlock := e.locks.lock(id)
	defer unlock()

	if _, ok := e.state.AuctionGet(id); ok {
		return nil, fmt.Errorf("%w: asset already listed", ErrInvalidState)
	}
	owner, err := e.custody.AssetOwner(collection, assetID)
	if err != nil {
		return nil, err
	}
	if owner != seller {
		return nil, fmt.Errorf("%w: seller does not own the asset", ErrUnauthorized)
	}
	vault, err := e.state.AuctionVaultAddress(id)
	if err != nil {
		return nil, err
	}

	auc := &Auction{
		Collection:            collection,
		AssetID:               new(big.Int).Set(assetID),
		Seller:                seller,
		PaymentUnit:           unit,
		MinPrice:              price,
		BidPeriodSeconds:      bidPeriodSeconds,
		BidIncreasePercentage: bidIncreasePercentage,
		HighestBid:            big.NewInt(0),
		CreatedAt:             e.now(),
	}
	if err := e.state.AuctionPut(auc); err != nil {
		return nil, err
	}
	if err := e.custody.TransferAsset(collection, assetID, seller, vault); err != nil {
		_ = e.state.AuctionDelete(id)
		return nil, err
	}
	metrics.Auction().AuctionCreated(unitLabel(unit))
	e.emit(NewCreatedEvent(auc), id)
	return auc.Clone(), nil
}

// paymentAmount enforces the single-payment-channel rule and returns the bid
// amount carried on the accepted channel.
func paymentAmount(auctionUnit, bidUnit string, tokenAmount, nativeValue *big.Int) (*big.Int, error) {
	unit, err := NormalizeUnit(bidUnit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPaymentMismatch, err)
	}
	token := cloneBigInt(tokenAmount)
	native := cloneBigInt(nativeValue)
	if token.Sign() < 0 || native.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrPaymentMismatch)
	}
	if auctionUnit == UnitNative {
		if unit != UnitNative || token.Sign() != 0 || native.Sign() == 0 {
			return nil, ErrPaymentMismatch
		}
		return native, nil
	}
	if unit != auctionUnit || token.Sign() == 0 || native.Sign() != 0 {
		return nil, ErrPaymentMismatch
	}
	return token, nil
}

// MakeBid admits a bid on a live listing. The previous highest bid, if any,
// is refunded in full; the new amount is escrowed with the vault. The first
// bid meeting the floor starts the clock; a qualifying bid inside the
// extension window of a running clock pushes the end forward. An optional
// recipient redirects the asset on settlement.
func (e *Engine) MakeBid(collection [20]byte, assetID *big.Int, bidder [20]byte, paymentUnit string, tokenAmount, nativeValue *big.Int, recipient *[20]byte) (*Auction, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	id := AuctionID(collection, assetID)
	unlock := e.locks.lock(id)
	defer unlock()

	auc, ok := e.state.AuctionGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	if bidder == auc.Seller {
		return nil, fmt.Errorf("%w: owner cannot bid on own asset", ErrUnauthorized)
	}
	now := e.now()
	if auc.Started() && now >= auc.AuctionEnd {
		return nil, ErrAuctionExpired
	}
	amount, err := paymentAmount(auc.PaymentUnit, paymentUnit, tokenAmount, nativeValue)
	if err != nil {
		return nil, err
	}
	if auc.HasBid() {
		if amount.Cmp(MinNextBid(auc.HighestBid, auc.BidIncreasePercentage)) < 0 {
			return nil, ErrBidTooLow
		}
	} else if amount.Sign() <= 0 {
		return nil, ErrBidTooLow
	}

	vault, err := e.state.AuctionVaultAddress(id)
	if err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(bidder, vault, auc.PaymentUnit, amount); err != nil {
		return nil, err
	}
	prevBid := cloneBigInt(auc.HighestBid)
	prevBidder := auc.HighestBidder
	if prevBid.Sign() > 0 {
		if err := e.ledger.Transfer(vault, prevBidder, auc.PaymentUnit, prevBid); err != nil {
			// Undo the freshly escrowed amount so the failed transition
			// leaves no partial state.
			_ = e.ledger.Transfer(vault, bidder, auc.PaymentUnit, amount)
			return nil, err
		}
		metrics.Auction().RefundIssued(unitLabel(auc.PaymentUnit))
	}

	auc.HighestBid = amount
	auc.HighestBidder = bidder
	if recipient != nil && *recipient != ([20]byte{}) {
		auc.NFTRecipient = *recipient
	} else {
		auc.NFTRecipient = bidder
	}

	started := false
	extended := false
	if !auc.Started() {
		if amount.Cmp(auc.MinPrice) >= 0 {
			auc.AuctionEnd = now + int64(auc.BidPeriodSeconds)
			started = true
		}
	} else {
		window := e.extWindow
		if window == 0 || window > auc.BidPeriodSeconds {
			window = auc.BidPeriodSeconds
		}
		if auc.AuctionEnd-now <= int64(window) {
			if end := now + int64(auc.BidPeriodSeconds); end > auc.AuctionEnd {
				auc.AuctionEnd = end
				extended = true
			}
		}
	}

	if err := e.state.AuctionPut(auc); err != nil {
		// Undo both ledger movements so the stored record keeps matching
		// the escrowed funds.
		_ = e.ledger.Transfer(vault, bidder, auc.PaymentUnit, amount)
		if prevBid.Sign() > 0 {
			_ = e.ledger.Transfer(prevBidder, vault, auc.PaymentUnit, prevBid)
		}
		return nil, err
	}
	metrics.Auction().BidAccepted(unitLabel(auc.PaymentUnit))
	e.emit(NewBidAcceptedEvent(auc, now), id)
	if started {
		e.emit(NewStartedEvent(auc), id)
	}
	if extended {
		e.emit(NewExtendedEvent(auc), id)
	}
	return auc.Clone(), nil
}

// WithdrawBid refunds the escrowed underbid to the highest bidder and clears
// the bid fields. It is the sole escape hatch for a bidder and closes once
// the floor has been met and the clock is running.
func (e *Engine) WithdrawBid(collection [20]byte, assetID *big.Int, caller [20]byte) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	id := AuctionID(collection, assetID)
	unlock := e.locks.lock(id)
	defer unlock()

	auc, ok := e.state.AuctionGet(id)
	if !ok {
		return ErrNotFound
	}
	if auc.Started() {
		return ErrActiveAuction
	}
	if !auc.HasBid() || caller != auc.HighestBidder {
		return fmt.Errorf("%w: cannot withdraw funds", ErrUnauthorized)
	}
	vault, err := e.state.AuctionVaultAddress(id)
	if err != nil {
		return err
	}
	amount := cloneBigInt(auc.HighestBid)
	if err := e.ledger.Transfer(vault, caller, auc.PaymentUnit, amount); err != nil {
		return err
	}
	withdrawn := auc.HighestBidder
	auc.HighestBid = big.NewInt(0)
	auc.HighestBidder = [20]byte{}
	auc.NFTRecipient = [20]byte{}
	if err := e.state.AuctionPut(auc); err != nil {
		return err
	}
	metrics.Auction().RefundIssued(unitLabel(auc.PaymentUnit))
	e.emit(NewBidWithdrawnEvent(auc, withdrawn, amount.String()), id)
	return nil
}

// UpdateMinimumPrice lets the seller adjust the floor while the clock is not
// running. Lowering the floor to or beneath an existing underbid starts the
// timed phase immediately.
func (e *Engine) UpdateMinimumPrice(collection [20]byte, assetID *big.Int, caller [20]byte, newMinPrice *big.Int) (*Auction, error) {
	if err := e.collaborators(); err != nil {
		return nil, err
	}
	price := cloneBigInt(newMinPrice)
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("%w: minimum price must be positive", ErrInvalidState)
	}
	id := AuctionID(collection, assetID)
	unlock := e.locks.lock(id)
	defer unlock()

	auc, ok := e.state.AuctionGet(id)
	if !ok {
		return nil, ErrNotFound
	}
	if caller != auc.Seller {
		return nil, fmt.Errorf("%w: only the seller can update the price", ErrUnauthorized)
	}
	if auc.Started() {
		return nil, ErrActiveAuction
	}
	auc.MinPrice = price
	started := false
	if auc.HasBid() && auc.HighestBid.Cmp(price) >= 0 {
		auc.AuctionEnd = e.now() + int64(auc.BidPeriodSeconds)
		started = true
	}
	if err := e.state.AuctionPut(auc); err != nil {
		return nil, err
	}
	e.emit(NewPriceUpdatedEvent(auc), id)
	if started {
		e.emit(NewStartedEvent(auc), id)
	}
	return auc.Clone(), nil
}

// WithdrawNFT returns the asset to the seller and removes the listing. It is
// only available while no bid is escrowed.
func (e *Engine) WithdrawNFT(collection [20]byte, assetID *big.Int, caller [20]byte) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	id := AuctionID(collection, assetID)
	unlock := e.locks.lock(id)
	defer unlock()

	auc, ok := e.state.AuctionGet(id)
	if !ok {
		return ErrNotFound
	}
	if caller != auc.Seller {
		return fmt.Errorf("%w: only the seller can withdraw the asset", ErrUnauthorized)
	}
	if auc.HasBid() {
		return ErrActiveBid
	}
	vault, err := e.state.AuctionVaultAddress(id)
	if err != nil {
		return err
	}
	if err := e.custody.TransferAsset(collection, assetID, vault, auc.Seller); err != nil {
		return err
	}
	if err := e.state.AuctionDelete(id); err != nil {
		return err
	}
	metrics.Auction().AuctionCancelled(unitLabel(auc.PaymentUnit))
	e.emit(NewCancelledEvent(auc), id)
	return nil
}

// SettleAuction finalises an ended auction: escrowed funds go to the seller,
// the asset goes to the designated recipient, and the record is removed.
// Anyone may invoke settlement once the clock has elapsed; re-invocation on a
// settled key fails because the record is gone.
func (e *Engine) SettleAuction(collection [20]byte, assetID *big.Int, caller [20]byte) error {
	if err := e.collaborators(); err != nil {
		return err
	}
	id := AuctionID(collection, assetID)
	unlock := e.locks.lock(id)
	defer unlock()

	auc, ok := e.state.AuctionGet(id)
	if !ok {
		return ErrNotFound
	}
	if !auc.Started() {
		return fmt.Errorf("%w: auction has not started", ErrInvalidState)
	}
	if e.now() < auc.AuctionEnd {
		return fmt.Errorf("%w: auction has not ended", ErrInvalidState)
	}
	vault, err := e.state.AuctionVaultAddress(id)
	if err != nil {
		return err
	}
	if auc.HasBid() {
		if err := e.ledger.Transfer(vault, auc.Seller, auc.PaymentUnit, auc.HighestBid); err != nil {
			return err
		}
	}
	recipient := auc.NFTRecipient
	if recipient == ([20]byte{}) {
		recipient = auc.Seller
	}
	if err := e.custody.TransferAsset(collection, assetID, vault, recipient); err != nil {
		// Return the payout to escrow so the settlement can be retried.
		if auc.HasBid() {
			_ = e.ledger.Transfer(auc.Seller, vault, auc.PaymentUnit, auc.HighestBid)
		}
		return err
	}
	if err := e.state.AuctionDelete(id); err != nil {
		return err
	}
	metrics.Auction().AuctionSettled(unitLabel(auc.PaymentUnit))
	e.emit(NewSettledEvent(auc), id)
	return nil
}

// GetAuction returns a read-only snapshot of the listing. It never mutates
// state.
func (e *Engine) GetAuction(collection [20]byte, assetID *big.Int) (*Auction, bool) {
	if e == nil || e.state == nil {
		return nil, false
	}
	id := AuctionID(collection, assetID)
	unlock := e.locks.lock(id)
	defer unlock()
	auc, ok := e.state.AuctionGet(id)
	if !ok {
		return nil, false
	}
	return auc.Clone(), true
}
