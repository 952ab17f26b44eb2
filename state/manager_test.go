package state

import (
	"bytes"
	"errors"
	"math/big"
	"sync"
	"testing"

	"auctionhouse/core/types"
	"auctionhouse/native/auction"
	"auctionhouse/storage"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func sampleAuction() *auction.Auction {
	return &auction.Auction{
		Collection:            newTestAddress(0x0C),
		AssetID:               big.NewInt(42),
		Seller:                newTestAddress(0x01),
		PaymentUnit:           "mer",
		MinPrice:              big.NewInt(100),
		BidPeriodSeconds:      86400,
		BidIncreasePercentage: 10,
		HighestBid:            big.NewInt(0),
		CreatedAt:             1_700_000_000,
	}
}

func TestAuctionRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	auc := sampleAuction()
	auc.HighestBid = big.NewInt(150)
	auc.HighestBidder = newTestAddress(0x02)
	auc.NFTRecipient = newTestAddress(0x03)
	auc.AuctionEnd = 1_700_086_400

	if err := manager.AuctionPut(auc); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := manager.AuctionGet(auc.ID())
	if !ok {
		t.Fatalf("auction not found after put")
	}
	if loaded.PaymentUnit != "MER" {
		t.Fatalf("expected canonical unit, got %q", loaded.PaymentUnit)
	}
	if loaded.AssetID.String() != "42" || loaded.MinPrice.String() != "100" || loaded.HighestBid.String() != "150" {
		t.Fatalf("amounts corrupted: %+v", loaded)
	}
	if loaded.HighestBidder != auc.HighestBidder || loaded.NFTRecipient != auc.NFTRecipient {
		t.Fatalf("addresses corrupted")
	}
	if loaded.AuctionEnd != auc.AuctionEnd || loaded.CreatedAt != auc.CreatedAt {
		t.Fatalf("timestamps corrupted: end %d created %d", loaded.AuctionEnd, loaded.CreatedAt)
	}
	if loaded.BidPeriodSeconds != 86400 || loaded.BidIncreasePercentage != 10 {
		t.Fatalf("parameters corrupted")
	}
}

func TestAuctionPutRejectsInvalidRecord(t *testing.T) {
	manager := newTestManager(t)
	auc := sampleAuction()
	auc.MinPrice = big.NewInt(0)
	if err := manager.AuctionPut(auc); err == nil {
		t.Fatalf("expected sanitize failure")
	}
}

func TestAuctionDelete(t *testing.T) {
	manager := newTestManager(t)
	auc := sampleAuction()
	if err := manager.AuctionPut(auc); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := manager.AuctionDelete(auc.ID()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := manager.AuctionGet(auc.ID()); ok {
		t.Fatalf("auction still present after delete")
	}
}

func TestVaultAddressStableAndDistinct(t *testing.T) {
	manager := newTestManager(t)
	collection := newTestAddress(0x0C)
	idA := auction.AuctionID(collection, big.NewInt(1))
	idB := auction.AuctionID(collection, big.NewInt(2))

	vaultA1, err := manager.AuctionVaultAddress(idA)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}
	vaultA2, _ := manager.AuctionVaultAddress(idA)
	vaultB, _ := manager.AuctionVaultAddress(idB)
	if vaultA1 != vaultA2 {
		t.Fatalf("vault address not deterministic")
	}
	if vaultA1 == vaultB {
		t.Fatalf("distinct keys share a vault")
	}
	if vaultA1 == ([20]byte{}) {
		t.Fatalf("vault address is zero")
	}
}

func TestLedgerTransfer(t *testing.T) {
	manager := newTestManager(t)
	alice := newTestAddress(0x0A)
	bob := newTestAddress(0x0B)

	if err := manager.SetBalance(alice, "MER", big.NewInt(500)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := manager.Transfer(alice, bob, "MER", big.NewInt(200)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	aliceBal, _ := manager.Balance(alice, "MER")
	bobBal, _ := manager.Balance(bob, "MER")
	if aliceBal.String() != "300" || bobBal.String() != "200" {
		t.Fatalf("balances after transfer: alice %s bob %s", aliceBal, bobBal)
	}

	if err := manager.Transfer(alice, bob, "MER", big.NewInt(10_000)); !errors.Is(err, errInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	// Failed transfer leaves balances untouched.
	aliceBal, _ = manager.Balance(alice, "MER")
	if aliceBal.String() != "300" {
		t.Fatalf("balance disturbed by failed transfer: %s", aliceBal)
	}

	if err := manager.Transfer(alice, bob, "MER", nil); err != nil {
		t.Fatalf("nil amount should be a no-op, got %v", err)
	}
	if err := manager.Transfer(alice, bob, "MER", big.NewInt(-5)); err == nil {
		t.Fatalf("expected negative transfer rejected")
	}
}

func TestNativeAndTokenBalancesAreSeparate(t *testing.T) {
	manager := newTestManager(t)
	addr := newTestAddress(0x0A)
	if err := manager.SetBalance(addr, "", big.NewInt(100)); err != nil {
		t.Fatalf("set native balance: %v", err)
	}
	if err := manager.SetBalance(addr, "MER", big.NewInt(7)); err != nil {
		t.Fatalf("set token balance: %v", err)
	}
	native, _ := manager.Balance(addr, "")
	token, _ := manager.Balance(addr, "MER")
	if native.String() != "100" || token.String() != "7" {
		t.Fatalf("balances crossed units: native %s token %s", native, token)
	}
}

func TestUnknownAccountHoldsZero(t *testing.T) {
	manager := newTestManager(t)
	bal, err := manager.Balance(newTestAddress(0xFF), "MER")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", bal)
	}
}

func TestAssetCustody(t *testing.T) {
	manager := newTestManager(t)
	collection := newTestAddress(0x0C)
	assetID := big.NewInt(1)
	alice := newTestAddress(0x0A)
	bob := newTestAddress(0x0B)

	if _, err := manager.AssetOwner(collection, assetID); !errors.Is(err, errAssetNotFound) {
		t.Fatalf("expected asset not found, got %v", err)
	}
	if err := manager.RegisterAsset(collection, assetID, alice); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := manager.RegisterAsset(collection, assetID, bob); err == nil {
		t.Fatalf("expected re-registration rejected")
	}
	owner, err := manager.AssetOwner(collection, assetID)
	if err != nil || owner != alice {
		t.Fatalf("owner after register: %x, %v", owner, err)
	}
	if err := manager.TransferAsset(collection, assetID, bob, alice); !errors.Is(err, errNotAssetOwner) {
		t.Fatalf("expected not-owner rejection, got %v", err)
	}
	if err := manager.TransferAsset(collection, assetID, alice, bob); err != nil {
		t.Fatalf("transfer asset: %v", err)
	}
	owner, _ = manager.AssetOwner(collection, assetID)
	if owner != bob {
		t.Fatalf("owner after transfer: %x", owner)
	}
}

func TestEventHistoryRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	id := auction.AuctionID(newTestAddress(0x0C), big.NewInt(1))

	history, err := manager.Events(id)
	if err != nil {
		t.Fatalf("events on empty history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %d", len(history))
	}

	first := &types.Event{Type: "auction.created", Attributes: map[string]string{"minPrice": "100", "assetId": "1"}}
	second := &types.Event{Type: "auction.bid", Attributes: map[string]string{"highestBid": "150"}}
	if err := manager.AppendEvent(id, first); err != nil {
		t.Fatalf("append first: %v", err)
	}
	if err := manager.AppendEvent(id, second); err != nil {
		t.Fatalf("append second: %v", err)
	}

	history, err = manager.Events(id)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}
	if history[0].Type != "auction.created" || history[1].Type != "auction.bid" {
		t.Fatalf("history out of order: %s, %s", history[0].Type, history[1].Type)
	}
	if history[0].Attributes["minPrice"] != "100" || history[0].Attributes["assetId"] != "1" {
		t.Fatalf("attributes corrupted: %+v", history[0].Attributes)
	}
	if history[1].Attributes["highestBid"] != "150" {
		t.Fatalf("attributes corrupted: %+v", history[1].Attributes)
	}

	if err := manager.AppendEvent(id, nil); err == nil {
		t.Fatalf("expected nil event rejected")
	}
}

func TestConcurrentTransfersConserveBalance(t *testing.T) {
	manager := newTestManager(t)
	source := newTestAddress(0x0A)
	if err := manager.SetBalance(source, "MER", big.NewInt(1_000)); err != nil {
		t.Fatalf("set balance: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := manager.Transfer(source, newTestAddress(byte(0x20+i)), "MER", big.NewInt(10)); err != nil {
				t.Errorf("transfer %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	sourceBal, err := manager.Balance(source, "MER")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if sourceBal.String() != "900" {
		t.Fatalf("expected 900 after %d debits, got %s", workers, sourceBal)
	}
	total := new(big.Int).Set(sourceBal)
	for i := 0; i < workers; i++ {
		recipientBal, err := manager.Balance(newTestAddress(byte(0x20+i)), "MER")
		if err != nil {
			t.Fatalf("recipient balance: %v", err)
		}
		if recipientBal.String() != "10" {
			t.Fatalf("recipient %d holds %s", i, recipientBal)
		}
		total.Add(total, recipientBal)
	}
	if total.String() != "1000" {
		t.Fatalf("total supply drifted to %s", total)
	}
}
