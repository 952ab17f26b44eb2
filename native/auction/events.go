package auction

import (
	"encoding/hex"
	"strconv"

	"auctionhouse/core/types"
)

const (
	EventTypeAuctionCreated   = "auction.created"
	EventTypeBidAccepted      = "auction.bid"
	EventTypeAuctionStarted   = "auction.started"
	EventTypeAuctionExtended  = "auction.extended"
	EventTypeBidWithdrawn     = "auction.bid_withdrawn"
	EventTypePriceUpdated     = "auction.price_updated"
	EventTypeAuctionCancelled = "auction.cancelled"
	EventTypeAuctionSettled   = "auction.settled"
)

// KeyedEvent is implemented by emitted auction events so downstream consumers
// (event history, structured logs) can recover the registry key and payload.
type KeyedEvent interface {
	EventType() string
	Event() *types.Event
	AuctionID() [32]byte
}

type auctionEvent struct {
	id  [32]byte
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

func (e auctionEvent) AuctionID() [32]byte { return e.id }

// NewCreatedEvent returns the canonical payload for a freshly listed auction.
func NewCreatedEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionCreated, a, nil)
}

// NewBidAcceptedEvent returns the payload emitted for every admitted bid,
// carrying the bidder, amount and admission timestamp.
func NewBidAcceptedEvent(a *Auction, now int64) *types.Event {
	return newAuctionEvent(EventTypeBidAccepted, a, map[string]string{
		"timestamp": strconv.FormatInt(now, 10),
	})
}

// NewStartedEvent returns the payload emitted when the floor is first met and
// the bid clock starts.
func NewStartedEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionStarted, a, nil)
}

// NewExtendedEvent returns the payload emitted when a late qualifying bid
// pushes the auction end forward.
func NewExtendedEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionExtended, a, nil)
}

// NewBidWithdrawnEvent returns the payload emitted when an underbid is
// withdrawn and refunded.
func NewBidWithdrawnEvent(a *Auction, bidder [20]byte, amount string) *types.Event {
	return newAuctionEvent(EventTypeBidWithdrawn, a, map[string]string{
		"withdrawnBidder": hex.EncodeToString(bidder[:]),
		"withdrawnAmount": amount,
	})
}

// NewPriceUpdatedEvent returns the payload emitted when the seller adjusts
// the minimum price.
func NewPriceUpdatedEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypePriceUpdated, a, nil)
}

// NewCancelledEvent returns the payload emitted when the seller withdraws the
// asset before any bid is escrowed.
func NewCancelledEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionCancelled, a, nil)
}

// NewSettledEvent returns the payload emitted on final settlement.
func NewSettledEvent(a *Auction) *types.Event {
	return newAuctionEvent(EventTypeAuctionSettled, a, nil)
}

func newAuctionEvent(eventType string, a *Auction, extra map[string]string) *types.Event {
	attrs := make(map[string]string)
	if a == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	sanitized, err := SanitizeAuction(a)
	if err != nil {
		sanitized = a.Clone()
	}
	id := sanitized.ID()
	attrs["id"] = hex.EncodeToString(id[:])
	attrs["collection"] = hex.EncodeToString(sanitized.Collection[:])
	attrs["assetId"] = sanitized.AssetID.String()
	attrs["seller"] = hex.EncodeToString(sanitized.Seller[:])
	attrs["paymentUnit"] = unitLabel(sanitized.PaymentUnit)
	attrs["minPrice"] = sanitized.MinPrice.String()
	attrs["auctionEnd"] = strconv.FormatInt(sanitized.AuctionEnd, 10)
	if sanitized.HasBid() {
		attrs["highestBid"] = sanitized.HighestBid.String()
		attrs["highestBidder"] = hex.EncodeToString(sanitized.HighestBidder[:])
		attrs["nftRecipient"] = hex.EncodeToString(sanitized.NFTRecipient[:])
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func unitLabel(unit string) string {
	if unit == UnitNative {
		return "native"
	}
	return unit
}
