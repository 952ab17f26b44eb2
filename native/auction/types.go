package auction

import (
	"fmt"
	"math/big"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// UnitNative is the sentinel payment unit denoting native value payment
// instead of a fungible token denomination.
const UnitNative = ""

// Auction captures the full state of a single listing. Exactly one record
// exists per (collection, asset id) key while the listing is live; settlement
// and seller withdrawal remove it.
type Auction struct {
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
	AuctionEnd            int64
	CreatedAt             int64
}

// AuctionID derives the registry key for a (collection, asset id) pair.
func AuctionID(collection [20]byte, assetID *big.Int) [32]byte {
	padded := make([]byte, 32)
	if assetID != nil {
		b := assetID.Bytes()
		if len(b) > 32 {
			b = b[len(b)-32:]
		}
		copy(padded[32-len(b):], b)
	}
	return ethcrypto.Keccak256Hash(collection[:], padded)
}

// ID returns the registry key of the auction.
func (a *Auction) ID() [32]byte {
	if a == nil {
		return [32]byte{}
	}
	return AuctionID(a.Collection, a.AssetID)
}

// Started reports whether the bid clock is running. A zero AuctionEnd means
// the listing is still in the underbid phase.
func (a *Auction) Started() bool { return a != nil && a.AuctionEnd != 0 }

// HasBid reports whether a bid amount is currently escrowed.
func (a *Auction) HasBid() bool {
	return a != nil && a.HighestBid != nil && a.HighestBid.Sign() > 0
}

// Clone returns a deep copy of the auction so callers can safely mutate the
// copy without affecting the stored instance.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	if a.AssetID != nil {
		clone.AssetID = new(big.Int).Set(a.AssetID)
	} else {
		clone.AssetID = big.NewInt(0)
	}
	if a.MinPrice != nil {
		clone.MinPrice = new(big.Int).Set(a.MinPrice)
	} else {
		clone.MinPrice = big.NewInt(0)
	}
	if a.HighestBid != nil {
		clone.HighestBid = new(big.Int).Set(a.HighestBid)
	} else {
		clone.HighestBid = big.NewInt(0)
	}
	return &clone
}

// MinNextBid returns the minimum admissible amount to displace the supplied
// highest bid: highest * (100 + pct) / 100 with integer truncation. Equality
// at the threshold is admitted.
func MinNextBid(highest *big.Int, pct uint32) *big.Int {
	if highest == nil || highest.Sign() <= 0 {
		return big.NewInt(1)
	}
	next := new(big.Int).Mul(highest, big.NewInt(int64(100)+int64(pct)))
	return next.Div(next, big.NewInt(100))
}

// NormalizeUnit canonicalises a payment unit symbol. The empty string is the
// native-value sentinel and passes through unchanged; token symbols are
// upper-cased and must be short alphanumeric identifiers.
func NormalizeUnit(unit string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(unit))
	if trimmed == UnitNative {
		return UnitNative, nil
	}
	if len(trimmed) > 16 {
		return "", fmt.Errorf("payment unit too long: %s", unit)
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("invalid payment unit: %s", unit)
		}
	}
	return trimmed, nil
}

// SanitizeAuction validates and normalises the supplied record, returning a
// cloned instance with canonical unit casing and non-nil amount fields. The
// function does not mutate the original value.
func SanitizeAuction(a *Auction) (*Auction, error) {
	if a == nil {
		return nil, fmt.Errorf("nil auction")
	}
	clone := a.Clone()
	unit, err := NormalizeUnit(clone.PaymentUnit)
	if err != nil {
		return nil, err
	}
	clone.PaymentUnit = unit
	if clone.AssetID.Sign() < 0 {
		return nil, fmt.Errorf("asset id must be non-negative")
	}
	if clone.MinPrice.Sign() <= 0 {
		return nil, fmt.Errorf("minimum price must be positive")
	}
	if clone.HighestBid.Sign() < 0 {
		return nil, fmt.Errorf("highest bid must be non-negative")
	}
	if clone.BidPeriodSeconds == 0 {
		return nil, fmt.Errorf("bid period must be positive")
	}
	if clone.AuctionEnd < 0 || clone.CreatedAt < 0 {
		return nil, fmt.Errorf("timestamps must be non-negative")
	}
	if clone.HighestBidder == clone.Seller && clone.HasBid() {
		return nil, fmt.Errorf("seller cannot hold the highest bid")
	}
	return clone, nil
}
