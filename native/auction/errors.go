package auction

import (
	"errors"
	"fmt"
)

// Sentinel failure kinds surfaced by the engine. Callers classify with
// errors.Is; the RPC layer maps them onto module error codes.
var (
	ErrInvalidState    = errors.New("auction: invalid state")
	ErrUnauthorized    = errors.New("auction: unauthorized")
	ErrPaymentMismatch = errors.New("auction: bid must be made in the designated token or native value, never both")
	ErrBidTooLow       = errors.New("auction: bid must be a percentage more than the previous highest bid")
	ErrActiveAuction   = errors.New("auction: the auction has started")
	ErrActiveBid       = errors.New("auction: the auction has a valid bid made")
	ErrAuctionExpired  = errors.New("auction: the auction has ended")
)

// ErrNotFound reports a missing registry record. It wraps ErrInvalidState so
// callers treating absence as an invalid-state failure keep working.
var ErrNotFound = fmt.Errorf("%w: auction not found", ErrInvalidState)
