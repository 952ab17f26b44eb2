package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"auctionhouse/core/types"
	"auctionhouse/native/auction"
)

const (
	codeAuctionInvalidParams   = -32041
	codeAuctionNotFound        = -32042
	codeAuctionUnauthorized    = -32043
	codeAuctionInvalidState    = -32044
	codeAuctionBidTooLow       = -32045
	codeAuctionPaymentMismatch = -32046
	codeAuctionExpired         = -32047
	codeAuctionActiveBid       = -32048
	codeAuctionInternal        = -32049
)

type auctionCreateParams struct {
	Collection            string `json:"collection"`
	AssetID               string `json:"assetId"`
	Seller                string `json:"seller"`
	PaymentUnit           string `json:"paymentUnit,omitempty"`
	MinPrice              string `json:"minPrice"`
	BidPeriodSeconds      uint64 `json:"bidPeriodSeconds"`
	BidIncreasePercentage uint32 `json:"bidIncreasePercentage"`
}

type auctionBidParams struct {
	Collection  string `json:"collection"`
	AssetID     string `json:"assetId"`
	Bidder      string `json:"bidder"`
	PaymentUnit string `json:"paymentUnit,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Value       string `json:"value,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
}

type auctionCallerParams struct {
	Collection string `json:"collection"`
	AssetID    string `json:"assetId"`
	Caller     string `json:"caller"`
}

type auctionUpdatePriceParams struct {
	Collection  string `json:"collection"`
	AssetID     string `json:"assetId"`
	Caller      string `json:"caller"`
	NewMinPrice string `json:"newMinPrice"`
}

type auctionKeyParams struct {
	Collection string `json:"collection"`
	AssetID    string `json:"assetId"`
}

type auctionJSON struct {
	ID                    string `json:"id"`
	Collection            string `json:"collection"`
	AssetID               string `json:"assetId"`
	Seller                string `json:"seller"`
	PaymentUnit           string `json:"paymentUnit"`
	MinPrice              string `json:"minPrice"`
	BidPeriodSeconds      uint64 `json:"bidPeriodSeconds"`
	BidIncreasePercentage uint32 `json:"bidIncreasePercentage"`
	HighestBid            string `json:"highestBid"`
	HighestBidder         string `json:"highestBidder,omitempty"`
	NFTRecipient          string `json:"nftRecipient,omitempty"`
	AuctionEnd            int64  `json:"auctionEnd"`
	CreatedAt             int64  `json:"createdAt"`
}

func formatAddress(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func parseAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(trimmed, "0x")
	if len(trimmed) != 40 {
		return addr, errors.New("address must be 20 hex-encoded bytes")
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, err
	}
	copy(addr[:], decoded)
	return addr, nil
}

func parseAssetID(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, errors.New("assetId required")
	}
	id, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || id.Sign() < 0 {
		return nil, errors.New("assetId must be a non-negative decimal integer")
	}
	return id, nil
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || amount.Sign() < 0 {
		return nil, errors.New("amount must be a non-negative decimal integer")
	}
	return amount, nil
}

func formatAuctionJSON(a *auction.Auction) auctionJSON {
	id := a.ID()
	out := auctionJSON{
		ID:                    "0x" + hex.EncodeToString(id[:]),
		Collection:            formatAddress(a.Collection),
		AssetID:               a.AssetID.String(),
		Seller:                formatAddress(a.Seller),
		PaymentUnit:           a.PaymentUnit,
		MinPrice:              a.MinPrice.String(),
		BidPeriodSeconds:      a.BidPeriodSeconds,
		BidIncreasePercentage: a.BidIncreasePercentage,
		HighestBid:            a.HighestBid.String(),
		AuctionEnd:            a.AuctionEnd,
		CreatedAt:             a.CreatedAt,
	}
	if a.HasBid() {
		out.HighestBidder = formatAddress(a.HighestBidder)
		out.NFTRecipient = formatAddress(a.NFTRecipient)
	}
	return out
}

func writeAuctionError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, auction.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeAuctionNotFound, "not_found", err.Error())
	case errors.Is(err, auction.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeAuctionUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, auction.ErrBidTooLow):
		writeError(w, http.StatusUnprocessableEntity, id, codeAuctionBidTooLow, "bid_too_low", err.Error())
	case errors.Is(err, auction.ErrPaymentMismatch):
		writeError(w, http.StatusUnprocessableEntity, id, codeAuctionPaymentMismatch, "payment_mismatch", err.Error())
	case errors.Is(err, auction.ErrAuctionExpired):
		writeError(w, http.StatusConflict, id, codeAuctionExpired, "auction_expired", err.Error())
	case errors.Is(err, auction.ErrActiveAuction):
		writeError(w, http.StatusConflict, id, codeAuctionActiveBid, "active_auction", err.Error())
	case errors.Is(err, auction.ErrActiveBid):
		writeError(w, http.StatusConflict, id, codeAuctionActiveBid, "active_bid", err.Error())
	case errors.Is(err, auction.ErrInvalidState):
		writeError(w, http.StatusConflict, id, codeAuctionInvalidState, "invalid_state", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeAuctionInternal, "internal_error", err.Error())
	}
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return errors.New("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleAuctionCreate(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params auctionCreateParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := parseAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	minPrice, err := parseAmount(params.MinPrice)
	if err != nil || minPrice.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", "minPrice must be a positive decimal integer")
		return
	}
	if params.BidPeriodSeconds == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", "bidPeriodSeconds must be positive")
		return
	}
	auc, err := s.engine.CreateAuction(collection, assetID, seller, params.PaymentUnit, minPrice, params.BidPeriodSeconds, params.BidIncreasePercentage)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAuctionJSON(auc))
}

func (s *Server) handleAuctionBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params auctionBidParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	bidder, err := parseAddress(params.Bidder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	var recipientPtr *[20]byte
	if strings.TrimSpace(params.Recipient) != "" {
		recipient, parseErr := parseAddress(params.Recipient)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", parseErr.Error())
			return
		}
		recipientPtr = &recipient
	}
	auc, err := s.engine.MakeBid(collection, assetID, bidder, params.PaymentUnit, amount, value, recipientPtr)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAuctionJSON(auc))
}

func (s *Server) handleAuctionWithdrawBid(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleAuctionTransition(w, r, req, s.engine.WithdrawBid)
}

func (s *Server) handleAuctionWithdrawNft(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleAuctionTransition(w, r, req, s.engine.WithdrawNFT)
}

func (s *Server) handleAuctionSettle(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleAuctionTransition(w, r, req, s.engine.SettleAuction)
}

func (s *Server) handleAuctionTransition(w http.ResponseWriter, r *http.Request, req *RPCRequest, transition func([20]byte, *big.Int, [20]byte) error) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params auctionCallerParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := transition(collection, assetID, caller); err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleAuctionUpdateMinPrice(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params auctionUpdatePriceParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	newMinPrice, err := parseAmount(params.NewMinPrice)
	if err != nil || newMinPrice.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", "newMinPrice must be a positive decimal integer")
		return
	}
	auc, err := s.engine.UpdateMinimumPrice(collection, assetID, caller, newMinPrice)
	if err != nil {
		writeAuctionError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatAuctionJSON(auc))
}

func (s *Server) handleAuctionGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionKeyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	auc, ok := s.engine.GetAuction(collection, assetID)
	if !ok {
		writeAuctionError(w, req.ID, auction.ErrNotFound)
		return
	}
	writeResult(w, req.ID, formatAuctionJSON(auc))
}

func (s *Server) handleAuctionListEvents(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params auctionKeyParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	collection, err := parseAddress(params.Collection)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	assetID, err := parseAssetID(params.AssetID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeAuctionInvalidParams, "invalid_params", err.Error())
		return
	}
	events, err := s.state.Events(auction.AuctionID(collection, assetID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeAuctionInternal, "internal_error", err.Error())
		return
	}
	if events == nil {
		events = []*types.Event{}
	}
	writeResult(w, req.ID, events)
}
