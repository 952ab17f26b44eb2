package gateway

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"auctionhouse/native/auction"
	"auctionhouse/state"
)

// New builds the read-only HTTP facade: health and metrics endpoints plus
// auction lookups for client display. All routes are side-effect free;
// mutations go through the JSON-RPC server.
func New(engine *auction.Engine, st *state.Manager) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1/auctions/{collection}/{assetId}", func(sr chi.Router) {
		sr.Get("/", getAuction(engine))
		sr.Get("/events", listEvents(st))
	})

	return r
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func auctionKeyFromURL(r *http.Request) ([20]byte, *big.Int, error) {
	var collection [20]byte
	raw := strings.TrimPrefix(chi.URLParam(r, "collection"), "0x")
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != 20 {
		return collection, nil, errors.New("collection must be 20 hex-encoded bytes")
	}
	copy(collection[:], decoded)
	assetID, ok := new(big.Int).SetString(chi.URLParam(r, "assetId"), 10)
	if !ok || assetID.Sign() < 0 {
		return collection, nil, errors.New("assetId must be a non-negative decimal integer")
	}
	return collection, assetID, nil
}

type auctionResponse struct {
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

func getAuction(engine *auction.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, assetID, err := auctionKeyFromURL(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		auc, ok := engine.GetAuction(collection, assetID)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "auction not found"})
			return
		}
		resp := auctionResponse{
			Collection:            "0x" + hex.EncodeToString(auc.Collection[:]),
			AssetID:               auc.AssetID.String(),
			Seller:                "0x" + hex.EncodeToString(auc.Seller[:]),
			PaymentUnit:           auc.PaymentUnit,
			MinPrice:              auc.MinPrice.String(),
			BidPeriodSeconds:      auc.BidPeriodSeconds,
			BidIncreasePercentage: auc.BidIncreasePercentage,
			HighestBid:            auc.HighestBid.String(),
			AuctionEnd:            auc.AuctionEnd,
			CreatedAt:             auc.CreatedAt,
		}
		if auc.HasBid() {
			resp.HighestBidder = "0x" + hex.EncodeToString(auc.HighestBidder[:])
			resp.NFTRecipient = "0x" + hex.EncodeToString(auc.NFTRecipient[:])
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listEvents(st *state.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		collection, assetID, err := auctionKeyFromURL(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		events, err := st.Events(auction.AuctionID(collection, assetID))
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		if events == nil {
			writeJSON(w, http.StatusOK, []struct{}{})
			return
		}
		writeJSON(w, http.StatusOK, events)
	}
}
