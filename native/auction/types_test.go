package auction

import (
	"math/big"
	"testing"
)

func TestMinNextBid(t *testing.T) {
	cases := []struct {
		highest int64
		pct     uint32
		want    string
	}{
		{100, 10, "110"},
		{105, 10, "115"}, // 115.5 truncates down
		{100, 0, "100"},
		{1, 10, "1"}, // 1.1 truncates down
		{333, 15, "382"},
		{0, 10, "1"},
	}
	for _, tc := range cases {
		got := MinNextBid(big.NewInt(tc.highest), tc.pct)
		if got.String() != tc.want {
			t.Fatalf("MinNextBid(%d, %d) = %s, want %s", tc.highest, tc.pct, got, tc.want)
		}
	}
	if got := MinNextBid(nil, 10); got.String() != "1" {
		t.Fatalf("expected nil highest to require 1, got %s", got)
	}
}

func TestNormalizeUnit(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", UnitNative, false},
		{"  ", UnitNative, false},
		{"mer", "MER", false},
		{"USDC2", "USDC2", false},
		{"toolongtoolongtoo", "", true},
		{"b@d", "", true},
		{"has space", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeUnit(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("NormalizeUnit(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeUnit(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeUnit(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAuctionIDDeterministic(t *testing.T) {
	collection := newTestAddress(0x0C)
	a := AuctionID(collection, big.NewInt(1))
	b := AuctionID(collection, big.NewInt(1))
	if a != b {
		t.Fatalf("expected stable id for identical key")
	}
	if AuctionID(collection, big.NewInt(2)) == a {
		t.Fatalf("expected distinct ids for distinct asset ids")
	}
	other := newTestAddress(0x0D)
	if AuctionID(other, big.NewInt(1)) == a {
		t.Fatalf("expected distinct ids for distinct collections")
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := &Auction{
		Collection:       newTestAddress(0x0C),
		AssetID:          big.NewInt(7),
		Seller:           newTestAddress(0x01),
		PaymentUnit:      "MER",
		MinPrice:         big.NewInt(100),
		BidPeriodSeconds: 86400,
		HighestBid:       big.NewInt(50),
	}
	clone := original.Clone()
	clone.HighestBid.SetInt64(999)
	clone.MinPrice.SetInt64(1)
	clone.AssetID.SetInt64(8)
	if original.HighestBid.String() != "50" || original.MinPrice.String() != "100" || original.AssetID.String() != "7" {
		t.Fatalf("clone mutation leaked into original: %+v", original)
	}
}

func TestSanitizeAuction(t *testing.T) {
	valid := func() *Auction {
		return &Auction{
			Collection:       newTestAddress(0x0C),
			AssetID:          big.NewInt(1),
			Seller:           newTestAddress(0x01),
			PaymentUnit:      "mer",
			MinPrice:         big.NewInt(100),
			BidPeriodSeconds: 86400,
			HighestBid:       big.NewInt(0),
		}
	}

	sanitized, err := SanitizeAuction(valid())
	if err != nil {
		t.Fatalf("sanitize valid: %v", err)
	}
	if sanitized.PaymentUnit != "MER" {
		t.Fatalf("expected canonical unit casing, got %q", sanitized.PaymentUnit)
	}

	cases := []struct {
		name   string
		mutate func(*Auction)
	}{
		{"zero min price", func(a *Auction) { a.MinPrice = big.NewInt(0) }},
		{"zero bid period", func(a *Auction) { a.BidPeriodSeconds = 0 }},
		{"negative highest bid", func(a *Auction) { a.HighestBid = big.NewInt(-1) }},
		{"seller holds highest bid", func(a *Auction) {
			a.HighestBid = big.NewInt(100)
			a.HighestBidder = a.Seller
		}},
		{"invalid unit", func(a *Auction) { a.PaymentUnit = "b@d" }},
		{"negative timestamp", func(a *Auction) { a.AuctionEnd = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := valid()
			tc.mutate(a)
			if _, err := SanitizeAuction(a); err == nil {
				t.Fatalf("expected sanitize failure")
			}
		})
	}
	if _, err := SanitizeAuction(nil); err == nil {
		t.Fatalf("expected nil auction to fail")
	}
}

func TestStartedAndHasBid(t *testing.T) {
	a := &Auction{HighestBid: big.NewInt(0)}
	if a.Started() || a.HasBid() {
		t.Fatalf("fresh listing should be idle")
	}
	a.HighestBid = big.NewInt(10)
	if !a.HasBid() {
		t.Fatalf("expected bid detected")
	}
	if a.Started() {
		t.Fatalf("underbid must not start the clock")
	}
	a.AuctionEnd = 100
	if !a.Started() {
		t.Fatalf("expected clock running")
	}
}
