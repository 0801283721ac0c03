package domain

import "time"

// OfferStatus tracks the offer/bid lifecycle. active is the only non-terminal
// state.
type OfferStatus string

const (
	OfferStatusActive    OfferStatus = "active"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusCancelled OfferStatus = "cancelled"
)

// Terminal reports whether the offer permits no further transition.
func (s OfferStatus) Terminal() bool {
	return s != OfferStatusActive
}

// Offer is a buyer's proposed price for an NFT, tracked with its own escrow
// funding and terminal state. Auction bids are offers linked to an auction.
type Offer struct {
	ID        string      `json:"id"`
	NFTID     string      `json:"nft_id"`
	AuctionID string      `json:"auction_id,omitempty"` // empty for buy-now offers
	Bidder    string      `json:"bidder"`               // base58 bidder wallet
	Lamports  int64       `json:"lamports"`
	Currency  string      `json:"currency"`
	Status    OfferStatus `json:"status"`
	EscrowID  string      `json:"escrow_id,omitempty"` // escrow backing this offer's funds
	Signature string      `json:"signature,omitempty"` // funding transaction signature once funded
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at,omitzero"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Amount returns the display amount in SOL from lamports.
func (o Offer) Amount() float64 {
	return float64(o.Lamports) / LamportsPerSol
}

// AuctionStatus tracks the auction lifecycle.
type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether the auction permits no further transition.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusEnded || s == AuctionStatusCancelled
}

// Auction owns an ordered bid history for an NFT. CurrentBid is monotonically
// non-decreasing while active and always equals the latest accepted bid
// amount, or the starting price when no bid has been placed.
type Auction struct {
	ID             string        `json:"id"`
	NFTID          string        `json:"nft_id"`
	Seller         string        `json:"seller"`         // base58 seller wallet
	StartingPrice  int64         `json:"starting_price"` // lamports
	CurrentBid     int64         `json:"current_bid"`    // lamports
	Currency       string        `json:"currency"`
	Status         AuctionStatus `json:"status"`
	HighestBidder  string        `json:"highest_bidder,omitempty"`   // base58; empty until the first bid lands
	HighestOfferID string        `json:"highest_offer_id,omitempty"` // offer backing the current bid
	BidIDs         []string      `json:"bid_ids"`                    // ordered offer ids, oldest first
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Ended reports whether the auction's wall-clock deadline has passed. An
// elapsed auction rejects new bids even while Status still reads active; the
// stored status only changes through an explicit EndAuction call.
func (a Auction) Ended(now time.Time) bool {
	return !now.Before(a.EndTime)
}

// NFTStatus tracks the listing state of an NFT record. The core only needs
// enough of the NFT to enforce the single-accepted-offer invariant; metadata
// lives with an upstream service.
type NFTStatus string

const (
	NFTStatusListed  NFTStatus = "listed"
	NFTStatusAuction NFTStatus = "auction"
	NFTStatusSold    NFTStatus = "sold"
)

// NFT is the minimal listing record tracked by the auction engine.
type NFT struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"` // base58 current owner wallet
	Status    NFTStatus `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}
