package auction

import (
	"context"
	"testing"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

type engineFixture struct {
	engine   *Engine
	auctions *memAuctionStore
	offers   *memOfferStore
	nfts     *memNFTStore
	escrows  *fakeEscrowService
	wallet   *stubWallet
}

func newEngineFixture() *engineFixture {
	f := &engineFixture{
		auctions: newMemAuctionStore(),
		offers:   newMemOfferStore(),
		nfts:     newMemNFTStore(),
		escrows:  newFakeEscrowService(),
		wallet:   newStubWallet(testAddr(1)),
	}
	f.engine = NewEngine(f.auctions, f.offers, f.nfts, f.escrows, f.wallet, nil, nil, testLogger())
	return f
}

func (f *engineFixture) createAuction(t *testing.T, startingPrice int64) domain.Auction {
	t.Helper()
	a, err := f.engine.CreateAuction(context.Background(), "nft-1", startingPrice, time.Hour, "SOL")
	if err != nil {
		t.Fatalf("CreateAuction failed: %v", err)
	}
	return a
}

func TestCreateAuction(t *testing.T) {
	f := newEngineFixture()

	a := f.createAuction(t, 1_000_000_000)
	if a.Status != domain.AuctionStatusActive {
		t.Errorf("Expected status %q, got %q", domain.AuctionStatusActive, a.Status)
	}
	if a.CurrentBid != 1_000_000_000 {
		t.Errorf("Expected current bid seeded from starting price, got %d", a.CurrentBid)
	}
	if a.Seller != f.wallet.Address() {
		t.Errorf("Expected seller %q, got %q", f.wallet.Address(), a.Seller)
	}

	nft, err := f.nfts.GetByID(context.Background(), "nft-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if nft.Status != domain.NFTStatusAuction {
		t.Errorf("Expected nft status %q, got %q", domain.NFTStatusAuction, nft.Status)
	}
}

func TestCreateAuctionValidation(t *testing.T) {
	tests := []struct {
		name     string
		price    int64
		duration time.Duration
		connect  bool
		wantCode domain.ErrorCode
	}{
		{"disconnected wallet", 100, time.Hour, false, domain.CodeWalletNotConnected},
		{"zero price", 0, time.Hour, true, domain.CodeInvalidAmount},
		{"negative price", -1, time.Hour, true, domain.CodeInvalidAmount},
		{"zero duration", 100, 0, true, domain.CodeInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture()
			if !tt.connect {
				f.wallet.Disconnect()
			}
			_, err := f.engine.CreateAuction(context.Background(), "nft-1", tt.price, tt.duration, "SOL")
			if domain.CodeOf(err) != tt.wantCode {
				t.Errorf("Expected code %q, got %v", tt.wantCode, err)
			}
		})
	}
}

func TestPlaceBidSequence(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	// First bid must strictly exceed the starting price.
	f.wallet.as(testAddr(2))
	_, err := f.engine.PlaceBid(ctx, a.ID, 1_000_000_000)
	if domain.CodeOf(err) != domain.CodeBidTooLow {
		t.Errorf("Expected code %q for a tie, got %v", domain.CodeBidTooLow, err)
	}

	first, err := f.engine.PlaceBid(ctx, a.ID, 1_500_000_000)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}
	if first.Status != domain.OfferStatusActive {
		t.Errorf("Expected offer status %q, got %q", domain.OfferStatusActive, first.Status)
	}
	if first.Signature == "" {
		t.Error("Expected funding signature on the bid offer")
	}
	if got := f.escrows.status(first.EscrowID); got != domain.EscrowStatusFunded {
		t.Errorf("Expected bid escrow funded, got %q", got)
	}

	// A lower follow-up is rejected without touching escrow.
	f.wallet.as(testAddr(3))
	_, err = f.engine.PlaceBid(ctx, a.ID, 1_200_000_000)
	if domain.CodeOf(err) != domain.CodeBidTooLow {
		t.Errorf("Expected code %q, got %v", domain.CodeBidTooLow, err)
	}

	// A higher bid supersedes and reimburses the previous one immediately.
	second, err := f.engine.PlaceBid(ctx, a.ID, 2_000_000_000)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	updated, _ := f.auctions.GetByID(ctx, a.ID)
	if updated.CurrentBid != 2_000_000_000 {
		t.Errorf("Expected current bid 2000000000, got %d", updated.CurrentBid)
	}
	if updated.HighestBidder != testAddr(3) {
		t.Errorf("Expected highest bidder %q, got %q", testAddr(3), updated.HighestBidder)
	}
	if updated.HighestOfferID != second.ID {
		t.Errorf("Expected highest offer %q, got %q", second.ID, updated.HighestOfferID)
	}
	if len(updated.BidIDs) != 2 {
		t.Errorf("Expected 2 recorded bids, got %d", len(updated.BidIDs))
	}

	outbid, _ := f.offers.GetByID(ctx, first.ID)
	if outbid.Status != domain.OfferStatusRejected {
		t.Errorf("Expected outbid offer %q, got %q", domain.OfferStatusRejected, outbid.Status)
	}
	if got := f.escrows.status(first.EscrowID); got != domain.EscrowStatusCancelled {
		t.Errorf("Expected outbid escrow cancelled, got %q", got)
	}
}

func TestPlaceBidFundingFailureVoidsOffer(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	f.wallet.as(testAddr(2))
	f.escrows.fundErr = domain.PermanentErr("payment failed after retries", nil)
	_, err := f.engine.PlaceBid(ctx, a.ID, 1_500_000_000)
	if err == nil {
		t.Fatal("Expected bid to fail, got nil")
	}

	offers, _ := f.offers.ListByNFT(ctx, a.NFTID)
	if len(offers) != 1 {
		t.Fatalf("Expected 1 offer on record, got %d", len(offers))
	}
	if offers[0].Status != domain.OfferStatusCancelled {
		t.Errorf("Expected voided offer %q, got %q", domain.OfferStatusCancelled, offers[0].Status)
	}
	// The escrow account is retired with it rather than stranded in created.
	if got := f.escrows.status(offers[0].EscrowID); got != domain.EscrowStatusCancelled {
		t.Errorf("Expected voided escrow cancelled, got %q", got)
	}

	// The auction is untouched.
	updated, _ := f.auctions.GetByID(ctx, a.ID)
	if updated.CurrentBid != 1_000_000_000 {
		t.Errorf("Expected current bid unchanged, got %d", updated.CurrentBid)
	}
	if updated.HighestOfferID != "" {
		t.Errorf("Expected no highest offer, got %q", updated.HighestOfferID)
	}
}

func TestPlaceBidAfterDeadline(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	f.engine.SetClock(func() time.Time { return a.EndTime.Add(time.Second) })
	f.wallet.as(testAddr(2))

	_, err := f.engine.PlaceBid(ctx, a.ID, 1_500_000_000)
	if domain.CodeOf(err) != domain.CodeAuctionEnded {
		t.Errorf("Expected code %q, got %v", domain.CodeAuctionEnded, err)
	}

	// The stored status stays active until an explicit EndAuction call.
	stored, _ := f.auctions.GetByID(ctx, a.ID)
	if stored.Status != domain.AuctionStatusActive {
		t.Errorf("Expected stored status %q, got %q", domain.AuctionStatusActive, stored.Status)
	}
}

func TestEndAuctionWithWinner(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	f.wallet.as(testAddr(2))
	winning, err := f.engine.PlaceBid(ctx, a.ID, 1_500_000_000)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	ended, err := f.engine.EndAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("EndAuction failed: %v", err)
	}
	if ended.Status != domain.AuctionStatusEnded {
		t.Errorf("Expected status %q, got %q", domain.AuctionStatusEnded, ended.Status)
	}
	if got := f.escrows.status(winning.EscrowID); got != domain.EscrowStatusReleased {
		t.Errorf("Expected winning escrow released, got %q", got)
	}

	accepted, _ := f.offers.GetByID(ctx, winning.ID)
	if accepted.Status != domain.OfferStatusAccepted {
		t.Errorf("Expected winning offer %q, got %q", domain.OfferStatusAccepted, accepted.Status)
	}
	nft, _ := f.nfts.GetByID(ctx, a.NFTID)
	if nft.Status != domain.NFTStatusSold {
		t.Errorf("Expected nft status %q, got %q", domain.NFTStatusSold, nft.Status)
	}

	// Ending twice is rejected.
	_, err = f.engine.EndAuction(ctx, a.ID)
	if domain.CodeOf(err) != domain.CodeInvalidAuctionStatus {
		t.Errorf("Expected code %q, got %v", domain.CodeInvalidAuctionStatus, err)
	}
}

func TestEndAuctionNoBids(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	ended, err := f.engine.EndAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("EndAuction failed: %v", err)
	}
	if ended.Status != domain.AuctionStatusEnded {
		t.Errorf("Expected status %q, got %q", domain.AuctionStatusEnded, ended.Status)
	}
	if f.escrows.releases != 0 {
		t.Errorf("Expected no fund movement, got %d releases", f.escrows.releases)
	}
	nft, _ := f.nfts.GetByID(ctx, a.NFTID)
	if nft.Status != domain.NFTStatusListed {
		t.Errorf("Expected nft relisted, got %q", nft.Status)
	}
}

func TestEndAuctionReleaseFailureKeepsActive(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	f.wallet.as(testAddr(2))
	if _, err := f.engine.PlaceBid(ctx, a.ID, 1_500_000_000); err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	f.escrows.releaseErr = domain.ConnectivityErr(domain.CodeNetworkError, "rpc unreachable", nil)
	_, err := f.engine.EndAuction(ctx, a.ID)
	if err == nil {
		t.Fatal("Expected EndAuction to fail, got nil")
	}

	stored, _ := f.auctions.GetByID(ctx, a.ID)
	if stored.Status != domain.AuctionStatusActive {
		t.Errorf("Expected auction still active for re-issue, got %q", stored.Status)
	}

	// Re-issuing settles once the transfer can confirm.
	f.escrows.releaseErr = nil
	ended, err := f.engine.EndAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("EndAuction retry failed: %v", err)
	}
	if ended.Status != domain.AuctionStatusEnded {
		t.Errorf("Expected status %q, got %q", domain.AuctionStatusEnded, ended.Status)
	}
}

func TestCancelAuctionRefundsHighestBid(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	f.wallet.as(testAddr(2))
	bid, err := f.engine.PlaceBid(ctx, a.ID, 1_500_000_000)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	cancelled, err := f.engine.CancelAuction(ctx, a.ID)
	if err != nil {
		t.Fatalf("CancelAuction failed: %v", err)
	}
	if cancelled.Status != domain.AuctionStatusCancelled {
		t.Errorf("Expected status %q, got %q", domain.AuctionStatusCancelled, cancelled.Status)
	}
	if got := f.escrows.status(bid.EscrowID); got != domain.EscrowStatusCancelled {
		t.Errorf("Expected bid escrow cancelled, got %q", got)
	}
	nft, _ := f.nfts.GetByID(ctx, a.NFTID)
	if nft.Status != domain.NFTStatusListed {
		t.Errorf("Expected nft relisted, got %q", nft.Status)
	}
}

func TestMakeOffer(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	seller := testAddr(1)
	if err := f.nfts.Upsert(ctx, domain.NFT{ID: "nft-2", Owner: seller, Status: domain.NFTStatusListed}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	f.wallet.as(testAddr(2))
	offer, err := f.engine.MakeOffer(ctx, "nft-2", 500_000_000, "SOL", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("MakeOffer failed: %v", err)
	}
	if offer.Status != domain.OfferStatusActive {
		t.Errorf("Expected status %q, got %q", domain.OfferStatusActive, offer.Status)
	}
	if offer.AuctionID != "" {
		t.Errorf("Expected no auction link on a buy-now offer, got %q", offer.AuctionID)
	}
	if got := f.escrows.status(offer.EscrowID); got != domain.EscrowStatusFunded {
		t.Errorf("Expected offer escrow funded, got %q", got)
	}
}

func TestMakeOfferOnUnknownOrSoldNFT(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	_, err := f.engine.MakeOffer(ctx, "missing", 100, "SOL", time.Time{})
	if domain.CodeOf(err) != domain.CodeNFTNotFound {
		t.Errorf("Expected code %q, got %v", domain.CodeNFTNotFound, err)
	}

	if err := f.nfts.Upsert(ctx, domain.NFT{ID: "nft-3", Owner: testAddr(1), Status: domain.NFTStatusSold}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	_, err = f.engine.MakeOffer(ctx, "nft-3", 100, "SOL", time.Time{})
	if domain.CodeOf(err) != domain.CodeNFTSold {
		t.Errorf("Expected code %q, got %v", domain.CodeNFTSold, err)
	}
}

func TestMakeOfferFundingFailureVoidsOffer(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	if err := f.nfts.Upsert(ctx, domain.NFT{ID: "nft-6", Owner: testAddr(1), Status: domain.NFTStatusListed}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	f.wallet.as(testAddr(2))
	f.escrows.fundErr = domain.PermanentErr("payment failed after retries", nil)
	_, err := f.engine.MakeOffer(ctx, "nft-6", 500_000_000, "SOL", time.Time{})
	if err == nil {
		t.Fatal("Expected MakeOffer to fail, got nil")
	}

	offers, _ := f.offers.ListByNFT(ctx, "nft-6")
	if len(offers) != 1 {
		t.Fatalf("Expected 1 offer on record, got %d", len(offers))
	}
	if offers[0].Status != domain.OfferStatusCancelled {
		t.Errorf("Expected voided offer %q, got %q", domain.OfferStatusCancelled, offers[0].Status)
	}
	if got := f.escrows.status(offers[0].EscrowID); got != domain.EscrowStatusCancelled {
		t.Errorf("Expected voided escrow cancelled, got %q", got)
	}
}

func TestAcceptOfferSellsOnce(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	seller := testAddr(1)
	if err := f.nfts.Upsert(ctx, domain.NFT{ID: "nft-4", Owner: seller, Status: domain.NFTStatusListed}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	f.wallet.as(testAddr(2))
	first, err := f.engine.MakeOffer(ctx, "nft-4", 500_000_000, "SOL", time.Time{})
	if err != nil {
		t.Fatalf("MakeOffer failed: %v", err)
	}
	f.wallet.as(testAddr(3))
	second, err := f.engine.MakeOffer(ctx, "nft-4", 600_000_000, "SOL", time.Time{})
	if err != nil {
		t.Fatalf("MakeOffer failed: %v", err)
	}

	accepted, err := f.engine.AcceptOffer(ctx, first.ID)
	if err != nil {
		t.Fatalf("AcceptOffer failed: %v", err)
	}
	if accepted.Status != domain.OfferStatusAccepted {
		t.Errorf("Expected status %q, got %q", domain.OfferStatusAccepted, accepted.Status)
	}
	if got := f.escrows.status(first.EscrowID); got != domain.EscrowStatusReleased {
		t.Errorf("Expected accepted escrow released, got %q", got)
	}
	nft, _ := f.nfts.GetByID(ctx, "nft-4")
	if nft.Status != domain.NFTStatusSold {
		t.Errorf("Expected nft status %q, got %q", domain.NFTStatusSold, nft.Status)
	}

	// The NFT already reads sold; no second offer can ever be accepted.
	_, err = f.engine.AcceptOffer(ctx, second.ID)
	if domain.CodeOf(err) != domain.CodeNFTSold {
		t.Errorf("Expected code %q, got %v", domain.CodeNFTSold, err)
	}
	if got := f.escrows.status(second.EscrowID); got != domain.EscrowStatusFunded {
		t.Errorf("Expected second escrow untouched, got %q", got)
	}
}

func TestAcceptOfferRefusesAuctionBid(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	f.wallet.as(testAddr(2))
	bid, err := f.engine.PlaceBid(ctx, a.ID, 1_500_000_000)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	// A bid settles only through its auction; the buy-now path refuses it.
	_, err = f.engine.AcceptOffer(ctx, bid.ID)
	if domain.CodeOf(err) != domain.CodeInvalidAuctionStatus {
		t.Errorf("Expected code %q, got %v", domain.CodeInvalidAuctionStatus, err)
	}
	if got := f.escrows.status(bid.EscrowID); got != domain.EscrowStatusFunded {
		t.Errorf("Expected bid escrow still funded, got %q", got)
	}
	nft, _ := f.nfts.GetByID(ctx, a.NFTID)
	if nft.Status != domain.NFTStatusAuction {
		t.Errorf("Expected nft still in auction, got %q", nft.Status)
	}

	// EndAuction remains the one path that settles the bid.
	if _, err := f.engine.EndAuction(ctx, a.ID); err != nil {
		t.Fatalf("EndAuction failed: %v", err)
	}
	if got := f.escrows.status(bid.EscrowID); got != domain.EscrowStatusReleased {
		t.Errorf("Expected winning escrow released, got %q", got)
	}
}

func TestRejectOfferRefusesAuctionBid(t *testing.T) {
	f := newEngineFixture()
	a := f.createAuction(t, 1_000_000_000)
	ctx := context.Background()

	f.wallet.as(testAddr(2))
	bid, err := f.engine.PlaceBid(ctx, a.ID, 1_500_000_000)
	if err != nil {
		t.Fatalf("PlaceBid failed: %v", err)
	}

	// Rejecting the winning bid directly would cancel its escrow and strand
	// the auction at EndAuction time.
	_, err = f.engine.RejectOffer(ctx, bid.ID)
	if domain.CodeOf(err) != domain.CodeInvalidAuctionStatus {
		t.Errorf("Expected code %q, got %v", domain.CodeInvalidAuctionStatus, err)
	}
	if got := f.escrows.status(bid.EscrowID); got != domain.EscrowStatusFunded {
		t.Errorf("Expected bid escrow still funded, got %q", got)
	}
	stored, _ := f.offers.GetByID(ctx, bid.ID)
	if stored.Status != domain.OfferStatusActive {
		t.Errorf("Expected bid still active, got %q", stored.Status)
	}
}

func TestRejectOfferRefundsBidder(t *testing.T) {
	f := newEngineFixture()
	ctx := context.Background()

	if err := f.nfts.Upsert(ctx, domain.NFT{ID: "nft-5", Owner: testAddr(1), Status: domain.NFTStatusListed}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	f.wallet.as(testAddr(2))
	offer, err := f.engine.MakeOffer(ctx, "nft-5", 500_000_000, "SOL", time.Time{})
	if err != nil {
		t.Fatalf("MakeOffer failed: %v", err)
	}

	rejected, err := f.engine.RejectOffer(ctx, offer.ID)
	if err != nil {
		t.Fatalf("RejectOffer failed: %v", err)
	}
	if rejected.Status != domain.OfferStatusRejected {
		t.Errorf("Expected status %q, got %q", domain.OfferStatusRejected, rejected.Status)
	}
	if got := f.escrows.status(offer.EscrowID); got != domain.EscrowStatusCancelled {
		t.Errorf("Expected escrow cancelled, got %q", got)
	}

	// Rejecting a settled offer is refused.
	_, err = f.engine.RejectOffer(ctx, offer.ID)
	if domain.CodeOf(err) != domain.CodeInvalidEscrowStatus {
		t.Errorf("Expected code %q, got %v", domain.CodeInvalidEscrowStatus, err)
	}
}
