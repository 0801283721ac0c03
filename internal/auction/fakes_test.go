package auction

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

func testAddr(tag byte) string {
	raw := make([]byte, 32)
	raw[0] = tag
	return base58.Encode(raw)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubWallet is a domain.Wallet whose address can be swapped to act as
// different bidders.
type stubWallet struct {
	mu        sync.Mutex
	connected bool
	addr      string
}

func newStubWallet(addr string) *stubWallet {
	return &stubWallet{connected: true, addr: addr}
}

func (w *stubWallet) as(addr string) {
	w.mu.Lock()
	w.addr = addr
	w.mu.Unlock()
}

func (w *stubWallet) Connect(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
	return w.addr, nil
}

func (w *stubWallet) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *stubWallet) Address() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.addr
}

func (w *stubWallet) SignTransaction(ctx context.Context, tx domain.Transaction) (domain.SignedTransaction, error) {
	return domain.SignedTransaction{Payload: []byte("signed")}, nil
}

func (w *stubWallet) Balance(ctx context.Context) (int64, error) {
	return 0, nil
}

func (w *stubWallet) Disconnect() {
	w.mu.Lock()
	w.connected = false
	w.mu.Unlock()
}

// fakeEscrowService keeps escrow accounts in memory and applies the real
// lifecycle rules, so the engine's fund-then-commit ordering is observable.
type fakeEscrowService struct {
	mu       sync.Mutex
	accts    map[string]*domain.EscrowAccount
	seq      int
	releases int
	cancels  int

	fundErr    error
	releaseErr error
}

func newFakeEscrowService() *fakeEscrowService {
	return &fakeEscrowService{accts: make(map[string]*domain.EscrowAccount)}
}

func (s *fakeEscrowService) Create(ctx context.Context, lamports int64, currency, buyer, seller string, expiresAt time.Time) (domain.EscrowAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	acct := &domain.EscrowAccount{
		ID:        fmt.Sprintf("esc-%d", s.seq),
		Address:   testAddr(byte(100 + s.seq)),
		Lamports:  lamports,
		Currency:  currency,
		Buyer:     buyer,
		Seller:    seller,
		Status:    domain.EscrowStatusCreated,
		ExpiresAt: expiresAt,
	}
	s.accts[acct.ID] = acct
	return *acct, nil
}

func (s *fakeEscrowService) Fund(ctx context.Context, escrowID string, kind domain.PaymentKind) (domain.EscrowAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accts[escrowID]
	if !ok {
		return domain.EscrowAccount{}, domain.StateErr(domain.CodeEscrowNotFound, "unknown escrow")
	}
	if s.fundErr != nil {
		return *acct, s.fundErr
	}
	if acct.Status != domain.EscrowStatusCreated {
		return *acct, domain.StateErr(domain.CodeInvalidEscrowStatus, "funding requires created")
	}
	acct.Status = domain.EscrowStatusFunded
	acct.FundTxSig = "fund-" + escrowID
	return *acct, nil
}

func (s *fakeEscrowService) Release(ctx context.Context, escrowID string) (domain.EscrowAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accts[escrowID]
	if !ok {
		return domain.EscrowAccount{}, domain.StateErr(domain.CodeEscrowNotFound, "unknown escrow")
	}
	if s.releaseErr != nil {
		return *acct, s.releaseErr
	}
	if acct.Status == domain.EscrowStatusReleased {
		return *acct, nil
	}
	if acct.Status != domain.EscrowStatusFunded {
		return *acct, domain.StateErr(domain.CodeInvalidEscrowStatus, "release requires funded")
	}
	acct.Status = domain.EscrowStatusReleased
	s.releases++
	return *acct, nil
}

func (s *fakeEscrowService) Cancel(ctx context.Context, escrowID string) (domain.EscrowAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accts[escrowID]
	if !ok {
		return domain.EscrowAccount{}, domain.StateErr(domain.CodeEscrowNotFound, "unknown escrow")
	}
	if acct.Status.Terminal() {
		return *acct, domain.StateErr(domain.CodeInvalidEscrowStatus, "cancel requires created or funded")
	}
	acct.Status = domain.EscrowStatusCancelled
	s.cancels++
	return *acct, nil
}

func (s *fakeEscrowService) status(escrowID string) domain.EscrowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accts[escrowID]; ok {
		return acct.Status
	}
	return ""
}

// memAuctionStore is an in-memory domain.AuctionStore.
type memAuctionStore struct {
	mu       sync.Mutex
	auctions map[string]domain.Auction
}

func newMemAuctionStore() *memAuctionStore {
	return &memAuctionStore{auctions: make(map[string]domain.Auction)}
}

func (s *memAuctionStore) Create(ctx context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.auctions[a.ID] = a
	return nil
}

func (s *memAuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return domain.Auction{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memAuctionStore) Update(ctx context.Context, a domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.auctions[a.ID]; !ok {
		return domain.ErrNotFound
	}
	s.auctions[a.ID] = a
	return nil
}

func (s *memAuctionStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Auction
	for _, a := range s.auctions {
		if a.Status == domain.AuctionStatusActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memAuctionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// memOfferStore is an in-memory domain.OfferStore.
type memOfferStore struct {
	mu     sync.Mutex
	offers map[string]domain.Offer
}

func newMemOfferStore() *memOfferStore {
	return &memOfferStore{offers: make(map[string]domain.Offer)}
}

func (s *memOfferStore) Create(ctx context.Context, o domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.offers[o.ID] = o
	return nil
}

func (s *memOfferStore) GetByID(ctx context.Context, id string) (domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return domain.Offer{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *memOfferStore) Update(ctx context.Context, o domain.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.offers[o.ID]; !ok {
		return domain.ErrNotFound
	}
	s.offers[o.ID] = o
	return nil
}

func (s *memOfferStore) ListByNFT(ctx context.Context, nftID string) ([]domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Offer
	for _, o := range s.offers {
		if o.NFTID == nftID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memOfferStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Offer
	for _, o := range s.offers {
		if o.Status == domain.OfferStatusActive {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memOfferStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		out = append(out, o)
	}
	return out, nil
}

// memNFTStore is an in-memory domain.NFTStore.
type memNFTStore struct {
	mu   sync.Mutex
	nfts map[string]domain.NFT
}

func newMemNFTStore() *memNFTStore {
	return &memNFTStore{nfts: make(map[string]domain.NFT)}
}

func (s *memNFTStore) Upsert(ctx context.Context, n domain.NFT) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nfts[n.ID] = n
	return nil
}

func (s *memNFTStore) GetByID(ctx context.Context, id string) (domain.NFT, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nfts[id]
	if !ok {
		return domain.NFT{}, domain.ErrNotFound
	}
	return n, nil
}

func (s *memNFTStore) UpdateStatus(ctx context.Context, id string, status domain.NFTStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nfts[id]
	if !ok {
		return domain.ErrNotFound
	}
	n.Status = status
	s.nfts[id] = n
	return nil
}

func (s *memNFTStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.NFT, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.NFT, 0, len(s.nfts))
	for _, n := range s.nfts {
		out = append(out, n)
	}
	return out, nil
}
