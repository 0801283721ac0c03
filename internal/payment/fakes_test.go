package payment

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/mr-tron/base58"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// testAddr builds a valid base58 address from a tag byte.
func testAddr(tag byte) string {
	raw := make([]byte, 32)
	raw[0] = tag
	return base58.Encode(raw)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeWallet is a scriptable domain.Wallet.
type fakeWallet struct {
	mu           sync.Mutex
	connected    bool
	address      string
	balance      int64
	balanceErr   error
	balanceCalls int
	signCalls    int
}

func newFakeWallet(balance int64) *fakeWallet {
	return &fakeWallet{connected: true, address: testAddr(1), balance: balance}
}

func (w *fakeWallet) Connect(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
	return w.address, nil
}

func (w *fakeWallet) Connected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *fakeWallet) Address() string { return w.address }

func (w *fakeWallet) SignTransaction(ctx context.Context, tx domain.Transaction) (domain.SignedTransaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signCalls++
	return domain.SignedTransaction{Payload: []byte("signed"), Signature: "sig-" + tx.To}, nil
}

func (w *fakeWallet) Balance(ctx context.Context) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balanceCalls++
	if w.balanceErr != nil {
		return 0, w.balanceErr
	}
	return w.balance, nil
}

func (w *fakeWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
}

// submitStep scripts one gateway submission outcome.
type submitStep struct {
	result domain.SubmitResult
	err    error
}

// fakeGateway is a scriptable domain.Gateway. Submit pops steps in order and
// repeats the last one when the script runs out.
type fakeGateway struct {
	mu          sync.Mutex
	steps       []submitStep
	submitCalls int
	statuses    map[string]domain.TxStatus
}

func newFakeGateway(steps ...submitStep) *fakeGateway {
	return &fakeGateway{steps: steps, statuses: make(map[string]domain.TxStatus)}
}

func (g *fakeGateway) Submit(ctx context.Context, tx domain.SignedTransaction) (domain.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitCalls++
	if len(g.steps) == 0 {
		return domain.SubmitResult{}, nil
	}
	step := g.steps[0]
	if len(g.steps) > 1 {
		g.steps = g.steps[1:]
	}
	return step.result, step.err
}

func (g *fakeGateway) GetStatus(ctx context.Context, signature string) (domain.TxStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if st, ok := g.statuses[signature]; ok {
		return st, nil
	}
	return domain.TxStatusConfirmed, nil
}

func (g *fakeGateway) CreateEscrowAccount(ctx context.Context, spec domain.EscrowSpec) (string, error) {
	return testAddr(200), nil
}

func (g *fakeGateway) Transfer(ctx context.Context, escrowAddress, to string, lamports int64) (string, error) {
	return "transfer-sig", nil
}

func (g *fakeGateway) Balance(ctx context.Context, address string) (int64, error) {
	return 0, nil
}

func (g *fakeGateway) submits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submitCalls
}

// memPaymentStore is an in-memory domain.PaymentStore.
type memPaymentStore struct {
	mu       sync.Mutex
	requests map[string]domain.PaymentRequest
	records  []domain.PaymentRecord
}

func newMemPaymentStore() *memPaymentStore {
	return &memPaymentStore{requests: make(map[string]domain.PaymentRequest)}
}

func (s *memPaymentStore) SaveRequest(ctx context.Context, req domain.PaymentRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *memPaymentStore) GetRequest(ctx context.Context, id string) (domain.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}
	return req, nil
}

func (s *memPaymentStore) ListRequests(ctx context.Context, opts domain.ListOpts) ([]domain.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PaymentRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memPaymentStore) AppendRecord(ctx context.Context, rec domain.PaymentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *memPaymentStore) LatestRecord(ctx context.Context, requestID string) (domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].RequestID == requestID {
			return s.records[i], nil
		}
	}
	return domain.PaymentRecord{}, domain.ErrNotFound
}

func (s *memPaymentStore) ListRecords(ctx context.Context, requestID string) ([]domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentRecord
	for _, rec := range s.records {
		if rec.RequestID == requestID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memPaymentStore) ListUnresolved(ctx context.Context) ([]domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[string]domain.PaymentRecord)
	for _, rec := range s.records {
		latest[rec.RequestID] = rec
	}
	var out []domain.PaymentRecord
	for _, rec := range latest {
		if !rec.Status.Terminal() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memPaymentStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.PaymentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.PaymentRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

func (s *memPaymentStore) recordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeRetryer records enqueued requests without executing them.
type fakeRetryer struct {
	mu       sync.Mutex
	enqueued []domain.PaymentRequest
}

func (r *fakeRetryer) Enqueue(ctx context.Context, req domain.PaymentRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueued = append(r.enqueued, req)
	return nil
}

func (r *fakeRetryer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.enqueued)
}

// memRetryStore is an in-memory domain.RetryQueueStore.
type memRetryStore struct {
	mu      sync.Mutex
	entries map[string]domain.RetryEntry
	puts    int
	deletes int
}

func newMemRetryStore() *memRetryStore {
	return &memRetryStore{entries: make(map[string]domain.RetryEntry)}
}

func (s *memRetryStore) Put(ctx context.Context, e domain.RetryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Request.ID] = e
	s.puts++
	return nil
}

func (s *memRetryStore) Delete(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, requestID)
	s.deletes++
	return nil
}

func (s *memRetryStore) List(ctx context.Context) ([]domain.RetryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RetryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	return out, nil
}

func (s *memRetryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fakeResubmitter records drained retries and signals each arrival.
type fakeResubmitter struct {
	mu     sync.Mutex
	got    []domain.PaymentRequest
	signal chan struct{}
}

func newFakeResubmitter() *fakeResubmitter {
	return &fakeResubmitter{signal: make(chan struct{}, 16)}
}

func (r *fakeResubmitter) Resubmit(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error) {
	r.mu.Lock()
	r.got = append(r.got, req)
	r.mu.Unlock()
	r.signal <- struct{}{}
	return domain.PaymentRecord{RequestID: req.ID, Status: domain.PaymentStatusConfirmed, Success: true}, nil
}

func (r *fakeResubmitter) requests() []domain.PaymentRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.PaymentRequest, len(r.got))
	copy(out, r.got)
	return out
}
