package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// Retryer schedules a bounded re-submission of a failed request. Implemented
// by the Scheduler; declared here so the processor does not depend on the
// concrete queue.
type Retryer interface {
	Enqueue(ctx context.Context, req domain.PaymentRequest) error
}

// Config holds processor tuning knobs.
type Config struct {
	// ConfirmTimeout bounds a single submit-and-confirm attempt.
	ConfirmTimeout time.Duration
	// FeeBufferLamports is added to the amount for the balance check.
	FeeBufferLamports int64
	// MaxRetries caps automatic resubmissions of a connectivity failure.
	MaxRetries int
	// StatusPollInterval is the confirmation polling cadence.
	StatusPollInterval time.Duration
	// SubmitRatePerSec bounds outbound RPC submissions; 0 disables the check.
	SubmitRatePerSec int
}

// withDefaults fills zero fields with production defaults.
func (c Config) withDefaults() Config {
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 60 * time.Second
	}
	if c.FeeBufferLamports <= 0 {
		c.FeeBufferLamports = 10_000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.StatusPollInterval <= 0 {
		c.StatusPollInterval = 2 * time.Second
	}
	return c
}

// Processor orchestrates validate -> sign -> submit -> confirm for payment
// intents and owns the append-only payment history. A given request id never
// has two in-flight attempts; duplicates are rejected.
type Processor struct {
	cfg       Config
	validator *Validator
	wallet    domain.Wallet
	gateway   domain.Gateway
	payments  domain.PaymentStore
	audit     domain.AuditStore
	bus       domain.EventBus
	limiter   domain.RateLimiter
	retryer   Retryer
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]bool
	waiters  map[string][]chan domain.PaymentRecord
}

// NewProcessor creates a Processor. audit, bus, and limiter may be nil; the
// corresponding side effects are skipped.
func NewProcessor(
	cfg Config,
	validator *Validator,
	wallet domain.Wallet,
	gateway domain.Gateway,
	payments domain.PaymentStore,
	audit domain.AuditStore,
	bus domain.EventBus,
	limiter domain.RateLimiter,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		cfg:       cfg.withDefaults(),
		validator: validator,
		wallet:    wallet,
		gateway:   gateway,
		payments:  payments,
		audit:     audit,
		bus:       bus,
		limiter:   limiter,
		logger:    logger.With(slog.String("component", "payment_processor")),
		inflight:  make(map[string]bool),
		waiters:   make(map[string][]chan domain.PaymentRecord),
	}
}

// SetRetryer attaches the retry scheduler. Must be called before Submit; kept
// out of the constructor because the scheduler needs the processor too.
func (p *Processor) SetRetryer(r Retryer) {
	p.retryer = r
}

// Submit runs one submission attempt for req and resolves the outcome. It is
// the sole operation that suspends the caller awaiting network confirmation;
// each attempt is bounded by the configured confirmation timeout.
//
// Retryable failures below the retry budget are handed to the scheduler; the
// returned record then carries status pending alongside the typed error, and
// the final outcome is published exactly once on the event bus when the
// retries settle.
func (p *Processor) Submit(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error) {
	if err := p.acquire(req.ID); err != nil {
		return domain.PaymentRecord{}, err
	}
	defer p.release(req.ID)

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if err := p.payments.SaveRequest(ctx, req); err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("payment: save request %s: %w", req.ID, err)
	}

	return p.runAttempt(ctx, req)
}

// SubmitWait submits req and blocks until the final outcome, riding through
// automatic retries. Callers see either a terminal record or a typed failure.
func (p *Processor) SubmitWait(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error) {
	ch := p.addWaiter(req.ID)
	defer p.removeWaiter(req.ID, ch)

	rec, err := p.Submit(ctx, req)
	if err == nil || !domain.IsRetryable(err) || rec.Status.Terminal() {
		return rec, err
	}

	// A retry is scheduled; wait for the terminal outcome.
	select {
	case <-ctx.Done():
		return rec, domain.ConnectivityErr(domain.CodeTimeout, "cancelled awaiting final outcome", ctx.Err())
	case final := <-ch:
		if final.Success {
			return final, nil
		}
		code := domain.ErrorCode(final.ErrorCode)
		if code == "" || code == domain.CodePermanentFailure {
			return final, domain.PermanentErr(
				fmt.Sprintf("payment %s failed after retries", req.ID), nil)
		}
		return final, domain.StateErr(code, fmt.Sprintf("payment %s failed", req.ID))
	}
}

// Resubmit is the scheduler's entry point for a drained retry. The request
// arrives with RetryCount already advanced.
func (p *Processor) Resubmit(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error) {
	if err := p.acquire(req.ID); err != nil {
		return domain.PaymentRecord{}, err
	}
	defer p.release(req.ID)

	// A stale queue entry must never resubmit a request that already settled:
	// a second on-chain transfer would double the spend.
	if last, lerr := p.payments.LatestRecord(ctx, req.ID); lerr == nil && last.Status.Terminal() {
		return last, nil
	}

	return p.runAttempt(ctx, req)
}

// runAttempt executes one attempt and settles its outcome: terminal record,
// or a scheduled retry with a pending record.
func (p *Processor) runAttempt(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error) {
	log := p.logger.With(
		slog.String("request_id", req.ID),
		slog.String("kind", string(req.Kind)),
		slog.Int("retry_count", req.RetryCount),
	)

	result, err := p.attempt(ctx, req)
	if err == nil {
		rec := p.record(req, domain.PaymentStatusConfirmed, result.Signature, result.FeeLamports, "")
		if aerr := p.payments.AppendRecord(ctx, rec); aerr != nil {
			return rec, fmt.Errorf("payment: append record %s: %w", req.ID, aerr)
		}
		log.Info("payment confirmed", slog.String("signature", result.Signature))
		p.auditLog(ctx, "payment.confirmed", req, rec)
		p.settle(ctx, rec)
		return rec, nil
	}

	if domain.IsRetryable(err) && req.RetryCount < p.cfg.MaxRetries && p.retryer != nil {
		rec := p.record(req, domain.PaymentStatusPending, result.Signature, 0, string(domain.CodeOf(err)))
		if aerr := p.payments.AppendRecord(ctx, rec); aerr != nil {
			return rec, fmt.Errorf("payment: append pending record %s: %w", req.ID, aerr)
		}
		if qerr := p.retryer.Enqueue(ctx, req); qerr != nil {
			log.Error("retry enqueue failed", slog.String("error", qerr.Error()))
			return p.fail(ctx, req, domain.PermanentErr("retry enqueue failed", qerr), log)
		}
		log.Warn("attempt failed, retry scheduled", slog.String("error", err.Error()))
		return rec, err
	}

	if domain.IsRetryable(err) {
		// Retry budget exhausted.
		err = domain.PermanentErr(
			fmt.Sprintf("gave up after %d attempts", req.RetryCount+1), err)
	}
	return p.fail(ctx, req, err, log)
}

// fail appends the terminal failure record and notifies subscribers once.
func (p *Processor) fail(ctx context.Context, req domain.PaymentRequest, err error, log *slog.Logger) (domain.PaymentRecord, error) {
	rec := p.record(req, domain.PaymentStatusFailed, "", 0, string(domain.CodeOf(err)))
	if aerr := p.payments.AppendRecord(ctx, rec); aerr != nil {
		log.Error("append failure record failed", slog.String("error", aerr.Error()))
	}
	log.Warn("payment failed", slog.String("error", err.Error()))
	p.auditLog(ctx, "payment.failed", req, rec)
	p.settle(ctx, rec)
	return rec, err
}

// attempt performs exactly one validate/sign/submit/confirm pass.
func (p *Processor) attempt(ctx context.Context, req domain.PaymentRequest) (domain.SubmitResult, error) {
	// Pre-flight runs on every attempt: balances and currency support may
	// have changed between retries.
	if err := p.validator.Validate(req); err != nil {
		return domain.SubmitResult{}, err
	}

	if p.wallet == nil || !p.wallet.Connected() {
		return domain.SubmitResult{}, domain.StateErr(domain.CodeWalletNotConnected, "wallet is not connected")
	}

	balance, err := p.wallet.Balance(ctx)
	if err != nil {
		return domain.SubmitResult{}, domain.ConnectivityErr(domain.CodeNetworkError, "balance query failed", err)
	}
	if balance < req.Lamports+p.cfg.FeeBufferLamports {
		return domain.SubmitResult{}, domain.FundsErr(
			fmt.Sprintf("balance %d below amount %d plus fee buffer %d",
				balance, req.Lamports, p.cfg.FeeBufferLamports))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()

	tx, err := p.buildTransaction(req)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	signed, err := p.wallet.SignTransaction(attemptCtx, tx)
	if err != nil {
		return domain.SubmitResult{}, p.classify(attemptCtx, err, "sign transaction")
	}

	if p.limiter != nil && p.cfg.SubmitRatePerSec > 0 {
		allowed, lerr := p.limiter.Allow(attemptCtx, "rpc:submit", p.cfg.SubmitRatePerSec, time.Second)
		if lerr != nil {
			return domain.SubmitResult{}, domain.ConnectivityErr(domain.CodeNetworkError, "rate limiter check failed", lerr)
		}
		if !allowed {
			return domain.SubmitResult{}, domain.ConnectivityErr(domain.CodeRateLimited, "outbound submission rate exceeded", nil)
		}
	}

	result, err := p.gateway.Submit(attemptCtx, signed)
	if err != nil {
		return result, p.classify(attemptCtx, err, "submit transaction")
	}

	if !result.Confirmed {
		if err := p.awaitConfirmation(attemptCtx, result.Signature); err != nil {
			return result, err
		}
		result.Confirmed = true
	}

	return result, nil
}

// buildTransaction dispatches to the kind-specific transfer shape.
func (p *Processor) buildTransaction(req domain.PaymentRequest) (domain.Transaction, error) {
	tx := domain.Transaction{
		From:     p.wallet.Address(),
		To:       req.Recipient,
		Lamports: req.Lamports,
		Memo:     req.Memo,
	}

	switch req.Kind {
	case domain.PaymentKindDirect:
		// Native SOL transfer straight to the recipient.
	case domain.PaymentKindToken:
		if req.Mint == "" {
			return domain.Transaction{}, domain.ValidationErr(domain.CodeInvalidAddress,
				"token payment requires a mint address")
		}
		tx.Mint = req.Mint
	case domain.PaymentKindEscrow, domain.PaymentKindAuctionBid:
		if req.EscrowID == "" {
			return domain.Transaction{}, domain.StateErr(domain.CodeEscrowNotFound,
				"escrow payment carries no escrow id")
		}
		if tx.Memo == "" {
			tx.Memo = "escrow:" + req.EscrowID
		}
	default:
		return domain.Transaction{}, domain.ValidationErr(domain.CodeInvalidAmount,
			fmt.Sprintf("unknown payment kind %q", req.Kind))
	}

	return tx, nil
}

// awaitConfirmation polls the gateway until the transaction settles or the
// attempt deadline fires.
func (p *Processor) awaitConfirmation(ctx context.Context, signature string) error {
	ticker := time.NewTicker(p.cfg.StatusPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.classify(ctx, ctx.Err(), "await confirmation")
		case <-ticker.C:
			status, err := p.gateway.GetStatus(ctx, signature)
			if err != nil {
				return p.classify(ctx, err, "confirmation status")
			}
			switch status {
			case domain.TxStatusConfirmed, domain.TxStatusFinalized:
				return nil
			case domain.TxStatusFailed:
				return domain.ConnectivityErr(domain.CodeTxFailed,
					fmt.Sprintf("transaction %s failed on chain", signature), nil)
			}
		}
	}
}

// classify maps a raw failure to the error taxonomy. Typed domain errors pass
// through; deadline expiry becomes a retryable timeout; everything else is a
// retryable generic transaction failure.
func (p *Processor) classify(ctx context.Context, err error, op string) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ConnectivityErr(domain.CodeTimeout, op+" timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return domain.ConnectivityErr(domain.CodeTimeout, op+" cancelled", err)
	}
	return domain.ConnectivityErr(domain.CodeTxFailed, op+" failed", err)
}

// record builds a history row for req.
func (p *Processor) record(req domain.PaymentRequest, status domain.PaymentStatus, sig string, fee int64, code string) domain.PaymentRecord {
	return domain.PaymentRecord{
		ID:          uuid.New().String(),
		RequestID:   req.ID,
		Success:     status == domain.PaymentStatusConfirmed,
		TxSignature: sig,
		Status:      status,
		FeeLamports: fee,
		ErrorCode:   code,
		Timestamp:   time.Now().UTC(),
	}
}

// settle publishes the terminal outcome exactly once and wakes waiters.
func (p *Processor) settle(ctx context.Context, rec domain.PaymentRecord) {
	if p.bus != nil {
		payload, err := json.Marshal(rec)
		if err == nil {
			if perr := p.bus.Publish(ctx, domain.ChannelPayments, payload); perr != nil {
				p.logger.Warn("outcome publish failed",
					slog.String("request_id", rec.RequestID),
					slog.String("error", perr.Error()))
			}
		}
	}

	p.mu.Lock()
	chans := p.waiters[rec.RequestID]
	delete(p.waiters, rec.RequestID)
	p.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- rec:
		default:
		}
	}
}

func (p *Processor) auditLog(ctx context.Context, event string, req domain.PaymentRequest, rec domain.PaymentRecord) {
	if p.audit == nil {
		return
	}
	detail := map[string]any{
		"request_id": req.ID,
		"kind":       string(req.Kind),
		"lamports":   req.Lamports,
		"recipient":  req.Recipient,
		"status":     string(rec.Status),
		"signature":  rec.TxSignature,
	}
	if rec.ErrorCode != "" {
		detail["error_code"] = rec.ErrorCode
	}
	if err := p.audit.Log(ctx, event, detail); err != nil {
		p.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
}

// History lists payment records, newest first.
func (p *Processor) History(ctx context.Context, opts domain.ListOpts) ([]domain.PaymentRecord, error) {
	return p.payments.ListHistory(ctx, opts)
}

// Record returns the latest record for a request id.
func (p *Processor) Record(ctx context.Context, requestID string) (domain.PaymentRecord, error) {
	return p.payments.LatestRecord(ctx, requestID)
}

// Reconcile re-checks every request left without a terminal record against
// actual on-chain status: already-confirmed transfers are resumed, everything
// else is resubmitted as a fresh retry. Called once at startup.
func (p *Processor) Reconcile(ctx context.Context) error {
	pending, err := p.payments.ListUnresolved(ctx)
	if err != nil {
		return fmt.Errorf("payment: list unresolved: %w", err)
	}

	for _, rec := range pending {
		log := p.logger.With(slog.String("request_id", rec.RequestID))

		if rec.TxSignature != "" {
			status, serr := p.gateway.GetStatus(ctx, rec.TxSignature)
			if serr == nil && (status == domain.TxStatusConfirmed || status == domain.TxStatusFinalized) {
				confirmed := rec
				confirmed.ID = uuid.New().String()
				confirmed.Success = true
				confirmed.Status = domain.PaymentStatusConfirmed
				confirmed.ErrorCode = ""
				confirmed.Timestamp = time.Now().UTC()
				if aerr := p.payments.AppendRecord(ctx, confirmed); aerr != nil {
					log.Error("reconcile append failed", slog.String("error", aerr.Error()))
					continue
				}
				log.Info("reconciled as confirmed", slog.String("signature", rec.TxSignature))
				p.settle(ctx, confirmed)
				continue
			}
		}

		req, gerr := p.payments.GetRequest(ctx, rec.RequestID)
		if gerr != nil {
			log.Error("reconcile request lookup failed", slog.String("error", gerr.Error()))
			continue
		}
		if p.retryer == nil {
			log.Warn("no retry scheduler attached, leaving request unresolved")
			continue
		}
		if qerr := p.retryer.Enqueue(ctx, req); qerr != nil {
			log.Error("reconcile enqueue failed", slog.String("error", qerr.Error()))
			continue
		}
		log.Info("reconciled as fresh retry", slog.Int("retry_count", req.RetryCount))
	}

	return nil
}

// acquire marks a request id in flight, rejecting duplicates.
func (p *Processor) acquire(id string) error {
	if id == "" {
		return domain.ValidationErr(domain.CodeInvalidRecipient, "request id is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[id] {
		return domain.StateErr(domain.CodeDuplicateRequest,
			fmt.Sprintf("request %s already has an attempt in flight", id))
	}
	p.inflight[id] = true
	return nil
}

func (p *Processor) release(id string) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

func (p *Processor) addWaiter(id string) chan domain.PaymentRecord {
	ch := make(chan domain.PaymentRecord, 1)
	p.mu.Lock()
	p.waiters[id] = append(p.waiters[id], ch)
	p.mu.Unlock()
	return ch
}

func (p *Processor) removeWaiter(id string, ch chan domain.PaymentRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	chans := p.waiters[id]
	for i, c := range chans {
		if c == ch {
			p.waiters[id] = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(p.waiters[id]) == 0 {
		delete(p.waiters, id)
	}
}
