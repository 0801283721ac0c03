// Package escrow manages escrow account lifecycles on top of the payment
// processor: create -> fund -> release, or cancel with reimbursement.
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/keylock"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/payment"
)

// Funder submits an escrow-funding payment and rides through its retries.
// Implemented by the payment processor.
type Funder interface {
	SubmitWait(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error)
}

// Config holds ledger tuning knobs.
type Config struct {
	// ConfirmTimeout bounds release/refund transfer confirmation.
	ConfirmTimeout time.Duration
	// StatusPollInterval is the confirmation polling cadence.
	StatusPollInterval time.Duration
	// LockTTL bounds cross-process lock tenure.
	LockTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 60 * time.Second
	}
	if c.StatusPollInterval <= 0 {
		c.StatusPollInterval = 2 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	return c
}

// Ledger owns the escrow table. Status only moves forward; once an account is
// released or cancelled every further mutation fails. All fund movement goes
// through the payment processor or the RPC gateway, and a transition is only
// recorded after its dependent transfer has confirmed on chain.
type Ledger struct {
	cfg     Config
	store   domain.EscrowStore
	gateway domain.Gateway
	funder  Funder
	locks   *keylock.KeyedMutex
	lockMgr domain.LockManager
	audit   domain.AuditStore
	bus     domain.EventBus
	logger  *slog.Logger
}

// NewLedger creates a Ledger. lockMgr, audit, and bus may be nil.
func NewLedger(
	cfg Config,
	store domain.EscrowStore,
	gateway domain.Gateway,
	funder Funder,
	lockMgr domain.LockManager,
	audit domain.AuditStore,
	bus domain.EventBus,
	logger *slog.Logger,
) *Ledger {
	return &Ledger{
		cfg:     cfg.withDefaults(),
		store:   store,
		gateway: gateway,
		funder:  funder,
		locks:   keylock.New(),
		lockMgr: lockMgr,
		audit:   audit,
		bus:     bus,
		logger:  logger.With(slog.String("component", "escrow_ledger")),
	}
}

// Create derives an on-chain escrow account and records it in status created.
func (l *Ledger) Create(ctx context.Context, lamports int64, currency, buyer, seller string, expiresAt time.Time) (domain.EscrowAccount, error) {
	if lamports <= 0 {
		return domain.EscrowAccount{}, domain.ValidationErr(domain.CodeInvalidAmount,
			fmt.Sprintf("escrow amount must be positive, got %d lamports", lamports))
	}
	if !payment.ValidAddress(buyer) {
		return domain.EscrowAccount{}, domain.ValidationErr(domain.CodeInvalidAddress,
			fmt.Sprintf("buyer %q is not a valid address", buyer))
	}
	if !payment.ValidAddress(seller) {
		return domain.EscrowAccount{}, domain.ValidationErr(domain.CodeInvalidAddress,
			fmt.Sprintf("seller %q is not a valid address", seller))
	}

	id := uuid.New().String()
	address, err := l.gateway.CreateEscrowAccount(ctx, domain.EscrowSpec{
		EscrowID: id,
		Buyer:    buyer,
		Seller:   seller,
		Lamports: lamports,
	})
	if err != nil {
		return domain.EscrowAccount{}, domain.ConnectivityErr(domain.CodeNetworkError,
			"escrow account derivation failed", err)
	}

	now := time.Now().UTC()
	acct := domain.EscrowAccount{
		ID:        id,
		Address:   address,
		Lamports:  lamports,
		Currency:  currency,
		Buyer:     buyer,
		Seller:    seller,
		Status:    domain.EscrowStatusCreated,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		UpdatedAt: now,
	}
	if err := l.store.Create(ctx, acct); err != nil {
		return domain.EscrowAccount{}, fmt.Errorf("escrow: create %s: %w", id, err)
	}

	l.logger.Info("escrow created",
		slog.String("escrow_id", id),
		slog.Int64("lamports", lamports),
	)
	l.emit(ctx, "escrow.created", acct)
	return acct, nil
}

// Fund moves the buyer's funds into the escrow account through the payment
// processor, riding through automatic retries. Success moves created ->
// funded; any failure leaves the account in created so the caller may retry.
func (l *Ledger) Fund(ctx context.Context, escrowID string, kind domain.PaymentKind) (domain.EscrowAccount, error) {
	unlock, err := l.lock(ctx, escrowID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	defer unlock()

	acct, err := l.get(ctx, escrowID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	if acct.Status != domain.EscrowStatusCreated {
		return acct, domain.StateErr(domain.CodeInvalidEscrowStatus,
			fmt.Sprintf("escrow %s is %s, funding requires created", escrowID, acct.Status))
	}

	if kind == "" {
		kind = domain.PaymentKindEscrow
	}
	req := domain.PaymentRequest{
		ID:        uuid.New().String(),
		Kind:      kind,
		Lamports:  acct.Lamports,
		Currency:  acct.Currency,
		Recipient: acct.Address,
		EscrowID:  acct.ID,
		ExpiresAt: acct.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	rec, err := l.funder.SubmitWait(ctx, req)
	if err != nil {
		l.logger.Warn("escrow funding failed",
			slog.String("escrow_id", escrowID),
			slog.String("error", err.Error()),
		)
		return acct, err
	}

	if terr := l.store.Transition(ctx, escrowID, domain.EscrowStatusCreated, domain.EscrowStatusFunded, rec.TxSignature); terr != nil {
		return acct, l.transitionErr(escrowID, domain.EscrowStatusFunded, terr)
	}

	acct.Status = domain.EscrowStatusFunded
	acct.FundTxSig = rec.TxSignature
	acct.UpdatedAt = time.Now().UTC()

	l.logger.Info("escrow funded",
		slog.String("escrow_id", escrowID),
		slog.String("signature", rec.TxSignature),
	)
	l.auditLog(ctx, "escrow.funded", acct)
	l.emit(ctx, "escrow.funded", acct)
	return acct, nil
}

// Release pays the escrowed funds out to the seller. It requires status
// funded; the status flips only after the on-chain transfer has confirmed.
// Releasing an already-released escrow is an idempotent no-op success and
// never issues a second transfer.
func (l *Ledger) Release(ctx context.Context, escrowID string) (domain.EscrowAccount, error) {
	unlock, err := l.lock(ctx, escrowID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	defer unlock()

	acct, err := l.get(ctx, escrowID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	switch acct.Status {
	case domain.EscrowStatusReleased:
		return acct, nil
	case domain.EscrowStatusFunded:
		// Proceed.
	default:
		return acct, domain.StateErr(domain.CodeInvalidEscrowStatus,
			fmt.Sprintf("escrow %s is %s, release requires funded", escrowID, acct.Status))
	}

	sig, err := l.transfer(ctx, acct.Address, acct.Seller, acct.Lamports)
	if err != nil {
		return acct, err
	}

	if terr := l.store.Transition(ctx, escrowID, domain.EscrowStatusFunded, domain.EscrowStatusReleased, sig); terr != nil {
		return acct, l.transitionErr(escrowID, domain.EscrowStatusReleased, terr)
	}

	acct.Status = domain.EscrowStatusReleased
	acct.ReleaseTxSig = sig
	acct.UpdatedAt = time.Now().UTC()

	l.logger.Info("escrow released",
		slog.String("escrow_id", escrowID),
		slog.String("signature", sig),
	)
	l.auditLog(ctx, "escrow.released", acct)
	l.emit(ctx, "escrow.released", acct)
	return acct, nil
}

// Cancel voids an escrow from created or funded. A funded escrow reimburses
// the buyer before the status flips.
func (l *Ledger) Cancel(ctx context.Context, escrowID string) (domain.EscrowAccount, error) {
	unlock, err := l.lock(ctx, escrowID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	defer unlock()

	acct, err := l.get(ctx, escrowID)
	if err != nil {
		return domain.EscrowAccount{}, err
	}

	var sig string
	switch acct.Status {
	case domain.EscrowStatusCreated:
		// Nothing on chain to reverse.
	case domain.EscrowStatusFunded:
		sig, err = l.transfer(ctx, acct.Address, acct.Buyer, acct.Lamports)
		if err != nil {
			return acct, err
		}
	default:
		return acct, domain.StateErr(domain.CodeInvalidEscrowStatus,
			fmt.Sprintf("escrow %s is %s, cancel requires created or funded", escrowID, acct.Status))
	}

	if terr := l.store.Transition(ctx, escrowID, acct.Status, domain.EscrowStatusCancelled, sig); terr != nil {
		return acct, l.transitionErr(escrowID, domain.EscrowStatusCancelled, terr)
	}

	acct.Status = domain.EscrowStatusCancelled
	acct.ReleaseTxSig = sig
	acct.UpdatedAt = time.Now().UTC()

	l.logger.Info("escrow cancelled", slog.String("escrow_id", escrowID))
	l.auditLog(ctx, "escrow.cancelled", acct)
	l.emit(ctx, "escrow.cancelled", acct)
	return acct, nil
}

// Get returns an escrow account.
func (l *Ledger) Get(ctx context.Context, escrowID string) (domain.EscrowAccount, error) {
	return l.get(ctx, escrowID)
}

// List returns escrow accounts.
func (l *Ledger) List(ctx context.Context, opts domain.ListOpts) ([]domain.EscrowAccount, error) {
	return l.store.List(ctx, opts)
}

// transfer moves lamports out of the escrow account and blocks until the
// transfer has confirmed on chain.
func (l *Ledger) transfer(ctx context.Context, from, to string, lamports int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ConfirmTimeout)
	defer cancel()

	sig, err := l.gateway.Transfer(ctx, from, to, lamports)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return "", de
		}
		return "", domain.ConnectivityErr(domain.CodeNetworkError, "escrow transfer failed", err)
	}

	ticker := time.NewTicker(l.cfg.StatusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", domain.ConnectivityErr(domain.CodeTimeout,
				fmt.Sprintf("transfer %s unconfirmed before deadline", sig), ctx.Err())
		case <-ticker.C:
			status, serr := l.gateway.GetStatus(ctx, sig)
			if serr != nil {
				return "", domain.ConnectivityErr(domain.CodeNetworkError, "transfer status query failed", serr)
			}
			switch status {
			case domain.TxStatusConfirmed, domain.TxStatusFinalized:
				return sig, nil
			case domain.TxStatusFailed:
				return "", domain.ConnectivityErr(domain.CodeTxFailed,
					fmt.Sprintf("transfer %s failed on chain", sig), nil)
			}
		}
	}
}

func (l *Ledger) get(ctx context.Context, escrowID string) (domain.EscrowAccount, error) {
	acct, err := l.store.GetByID(ctx, escrowID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.EscrowAccount{}, domain.StateErr(domain.CodeEscrowNotFound,
				fmt.Sprintf("escrow %s does not exist", escrowID))
		}
		return domain.EscrowAccount{}, fmt.Errorf("escrow: get %s: %w", escrowID, err)
	}
	return acct, nil
}

// lock serializes mutation of one escrow id, in process and across
// instances when a lock manager is wired.
func (l *Ledger) lock(ctx context.Context, escrowID string) (func(), error) {
	local := l.locks.Lock(escrowID)
	if l.lockMgr == nil {
		return local, nil
	}
	remote, err := l.lockMgr.Acquire(ctx, "escrow:"+escrowID, l.cfg.LockTTL)
	if err != nil {
		local()
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, domain.StateErr(domain.CodeInvalidEscrowStatus,
				fmt.Sprintf("escrow %s is locked by another operation", escrowID))
		}
		return nil, fmt.Errorf("escrow: lock %s: %w", escrowID, err)
	}
	return func() {
		remote()
		local()
	}, nil
}

// transitionErr maps a failed status CAS to the taxonomy.
func (l *Ledger) transitionErr(escrowID string, to domain.EscrowStatus, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.StateErr(domain.CodeInvalidEscrowStatus,
			fmt.Sprintf("escrow %s changed state before the %s transition", escrowID, to))
	}
	return fmt.Errorf("escrow: transition %s to %s: %w", escrowID, to, err)
}

func (l *Ledger) auditLog(ctx context.Context, event string, acct domain.EscrowAccount) {
	if l.audit == nil {
		return
	}
	err := l.audit.Log(ctx, event, map[string]any{
		"escrow_id": acct.ID,
		"status":    string(acct.Status),
		"lamports":  acct.Lamports,
		"buyer":     acct.Buyer,
		"seller":    acct.Seller,
	})
	if err != nil {
		l.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
}

func (l *Ledger) emit(ctx context.Context, event string, acct domain.EscrowAccount) {
	if l.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"event": event, "escrow": acct})
	if err != nil {
		return
	}
	if perr := l.bus.Publish(ctx, domain.ChannelEscrows, payload); perr != nil {
		l.logger.Warn("event publish failed",
			slog.String("event", event),
			slog.String("error", perr.Error()))
	}
}
