package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ayo6706/stablesend/internal/callback"
	"github.com/ayo6706/stablesend/internal/chain"
	"github.com/ayo6706/stablesend/internal/correlation"
	"github.com/ayo6706/stablesend/internal/domain"
	"github.com/ayo6706/stablesend/internal/ens"
	"github.com/ayo6706/stablesend/internal/gateway"
	"github.com/ayo6706/stablesend/internal/models"
	"github.com/ayo6706/stablesend/internal/notify"
	"github.com/ayo6706/stablesend/internal/observability"
	"github.com/ayo6706/stablesend/internal/rates"
)

// Outcome is the distilled result of an external completion notification.
type Outcome struct {
	Success bool
	TxHash  string
}

// OrchestratorDeps carries the collaborators the orchestrator drives.
type OrchestratorDeps struct {
	Store       RecordStore
	Directory   UserDirectory
	Registry    *callback.Registry
	Gateway     gateway.Gateway
	Chain       chain.Source
	Attestation AttestationWaiter
	Rates       rates.Service
	ENS         ens.Resolver
	Notifier    notify.Notifier
}

// Orchestrator drives transfer records through the settlement pipeline. All
// mutations of a record happen under that record's lock, so user actions,
// webhook callbacks and attestation completions serialize per record while
// distinct records proceed in parallel.
type Orchestrator struct {
	store       RecordStore
	directory   UserDirectory
	registry    *callback.Registry
	gateway     gateway.Gateway
	chain       chain.Source
	attestation AttestationWaiter
	rates       rates.Service
	ens         ens.Resolver
	notifier    notify.Notifier

	locks recordLocks
	wg    sync.WaitGroup
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		store:       deps.Store,
		directory:   deps.Directory,
		registry:    deps.Registry,
		gateway:     deps.Gateway,
		chain:       deps.Chain,
		attestation: deps.Attestation,
		rates:       deps.Rates,
		ens:         deps.ENS,
		notifier:    deps.Notifier,
	}
}

// Wait blocks until background attestation tasks have drained. Called on
// shutdown.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// ProposeTransfer validates the requests and parks them behind a fresh
// confirmation token. Nothing is persisted or submitted until Confirm.
func (o *Orchestrator) ProposeTransfer(ctx context.Context, ownerID int64, requests []models.TransferRequest) (string, error) {
	if len(requests) == 0 {
		return "", invalid("request", "no transfers given")
	}

	sender, err := o.directory.UserByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", invalid("sender", "no wallet registered for this user")
		}
		return "", fmt.Errorf("look up sender: %w", err)
	}

	total := decimal.Zero
	for i := range requests {
		amountUSD, err := o.validateRequest(ctx, sender, &requests[i])
		if err != nil {
			return "", err
		}
		total = total.Add(amountUSD)
	}

	balance, err := o.gateway.USDCBalance(ctx, sender.Wallet.ID)
	if err != nil {
		return "", fmt.Errorf("check balance: %w", err)
	}
	if balance.LessThan(total) {
		return "", models.ErrInsufficientFunds
	}

	token := o.registry.Set(ownerID, requests)
	observability.SetPendingConfirmations(int64(o.registry.Len()))
	return token, nil
}

// Confirm consumes the token and starts the pipeline for each parked request:
// a record is persisted in its initial stage before any external call is made.
// A caller who does not own the token is rejected without consuming it.
func (o *Orchestrator) Confirm(ctx context.Context, token string, callerID, chatID, messageID int64) error {
	if err := o.verifyOwner(token, callerID); err != nil {
		return err
	}

	entry, err := o.registry.Take(token)
	if err != nil {
		return ErrNotFound
	}
	observability.SetPendingConfirmations(int64(o.registry.Len()))

	sender, err := o.directory.UserByID(ctx, entry.OwnerID)
	if err != nil {
		return fmt.Errorf("look up sender: %w", err)
	}

	var firstErr error
	for i := range entry.Requests {
		if err := o.startTransfer(ctx, sender, &entry.Requests[i], chatID, messageID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Cancel consumes the token without side effects.
func (o *Orchestrator) Cancel(_ context.Context, token string, callerID int64) error {
	if err := o.verifyOwner(token, callerID); err != nil {
		return err
	}
	if _, err := o.registry.Take(token); err != nil {
		return ErrNotFound
	}
	observability.SetPendingConfirmations(int64(o.registry.Len()))
	return nil
}

// verifyOwner translates registry ownership errors into service errors
// without consuming the token.
func (o *Orchestrator) verifyOwner(token string, callerID int64) error {
	switch err := o.registry.VerifyOwner(token, callerID); {
	case err == nil:
		return nil
	case errors.Is(err, callback.ErrNotOwner):
		return ErrNotOwner
	default:
		return ErrNotFound
	}
}

func (o *Orchestrator) startTransfer(ctx context.Context, sender *models.User, req *models.TransferRequest, chatID, messageID int64) error {
	rcpt, err := o.resolveRecipient(ctx, req)
	if err != nil {
		return err
	}
	amountUSD, err := o.usdAmount(ctx, req)
	if err != nil {
		return err
	}

	sourceChain := sender.Wallet.Blockchain
	destChain, err := destinationChain(sourceChain, req, rcpt)
	if err != nil {
		return err
	}
	kind := domain.SingleChain
	if destChain != sourceChain {
		kind = domain.CrossChain
	}

	rec := &models.TransferRecord{
		ID:                uuid.New(),
		OwnerID:           sender.ID,
		ChatID:            chatID,
		MessageID:         messageID,
		Kind:              kind,
		Stage:             domain.StageInitiated,
		Request:           *req,
		AmountUSD:         amountUSD,
		SourceChain:       sourceChain,
		DestinationChain:  destChain,
		SenderWalletID:    sender.Wallet.ID,
		RecipientAddress:  rcpt.address,
		RecipientWalletID: rcpt.walletID,
	}

	// The record must be durable before the first call that can echo its
	// correlation key, or a fast webhook could race record creation.
	if err := o.store.SaveTransfer(ctx, rec); err != nil {
		return fmt.Errorf("persist transfer record: %w", err)
	}

	unlock := o.locks.lock(rec.ID)
	defer unlock()

	if kind == domain.SingleChain {
		err = o.submitDirect(ctx, rec)
	} else {
		err = o.submitApproval(ctx, rec)
	}
	if err != nil {
		o.fail(ctx, rec, "submission failed")
		return fmt.Errorf("submit transfer %s: %w", rec.ID, err)
	}
	return nil
}

// AdvanceOnNotification applies a webhook outcome to the record the
// correlation key names. A notification whose encoded stage no longer matches
// the record's stage is a stale or duplicate delivery and is dropped.
func (o *Orchestrator) AdvanceOnNotification(ctx context.Context, key correlation.Key, outcome Outcome) error {
	unlock := o.locks.lock(key.ID)
	defer unlock()

	rec, err := o.store.GetTransfer(ctx, key.ID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: transfer %s", ErrNotFound, key.ID)
		}
		return fmt.Errorf("load transfer %s: %w", key.ID, err)
	}

	if rec.Stage != key.Stage {
		zap.L().Info("stale notification ignored",
			zap.String("transfer_id", key.ID.String()),
			zap.String("notified_stage", string(key.Stage)),
			zap.String("current_stage", string(rec.Stage)))
		return nil
	}

	if !outcome.Success {
		o.fail(ctx, rec, "on-chain step failed")
		return nil
	}

	switch key.Stage {
	case domain.StageInitiated:
		return o.finish(ctx, rec)
	case domain.StageApprovalSubmitted:
		if err := o.advance(ctx, rec, domain.StageApprovalConfirmed); err != nil {
			return err
		}
		if err := o.submitBurn(ctx, rec); err != nil {
			o.fail(ctx, rec, "burn submission failed")
		}
		return nil
	case domain.StageBurnSubmitted:
		rec.BurnTxHash = outcome.TxHash
		if err := o.advance(ctx, rec, domain.StageBurnConfirmed); err != nil {
			return err
		}
		if err := o.beginAttestation(ctx, rec); err != nil {
			o.fail(ctx, rec, "burn message not readable")
		}
		return nil
	case domain.StageMintSubmitted:
		return o.finish(ctx, rec)
	default:
		zap.L().Warn("notification for unexpected stage",
			zap.String("transfer_id", key.ID.String()),
			zap.String("stage", string(key.Stage)))
		return nil
	}
}

// CompleteAttestation re-enters the pipeline when the poller finishes. It
// takes the same per-record lock as webhook handling.
func (o *Orchestrator) CompleteAttestation(ctx context.Context, id uuid.UUID, attestation string, waitErr error) error {
	unlock := o.locks.lock(id)
	defer unlock()

	rec, err := o.store.GetTransfer(ctx, id)
	if err != nil {
		return fmt.Errorf("load transfer %s: %w", id, err)
	}
	if rec.Stage != domain.StageAttestationPending {
		zap.L().Info("attestation result for non-pending record ignored",
			zap.String("transfer_id", id.String()),
			zap.String("current_stage", string(rec.Stage)))
		return nil
	}

	if waitErr != nil {
		zap.L().Error("attestation unavailable",
			zap.String("transfer_id", id.String()), zap.Error(waitErr))
		o.fail(ctx, rec, "attestation never arrived")
		return nil
	}

	if err := o.advance(ctx, rec, domain.StageAttestationReady); err != nil {
		return err
	}
	if err := o.submitMint(ctx, rec, attestation); err != nil {
		o.fail(ctx, rec, "mint submission failed")
	}
	return nil
}

func (o *Orchestrator) submitDirect(ctx context.Context, rec *models.TransferRecord) error {
	ref, err := correlation.Encode(rec.ID, domain.StageInitiated)
	if err != nil {
		return err
	}
	callID, err := o.gateway.Transfer(ctx, gateway.TransferParams{
		WalletID:           rec.SenderWalletID,
		DestinationAddress: rec.RecipientAddress,
		TokenID:            domain.USDCTokenID[rec.SourceChain],
		Amount:             rec.AmountUSD,
		IdempotencyKey:     uuid.NewString(),
		RefID:              ref,
	})
	if err != nil {
		return err
	}
	rec.ExternalIDs = append(rec.ExternalIDs, callID)
	return o.store.SaveTransfer(ctx, rec)
}

func (o *Orchestrator) submitApproval(ctx context.Context, rec *models.TransferRecord) error {
	ref, err := correlation.Encode(rec.ID, domain.StageApprovalSubmitted)
	if err != nil {
		return err
	}
	callID, err := o.gateway.ExecuteContract(ctx, gateway.ContractParams{
		WalletID:          rec.SenderWalletID,
		ContractAddress:   domain.USDCTokenAddress[rec.SourceChain],
		FunctionSignature: "approve(address,uint256)",
		Parameters: []any{
			domain.TokenMessenger[rec.SourceChain],
			domain.TokenUnits(rec.AmountUSD),
		},
		IdempotencyKey: uuid.NewString(),
		RefID:          ref,
	})
	if err != nil {
		return err
	}
	rec.ExternalIDs = append(rec.ExternalIDs, callID)
	if err := o.advance(ctx, rec, domain.StageApprovalSubmitted); err != nil {
		return err
	}
	o.notifyUser(ctx, rec, fmt.Sprintf("Moving <b>%s USDC</b> from %s to %s: approving burn…",
		domain.FormatAmount(rec.AmountUSD), rec.SourceChain.DisplayName(), rec.DestinationChain.DisplayName()))
	return nil
}

func (o *Orchestrator) submitBurn(ctx context.Context, rec *models.TransferRecord) error {
	ref, err := correlation.Encode(rec.ID, domain.StageBurnSubmitted)
	if err != nil {
		return err
	}
	callID, err := o.gateway.ExecuteContract(ctx, gateway.ContractParams{
		WalletID:          rec.SenderWalletID,
		ContractAddress:   domain.TokenMessenger[rec.SourceChain],
		FunctionSignature: "depositForBurn(uint256,uint32,bytes32,address)",
		Parameters: []any{
			domain.TokenUnits(rec.AmountUSD),
			domain.CCTPDomain[rec.DestinationChain],
			chain.PaddedRecipientHex(rec.RecipientAddress),
			domain.USDCTokenAddress[rec.SourceChain],
		},
		IdempotencyKey: uuid.NewString(),
		RefID:          ref,
	})
	if err != nil {
		return err
	}
	rec.ExternalIDs = append(rec.ExternalIDs, callID)
	return o.advance(ctx, rec, domain.StageBurnSubmitted)
}

func (o *Orchestrator) beginAttestation(ctx context.Context, rec *models.TransferRecord) error {
	message, messageHash, err := o.chain.BurnMessage(ctx, rec.SourceChain, rec.BurnTxHash)
	if err != nil {
		return err
	}
	rec.BurnMessageHex = "0x" + hex.EncodeToString(message)
	if err := o.advance(ctx, rec, domain.StageAttestationPending); err != nil {
		return err
	}

	id := rec.ID
	background := context.WithoutCancel(ctx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		attestation, waitErr := o.attestation.AwaitAttestation(background, messageHash)
		if err := o.CompleteAttestation(background, id, attestation, waitErr); err != nil {
			zap.L().Error("attestation completion failed",
				zap.String("transfer_id", id.String()), zap.Error(err))
		}
	}()
	return nil
}

func (o *Orchestrator) submitMint(ctx context.Context, rec *models.TransferRecord, attestation string) error {
	ref, err := correlation.Encode(rec.ID, domain.StageMintSubmitted)
	if err != nil {
		return err
	}
	// receiveMessage is permissionless; the recipient's wallet mints when we
	// manage one, otherwise the sender's wallet finalizes on their behalf.
	mintWallet := rec.RecipientWalletID
	if mintWallet == "" {
		mintWallet = rec.SenderWalletID
	}
	callID, err := o.gateway.ExecuteContract(ctx, gateway.ContractParams{
		WalletID:          mintWallet,
		ContractAddress:   domain.MessageTransmitter[rec.DestinationChain],
		FunctionSignature: "receiveMessage(bytes,bytes)",
		Parameters:        []any{rec.BurnMessageHex, attestation},
		IdempotencyKey:    uuid.NewString(),
		RefID:             ref,
	})
	if err != nil {
		return err
	}
	rec.ExternalIDs = append(rec.ExternalIDs, callID)
	return o.advance(ctx, rec, domain.StageMintSubmitted)
}

func (o *Orchestrator) finish(ctx context.Context, rec *models.TransferRecord) error {
	if err := o.advance(ctx, rec, domain.StageComplete); err != nil {
		return err
	}
	o.notifyUser(ctx, rec, fmt.Sprintf("Sent <b>%s USDC</b> to %s on %s.",
		domain.FormatAmount(rec.AmountUSD), rec.Request.Recipient, rec.DestinationChain.DisplayName()))
	return nil
}

// advance moves the record one stage forward and persists it.
func (o *Orchestrator) advance(ctx context.Context, rec *models.TransferRecord, next domain.Stage) error {
	if !domain.CanTransition(rec.Stage, next) {
		return fmt.Errorf("illegal stage transition %s -> %s for transfer %s", rec.Stage, next, rec.ID)
	}
	rec.Stage = next
	observability.IncrementStageTransition(string(next))
	if err := o.store.SaveTransfer(ctx, rec); err != nil {
		return fmt.Errorf("persist stage %s for transfer %s: %w", next, rec.ID, err)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, rec *models.TransferRecord, reason string) {
	if !domain.CanTransition(rec.Stage, domain.StageFailed) {
		return
	}
	rec.Stage = domain.StageFailed
	observability.IncrementStageTransition(string(domain.StageFailed))
	if err := o.store.SaveTransfer(ctx, rec); err != nil {
		zap.L().Error("failed to persist terminal failure",
			zap.String("transfer_id", rec.ID.String()), zap.Error(err))
	}
	zap.L().Error("transfer failed",
		zap.String("transfer_id", rec.ID.String()),
		zap.String("reason", reason))
	o.notifyUser(ctx, rec, fmt.Sprintf("Transfer of <b>%s USDC</b> to %s failed: %s.",
		domain.FormatAmount(rec.AmountUSD), rec.Request.Recipient, reason))
}

func (o *Orchestrator) notifyUser(ctx context.Context, rec *models.TransferRecord, text string) {
	if rec.MessageID != 0 {
		if err := o.notifier.Edit(ctx, rec.ChatID, rec.MessageID, text); err == nil {
			return
		}
	}
	if _, err := o.notifier.Send(ctx, rec.ChatID, text); err != nil {
		zap.L().Warn("user notification failed",
			zap.Int64("chat_id", rec.ChatID), zap.Error(err))
	}
}

func (o *Orchestrator) validateRequest(ctx context.Context, sender *models.User, req *models.TransferRequest) (decimal.Decimal, error) {
	if !req.Amount.IsPositive() {
		return decimal.Zero, invalid("amount", "must be positive, got %s", req.Amount)
	}
	if req.Network != "" && req.Network != domain.NetworkDefault && !domain.Blockchain(req.Network).Valid() {
		return decimal.Zero, invalid("network", "unknown network %q", req.Network)
	}
	rcpt, err := o.resolveRecipient(ctx, req)
	if err != nil {
		return decimal.Zero, err
	}
	if _, err := destinationChain(sender.Wallet.Blockchain, req, rcpt); err != nil {
		return decimal.Zero, err
	}
	return o.usdAmount(ctx, req)
}

// destinationChain derives the chain the funds land on. A managed recipient's
// wallet fixes the destination: an explicit network that contradicts it would
// only produce a mint the wallet service rejects, so it is refused up front.
func destinationChain(source domain.Blockchain, req *models.TransferRequest, rcpt resolvedRecipient) (domain.Blockchain, error) {
	if req.Network != "" && req.Network != domain.NetworkDefault {
		dest := domain.Blockchain(req.Network)
		if rcpt.chain != "" && rcpt.chain != dest {
			return "", invalid("network", "%s's wallet is on %s, not %s",
				req.Recipient, rcpt.chain.DisplayName(), dest.DisplayName())
		}
		return dest, nil
	}
	if rcpt.chain != "" {
		return rcpt.chain, nil
	}
	return source, nil
}

// usdAmount converts the requested amount to a USD token quantity, fetching
// exchange rates only for fiat-denominated requests.
func (o *Orchestrator) usdAmount(ctx context.Context, req *models.TransferRequest) (decimal.Decimal, error) {
	var table map[string]decimal.Decimal
	if req.ValueKind == domain.ValueFiat {
		var err error
		table, err = o.rates.USDRates(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("fetch exchange rates: %w", err)
		}
	}
	amountUSD, err := domain.USDValue(req.Amount, req.ValueKind, req.FiatCurrency, table)
	if err != nil {
		return decimal.Zero, invalid("amount", "%v", err)
	}
	return amountUSD, nil
}

// resolvedRecipient is a recipient pinned to a concrete address. chain and
// walletID are set only when the recipient is a managed wallet.
type resolvedRecipient struct {
	address  string
	walletID string
	chain    domain.Blockchain
}

func (o *Orchestrator) resolveRecipient(ctx context.Context, req *models.TransferRequest) (resolvedRecipient, error) {
	switch req.RecipientKind {
	case domain.RecipientUsername:
		user, err := o.directory.UserByUsername(ctx, strings.TrimPrefix(req.Recipient, "@"))
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return resolvedRecipient{}, fmt.Errorf("%w: %s", ErrRecipientNotFound, req.Recipient)
			}
			return resolvedRecipient{}, fmt.Errorf("look up recipient: %w", err)
		}
		return resolvedRecipient{
			address:  user.Wallet.Address,
			walletID: user.Wallet.ID,
			chain:    user.Wallet.Blockchain,
		}, nil
	case domain.RecipientAddress:
		addr := strings.TrimSpace(req.Recipient)
		if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
			return resolvedRecipient{}, invalid("recipient", "malformed address %q", req.Recipient)
		}
		return resolvedRecipient{address: addr}, nil
	case domain.RecipientENS:
		addr, err := o.ens.Resolve(ctx, req.Recipient)
		if err != nil {
			if errors.Is(err, ens.ErrNotResolved) {
				return resolvedRecipient{}, fmt.Errorf("%w: %s", ErrRecipientNotFound, req.Recipient)
			}
			return resolvedRecipient{}, fmt.Errorf("resolve name: %w", err)
		}
		return resolvedRecipient{address: addr}, nil
	default:
		return resolvedRecipient{}, invalid("recipient", "unsupported recipient kind %q", req.RecipientKind)
	}
}

// recordLocks hands out one mutex per transfer id. Entries are refcounted and
// dropped when the last holder releases, so the map stays proportional to
// in-flight work rather than growing with every transfer ever seen.
type recordLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*recordLock
}

type recordLock struct {
	sync.Mutex
	refs int
}

func (l *recordLocks) lock(id uuid.UUID) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[uuid.UUID]*recordLock)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &recordLock{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
