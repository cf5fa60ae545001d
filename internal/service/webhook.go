package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ayo6706/stablesend/internal/correlation"
	"github.com/ayo6706/stablesend/internal/dedupe"
	"github.com/ayo6706/stablesend/internal/domain"
	"github.com/ayo6706/stablesend/internal/ens"
	"github.com/ayo6706/stablesend/internal/models"
	"github.com/ayo6706/stablesend/internal/notify"
	"github.com/ayo6706/stablesend/internal/observability"
)

// Notification envelope types and transaction states as the wallet service
// reports them.
const (
	TypeInbound  = "transactions.inbound"
	TypeOutbound = "transactions.outbound"

	stateConfirmed = "CONFIRMED"
	stateComplete  = "COMPLETE"
	stateFailed    = "FAILED"
	stateDenied    = "DENIED"
)

// Envelope is the wallet service's webhook payload.
type Envelope struct {
	NotificationType string       `json:"notificationType"`
	Notification     Notification `json:"notification"`
}

// Notification describes one transaction state change.
type Notification struct {
	ID                 string   `json:"id"`
	State              string   `json:"state"`
	WalletID           string   `json:"walletId"`
	SourceAddress      string   `json:"sourceAddress"`
	DestinationAddress string   `json:"destinationAddress"`
	TokenID            string   `json:"tokenId"`
	Blockchain         string   `json:"blockchain"`
	RefID              string   `json:"refId"`
	TxHash             string   `json:"txHash"`
	Amounts            []string `json:"amounts"`
}

// Ingester classifies inbound webhook notifications and routes them to the
// orchestrator or directly to user notification.
type Ingester struct {
	orchestrator *Orchestrator
	directory    UserDirectory
	dedupe       dedupe.Store
	notifier     notify.Notifier
	ens          ens.Resolver
}

func NewIngester(orchestrator *Orchestrator, directory UserDirectory, dd dedupe.Store, notifier notify.Notifier, resolver ens.Resolver) *Ingester {
	return &Ingester{
		orchestrator: orchestrator,
		directory:    directory,
		dedupe:       dd,
		notifier:     notifier,
		ens:          resolver,
	}
}

// HandleNotification processes one envelope. Delivery is at-least-once: the
// dedupe store cuts redundant work, and the orchestrator's stage-match check
// remains the authority on duplicates. An id is marked seen only after its
// envelope processed cleanly, so a redelivery can heal a transient failure.
func (in *Ingester) HandleNotification(ctx context.Context, env Envelope) error {
	id := env.Notification.ID
	if id != "" {
		seen, _ := in.dedupe.Seen(ctx, id)
		if seen {
			observability.IncrementWebhookEvent(env.NotificationType, "duplicate")
			return nil
		}
	}

	var err error
	switch env.NotificationType {
	case TypeInbound:
		err = in.handleInbound(ctx, env.Notification)
	case TypeOutbound:
		err = in.handleOutbound(ctx, env.Notification)
	default:
		observability.IncrementWebhookEvent(env.NotificationType, "ignored")
		zap.L().Debug("unhandled notification type", zap.String("type", env.NotificationType))
		return nil
	}
	if err != nil {
		return err
	}

	if id != "" {
		if markErr := in.dedupe.MarkSeen(ctx, id); markErr != nil {
			zap.L().Warn("dedupe mark failed", zap.String("id", id), zap.Error(markErr))
		}
	}
	return nil
}

// handleInbound reports external deposits to the receiving user. Deposits are
// not part of any tracked pipeline; an unknown receiving wallet is dropped.
func (in *Ingester) handleInbound(ctx context.Context, n Notification) error {
	if n.State != stateConfirmed {
		observability.IncrementWebhookEvent(TypeInbound, "ignored")
		return nil
	}
	chain := domain.Blockchain(n.Blockchain)
	if n.TokenID != domain.USDCTokenID[chain] {
		observability.IncrementWebhookEvent(TypeInbound, "ignored")
		return nil
	}

	receiver, err := in.directory.UserByWalletID(ctx, n.WalletID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			observability.IncrementWebhookEvent(TypeInbound, "unknown_wallet")
			zap.L().Info("deposit to unknown wallet dropped", zap.String("wallet_id", n.WalletID))
			return nil
		}
		return fmt.Errorf("look up receiving wallet: %w", err)
	}

	// Name the counterpart by handle when it is one of ours, by primary ENS
	// name when it has one, and by raw address otherwise.
	sender := n.SourceAddress
	if counterpart, err := in.directory.UserByWalletAddress(ctx, n.SourceAddress); err == nil {
		sender = "@" + counterpart.Username
	} else if in.ens != nil {
		if name, err := in.ens.ReverseLookup(ctx, n.SourceAddress); err == nil {
			sender = name
		}
	}

	amount := ""
	if len(n.Amounts) > 0 {
		amount = n.Amounts[0]
	}
	text := fmt.Sprintf("You received <b>%s USDC</b> from %s on %s.", amount, sender, chain.DisplayName())
	if _, err := in.notifier.Send(ctx, receiver.ID, text); err != nil {
		zap.L().Warn("deposit notification failed",
			zap.Int64("user_id", receiver.ID), zap.Error(err))
	}
	observability.IncrementWebhookEvent(TypeInbound, "notified")
	return nil
}

// handleOutbound feeds pipeline progress back into the orchestrator. Only
// terminal transaction states act; intermediate states are ignored. A payload
// without a reference belongs to no tracked pipeline and yields notification
// only.
func (in *Ingester) handleOutbound(ctx context.Context, n Notification) error {
	var outcome Outcome
	switch n.State {
	case stateComplete:
		outcome = Outcome{Success: true, TxHash: n.TxHash}
	case stateFailed, stateDenied:
		outcome = Outcome{Success: false}
	default:
		observability.IncrementWebhookEvent(TypeOutbound, "ignored")
		return nil
	}

	if n.RefID == "" {
		in.notifyUntracked(ctx, n)
		observability.IncrementWebhookEvent(TypeOutbound, "untracked")
		return nil
	}

	key, err := correlation.Decode(n.RefID)
	if err != nil {
		observability.IncrementWebhookEvent(TypeOutbound, "bad_ref")
		zap.L().Warn("undecodable notification reference dropped",
			zap.String("ref_id", n.RefID), zap.Error(err))
		return nil
	}

	if err := in.orchestrator.AdvanceOnNotification(ctx, key, outcome); err != nil {
		observability.IncrementWebhookEvent(TypeOutbound, "error")
		return err
	}
	observability.IncrementWebhookEvent(TypeOutbound, "advanced")
	return nil
}

func (in *Ingester) notifyUntracked(ctx context.Context, n Notification) {
	sender, err := in.directory.UserByWalletID(ctx, n.WalletID)
	if err != nil {
		zap.L().Info("untracked outbound for unknown wallet dropped",
			zap.String("wallet_id", n.WalletID))
		return
	}
	amount := ""
	if len(n.Amounts) > 0 {
		amount = n.Amounts[0]
	}
	text := fmt.Sprintf("Your transfer of <b>%s USDC</b> is %s.", amount, n.State)
	if _, err := in.notifier.Send(ctx, sender.ID, text); err != nil {
		zap.L().Warn("untracked transfer notification failed",
			zap.Int64("user_id", sender.ID), zap.Error(err))
	}
}
