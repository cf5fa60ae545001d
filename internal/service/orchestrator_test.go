package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ayo6706/stablesend/internal/domain"
	"github.com/ayo6706/stablesend/internal/models"
)

func outboundComplete(refID, txHash string) Envelope {
	return Envelope{
		NotificationType: TypeOutbound,
		Notification: Notification{
			State:  stateComplete,
			RefID:  refID,
			TxHash: txHash,
		},
	}
}

func TestSingleChainTransferCompletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))

	// One direct submission, nothing contract-level.
	require.Len(t, f.gateway.transfers, 1)
	require.Empty(t, f.gateway.contracts)
	submitted := f.gateway.transfers[0]
	require.Equal(t, f.alice.Wallet.ID, submitted.WalletID)
	require.Equal(t, f.bob.Wallet.Address, submitted.DestinationAddress)
	require.NotEmpty(t, submitted.IdempotencyKey)

	rec := f.store.only()
	require.Equal(t, domain.SingleChain, rec.Kind)
	require.Equal(t, domain.StageInitiated, rec.Stage)

	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(submitted.RefID, "0xtx")))

	rec = f.store.only()
	require.Equal(t, domain.StageComplete, rec.Stage)
	require.Empty(t, f.gateway.contracts, "same-chain transfer must never touch approval, burn or mint")
	require.Equal(t, 1, f.notifier.messageCount(), "user is notified exactly once")
}

func TestConfirmFansOutMultiRequestProposal(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
		tokenRequest(f.bob.Wallet.Address, domain.RecipientAddress, domain.NetworkDefault),
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))

	// One record and one submission per request.
	require.Len(t, f.gateway.transfers, 2)
	require.Len(t, f.store.all(), 2)
	for _, rec := range f.store.all() {
		require.Equal(t, domain.StageInitiated, rec.Stage)
	}

	for _, submitted := range f.gateway.transfers {
		require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(submitted.RefID, "0xtx")))
	}
	for _, rec := range f.store.all() {
		require.Equal(t, domain.StageComplete, rec.Stage)
	}
}

func TestConfirmContinuesPastFailedRequest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
		tokenRequest(f.bob.Wallet.Address, domain.RecipientAddress, domain.NetworkDefault),
	})
	require.NoError(t, err)

	// Bob vanishes between proposal and confirmation. The first request can no
	// longer resolve, but the second must still be submitted.
	f.directory.users = []*models.User{f.alice}
	err = f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0)
	require.ErrorIs(t, err, ErrRecipientNotFound)
	require.Len(t, f.gateway.transfers, 1)
	require.Equal(t, f.bob.Wallet.Address, f.gateway.transfers[0].DestinationAddress)
}

func TestConfirmTokenConsumedOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.NoError(t, err)

	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))
	require.ErrorIs(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0), ErrNotFound)
	require.Len(t, f.gateway.transfers, 1)
}

func TestCrossChainAttestationExhaustionFails(t *testing.T) {
	f := newFixture()
	f.waiter.attestation = ""
	f.waiter.err = ErrAttestationExhausted
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest(f.bob.Wallet.Address, domain.RecipientAddress, string(domain.ChainMaticAmoy)),
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 7))

	// Approval first.
	require.Equal(t, []string{"approve(address,uint256)"}, f.gateway.contractSignatures())
	rec := f.store.only()
	require.Equal(t, domain.CrossChain, rec.Kind)
	require.Equal(t, domain.StageApprovalSubmitted, rec.Stage)

	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(f.gateway.contracts[0].RefID, "0xapprove")))
	require.Equal(t, []string{
		"approve(address,uint256)",
		"depositForBurn(uint256,uint32,bytes32,address)",
	}, f.gateway.contractSignatures())

	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(f.gateway.contracts[1].RefID, "0xburn")))
	f.orchestrator.Wait()

	rec = f.store.only()
	require.Equal(t, domain.StageFailed, rec.Stage)
	require.Equal(t, "0xburn", rec.BurnTxHash)
	require.NotContains(t, f.gateway.contractSignatures(), "receiveMessage(bytes,bytes)",
		"no mint may be submitted after attestation exhaustion")
}

func TestCrossChainTransferCompletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob.eth", domain.RecipientENS, string(domain.ChainArbSepolia)),
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 7))

	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(f.gateway.contracts[0].RefID, "0xapprove")))
	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(f.gateway.contracts[1].RefID, "0xburn")))
	f.orchestrator.Wait()

	sigs := f.gateway.contractSignatures()
	require.Equal(t, "receiveMessage(bytes,bytes)", sigs[len(sigs)-1])
	mint := f.gateway.contracts[len(f.gateway.contracts)-1]
	require.Equal(t, domain.MessageTransmitter[domain.ChainArbSepolia], mint.ContractAddress)
	require.Equal(t, "0xattestation", mint.Parameters[1])

	rec := f.store.only()
	require.Equal(t, domain.StageMintSubmitted, rec.Stage)
	require.Equal(t, "0xdead", rec.BurnMessageHex)

	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(mint.RefID, "0xmint")))
	rec = f.store.only()
	require.Equal(t, domain.StageComplete, rec.Stage)
}

func TestConfirmRejectsNonOwner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.NoError(t, err)

	require.ErrorIs(t, f.orchestrator.Confirm(ctx, token, f.bob.ID, 100, 0), ErrNotOwner)

	// The pending action survives for the rightful owner.
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))
	require.Len(t, f.gateway.transfers, 1)
}

func TestCancelDiscardsWithoutSubmission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.NoError(t, err)

	require.ErrorIs(t, f.orchestrator.Cancel(ctx, token, f.bob.ID), ErrNotOwner)
	require.NoError(t, f.orchestrator.Cancel(ctx, token, f.alice.ID))
	require.ErrorIs(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0), ErrNotFound)
	require.Empty(t, f.gateway.transfers)
}

func TestStaleNotificationIsNoOp(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))

	ref := f.gateway.transfers[0].RefID
	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(ref, "0xtx")))
	require.Equal(t, domain.StageComplete, f.store.only().Stage)

	// Redelivery after the record moved on changes nothing.
	notified := f.notifier.messageCount()
	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(ref, "0xtx")))
	require.Equal(t, domain.StageComplete, f.store.only().Stage)
	require.Equal(t, notified, f.notifier.messageCount())
}

func TestFailureNotificationTerminates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest(f.bob.Wallet.Address, domain.RecipientAddress, string(domain.ChainMaticAmoy)),
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))

	env := Envelope{
		NotificationType: TypeOutbound,
		Notification: Notification{
			State: stateFailed,
			RefID: f.gateway.contracts[0].RefID,
		},
	}
	require.NoError(t, f.ingester.HandleNotification(ctx, env))
	require.Equal(t, domain.StageFailed, f.store.only().Stage)
}

func TestProposeInsufficientBalance(t *testing.T) {
	f := newFixture()
	f.gateway.balance = decimal.NewFromInt(5)

	_, err := f.orchestrator.ProposeTransfer(context.Background(), f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.ErrorIs(t, err, models.ErrInsufficientFunds)
	require.Zero(t, f.registry.Len())
}

func TestProposeValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	var verr *ValidationError

	req := tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault)
	req.Amount = decimal.Zero
	_, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{req})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "amount", verr.Field)

	req = tokenRequest("bob", domain.RecipientUsername, "NOT-A-CHAIN")
	_, err = f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{req})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "network", verr.Field)

	req = tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault)
	req.ValueKind = domain.ValueFiat
	_, err = f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{req})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "amount", verr.Field)

	req = tokenRequest("nobody.eth", domain.RecipientENS, domain.NetworkDefault)
	_, err = f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{req})
	require.ErrorIs(t, err, ErrRecipientNotFound)

	req = tokenRequest("0xshort", domain.RecipientAddress, domain.NetworkDefault)
	_, err = f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{req})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "recipient", verr.Field)
}

func TestProposeRejectsNetworkMismatchingRecipientWallet(t *testing.T) {
	f := newFixture()

	// Bob's wallet lives on Ethereum Sepolia; minting to it on another chain
	// would be rejected by the wallet service, so the proposal is refused.
	var verr *ValidationError
	_, err := f.orchestrator.ProposeTransfer(context.Background(), f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, string(domain.ChainArbSepolia)),
	})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "network", verr.Field)
	require.Zero(t, f.registry.Len())
}

func TestTransferFollowsRecipientWalletChain(t *testing.T) {
	f := newFixture()
	f.bob.Wallet.Blockchain = domain.ChainArbSepolia
	ctx := context.Background()

	// No network given: the destination comes from the recipient's wallet,
	// which here forces the cross-chain path.
	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))

	require.Equal(t, []string{"approve(address,uint256)"}, f.gateway.contractSignatures())
	rec := f.store.only()
	require.Equal(t, domain.CrossChain, rec.Kind)
	require.Equal(t, domain.ChainArbSepolia, rec.DestinationChain)
	require.Equal(t, f.bob.Wallet.ID, rec.RecipientWalletID)
}

func TestProposeFiatConversion(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	req := tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault)
	req.ValueKind = domain.ValueFiat
	req.FiatCurrency = "EUR"
	req.Amount = decimal.NewFromInt(8)

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{req})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))

	// 8 EUR at 0.8 EUR/USD is 10 USDC.
	rec := f.store.only()
	require.True(t, rec.AmountUSD.Equal(decimal.NewFromInt(10)), "got %s", rec.AmountUSD)
	require.Equal(t, "10.000000", f.gateway.transfers[0].Amount.StringFixed(domain.TokenDecimals))
}

func TestSubmissionFailureMarksRecordFailed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.NoError(t, err)

	f.gateway.err = errors.New("wallet service down")
	require.Error(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))

	rec := f.store.only()
	require.Equal(t, domain.StageFailed, rec.Stage)
	require.Equal(t, 1, f.notifier.messageCount())
}

func TestRecordLocksDropReleasedEntries(t *testing.T) {
	var l recordLocks
	id := uuid.New()

	unlock := l.lock(id)
	require.Len(t, l.locks, 1)
	unlock()
	require.Empty(t, l.locks)

	// Contended entries survive until the last holder releases.
	first := l.lock(id)
	released := make(chan func())
	go func() { released <- l.lock(id) }()
	for {
		l.mu.Lock()
		waiting := l.locks[id].refs == 2
		l.mu.Unlock()
		if waiting {
			break
		}
	}
	first()
	second := <-released
	second()
	require.Empty(t, l.locks)
}

func TestLocksReleasedAfterTransferCompletes(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	token, err := f.orchestrator.ProposeTransfer(ctx, f.alice.ID, []models.TransferRequest{
		tokenRequest("bob", domain.RecipientUsername, domain.NetworkDefault),
	})
	require.NoError(t, err)
	require.NoError(t, f.orchestrator.Confirm(ctx, token, f.alice.ID, 100, 0))
	require.NoError(t, f.ingester.HandleNotification(ctx, outboundComplete(f.gateway.transfers[0].RefID, "0xtx")))

	require.Empty(t, f.orchestrator.locks.locks, "no lock entries may outlive their transfer")
}
