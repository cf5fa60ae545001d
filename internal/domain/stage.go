package domain

// TransferKind distinguishes same-chain transfers from cross-chain settlements.
type TransferKind string

const (
	SingleChain TransferKind = "SINGLE-CHAIN"
	CrossChain  TransferKind = "CROSS-CHAIN"
)

// Stage is one persisted step of the transfer pipeline.
type Stage string

const (
	StageInitiated          Stage = "INITIATED"
	StageApprovalSubmitted  Stage = "APPROVAL_SUBMITTED"
	StageApprovalConfirmed  Stage = "APPROVAL_CONFIRMED"
	StageBurnSubmitted      Stage = "BURN_SUBMITTED"
	StageBurnConfirmed      Stage = "BURN_CONFIRMED"
	StageAttestationPending Stage = "ATTESTATION_PENDING"
	StageAttestationReady   Stage = "ATTESTATION_READY"
	StageMintSubmitted      Stage = "MINT_SUBMITTED"
	StageComplete           Stage = "COMPLETE"
	StageFailed             Stage = "FAILED"
)

var stageTransitions = map[Stage]map[Stage]struct{}{
	StageInitiated: {
		StageComplete:          {},
		StageApprovalSubmitted: {},
		StageFailed:            {},
	},
	StageApprovalSubmitted: {
		StageApprovalConfirmed: {},
		StageFailed:            {},
	},
	StageApprovalConfirmed: {
		StageBurnSubmitted: {},
		StageFailed:        {},
	},
	StageBurnSubmitted: {
		StageBurnConfirmed: {},
		StageFailed:        {},
	},
	StageBurnConfirmed: {
		StageAttestationPending: {},
		StageFailed:             {},
	},
	StageAttestationPending: {
		StageAttestationReady: {},
		StageFailed:           {},
	},
	StageAttestationReady: {
		StageMintSubmitted: {},
		StageFailed:        {},
	},
	StageMintSubmitted: {
		StageComplete: {},
		StageFailed:   {},
	},
	StageComplete: {},
	StageFailed:   {},
}

// CanTransition reports whether moving from current to next follows the pipeline
// table. Transitions only ever move forward; terminal stages allow nothing.
func CanTransition(current, next Stage) bool {
	nextStates, ok := stageTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

// Terminal reports whether the stage ends the pipeline.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}
