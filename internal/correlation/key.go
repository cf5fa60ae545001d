// Package correlation builds and parses the reference identifier attached to
// every outbound wallet-service call. The counterpart system echoes it back in
// its completion notification, and it is the only mechanism mapping a
// notification to a transfer record and the stage it confirms.
package correlation

import (
	"fmt"
	"strings"

	"github.com/ayo6706/stablesend/internal/domain"
	"github.com/google/uuid"
)

// Key ties a transfer record to the pipeline stage its next notification
// should find it in.
type Key struct {
	ID    uuid.UUID
	Stage domain.Stage
}

// Stage markers as they appear on the wire. Only stages that issue an
// external call awaiting a webhook have one.
var stageMarkers = map[domain.Stage]string{
	domain.StageInitiated:         "transfer",
	domain.StageApprovalSubmitted: "approve",
	domain.StageBurnSubmitted:     "burn",
	domain.StageMintSubmitted:     "mint",
}

var markerStages = func() map[string]domain.Stage {
	m := make(map[string]domain.Stage, len(stageMarkers))
	for stage, marker := range stageMarkers {
		m[marker] = stage
	}
	return m
}()

// Encode renders the key as "<record-id>:<marker>".
func Encode(id uuid.UUID, stage domain.Stage) (string, error) {
	marker, ok := stageMarkers[stage]
	if !ok {
		return "", fmt.Errorf("stage %s has no correlation marker", stage)
	}
	return id.String() + ":" + marker, nil
}

// Decode parses a reference field back into a Key. It fails closed: anything
// that is not exactly a known record id followed by a known marker is an error.
func Decode(ref string) (Key, error) {
	idx := strings.LastIndexByte(ref, ':')
	if idx < 0 {
		return Key{}, fmt.Errorf("correlation key %q has no stage marker", ref)
	}
	stage, ok := markerStages[ref[idx+1:]]
	if !ok {
		return Key{}, fmt.Errorf("correlation key %q has unknown stage marker", ref)
	}
	id, err := uuid.Parse(ref[:idx])
	if err != nil {
		return Key{}, fmt.Errorf("correlation key %q has invalid record id: %w", ref, err)
	}
	return Key{ID: id, Stage: stage}, nil
}
