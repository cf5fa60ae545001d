package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ayo6706/stablesend/internal/models"
	"github.com/ayo6706/stablesend/internal/service"
)

type TransferHandler struct {
	orchestrator *service.Orchestrator
	store        service.RecordStore
}

func NewTransferHandler(orchestrator *service.Orchestrator, store service.RecordStore) *TransferHandler {
	return &TransferHandler{orchestrator: orchestrator, store: store}
}

// Propose validates a batch of transfer requests and parks them behind a
// confirmation token.
func (h *TransferHandler) Propose(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req struct {
		Requests []models.TransferRequest `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-body", "invalid request body")
		return
	}

	token, err := h.orchestrator.ProposeTransfer(r.Context(), actorID, req.Requests)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusCreated, map[string]string{"confirmation_token": token})
}

// Confirm consumes a confirmation token and starts the pipeline.
func (h *TransferHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req struct {
		Token     string `json:"token"`
		ChatID    int64  `json:"chat_id"`
		MessageID int64  `json:"message_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-body", "token is required")
		return
	}
	if req.ChatID == 0 {
		req.ChatID = actorID
	}

	if err := h.orchestrator.Confirm(r.Context(), req.Token, actorID, req.ChatID, req.MessageID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusAccepted, map[string]string{"status": "confirmed"})
}

// Cancel consumes a confirmation token without submitting anything.
func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		RespondError(w, r, http.StatusBadRequest, "request/malformed-body", "token is required")
		return
	}

	if err := h.orchestrator.Cancel(r.Context(), req.Token, actorID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Get returns one transfer record. Owners only.
func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "transfer/invalid-id", "invalid transfer id")
		return
	}

	rec, err := h.store.GetTransfer(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if rec.OwnerID != actorID {
		RespondError(w, r, http.StatusNotFound, "transfer/not-found", "not found")
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}
