package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/stablesend/internal/api/middleware"
	"github.com/ayo6706/stablesend/internal/api/problem"
	"github.com/ayo6706/stablesend/internal/models"
	"github.com/ayo6706/stablesend/internal/service"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

func requestActor(r *http.Request) (int64, error) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		return 0, errors.New("missing user in auth context")
	}
	actorID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, errors.New("invalid user_id in auth context")
	}
	return actorID, nil
}

// respondServiceError maps orchestrator errors onto problem responses.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		RespondError(w, r, http.StatusBadRequest, "transfer/validation", verr.Error())
	case errors.Is(err, service.ErrRecipientNotFound):
		RespondError(w, r, http.StatusBadRequest, "transfer/recipient-not-found", err.Error())
	case errors.Is(err, models.ErrInsufficientFunds):
		RespondError(w, r, http.StatusBadRequest, "transfer/insufficient-funds", err.Error())
	case errors.Is(err, service.ErrNotOwner):
		RespondError(w, r, http.StatusForbidden, "transfer/not-owner", err.Error())
	case errors.Is(err, service.ErrNotFound):
		RespondError(w, r, http.StatusGone, "transfer/token-expired", err.Error())
	case errors.Is(err, models.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "transfer/not-found", err.Error())
	default:
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "request failed")
	}
}
