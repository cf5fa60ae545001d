package handler

import (
	"errors"
	"net/http"

	"github.com/ayo6706/stablesend/internal/gateway"
	"github.com/ayo6706/stablesend/internal/models"
	"github.com/ayo6706/stablesend/internal/service"
)

type WalletHandler struct {
	gateway   gateway.Gateway
	directory service.UserDirectory
}

func NewWalletHandler(gw gateway.Gateway, directory service.UserDirectory) *WalletHandler {
	return &WalletHandler{gateway: gw, directory: directory}
}

// Balance reports the caller's USDC balance.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	user, ok := h.callerUser(w, r)
	if !ok {
		return
	}

	balance, err := h.gateway.USDCBalance(r.Context(), user.Wallet.ID)
	if err != nil {
		RespondError(w, r, http.StatusBadGateway, "wallet/balance-unavailable", "balance lookup failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{
		"balance":    balance.String(),
		"currency":   "USDC",
		"blockchain": string(user.Wallet.Blockchain),
	})
}

// Address reports the caller's deposit address.
func (h *WalletHandler) Address(w http.ResponseWriter, r *http.Request) {
	user, ok := h.callerUser(w, r)
	if !ok {
		return
	}
	RespondJSON(w, http.StatusOK, map[string]string{
		"address":    user.Wallet.Address,
		"blockchain": string(user.Wallet.Blockchain),
	})
}

func (h *WalletHandler) callerUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	actorID, err := requestActor(r)
	if err != nil {
		RespondError(w, r, http.StatusUnauthorized, "auth/invalid-token-claims", err.Error())
		return nil, false
	}
	user, err := h.directory.UserByID(r.Context(), actorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondError(w, r, http.StatusNotFound, "wallet/no-wallet", "no wallet registered for this user")
			return nil, false
		}
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "lookup failed")
		return nil, false
	}
	return user, true
}
