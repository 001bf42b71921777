package handlers

import (
	"errors"
	"net/http"

	"imuabridge/wallet"

	log "github.com/sirupsen/logrus"
)

func walletErrorCode(err error) int {
	switch {
	case errors.Is(err, wallet.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, wallet.ErrUserRejected), errors.Is(err, wallet.ErrSwitchRejected):
		return http.StatusForbidden
	case errors.Is(err, wallet.ErrUnsupportedNetwork):
		return http.StatusBadRequest
	case errors.Is(err, wallet.ErrNotInitialized):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (a *API) walletState() *APIWalletResponse {
	return &APIWalletResponse{
		Status:    "ok",
		Account:   a.wallet.CurrentAccount(),
		Network:   a.wallet.Network(),
		Provider:  a.wallet.ActiveKind(),
		Providers: a.wallet.Kinds(),
	}
}

func (a *API) GetWallet(w http.ResponseWriter, r *http.Request) {
	responseJSON(w, a.walletState(), http.StatusOK)
}

func (a *API) ConnectWallet(w http.ResponseWriter, r *http.Request) {
	var req WalletConnectRequest
	if !a.readJSON(w, r, &req) {
		return
	}

	if _, err := a.wallet.Connect(r.Context(), req.Provider); err != nil {
		log.Printf("Error connecting wallet %s: %s", req.Provider, err.Error())
		responseError(w, "provider", err.Error(), walletErrorCode(err))
		return
	}
	responseJSON(w, a.walletState(), http.StatusOK)
}

func (a *API) DisconnectWallet(w http.ResponseWriter, r *http.Request) {
	a.wallet.Disconnect()
	responseJSON(w, a.walletState(), http.StatusOK)
}

func (a *API) SwitchNetwork(w http.ResponseWriter, r *http.Request) {
	var req WalletSwitchRequest
	if !a.readJSON(w, r, &req) {
		return
	}

	if err := a.wallet.SwitchNetwork(r.Context(), req.Network); err != nil {
		log.Printf("Error switching wallet to %s: %s", req.Network, err.Error())
		responseError(w, "network", err.Error(), walletErrorCode(err))
		return
	}
	responseJSON(w, a.walletState(), http.StatusOK)
}
