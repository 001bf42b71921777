package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"imuabridge/bridge"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"
)

func bridgeErrorCode(err error) int {
	switch {
	case errors.Is(err, bridge.ErrPreconditionFailed), errors.Is(err, bridge.ErrNetworkNotSupported):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrNoAttempt):
		return http.StatusNotFound
	case errors.Is(err, bridge.ErrAttemptInProgress), errors.Is(err, bridge.ErrAttemptBusy), errors.Is(err, bridge.ErrIllegalTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func responseSnapshot(w http.ResponseWriter, s bridge.Snapshot, err error) {
	if err != nil {
		responseJSON(w, &APIBridgeResponse{
			Status:   "error",
			Message:  err.Error(),
			Snapshot: s,
		}, bridgeErrorCode(err))
		return
	}
	responseJSON(w, &APIBridgeResponse{
		Status:   "ok",
		Snapshot: s,
	}, http.StatusOK)
}

// detached keeps a chain operation running when the HTTP client goes away
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (a *API) GetBridge(w http.ResponseWriter, r *http.Request) {
	responseSnapshot(w, a.bridge.Snapshot(), nil)
}

func (a *API) SubmitBridge(w http.ResponseWriter, r *http.Request) {
	var req bridge.Request
	if !a.readJSON(w, r, &req) {
		return
	}

	if receiver := strings.TrimSpace(req.Receiver); receiver != "" {
		if !common.IsHexAddress(receiver) {
			responseError(w, "receiver", "invalid receiver address", http.StatusBadRequest)
			return
		}
		if err := ethav.Validate(common.HexToAddress(receiver).Hex()); err != nil {
			log.Printf("Error validating EVM address '%s': %s", receiver, err.Error())
			responseError(w, "receiver", "invalid receiver address", http.StatusBadRequest)
			return
		}
	}

	s, err := a.bridge.Request(r.Context(), req)
	responseSnapshot(w, s, err)
}

func (a *API) ApproveBridge(w http.ResponseWriter, r *http.Request) {
	s, err := a.bridge.Approve(detached(r))
	responseSnapshot(w, s, err)
}

func (a *API) ConfirmBridge(w http.ResponseWriter, r *http.Request) {
	s, err := a.bridge.Confirm(detached(r))
	responseSnapshot(w, s, err)
}

func (a *API) CancelBridge(w http.ResponseWriter, r *http.Request) {
	s, err := a.bridge.Cancel()
	responseSnapshot(w, s, err)
}

func (a *API) DismissBridge(w http.ResponseWriter, r *http.Request) {
	s, err := a.bridge.Dismiss()
	responseSnapshot(w, s, err)
}
