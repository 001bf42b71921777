package handlers

import (
	"net/http"
)

// State is the one-call summary the UI polls
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	snapshot := a.bridge.Snapshot()

	res := &APIStateResponse{
		Status:  "ok",
		Phase:   string(snapshot.Phase),
		Account: a.wallet.CurrentAccount(),
		Network: a.wallet.Network(),
	}
	if a.relay != nil {
		res.RelayConnected = a.relay.Connected()
	}
	if snapshot.LastError != nil {
		res.Message = snapshot.LastError.Message
	}
	responseJSON(w, res, http.StatusOK)
}
