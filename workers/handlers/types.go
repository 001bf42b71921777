package handlers

import (
	"imuabridge/bridge"
	"imuabridge/config"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Field   string `json:"field"`
}

type APIStateResponse struct {
	Status         string `json:"status"`
	Message        string `json:"message"`
	Phase          string `json:"phase"`
	Account        string `json:"account"`
	Network        string `json:"network"`
	RelayConnected bool   `json:"relayConnected"`
}

type APIChainResponse struct {
	config.ChainDescriptor
	SupportsBridging bool              `json:"supportsBridging"`
	LockContract     string            `json:"lockContract,omitempty"`
	BurnContract     string            `json:"burnContract,omitempty"`
	Tokens           map[string]string `json:"tokens,omitempty"`
	BlockNumber      uint64            `json:"blockNumber,omitempty"`
}

type APIWalletResponse struct {
	Status    string   `json:"status"`
	Account   string   `json:"account"`
	Network   string   `json:"network"`
	Provider  string   `json:"provider"`
	Providers []string `json:"providers"`
}

type APIBridgeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	bridge.Snapshot
}

type WalletConnectRequest struct {
	Provider string `json:"provider" validate:"required"`
}

type WalletSwitchRequest struct {
	Network string `json:"network" validate:"required"`
}
