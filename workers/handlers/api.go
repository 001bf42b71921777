package handlers

import (
	"context"

	"imuabridge/EVMRPC"
	"imuabridge/bridge"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-playground/validator/v10"
)

type Bridge interface {
	Snapshot() bridge.Snapshot
	Request(ctx context.Context, req bridge.Request) (bridge.Snapshot, error)
	Approve(ctx context.Context) (bridge.Snapshot, error)
	Confirm(ctx context.Context) (bridge.Snapshot, error)
	Cancel() (bridge.Snapshot, error)
	Dismiss() (bridge.Snapshot, error)
}

type Wallet interface {
	Kinds() []string
	ActiveKind() string
	Connect(ctx context.Context, kind string) (string, error)
	Disconnect()
	CurrentAccount() string
	Network() string
	SwitchNetwork(ctx context.Context, network string) error
}

type Pinger interface {
	Ping() error
}

type RelayStatus interface {
	Connected() bool
}

// BlockNumberFunc reads the head of a network, used by the chain status route
type BlockNumberFunc func(ctx context.Context, network string) (uint64, error)

// API holds what the handlers talk to
type API struct {
	bridge      Bridge
	wallet      Wallet
	store       Pinger
	relay       RelayStatus
	blockNumber BlockNumberFunc
	validate    *validator.Validate
}

func New(b Bridge, w Wallet, store Pinger, relay RelayStatus, blockNumber BlockNumberFunc) *API {
	if blockNumber == nil {
		blockNumber = BlockNumber
	}
	return &API{
		bridge:      b,
		wallet:      w,
		store:       store,
		relay:       relay,
		blockNumber: blockNumber,
		validate:    validator.New(),
	}
}

func BlockNumber(ctx context.Context, network string) (uint64, error) {
	return EVMRPC.WithClient(ctx, network, func(client *ethclient.Client) (uint64, error) {
		return client.BlockNumber(ctx)
	})
}
