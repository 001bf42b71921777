package wallet

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"imuabridge/events"

	log "github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"
)

// RPCProvider talks to a wallet over JSON-RPC (remote signer, node with managed
// accounts). Such endpoints cannot push, so account and chain changes are polled.
type RPCProvider struct {
	client   jsonrpc.RPCClient
	interval time.Duration
	bus      *events.Bus[ProviderEvent]

	mu       sync.Mutex
	stop     chan struct{}
	accounts []string
	chainID  string
}

func NewRPCProvider(endpoint string, pollInterval time.Duration) *RPCProvider {
	return newRPCProvider(jsonrpc.NewClient(endpoint), pollInterval)
}

func newRPCProvider(client jsonrpc.RPCClient, pollInterval time.Duration) *RPCProvider {
	return &RPCProvider{
		client:   client,
		interval: pollInterval,
		bus:      events.NewBus[ProviderEvent](),
	}
}

func (p *RPCProvider) Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		resp *jsonrpc.RPCResponse
		err  error
	)
	// a single slice argument is sent as the positional params array
	if len(params) == 0 {
		resp, err = p.client.Call(method)
	} else {
		resp, err = p.client.Call(method, params)
	}
	if resp != nil && resp.Error != nil {
		return nil, &ProviderError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(resp.Result)
}

func (p *RPCProvider) Subscribe(fn func(ProviderEvent)) func() {
	unsubscribe := p.bus.Subscribe(fn)

	p.mu.Lock()
	if p.stop == nil {
		p.stop = make(chan struct{})
		go p.watch(p.stop)
	}
	p.mu.Unlock()

	return unsubscribe
}

// Close stops the change watcher
func (p *RPCProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *RPCProvider) watch(stop chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// first round only records the baseline
	p.poll(false)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.poll(true)
		}
	}
}

func (p *RPCProvider) poll(emit bool) {
	ctx := context.Background()

	var accounts []string
	raw, err := p.Request(ctx, "eth_accounts")
	if err == nil {
		err = json.Unmarshal(raw, &accounts)
	}
	if err != nil {
		log.Debugf("Wallet account poll failed: %s", err.Error())
		return
	}

	var chainID string
	raw, err = p.Request(ctx, "eth_chainId")
	if err == nil {
		err = json.Unmarshal(raw, &chainID)
	}
	if err != nil {
		log.Debugf("Wallet chain poll failed: %s", err.Error())
		return
	}

	p.mu.Lock()
	accountsChanged := !sameAccounts(p.accounts, accounts)
	chainChanged := p.chainID != chainID
	p.accounts = accounts
	p.chainID = chainID
	p.mu.Unlock()

	if !emit {
		return
	}
	if accountsChanged {
		p.bus.Publish(ProviderEvent{Kind: AccountsChanged, Accounts: accounts})
	}
	if chainChanged {
		p.bus.Publish(ProviderEvent{Kind: ChainChanged, ChainID: chainID})
	}
}

func sameAccounts(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
