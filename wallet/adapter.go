package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"imuabridge/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	log "github.com/sirupsen/logrus"
)

var (
	ErrProviderNotFound   = errors.New("wallet provider not found")
	ErrUserRejected       = errors.New("request rejected by user")
	ErrNotInitialized     = errors.New("no wallet provider connected")
	ErrSwitchRejected     = errors.New("network switch rejected")
	ErrUnsupportedNetwork = errors.New("unsupported network")
)

// TxRequest is what the gateway asks the wallet to sign and broadcast
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
}

type Adapter struct {
	providers map[string]Provider
	session   *Session

	mu          sync.Mutex
	active      Provider
	activeKind  string
	unsubscribe func()
}

func NewAdapter(session *Session, providers map[string]Provider) *Adapter {
	return &Adapter{
		providers: providers,
		session:   session,
	}
}

func (a *Adapter) Session() *Session {
	return a.session
}

// Kinds lists the installed providers
func (a *Adapter) Kinds() []string {
	kinds := make([]string, 0, len(a.providers))
	for kind := range a.providers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func (a *Adapter) ActiveKind() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activeKind
}

func (a *Adapter) provider() (Provider, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active == nil {
		return nil, ErrNotInitialized
	}
	return a.active, nil
}

// Connect asks the named provider for account access and makes it the active one
func (a *Adapter) Connect(ctx context.Context, kind string) (string, error) {
	p, ok := a.providers[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrProviderNotFound, kind)
	}

	raw, err := p.Request(ctx, "eth_requestAccounts")
	if err != nil {
		if isRejection(err) {
			return "", fmt.Errorf("%w: %s", ErrUserRejected, err.Error())
		}
		return "", fmt.Errorf("requesting accounts from %s: %w", kind, err)
	}

	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return "", fmt.Errorf("unexpected eth_requestAccounts result: %w", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("%w: no account shared", ErrUserRejected)
	}
	account := normalizeAddress(accounts[0])

	network, err := queryNetwork(ctx, p)
	if err != nil {
		// connected on a chain we don't know, the user can still switch
		log.Printf("Wallet %s connected on unsupported chain: %s", kind, err.Error())
		network = ""
	}

	a.mu.Lock()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.active = p
	a.activeKind = kind
	a.unsubscribe = p.Subscribe(a.handleEvent)
	a.mu.Unlock()

	a.session.set(account, network)
	log.Printf("Wallet %s connected: account %s on %q", kind, account, network)

	return account, nil
}

// Disconnect forgets the local session only, the provider keeps its permission
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	if a.unsubscribe != nil {
		a.unsubscribe()
		a.unsubscribe = nil
	}
	a.active = nil
	a.activeKind = ""
	a.mu.Unlock()

	a.session.clear()
}

func (a *Adapter) CurrentAccount() string {
	return a.session.Account()
}

// Network is the last network the session saw, it may lag behind the provider
func (a *Adapter) Network() string {
	return a.session.Network()
}

// CurrentNetwork asks the provider, the session value may lag behind a notification
func (a *Adapter) CurrentNetwork(ctx context.Context) (string, error) {
	p, err := a.provider()
	if err != nil {
		return "", err
	}
	return queryNetwork(ctx, p)
}

// SwitchNetwork asks the wallet to change chain, registering it first if the wallet doesn't know it
func (a *Adapter) SwitchNetwork(ctx context.Context, network string) error {
	desc, err := config.Describe(network)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}

	p, err := a.provider()
	if err != nil {
		return err
	}

	err = switchChain(ctx, p, desc)
	if code, ok := providerCode(err); ok && code == CodeUnrecognizedChain {
		log.Printf("Wallet does not know %s, adding chain %d", network, desc.ChainID)
		if addErr := addChain(ctx, p, desc); addErr != nil {
			if isRejection(addErr) {
				return fmt.Errorf("%w: %s", ErrSwitchRejected, addErr.Error())
			}
			return fmt.Errorf("%w: adding %s failed: %s", ErrUnsupportedNetwork, network, addErr.Error())
		}
		// once only
		err = switchChain(ctx, p, desc)
	}
	if err != nil {
		if code, ok := providerCode(err); ok && code == CodeUnrecognizedChain {
			return fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
		}
		return fmt.Errorf("%w: %s", ErrSwitchRejected, err.Error())
	}

	a.session.setNetwork(network)
	return nil
}

// SendTransaction hands the call to the wallet for signing and broadcast
func (a *Adapter) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	p, err := a.provider()
	if err != nil {
		return common.Hash{}, err
	}

	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	params := map[string]string{
		"from":  tx.From.Hex(),
		"to":    tx.To.Hex(),
		"data":  hexutil.Encode(tx.Data),
		"value": hexutil.EncodeBig(value),
	}

	raw, err := p.Request(ctx, "eth_sendTransaction", params)
	if err != nil {
		if isRejection(err) {
			return common.Hash{}, fmt.Errorf("%w: %s", ErrUserRejected, err.Error())
		}
		return common.Hash{}, err
	}

	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("unexpected eth_sendTransaction result: %w", err)
	}
	return common.HexToHash(hash), nil
}

func (a *Adapter) handleEvent(ev ProviderEvent) {
	switch ev.Kind {
	case AccountsChanged:
		if len(ev.Accounts) == 0 {
			log.Printf("Wallet reported no accounts, disconnecting")
			a.Disconnect()
			return
		}
		a.session.setAccount(normalizeAddress(ev.Accounts[0]))
	case ChainChanged:
		network, err := networkFromHex(ev.ChainID)
		if err != nil {
			log.Printf("Wallet switched to unsupported chain %s", ev.ChainID)
			network = ""
		}
		a.session.setNetwork(network)
	default:
		log.Debugf("Ignoring wallet event %q", ev.Kind)
	}
}

func queryNetwork(ctx context.Context, p Provider) (string, error) {
	raw, err := p.Request(ctx, "eth_chainId")
	if err != nil {
		return "", err
	}
	var chainID string
	if err := json.Unmarshal(raw, &chainID); err != nil {
		return "", fmt.Errorf("unexpected eth_chainId result: %w", err)
	}
	return networkFromHex(chainID)
}

func networkFromHex(chainID string) (string, error) {
	id, err := hexutil.DecodeUint64(chainID)
	if err != nil {
		return "", fmt.Errorf("%w: bad chain id %q", ErrUnsupportedNetwork, chainID)
	}
	network, err := config.NetworkByChainID(int(id))
	if err != nil {
		return "", fmt.Errorf("%w: chain id %d", ErrUnsupportedNetwork, id)
	}
	return network, nil
}

func switchChain(ctx context.Context, p Provider, desc config.ChainDescriptor) error {
	_, err := p.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": desc.HexChainID()})
	return err
}

func addChain(ctx context.Context, p Provider, desc config.ChainDescriptor) error {
	params := map[string]interface{}{
		"chainId":           desc.HexChainID(),
		"chainName":         desc.Name,
		"rpcUrls":           desc.RPCURLs,
		"nativeCurrency":    desc.NativeCurrency,
		"blockExplorerUrls": []string{desc.ExplorerBaseURL},
	}
	_, err := p.Request(ctx, "wallet_addEthereumChain", params)
	return err
}

func normalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}
