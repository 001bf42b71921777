// Package gateway wraps the bridge and token contracts. Reads go through an
// RPC backend per network, writes are signed and broadcast by the wallet.
package gateway

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"imuabridge/EVMRPC"
	"imuabridge/amount"
	"imuabridge/config"
	"imuabridge/metrics"
	"imuabridge/wallet"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultDecimals = 18
	DefaultName     = "Unknown Token"
	DefaultSymbol   = "UNKNOWN"

	defaultPollInterval = 3 * time.Second
)

var (
	ErrGatewayNotInitialized = errors.New("contract gateway not initialized")
	ErrTxReverted            = errors.New("transaction reverted")
	ErrWrongNetwork          = errors.New("wallet is on another network")
)

// ContractCallFailed is returned for any provider rejection or node error, nothing is retried
type ContractCallFailed struct {
	Op      string
	Network string
	Cause   error
}

func (e *ContractCallFailed) Error() string {
	return fmt.Sprintf("%s on %s failed: %v", e.Op, e.Network, e.Cause)
}

func (e *ContractCallFailed) Unwrap() error {
	return e.Cause
}

// Backend is the read side, satisfied by *ethclient.Client
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// Wallet is the write side, satisfied by *wallet.Adapter
type Wallet interface {
	CurrentAccount() string
	CurrentNetwork(ctx context.Context) (string, error)
	SendTransaction(ctx context.Context, tx wallet.TxRequest) (common.Hash, error)
}

type Dialer func(ctx context.Context, network string) (Backend, error)

// DialEVM is the production Dialer
func DialEVM(ctx context.Context, network string) (Backend, error) {
	client, err := EVMRPC.Dial(ctx, network)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// TxResult is the normalized result of a write. Emitted holds the numeric
// non-indexed fields of the contract's event, empty when the receipt was not seen in time.
type TxResult struct {
	TxHash  common.Hash
	Emitted map[string]*big.Int
}

type Gateway struct {
	wallet         Wallet
	dial           Dialer
	receiptTimeout time.Duration
	pollInterval   time.Duration

	mu       sync.Mutex
	backends map[string]Backend
}

func New(w Wallet, dial Dialer, receiptTimeout time.Duration) *Gateway {
	return &Gateway{
		wallet:         w,
		dial:           dial,
		receiptTimeout: receiptTimeout,
		pollInterval:   defaultPollInterval,
		backends:       map[string]Backend{},
	}
}

func (g *Gateway) backend(ctx context.Context, network string) (Backend, error) {
	if g.dial == nil {
		return nil, ErrGatewayNotInitialized
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.backends[network]; ok {
		return b, nil
	}
	b, err := g.dial(ctx, network)
	if err != nil {
		return nil, err
	}
	g.backends[network] = b
	return b, nil
}

// forget drops a cached backend so the next call dials again
func (g *Gateway) forget(network string) {
	g.mu.Lock()
	delete(g.backends, network)
	g.mu.Unlock()
}

func (g *Gateway) failed(op, network string, err error) error {
	metrics.GatewayCalls.WithLabelValues(op, "error").Inc()
	return &ContractCallFailed{Op: op, Network: network, Cause: errors.WithStack(err)}
}

func (g *Gateway) call(ctx context.Context, network string, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	backend, err := g.backend(ctx, network)
	if errors.Is(err, ErrGatewayNotInitialized) {
		return nil, err
	}
	if err != nil {
		return nil, g.failed(method, network, err)
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, g.failed(method, network, err)
	}

	out, err := backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		g.forget(network)
		return nil, g.failed(method, network, err)
	}

	res, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, g.failed(method, network, err)
	}
	if len(res) == 0 {
		return nil, g.failed(method, network, errors.New("empty result"))
	}

	metrics.GatewayCalls.WithLabelValues(method, "ok").Inc()
	return res, nil
}

func (g *Gateway) send(ctx context.Context, op, network string, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if g.wallet == nil || g.wallet.CurrentAccount() == "" {
		return common.Hash{}, ErrGatewayNotInitialized
	}

	current, err := g.wallet.CurrentNetwork(ctx)
	if errors.Is(err, wallet.ErrNotInitialized) {
		return common.Hash{}, ErrGatewayNotInitialized
	}
	if err != nil {
		return common.Hash{}, g.failed(op, network, err)
	}
	if current != network {
		return common.Hash{}, g.failed(op, network, fmt.Errorf("%w: %q", ErrWrongNetwork, current))
	}

	hash, err := g.wallet.SendTransaction(ctx, wallet.TxRequest{
		From:  common.HexToAddress(g.wallet.CurrentAccount()),
		To:    to,
		Data:  data,
		Value: value,
	})
	if errors.Is(err, wallet.ErrNotInitialized) {
		return common.Hash{}, ErrGatewayNotInitialized
	}
	if err != nil {
		return common.Hash{}, g.failed(op, network, err)
	}

	metrics.GatewayCalls.WithLabelValues(op, "ok").Inc()
	log.Printf("%s submitted on %s: %s", op, network, hash.Hex())
	return hash, nil
}

// Lock sends native currency to the network's lock contract for receiver
func (g *Gateway) Lock(ctx context.Context, network string, receiver common.Address, value *big.Int) (TxResult, error) {
	contract, err := config.LockContract(network)
	if err != nil {
		return TxResult{}, err
	}

	data, err := lockABI.Pack("lock", receiver)
	if err != nil {
		return TxResult{}, g.failed("lock", network, err)
	}

	hash, err := g.send(ctx, "lock", network, contract, data, value)
	if err != nil {
		return TxResult{}, err
	}
	return g.collect(ctx, "lock", network, hash, contract, lockABI, "Lock")
}

// Burn destroys amount (already in base units) of a bridged token through the network's burn contract
func (g *Gateway) Burn(ctx context.Context, network string, token, receiver common.Address, units *big.Int) (TxResult, error) {
	contract, err := config.BurnContract(network)
	if err != nil {
		return TxResult{}, err
	}
	if token == (common.Address{}) {
		return TxResult{}, fmt.Errorf("%w: burn token on %s", config.ErrUnconfiguredAddress, network)
	}

	data, err := burnABI.Pack("burnCrossChain", units, receiver)
	if err != nil {
		return TxResult{}, g.failed("burn", network, err)
	}

	hash, err := g.send(ctx, "burn", network, contract, data, nil)
	if err != nil {
		return TxResult{}, err
	}
	log.Printf("Burn of %s token %s on %s: %s", units.String(), token.Hex(), network, hash.Hex())
	return g.collect(ctx, "burn", network, hash, contract, burnABI, "Burn")
}

func (g *Gateway) Approve(ctx context.Context, network string, token, spender common.Address, units *big.Int) (common.Hash, error) {
	data, err := erc20ABI.Pack("approve", spender, units)
	if err != nil {
		return common.Hash{}, g.failed("approve", network, err)
	}
	return g.send(ctx, "approve", network, token, data, nil)
}

// collect waits a bounded time for the receipt and reads the contract event from it.
// A receipt that doesn't show up in time is not a failure, the transaction was accepted.
func (g *Gateway) collect(ctx context.Context, op, network string, hash common.Hash, contract common.Address, parsed abi.ABI, event string) (TxResult, error) {
	res := TxResult{TxHash: hash, Emitted: map[string]*big.Int{}}

	waitCtx, cancel := context.WithTimeout(ctx, g.receiptTimeout)
	defer cancel()

	receipt, err := g.WaitMined(waitCtx, network, hash)
	if err != nil {
		log.Printf("No receipt for %s %s on %s yet: %s", op, hash.Hex(), network, err.Error())
		return res, nil
	}
	if receipt.Status == ethtypes.ReceiptStatusFailed {
		return res, g.failed(op, network, fmt.Errorf("%w: %s", ErrTxReverted, hash.Hex()))
	}

	ev := parsed.Events[event]
	for _, l := range receipt.Logs {
		if l == nil || l.Address != contract || len(l.Topics) == 0 || l.Topics[0] != ev.ID {
			continue
		}
		values := map[string]interface{}{}
		if err := parsed.UnpackIntoMap(values, event, l.Data); err != nil {
			log.Printf("Error decoding %s event of %s: %s", event, hash.Hex(), err.Error())
			continue
		}
		for name, v := range values {
			if n, ok := v.(*big.Int); ok {
				res.Emitted[name] = n
			}
		}
		break
	}
	return res, nil
}

func (g *Gateway) WaitMined(ctx context.Context, network string, hash common.Hash) (*ethtypes.Receipt, error) {
	backend, err := g.backend(ctx, network)
	if errors.Is(err, ErrGatewayNotInitialized) {
		return nil, err
	}
	if err != nil {
		return nil, g.failed("receipt", network, err)
	}

	receipt, err := EVMRPC.WaitReceipt(ctx, backend, hash, g.pollInterval)
	if err != nil {
		return nil, g.failed("receipt", network, err)
	}
	return receipt, nil
}

func (g *Gateway) Allowance(ctx context.Context, network string, token, owner, spender common.Address) (*big.Int, error) {
	out, err := g.call(ctx, network, token, erc20ABI, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

// Balance is in base units, the zero token address means the native currency
func (g *Gateway) Balance(ctx context.Context, network string, token, owner common.Address) (*big.Int, error) {
	if token == (common.Address{}) {
		backend, err := g.backend(ctx, network)
		if errors.Is(err, ErrGatewayNotInitialized) {
			return nil, err
		}
		if err != nil {
			return nil, g.failed("balance", network, err)
		}
		balance, err := backend.BalanceAt(ctx, owner, nil)
		if err != nil {
			g.forget(network)
			return nil, g.failed("balance", network, err)
		}
		metrics.GatewayCalls.WithLabelValues("balance", "ok").Inc()
		return balance, nil
	}

	out, err := g.call(ctx, network, token, erc20ABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (g *Gateway) CheckAllowance(ctx context.Context, network string, token, owner, spender common.Address) (string, error) {
	allowance, err := g.Allowance(ctx, network, token, owner, spender)
	if err != nil {
		return "", err
	}
	return amount.FromBaseUnits(allowance, g.GetDecimals(ctx, network, token)), nil
}

func (g *Gateway) GetBalance(ctx context.Context, network string, token, owner common.Address) (string, error) {
	balance, err := g.Balance(ctx, network, token, owner)
	if err != nil {
		return "", err
	}
	return amount.FromBaseUnits(balance, g.GetDecimals(ctx, network, token)), nil
}

// GetDecimals falls back to 18, the native currency never needs a call
func (g *Gateway) GetDecimals(ctx context.Context, network string, token common.Address) uint8 {
	if token == (common.Address{}) {
		if d, err := config.Describe(network); err == nil {
			return uint8(d.NativeCurrency.Decimals)
		}
		return DefaultDecimals
	}

	out, err := g.call(ctx, network, token, erc20ABI, "decimals")
	if err != nil {
		log.Printf("Error reading decimals of %s on %s: %s", token.Hex(), network, err.Error())
		return DefaultDecimals
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return DefaultDecimals
	}
	return decimals
}

func (g *Gateway) GetName(ctx context.Context, network string, token common.Address) string {
	return g.readString(ctx, network, token, "name", DefaultName)
}

func (g *Gateway) GetSymbol(ctx context.Context, network string, token common.Address) string {
	return g.readString(ctx, network, token, "symbol", DefaultSymbol)
}

func (g *Gateway) readString(ctx context.Context, network string, token common.Address, method, fallback string) string {
	out, err := g.call(ctx, network, token, erc20ABI, method)
	if err != nil {
		log.Printf("Error reading %s of %s on %s: %s", method, token.Hex(), network, err.Error())
		return fallback
	}
	s, ok := out[0].(string)
	if !ok || s == "" {
		return fallback
	}
	return s
}
