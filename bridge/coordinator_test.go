package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"imuabridge/amount"
	"imuabridge/config"
	"imuabridge/gateway"
	"imuabridge/types"
	"imuabridge/wallet"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sender = "0x52908400098527886E0F7030069857D2E4169EE7"

var sourceHash = common.HexToHash("0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060")

type lockCall struct {
	network  string
	receiver common.Address
	value    *big.Int
}

type burnCall struct {
	network  string
	token    common.Address
	receiver common.Address
	units    *big.Int
}

type fakeGateway struct {
	mu sync.Mutex

	decimals     uint8
	allowance    *big.Int
	allowanceErr error
	balance      *big.Int
	native       *big.Int
	lockErr      error
	burnErr      error
	approveErr   error
	result       gateway.TxResult
	receipt      *ethtypes.Receipt
	receiptErr   error

	// when set, Lock and Burn signal entered and wait for release
	entered chan struct{}
	release chan struct{}

	calls    []string
	locks    []lockCall
	burns    []burnCall
	approved []*big.Int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		decimals:  18,
		allowance: new(big.Int),
		balance:   new(big.Int),
		result:    gateway.TxResult{TxHash: sourceHash, Emitted: map[string]*big.Int{}},
		receipt:   &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful},
	}
}

func (g *fakeGateway) record(call string) {
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
}

func (g *fakeGateway) callCount(call string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (g *fakeGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) wait() {
	if g.entered == nil {
		return
	}
	g.entered <- struct{}{}
	<-g.release
}

func (g *fakeGateway) Lock(ctx context.Context, network string, receiver common.Address, value *big.Int) (gateway.TxResult, error) {
	g.record("lock")
	g.wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locks = append(g.locks, lockCall{network, receiver, value})
	if g.lockErr != nil {
		return gateway.TxResult{}, g.lockErr
	}
	return g.result, nil
}

func (g *fakeGateway) Burn(ctx context.Context, network string, token, receiver common.Address, units *big.Int) (gateway.TxResult, error) {
	g.record("burn")
	g.wait()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.burns = append(g.burns, burnCall{network, token, receiver, units})
	if g.burnErr != nil {
		return gateway.TxResult{}, g.burnErr
	}
	return g.result, nil
}

func (g *fakeGateway) Approve(ctx context.Context, network string, token, spender common.Address, units *big.Int) (common.Hash, error) {
	g.record("approve")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.approveErr != nil {
		return common.Hash{}, g.approveErr
	}
	g.approved = append(g.approved, units)
	g.allowance = new(big.Int).Set(units)
	return common.HexToHash("0xa11"), nil
}

func (g *fakeGateway) Allowance(ctx context.Context, network string, token, owner, spender common.Address) (*big.Int, error) {
	g.record("allowance")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.allowanceErr != nil {
		return nil, g.allowanceErr
	}
	return g.allowance, nil
}

func (g *fakeGateway) Balance(ctx context.Context, network string, token, owner common.Address) (*big.Int, error) {
	g.record("balance")
	g.mu.Lock()
	defer g.mu.Unlock()
	if token == (common.Address{}) {
		if g.native == nil {
			return nil, errors.New("connection refused")
		}
		return g.native, nil
	}
	return g.balance, nil
}

func (g *fakeGateway) GetDecimals(ctx context.Context, network string, token common.Address) uint8 {
	g.record("decimals")
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.decimals
}

func (g *fakeGateway) WaitMined(ctx context.Context, network string, hash common.Hash) (*ethtypes.Receipt, error) {
	g.record("receipt")
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.receiptErr != nil {
		return nil, g.receiptErr
	}
	return g.receipt, nil
}

type fakeWallet struct {
	mu        sync.Mutex
	account   string
	network   string
	switchErr error
	switches  []string
}

func (w *fakeWallet) CurrentAccount() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.account
}

func (w *fakeWallet) CurrentNetwork(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.network, nil
}

func (w *fakeWallet) SwitchNetwork(ctx context.Context, network string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.switches = append(w.switches, network)
	if w.switchErr != nil {
		return w.switchErr
	}
	w.network = network
	return nil
}

type fakeReporter struct {
	mu       sync.Mutex
	records  []types.RelayRecord
	err      error
	onSubmit func()
}

func (r *fakeReporter) Submit(ctx context.Context, rec types.RelayRecord) error {
	r.mu.Lock()
	r.records = append(r.records, rec)
	hook, err := r.onSubmit, r.err
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

type harness struct {
	c        *Coordinator
	gateway  *fakeGateway
	wallet   *fakeWallet
	reporter *fakeReporter
	updates  []AttemptUpdate
	mu       sync.Mutex
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		gateway:  newFakeGateway(),
		wallet:   &fakeWallet{account: sender, network: "ethereum-sepolia"},
		reporter: &fakeReporter{},
	}
	h.c = NewCoordinator(h.wallet, h.gateway, h.reporter, opts)
	h.c.Updates().Subscribe(func(u AttemptUpdate) {
		h.mu.Lock()
		h.updates = append(h.updates, u)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) phases() []types.Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	var res []types.Phase
	for _, u := range h.updates {
		res = append(res, u.Attempt.Phase)
	}
	return res
}

func ethRequest(value string) Request {
	return Request{
		SourceToken: types.Token{Symbol: "ETH", Network: "ethereum-sepolia"},
		TargetToken: types.Token{Symbol: "maoETH", Network: "imua-testnet"},
		Amount:      value,
	}
}

func maoUSDCRequest(value string) Request {
	return Request{
		SourceToken: types.Token{Symbol: "maoUSDC", Network: "imua-testnet"},
		TargetToken: types.Token{Symbol: "USDC", Network: "ethereum-sepolia"},
		Amount:      value,
	}
}

func units(t *testing.T, value string, decimals uint8) *big.Int {
	t.Helper()
	u, err := amount.ToBaseUnits(value, decimals)
	require.NoError(t, err)
	return u
}

// lockedETH runs the native path up to AwaitingRelay
func lockedETH(t *testing.T, h *harness) Snapshot {
	t.Helper()
	h.gateway.native = units(t, "10", 18)
	_, err := h.c.Request(context.Background(), ethRequest("1.5"))
	require.NoError(t, err)
	s, err := h.c.Confirm(context.Background())
	require.NoError(t, err)
	require.Equal(t, types.PhaseAwaitingRelay, s.Phase)
	return s
}

func TestSameNetworkRejectedWithoutExternalCalls(t *testing.T) {
	for _, network := range config.Networks() {
		t.Run(network, func(t *testing.T) {
			h := newHarness(t, Options{})
			s, err := h.c.Request(context.Background(), Request{
				SourceToken: types.Token{Symbol: "ETH", Network: network},
				TargetToken: types.Token{Symbol: "maoETH", Network: network},
				Amount:      "1",
			})
			assert.ErrorIs(t, err, ErrPreconditionFailed)
			assert.Equal(t, types.PhaseIdle, s.Phase)
			assert.Nil(t, s.Attempt)
			require.NotNil(t, s.LastError)
			assert.Equal(t, FailurePreconditionFailed, s.LastError.Kind)
			assert.Zero(t, h.gateway.total())
			assert.Empty(t, h.phases())
		})
	}
}

func TestRequestPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		account string
		req     Request
		want    error
	}{
		{"empty amount", sender, ethRequest(""), amount.ErrEmptyAmount},
		{"zero amount", sender, ethRequest("0"), amount.ErrNonPositive},
		{"zero with decimals", sender, ethRequest("0.000"), amount.ErrNonPositive},
		{"negative amount", sender, ethRequest("-1"), amount.ErrNonPositive},
		{"not a number", sender, ethRequest("1,5"), amount.ErrInvalidAmount},
		{"no account", "", ethRequest("1"), ErrPreconditionFailed},
		{"bad receiver", sender, func() Request { r := ethRequest("1"); r.Receiver = "0x1234"; return r }(), ErrPreconditionFailed},
		{"unknown network", sender, func() Request { r := ethRequest("1"); r.TargetToken.Network = "mars"; return r }(), ErrNetworkNotSupported},
		{"canonical token", sender, Request{
			SourceToken: types.Token{Symbol: "USDC", Network: "ethereum-sepolia", Address: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"},
			TargetToken: types.Token{Symbol: "maoUSDC", Network: "imua-testnet"},
			Amount:      "1",
		}, ErrPreconditionFailed},
		{"unknown bridged token", sender, Request{
			SourceToken: types.Token{Symbol: "maoDOGE", Network: "imua-testnet"},
			TargetToken: types.Token{Symbol: "DOGE", Network: "bsc-testnet"},
			Amount:      "1",
		}, ErrPreconditionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.wallet.account = tt.account

			s, err := h.c.Request(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, types.PhaseIdle, s.Phase)
			assert.NotNil(t, s.LastError)
			assert.Zero(t, h.gateway.total())
		})
	}
}

func TestTooManyDecimals(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.decimals = 6

	s, err := h.c.Request(context.Background(), maoUSDCRequest("1.1234567"))
	assert.ErrorIs(t, err, ErrPreconditionFailed)
	assert.ErrorIs(t, err, amount.ErrTooManyDecimals)
	assert.Equal(t, types.PhaseIdle, s.Phase)
	require.NotNil(t, s.LastError)
	assert.Contains(t, s.LastError.Message, "decimal places")
	assert.Zero(t, h.gateway.callCount("allowance"))
	assert.Equal(t, []types.Phase{types.PhaseValidating, types.PhaseIdle}, h.phases())
}

func TestLockScenario(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.native = units(t, "10", 18)

	s, err := h.c.Request(context.Background(), ethRequest("1.5"))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingUserConfirmation, s.Phase)
	require.NotNil(t, s.Attempt)
	assert.Equal(t, sender, s.Attempt.ReceiverAddress)
	assert.Equal(t, sender, s.Attempt.SenderAddress)
	assert.Equal(t, "1.5", s.Attempt.Amount)
	assert.False(t, s.Busy)
	assert.Zero(t, h.gateway.callCount("allowance"))

	s, err = h.c.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingRelay, s.Phase)
	assert.True(t, s.Busy)
	assert.Equal(t, sourceHash.Hex(), s.Attempt.SourceTxHash)

	require.Len(t, h.gateway.locks, 1)
	lock := h.gateway.locks[0]
	assert.Equal(t, "ethereum-sepolia", lock.network)
	assert.Equal(t, common.HexToAddress(sender), lock.receiver)
	assert.Equal(t, "1500000000000000000", lock.value.String())

	require.Len(t, h.reporter.records, 1)
	rec := h.reporter.records[0]
	assert.Equal(t, "1.5", rec.SourceFromAmount)
	assert.Equal(t, sourceHash.Hex(), rec.SourceFromTxHash)
	assert.Equal(t, "", rec.TargetToTxHash)
	assert.Equal(t, types.RelayStatusPending, rec.CrossBridgeStatus)
	assert.Equal(t, types.RelayStatusPending, rec.TargetToTxStatus)
	assert.Equal(t, "11155111", rec.SourceFromChainID)
	assert.Equal(t, "233", rec.TargetToChainID)
	assert.Equal(t, sender, rec.TargetToAddress)
	assert.Equal(t, "0", rec.SourceFromHandlingFee)
	assert.Equal(t, "1.5", rec.TargetToReceiveAmount)

	assert.Equal(t, []types.Phase{
		types.PhaseValidating,
		types.PhasePreparingSubmission,
		types.PhaseAwaitingUserConfirmation,
		types.PhaseSubmitting,
		types.PhaseAwaitingRelay,
	}, h.phases())
}

func TestLockFeeFromEvent(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.result.Emitted["fee"] = units(t, "0.01", 18)
	lockedETH(t, h)

	rec := h.reporter.records[0]
	assert.Equal(t, "0.01", rec.SourceFromHandlingFee)
	assert.Equal(t, "1.49", rec.TargetToReceiveAmount)
}

func TestBurnScenarioWithSufficientAllowance(t *testing.T) {
	h := newHarness(t, Options{})
	h.wallet.network = "imua-testnet"
	h.gateway.decimals = 6
	h.gateway.allowance = units(t, "100", 6)
	h.gateway.balance = units(t, "75", 6)

	s, err := h.c.Request(context.Background(), maoUSDCRequest("50"))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingUserConfirmation, s.Phase)
	assert.Equal(t, types.AuthorizationSufficient, s.Attempt.AuthorizationState)
	assert.Equal(t, "100", s.Attempt.AuthorizedAmount)

	s, err = h.c.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingRelay, s.Phase)

	// checked once during the request, once more right before burning
	assert.Equal(t, 2, h.gateway.callCount("allowance"))
	assert.Equal(t, 1, h.gateway.callCount("balance"))
	require.Len(t, h.gateway.burns, 1)
	burn := h.gateway.burns[0]
	token, _ := config.TokenContract("imua-testnet", "maoUSDC")
	assert.Equal(t, token, burn.token)
	assert.Equal(t, "50000000", burn.units.String())
	assert.Equal(t, common.HexToAddress(sender), burn.receiver)
	assert.Empty(t, h.wallet.switches)

	rec := h.reporter.records[0]
	assert.Equal(t, token.Hex(), rec.SourceFromTokenContractAddress)
	usdc, _ := config.TokenContract("ethereum-sepolia", "USDC")
	assert.Equal(t, usdc.Hex(), rec.TargetToTokenContractAddress)
}

func TestInsufficientAllowanceNeverBurns(t *testing.T) {
	h := newHarness(t, Options{})
	h.wallet.network = "imua-testnet"
	h.gateway.decimals = 6
	h.gateway.allowance = units(t, "10", 6)

	s, err := h.c.Request(context.Background(), maoUSDCRequest("50"))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingAuthorization, s.Phase)
	assert.Equal(t, types.AuthorizationRequired, s.Attempt.AuthorizationState)
	assert.Equal(t, "10", s.Attempt.AuthorizedAmount)

	_, err = h.c.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Zero(t, h.gateway.callCount("burn"))
}

func TestAllowanceTransportErrorAsksForApproval(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.allowanceErr = errors.New("503 service unavailable")

	s, err := h.c.Request(context.Background(), maoUSDCRequest("50"))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingAuthorization, s.Phase)
	assert.Equal(t, types.AuthorizationRequired, s.Attempt.AuthorizationState)
}

func TestApproveThenConfirm(t *testing.T) {
	h := newHarness(t, Options{ApprovalWait: time.Second})
	h.wallet.network = "imua-testnet"
	h.gateway.decimals = 6
	h.gateway.balance = units(t, "50", 6)

	_, err := h.c.Request(context.Background(), maoUSDCRequest("50"))
	require.NoError(t, err)

	s, err := h.c.Approve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingUserConfirmation, s.Phase)
	assert.Equal(t, types.AuthorizationSufficient, s.Attempt.AuthorizationState)
	require.Len(t, h.gateway.approved, 1)
	assert.Equal(t, "50000000", h.gateway.approved[0].String())
	assert.Equal(t, 1, h.gateway.callCount("receipt"))

	s, err = h.c.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseAwaitingRelay, s.Phase)
	assert.Len(t, h.gateway.burns, 1)

	assert.Equal(t, []types.Phase{
		types.PhaseValidating,
		types.PhaseCheckingAuthorization,
		types.PhaseAwaitingAuthorization,
		types.PhaseAuthorizing,
		types.PhaseCheckingAuthorization,
		types.PhasePreparingSubmission,
		types.PhaseAwaitingUserConfirmation,
		types.PhaseSubmitting,
		types.PhaseAwaitingRelay,
	}, h.phases())
}

func TestApproveFallsBackToDelay(t *testing.T) {
	h := newHarness(t, Options{ApprovalWait: time.Second, RecheckDelay: 10 * time.Millisecond})
	h.wallet.network = "imua-testnet"
	h.gateway.receiptErr = context.DeadlineExceeded

	_, err := h.c.Request(context.Background(), maoUSDCRequest("1"))
	require.NoError(t, err)

	start := time.Now()
	s, err := h.c.Approve(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, types.PhaseAwaitingUserConfirmation, s.Phase)
}

func TestApproveReverted(t *testing.T) {
	h := newHarness(t, Options{ApprovalWait: time.Second})
	h.wallet.network = "imua-testnet"
	h.gateway.receipt = &ethtypes.Receipt{Status: ethtypes.ReceiptStatusFailed}

	_, err := h.c.Request(context.Background(), maoUSDCRequest("1"))
	require.NoError(t, err)

	s, err := h.c.Approve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseIdle, s.Phase)
	require.NotNil(t, s.LastError)
	assert.Equal(t, FailureAuthorizationFailed, s.LastError.Kind)
}

func TestApproveRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.wallet.network = "imua-testnet"
	h.gateway.approveErr = &gateway.ContractCallFailed{Op: "approve", Network: "imua-testnet", Cause: wallet.ErrUserRejected}

	_, err := h.c.Request(context.Background(), maoUSDCRequest("1"))
	require.NoError(t, err)

	s, err := h.c.Approve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseIdle, s.Phase)
	assert.Equal(t, FailureTransactionRejected, s.LastError.Kind)

	_, err = h.c.Approve(context.Background())
	assert.ErrorIs(t, err, ErrNoAttempt)
}

func TestFundsReverifiedBeforeBurn(t *testing.T) {
	tests := []struct {
		name      string
		allowance string
		balance   string
		kind      string
	}{
		{"allowance spent elsewhere", "20", "100", FailureInsufficientAllowance},
		{"balance too low", "100", "49.999999", FailureInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.wallet.network = "imua-testnet"
			h.gateway.decimals = 6
			h.gateway.allowance = units(t, "100", 6)

			_, err := h.c.Request(context.Background(), maoUSDCRequest("50"))
			require.NoError(t, err)

			h.gateway.allowance = units(t, tt.allowance, 6)
			h.gateway.balance = units(t, tt.balance, 6)
			s, err := h.c.Confirm(context.Background())
			require.NoError(t, err)
			assert.Equal(t, types.PhaseResolved, s.Phase)
			assert.Equal(t, types.OutcomeFailure, s.Attempt.Outcome)
			assert.Equal(t, tt.kind, s.Attempt.FailureKind)
			assert.Empty(t, s.Attempt.SourceTxHash)
			assert.Zero(t, h.gateway.callCount("burn"))
			assert.Empty(t, h.reporter.records)
		})
	}
}

func TestInsufficientNativeBalance(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.native = units(t, "1", 18)

	_, err := h.c.Request(context.Background(), ethRequest("1.5"))
	require.NoError(t, err)
	s, err := h.c.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FailureInsufficientBalance, s.Attempt.FailureKind)
	assert.Zero(t, h.gateway.callCount("lock"))
}

func TestConfirmSwitchesNetwork(t *testing.T) {
	h := newHarness(t, Options{})
	h.wallet.network = "bsc-testnet"
	lockedETH(t, h)
	assert.Equal(t, []string{"ethereum-sepolia"}, h.wallet.switches)
}

func TestConfirmSwitchRejected(t *testing.T) {
	h := newHarness(t, Options{})
	h.wallet.network = "bsc-testnet"
	h.wallet.switchErr = fmt.Errorf("%w: user rejected", wallet.ErrSwitchRejected)

	_, err := h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)
	s, err := h.c.Confirm(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PhaseIdle, s.Phase)
	assert.Equal(t, FailureTransactionRejected, s.LastError.Kind)
	assert.Zero(t, h.gateway.callCount("lock"))
}

func TestSubmissionFailures(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		phase types.Phase
		kind  string
	}{
		{"user rejected", &gateway.ContractCallFailed{Op: "lock", Cause: fmt.Errorf("%w: denied", wallet.ErrUserRejected)}, types.PhaseIdle, FailureTransactionRejected},
		{"insufficient gas", &gateway.ContractCallFailed{Op: "lock", Cause: errors.New("insufficient funds for gas * price + value")}, types.PhaseResolved, FailureInsufficientGas},
		{"reverted", &gateway.ContractCallFailed{Op: "lock", Cause: gateway.ErrTxReverted}, types.PhaseResolved, FailureTransactionFailed},
		{"wrong network", &gateway.ContractCallFailed{Op: "lock", Cause: gateway.ErrWrongNetwork}, types.PhaseIdle, FailureNetworkNotSupported},
		{"no contract", config.ErrUnconfiguredAddress, types.PhaseIdle, FailureNetworkNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.gateway.native = units(t, "10", 18)
			h.gateway.lockErr = tt.err

			_, err := h.c.Request(context.Background(), ethRequest("1"))
			require.NoError(t, err)
			s, err := h.c.Confirm(context.Background())
			require.NoError(t, err)

			assert.Equal(t, tt.phase, s.Phase)
			if tt.phase == types.PhaseIdle {
				require.NotNil(t, s.LastError)
				assert.Equal(t, tt.kind, s.LastError.Kind)
			} else {
				assert.Equal(t, types.OutcomeFailure, s.Attempt.Outcome)
				assert.Equal(t, tt.kind, s.Attempt.FailureKind)
				assert.NotEmpty(t, s.Attempt.FailureReason)
			}
			assert.Empty(t, h.reporter.records)
		})
	}
}

func TestConfirmIsNotReentrant(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.native = units(t, "10", 18)
	h.gateway.entered = make(chan struct{})
	h.gateway.release = make(chan struct{})

	_, err := h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)

	done := make(chan Snapshot)
	go func() {
		s, _ := h.c.Confirm(context.Background())
		done <- s
	}()
	<-h.gateway.entered

	s, err := h.c.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrAttemptBusy)
	assert.Equal(t, types.PhaseSubmitting, s.Phase)
	assert.True(t, s.Busy)

	close(h.gateway.release)
	s = <-done
	assert.Equal(t, types.PhaseAwaitingRelay, s.Phase)

	_, err = h.c.Confirm(context.Background())
	assert.ErrorIs(t, err, ErrAttemptBusy)
	assert.Equal(t, 1, h.gateway.callCount("lock"))
	assert.Len(t, h.reporter.records, 1)
}

func TestRequestWhileInProgress(t *testing.T) {
	h := newHarness(t, Options{})
	lockedETH(t, h)

	_, err := h.c.Request(context.Background(), ethRequest("2"))
	assert.ErrorIs(t, err, ErrAttemptInProgress)
	assert.Equal(t, 1, h.gateway.callCount("lock"))
}

func TestMintFailureScenario(t *testing.T) {
	h := newHarness(t, Options{})
	lockedETH(t, h)

	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintFailure, Message: "revert: bad proof"})

	s := h.c.Snapshot()
	assert.Equal(t, types.PhaseResolved, s.Phase)
	assert.Equal(t, types.OutcomeFailure, s.Attempt.Outcome)
	assert.Equal(t, FailureRelayFailed, s.Attempt.FailureKind)
	assert.Equal(t, "revert: bad proof", s.Attempt.FailureReason)
	assert.False(t, s.Busy)
}

func TestMintSuccess(t *testing.T) {
	h := newHarness(t, Options{})
	lockedETH(t, h)

	// unrelated traffic changes nothing
	h.c.HandleRelayEvent(types.RelayEvent{Type: "STATUS"})
	assert.Equal(t, types.PhaseAwaitingRelay, h.c.Snapshot().Phase)

	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintSuccess, Data: &types.RelayEventData{TargetToTxHash: "0xfeed"}})
	s := h.c.Snapshot()
	assert.Equal(t, types.OutcomeSuccess, s.Attempt.Outcome)
	assert.Equal(t, "0xfeed", s.Attempt.TargetTxHash)
	assert.Equal(t, sourceHash.Hex(), s.Attempt.SourceTxHash)

	// a late failure can't overwrite the verdict
	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintFailure})
	assert.Equal(t, types.OutcomeSuccess, h.c.Snapshot().Attempt.Outcome)
}

func TestExplicitSuccessFalseFails(t *testing.T) {
	h := newHarness(t, Options{})
	lockedETH(t, h)

	no := false
	h.c.HandleRelayEvent(types.RelayEvent{Type: "MINT_STATUS", Success: &no})
	s := h.c.Snapshot()
	assert.Equal(t, types.OutcomeFailure, s.Attempt.Outcome)
	assert.NotEmpty(t, s.Attempt.FailureReason)
}

func TestRelayEventOutsideAwaitingRelayIgnored(t *testing.T) {
	h := newHarness(t, Options{})
	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintSuccess})
	assert.Equal(t, types.PhaseIdle, h.c.Snapshot().Phase)

	_, err := h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)
	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintSuccess})
	assert.Equal(t, types.PhaseAwaitingUserConfirmation, h.c.Snapshot().Phase)
}

func TestReportingFailureKeepsSourceHash(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.native = units(t, "10", 18)
	h.reporter.err = errors.New("relay record submission failed: status 500")

	_, err := h.c.Request(context.Background(), ethRequest("1.5"))
	require.NoError(t, err)
	s, err := h.c.Confirm(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.PhaseResolved, s.Phase)
	assert.Equal(t, types.OutcomeFailure, s.Attempt.Outcome)
	assert.Equal(t, FailureReportingFailed, s.Attempt.FailureKind)
	assert.Equal(t, sourceHash.Hex(), s.Attempt.SourceTxHash)
	assert.Contains(t, s.Attempt.FailureReason, sourceHash.Hex())
	assert.Contains(t, s.Attempt.FailureReason, "https://sepolia.etherscan.io/tx/")
}

func TestMintConfirmedBeforeReportAck(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.native = units(t, "10", 18)
	h.reporter.err = errors.New("timeout awaiting response headers")
	h.reporter.onSubmit = func() {
		h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintSuccess, Data: &types.RelayEventData{TargetToTxHash: "0xbeef"}})
	}

	_, err := h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)
	s, err := h.c.Confirm(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.OutcomeSuccess, s.Attempt.Outcome)
	assert.Equal(t, "0xbeef", s.Attempt.TargetTxHash)
}

func TestMintVerdictDuringSubmission(t *testing.T) {
	h := newHarness(t, Options{RelayTimeout: time.Hour})
	h.gateway.native = units(t, "10", 18)
	h.gateway.entered = make(chan struct{})
	h.gateway.release = make(chan struct{})

	_, err := h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)

	done := make(chan Snapshot)
	go func() {
		s, _ := h.c.Confirm(context.Background())
		done <- s
	}()
	<-h.gateway.entered

	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintSuccess, Data: &types.RelayEventData{TargetToTxHash: "0xabc"}})
	assert.Equal(t, types.PhaseSubmitting, h.c.Snapshot().Phase)

	close(h.gateway.release)
	s := <-done

	assert.Equal(t, types.PhaseResolved, s.Phase)
	assert.Equal(t, types.OutcomeSuccess, s.Attempt.Outcome)
	assert.Equal(t, "0xabc", s.Attempt.TargetTxHash)
	assert.Equal(t, sourceHash.Hex(), s.Attempt.SourceTxHash)
	assert.Len(t, h.reporter.records, 1)
	assert.Equal(t, []types.Phase{
		types.PhaseAwaitingUserConfirmation,
		types.PhaseSubmitting,
		types.PhaseAwaitingRelay,
		types.PhaseResolved,
	}, h.phases()[len(h.phases())-4:])
}

func TestMintFailureDuringSubmission(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.native = units(t, "10", 18)
	h.gateway.entered = make(chan struct{})
	h.gateway.release = make(chan struct{})

	_, err := h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)

	done := make(chan Snapshot)
	go func() {
		s, _ := h.c.Confirm(context.Background())
		done <- s
	}()
	<-h.gateway.entered

	// progress updates are not held
	h.c.HandleRelayEvent(types.RelayEvent{Type: "STATUS"})
	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintFailure, Message: "revert: bad proof"})
	close(h.gateway.release)
	s := <-done

	assert.Equal(t, types.OutcomeFailure, s.Attempt.Outcome)
	assert.Equal(t, FailureRelayFailed, s.Attempt.FailureKind)
	assert.Equal(t, "revert: bad proof", s.Attempt.FailureReason)
}

func TestHeldVerdictDroppedWithFailedSubmission(t *testing.T) {
	h := newHarness(t, Options{})
	h.gateway.native = units(t, "10", 18)
	h.gateway.lockErr = errors.New("nonce too low")
	h.gateway.entered = make(chan struct{})
	h.gateway.release = make(chan struct{})

	_, err := h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)

	done := make(chan Snapshot)
	go func() {
		s, _ := h.c.Confirm(context.Background())
		done <- s
	}()
	<-h.gateway.entered
	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintSuccess})
	close(h.gateway.release)
	<-done

	_, err = h.c.Dismiss()
	require.NoError(t, err)
	h.gateway.entered = nil
	h.gateway.lockErr = nil

	s := lockedETH(t, h)
	assert.Equal(t, types.PhaseAwaitingRelay, s.Phase)
	assert.Empty(t, s.Attempt.Outcome)
}

func TestRelayTimeoutResolvesUnknown(t *testing.T) {
	h := newHarness(t, Options{RelayTimeout: 30 * time.Millisecond})
	lockedETH(t, h)

	require.Eventually(t, func() bool {
		return h.c.Snapshot().Phase == types.PhaseResolved
	}, 2*time.Second, 5*time.Millisecond)

	s := h.c.Snapshot()
	assert.Equal(t, types.OutcomeUnknown, s.Attempt.Outcome)
	assert.Equal(t, FailureRelayTimeout, s.Attempt.FailureKind)
	assert.Contains(t, s.Attempt.FailureReason, "https://sepolia.etherscan.io/tx/"+sourceHash.Hex())
}

func TestRelayTimeoutStoppedByVerdict(t *testing.T) {
	h := newHarness(t, Options{RelayTimeout: 30 * time.Millisecond})
	lockedETH(t, h)
	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintSuccess})

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, types.OutcomeSuccess, h.c.Snapshot().Attempt.Outcome)
}

func TestCancel(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.c.Cancel()
	assert.ErrorIs(t, err, ErrNoAttempt)

	_, err = h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)
	s, err := h.c.Cancel()
	require.NoError(t, err)
	assert.Equal(t, types.PhaseIdle, s.Phase)
	assert.Nil(t, s.LastError)
	assert.Zero(t, h.gateway.callCount("lock"))

	lockedETH(t, h)
	_, err = h.c.Cancel()
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCancelAwaitingAuthorization(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.c.Request(context.Background(), maoUSDCRequest("5"))
	require.NoError(t, err)

	s, err := h.c.Cancel()
	require.NoError(t, err)
	assert.Equal(t, types.PhaseIdle, s.Phase)
	assert.Zero(t, h.gateway.callCount("approve"))
}

func TestDismiss(t *testing.T) {
	h := newHarness(t, Options{})
	lockedETH(t, h)

	_, err := h.c.Dismiss()
	assert.ErrorIs(t, err, ErrIllegalTransition)

	h.c.HandleRelayEvent(types.RelayEvent{Type: types.RelayEventMintFailure, Message: "nope"})
	s, err := h.c.Dismiss()
	require.NoError(t, err)
	assert.Equal(t, types.PhaseIdle, s.Phase)
	assert.Nil(t, s.Attempt)
	assert.Nil(t, s.LastError)

	// a new attempt may start after dismissal
	_, err = h.c.Request(context.Background(), ethRequest("1"))
	assert.NoError(t, err)
}

func TestDismissClearsRejection(t *testing.T) {
	h := newHarness(t, Options{})
	s, _ := h.c.Request(context.Background(), ethRequest(""))
	require.NotNil(t, s.LastError)

	s, err := h.c.Dismiss()
	require.NoError(t, err)
	assert.Nil(t, s.LastError)
}

func TestAccountChangeAbortsPendingAttempt(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.c.Request(context.Background(), ethRequest("1"))
	require.NoError(t, err)

	// chain changes alone keep the attempt
	h.c.HandleSessionChange(wallet.SessionChange{Account: sender, PrevAccount: sender, Network: "bsc-testnet", PrevNetwork: "ethereum-sepolia"})
	assert.Equal(t, types.PhaseAwaitingUserConfirmation, h.c.Snapshot().Phase)

	h.c.HandleSessionChange(wallet.SessionChange{Account: "0x01", PrevAccount: sender})
	s := h.c.Snapshot()
	assert.Equal(t, types.PhaseIdle, s.Phase)
	require.NotNil(t, s.LastError)
	assert.Equal(t, FailurePreconditionFailed, s.LastError.Kind)
}

func TestAccountChangeKeepsSubmittedAttempt(t *testing.T) {
	h := newHarness(t, Options{})
	lockedETH(t, h)

	h.c.HandleSessionChange(wallet.SessionChange{Account: "", PrevAccount: sender})
	assert.Equal(t, types.PhaseAwaitingRelay, h.c.Snapshot().Phase)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, canTransition(types.PhaseAwaitingUserConfirmation, types.PhaseSubmitting))
	assert.False(t, canTransition(types.PhasePreparingSubmission, types.PhaseSubmitting))
	assert.False(t, canTransition(types.PhaseAwaitingRelay, types.PhaseIdle))
	assert.Equal(t, []types.Phase{types.PhaseIdle}, transitions[types.PhaseResolved])

	// only AwaitingUserConfirmation leads into Submitting
	for from, targets := range transitions {
		for _, to := range targets {
			if to == types.PhaseSubmitting {
				assert.Equal(t, types.PhaseAwaitingUserConfirmation, from)
			}
		}
	}
}

func TestBridgedPrefix(t *testing.T) {
	c := NewCoordinator(nil, nil, nil, Options{})
	assert.True(t, c.isBridged("maoUSDC"))
	assert.False(t, c.isBridged("mao"))
	assert.False(t, c.isBridged("ETH"))

	c = NewCoordinator(nil, nil, nil, Options{BridgedPrefixes: []string{"w"}})
	assert.True(t, c.isBridged("wBGL"))
	assert.False(t, c.isBridged("maoUSDC"))
}
