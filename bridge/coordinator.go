// Package bridge drives a single bridge attempt from the user's request to
// the relayer's verdict. The coordinator is the only writer of attempt state.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"imuabridge/amount"
	"imuabridge/config"
	"imuabridge/events"
	"imuabridge/gateway"
	"imuabridge/metrics"
	"imuabridge/types"
	"imuabridge/wallet"

	ethav "github.com/KOREAN139/ethereum-address-validator"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type Gateway interface {
	Lock(ctx context.Context, network string, receiver common.Address, value *big.Int) (gateway.TxResult, error)
	Burn(ctx context.Context, network string, token, receiver common.Address, units *big.Int) (gateway.TxResult, error)
	Approve(ctx context.Context, network string, token, spender common.Address, units *big.Int) (common.Hash, error)
	Allowance(ctx context.Context, network string, token, owner, spender common.Address) (*big.Int, error)
	Balance(ctx context.Context, network string, token, owner common.Address) (*big.Int, error)
	GetDecimals(ctx context.Context, network string, token common.Address) uint8
	WaitMined(ctx context.Context, network string, hash common.Hash) (*ethtypes.Receipt, error)
}

type Wallet interface {
	CurrentAccount() string
	CurrentNetwork(ctx context.Context) (string, error)
	SwitchNetwork(ctx context.Context, network string) error
}

type Reporter interface {
	Submit(ctx context.Context, rec types.RelayRecord) error
}

type Options struct {
	BridgedPrefixes []string
	// 0 waits for the relayer forever
	RelayTimeout time.Duration
	// bound on waiting for the approve receipt before falling back to RecheckDelay
	ApprovalWait time.Duration
	RecheckDelay time.Duration
}

// Request is what the user asks to bridge. Receiver defaults to the connected account.
type Request struct {
	SourceToken types.Token `json:"sourceToken"`
	TargetToken types.Token `json:"targetToken"`
	Amount      string      `json:"amount"`
	Receiver    string      `json:"receiver,omitempty"`
}

// AttemptUpdate is published on every phase change, Attempt carries the new phase
type AttemptUpdate struct {
	From    types.Phase         `json:"from"`
	Attempt types.BridgeAttempt `json:"attempt"`
}

type Snapshot struct {
	Phase     types.Phase          `json:"phase"`
	Attempt   *types.BridgeAttempt `json:"attempt,omitempty"`
	LastError *Failure             `json:"lastError,omitempty"`
	Busy      bool                 `json:"busy"`
}

// plan is the base-unit view of the attempt, never exposed
type plan struct {
	bridged  bool
	token    common.Address // zero for the native currency
	spender  common.Address // burn contract, bridged assets only
	sender   common.Address
	receiver common.Address
	units    *big.Int
	decimals uint8
}

type Coordinator struct {
	wallet   Wallet
	gateway  Gateway
	reporter Reporter
	opts     Options
	updates  *events.Bus[AttemptUpdate]

	mu        sync.Mutex
	attempt   *types.BridgeAttempt
	plan      plan
	lastError *Failure
	timer     *time.Timer
	early     *types.RelayEvent // verdict received while still Submitting
}

func NewCoordinator(w Wallet, g Gateway, r Reporter, opts Options) *Coordinator {
	if len(opts.BridgedPrefixes) == 0 {
		opts.BridgedPrefixes = []string{config.DefaultBridgedAssetPrefix}
	}
	return &Coordinator{
		wallet:   w,
		gateway:  g,
		reporter: r,
		opts:     opts,
		updates:  events.NewBus[AttemptUpdate](),
	}
}

func (c *Coordinator) Updates() *events.Bus[AttemptUpdate] {
	return c.updates
}

func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Coordinator) snapshot() Snapshot {
	s := Snapshot{Phase: types.PhaseIdle}
	if c.lastError != nil {
		f := *c.lastError
		s.LastError = &f
	}
	if c.attempt != nil {
		a := *c.attempt
		s.Attempt = &a
		s.Phase = a.Phase
		s.Busy = busy(a.Phase)
	}
	return s
}

// isBridged reports whether symbol names a wrapped asset
func (c *Coordinator) isBridged(symbol string) bool {
	for _, prefix := range c.opts.BridgedPrefixes {
		if prefix != "" && strings.HasPrefix(symbol, prefix) && len(symbol) > len(prefix) {
			return true
		}
	}
	return false
}

// precheck runs every validation that needs no external call
func (c *Coordinator) precheck(req Request, account string) (types.BridgeAttempt, plan, error) {
	var p plan

	if err := amount.CheckPositive(req.Amount); err != nil {
		return types.BridgeAttempt{}, p, fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	}
	if account == "" {
		return types.BridgeAttempt{}, p, fmt.Errorf("%w: no wallet connected", ErrPreconditionFailed)
	}
	if req.SourceToken.Network == req.TargetToken.Network {
		return types.BridgeAttempt{}, p, fmt.Errorf("%w: source and target network are the same", ErrPreconditionFailed)
	}
	for _, network := range []string{req.SourceToken.Network, req.TargetToken.Network} {
		if _, err := config.Describe(network); err != nil {
			return types.BridgeAttempt{}, p, fmt.Errorf("%w: %s", ErrNetworkNotSupported, err.Error())
		}
	}

	receiver := strings.TrimSpace(req.Receiver)
	if receiver == "" {
		receiver = account
	}
	if !common.IsHexAddress(receiver) {
		return types.BridgeAttempt{}, p, fmt.Errorf("%w: invalid receiver %q", ErrPreconditionFailed, receiver)
	}
	receiver = common.HexToAddress(receiver).Hex()
	if err := ethav.Validate(receiver); err != nil {
		return types.BridgeAttempt{}, p, fmt.Errorf("%w: invalid receiver: %s", ErrPreconditionFailed, err.Error())
	}

	src := req.SourceToken
	p.bridged = c.isBridged(src.Symbol)
	switch {
	case p.bridged:
		if src.Address == "" {
			addr, err := config.TokenContract(src.Network, src.Symbol)
			if err != nil {
				return types.BridgeAttempt{}, p, fmt.Errorf("%w: %s", ErrPreconditionFailed, err.Error())
			}
			src.Address = addr.Hex()
		}
		if !common.IsHexAddress(src.Address) {
			return types.BridgeAttempt{}, p, fmt.Errorf("%w: invalid token address %q", ErrPreconditionFailed, src.Address)
		}
		spender, err := config.BurnContract(src.Network)
		if err != nil {
			return types.BridgeAttempt{}, p, fmt.Errorf("%w: %s", ErrNetworkNotSupported, err.Error())
		}
		p.token = common.HexToAddress(src.Address)
		p.spender = spender
	case !src.IsNative():
		return types.BridgeAttempt{}, p, fmt.Errorf("%w: %s cannot be bridged from %s", ErrPreconditionFailed, src.Symbol, src.Network)
	}

	p.sender = common.HexToAddress(account)
	p.receiver = common.HexToAddress(receiver)

	a := types.BridgeAttempt{
		ID:                 uuid.New().String(),
		SourceToken:        src,
		TargetToken:        req.TargetToken,
		SenderAddress:      p.sender.Hex(),
		ReceiverAddress:    receiver,
		Amount:             strings.TrimSpace(req.Amount),
		AuthorizationState: types.AuthorizationUnknown,
		Phase:              types.PhaseValidating,
		TsCreated:          time.Now().Unix(),
	}
	return a, p, nil
}

// reject surfaces a request that never became an attempt
func (c *Coordinator) reject(err error) {
	kind := FailurePreconditionFailed
	if errors.Is(err, ErrNetworkNotSupported) {
		kind = FailureNetworkNotSupported
	}
	metrics.AttemptsRejected.WithLabelValues(kind).Inc()
	log.Printf("Bridge request rejected: %s", err.Error())

	c.mu.Lock()
	c.lastError = &Failure{Kind: kind, Message: err.Error()}
	c.mu.Unlock()
}

// Request validates a bridge request and carries it as far as the next user decision:
// AwaitingAuthorization or AwaitingUserConfirmation
func (c *Coordinator) Request(ctx context.Context, req Request) (Snapshot, error) {
	c.mu.Lock()
	inProgress := c.attempt != nil
	c.mu.Unlock()
	if inProgress {
		return c.Snapshot(), ErrAttemptInProgress
	}

	attempt, p, err := c.precheck(req, c.wallet.CurrentAccount())
	if err != nil {
		c.reject(err)
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if c.attempt != nil {
		c.mu.Unlock()
		return c.Snapshot(), ErrAttemptInProgress
	}
	c.attempt = &attempt
	c.plan = p
	c.lastError = nil
	c.mu.Unlock()

	id := attempt.ID
	metrics.AttemptsStarted.Inc()
	log.Printf("Bridge attempt %s: %s %s on %s -> %s on %s for %s",
		id, attempt.Amount, attempt.SourceToken.Symbol, attempt.SourceToken.Network,
		attempt.TargetToken.Symbol, attempt.TargetToken.Network, attempt.ReceiverAddress)
	c.updates.Publish(AttemptUpdate{From: types.PhaseIdle, Attempt: attempt})

	decimals := c.gateway.GetDecimals(ctx, attempt.SourceToken.Network, p.token)
	err = amount.ValidateTokenAmount(attempt.Amount, decimals)
	var units *big.Int
	if err == nil {
		units, err = amount.ToBaseUnits(attempt.Amount, decimals)
	}
	if err != nil {
		c.abort(id, types.PhaseValidating, FailurePreconditionFailed, err.Error())
		return c.Snapshot(), fmt.Errorf("%w: %w", ErrPreconditionFailed, err)
	}

	c.mu.Lock()
	if c.attempt != nil && c.attempt.ID == id {
		c.plan.decimals = decimals
		c.plan.units = units
	}
	c.mu.Unlock()

	if p.bridged {
		if c.advance(id, types.PhaseValidating, types.PhaseCheckingAuthorization, func(a *types.BridgeAttempt) {
			a.AuthorizationState = types.AuthorizationChecking
		}) {
			c.checkAuthorization(ctx, id)
		}
	} else if c.advance(id, types.PhaseValidating, types.PhasePreparingSubmission, nil) {
		c.prepare(id)
	}

	return c.Snapshot(), nil
}

// checkAuthorization compares the allowance with the amount, an unreadable allowance counts as insufficient
func (c *Coordinator) checkAuthorization(ctx context.Context, id string) {
	a, p, ok := c.current(id)
	if !ok {
		return
	}

	allowance, err := c.gateway.Allowance(ctx, a.SourceToken.Network, p.token, p.sender, p.spender)
	if err != nil {
		log.Printf("Attempt %s: allowance check failed, asking for approval: %s", id, err.Error())
		c.advance(id, types.PhaseCheckingAuthorization, types.PhaseAwaitingAuthorization, func(a *types.BridgeAttempt) {
			a.AuthorizationState = types.AuthorizationRequired
		})
		return
	}

	observed := amount.FromBaseUnits(allowance, p.decimals)
	if allowance.Cmp(p.units) < 0 {
		c.advance(id, types.PhaseCheckingAuthorization, types.PhaseAwaitingAuthorization, func(a *types.BridgeAttempt) {
			a.AuthorizationState = types.AuthorizationRequired
			a.AuthorizedAmount = observed
		})
		return
	}

	if c.advance(id, types.PhaseCheckingAuthorization, types.PhasePreparingSubmission, func(a *types.BridgeAttempt) {
		a.AuthorizationState = types.AuthorizationSufficient
		a.AuthorizedAmount = observed
	}) {
		c.prepare(id)
	}
}

// prepare freezes sender, receiver, amount and network for the user to confirm
func (c *Coordinator) prepare(id string) {
	c.advance(id, types.PhasePreparingSubmission, types.PhaseAwaitingUserConfirmation, nil)
}

// Approve grants the burn contract exactly the requested amount, then checks the allowance again
func (c *Coordinator) Approve(ctx context.Context) (Snapshot, error) {
	id, err := c.enter(types.PhaseAwaitingAuthorization, types.PhaseAuthorizing)
	if err != nil {
		return c.Snapshot(), err
	}
	a, p, ok := c.current(id)
	if !ok {
		return c.Snapshot(), nil
	}
	network := a.SourceToken.Network

	if err := c.ensureNetwork(ctx, network); err != nil {
		c.abort(id, types.PhaseAuthorizing, switchFailureKind(err), err.Error())
		return c.Snapshot(), nil
	}

	hash, err := c.gateway.Approve(ctx, network, p.token, p.spender, p.units)
	if err != nil {
		kind := FailureAuthorizationFailed
		if errors.Is(err, wallet.ErrUserRejected) {
			kind = FailureTransactionRejected
		}
		c.abort(id, types.PhaseAuthorizing, kind, err.Error())
		return c.Snapshot(), nil
	}
	log.Printf("Attempt %s: approval %s sent", id, hash.Hex())

	receipt, err := c.waitApproval(ctx, network, hash)
	if err == nil && receipt.Status == ethtypes.ReceiptStatusFailed {
		c.abort(id, types.PhaseAuthorizing, FailureAuthorizationFailed, fmt.Sprintf("approval %s reverted", hash.Hex()))
		return c.Snapshot(), nil
	}
	if err != nil {
		// not mined within the wait, the allowance may still show up
		log.Printf("Attempt %s: no approval receipt yet (%s), re-checking after %s", id, err.Error(), c.opts.RecheckDelay)
		sleep(ctx, c.opts.RecheckDelay)
	}

	if c.advance(id, types.PhaseAuthorizing, types.PhaseCheckingAuthorization, func(a *types.BridgeAttempt) {
		a.AuthorizationState = types.AuthorizationChecking
	}) {
		c.checkAuthorization(ctx, id)
	}
	return c.Snapshot(), nil
}

func (c *Coordinator) waitApproval(ctx context.Context, network string, hash common.Hash) (*ethtypes.Receipt, error) {
	if c.opts.ApprovalWait <= 0 {
		return nil, errors.New("receipt wait disabled")
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ApprovalWait)
	defer cancel()
	return c.gateway.WaitMined(waitCtx, network, hash)
}

// Confirm submits the lock or burn. It is the only way into Submitting, a second
// call while the first is in flight gets ErrAttemptBusy.
func (c *Coordinator) Confirm(ctx context.Context) (Snapshot, error) {
	id, err := c.enter(types.PhaseAwaitingUserConfirmation, types.PhaseSubmitting)
	if err != nil {
		return c.Snapshot(), err
	}
	a, p, ok := c.current(id)
	if !ok {
		return c.Snapshot(), nil
	}
	network := a.SourceToken.Network

	if !config.SupportsBridging(network) {
		c.abort(id, types.PhaseSubmitting, FailureNetworkNotSupported, fmt.Sprintf("no lock or burn contract on %s", network))
		return c.Snapshot(), nil
	}
	if err := c.ensureNetwork(ctx, network); err != nil {
		c.abort(id, types.PhaseSubmitting, switchFailureKind(err), err.Error())
		return c.Snapshot(), nil
	}

	var res gateway.TxResult
	if p.bridged {
		if !c.verifyFunds(ctx, id, a, p) {
			return c.Snapshot(), nil
		}
		res, err = c.gateway.Burn(ctx, network, p.token, p.receiver, p.units)
	} else {
		balance, berr := c.gateway.Balance(ctx, network, common.Address{}, p.sender)
		if berr == nil && balance.Cmp(p.units) < 0 {
			c.resolve(id, types.PhaseSubmitting, types.OutcomeFailure, FailureInsufficientBalance,
				fmt.Sprintf("balance %s is below %s", amount.FromBaseUnits(balance, p.decimals), a.Amount), nil)
			return c.Snapshot(), nil
		}
		res, err = c.gateway.Lock(ctx, network, p.receiver, p.units)
	}

	if err != nil {
		c.submissionFailed(id, res, err)
		return c.Snapshot(), nil
	}

	txHash := res.TxHash.Hex()
	if !c.advance(id, types.PhaseSubmitting, types.PhaseAwaitingRelay, func(a *types.BridgeAttempt) {
		a.SourceTxHash = txHash
	}) {
		return c.Snapshot(), nil
	}
	c.armRelayTimeout(id)
	if ev := c.takeEarlyVerdict(id); ev != nil {
		log.Printf("Attempt %s: applying relay event %s received during submission", id, ev.Type)
		c.applyRelayEvent(id, *ev)
	}

	// a relay event may already have resolved the attempt, the record is sent regardless
	a.SourceTxHash = txHash
	if err := c.reporter.Submit(ctx, buildRecord(a, p, res)); err != nil {
		// funds have moved, the user needs the hash to follow up
		msg := fmt.Sprintf("transaction %s was sent but the relayer could not be notified (%s)", txHash, err.Error())
		if url, uerr := config.ExplorerTxURL(network, txHash); uerr == nil {
			msg += ", track it at " + url
		}
		c.resolve(id, types.PhaseAwaitingRelay, types.OutcomeFailure, FailureReportingFailed, msg, nil)
	}
	return c.Snapshot(), nil
}

// verifyFunds re-reads allowance and balance right before burning
func (c *Coordinator) verifyFunds(ctx context.Context, id string, a types.BridgeAttempt, p plan) bool {
	network := a.SourceToken.Network

	allowance, err := c.gateway.Allowance(ctx, network, p.token, p.sender, p.spender)
	if err != nil {
		c.resolve(id, types.PhaseSubmitting, types.OutcomeFailure, FailureTransactionFailed,
			"could not verify allowance: "+err.Error(), nil)
		return false
	}
	if allowance.Cmp(p.units) < 0 {
		c.resolve(id, types.PhaseSubmitting, types.OutcomeFailure, FailureInsufficientAllowance,
			fmt.Sprintf("allowance %s is below %s", amount.FromBaseUnits(allowance, p.decimals), a.Amount), func(a *types.BridgeAttempt) {
				a.AuthorizationState = types.AuthorizationRequired
			})
		return false
	}

	balance, err := c.gateway.Balance(ctx, network, p.token, p.sender)
	if err != nil {
		c.resolve(id, types.PhaseSubmitting, types.OutcomeFailure, FailureTransactionFailed,
			"could not verify balance: "+err.Error(), nil)
		return false
	}
	if balance.Cmp(p.units) < 0 {
		c.resolve(id, types.PhaseSubmitting, types.OutcomeFailure, FailureInsufficientBalance,
			fmt.Sprintf("balance %s is below %s", amount.FromBaseUnits(balance, p.decimals), a.Amount), nil)
		return false
	}
	return true
}

func (c *Coordinator) submissionFailed(id string, res gateway.TxResult, err error) {
	switch {
	case errors.Is(err, wallet.ErrUserRejected):
		c.abort(id, types.PhaseSubmitting, FailureTransactionRejected, err.Error())
	case errors.Is(err, config.ErrUnconfiguredAddress), errors.Is(err, gateway.ErrWrongNetwork):
		c.abort(id, types.PhaseSubmitting, FailureNetworkNotSupported, err.Error())
	case errors.Is(err, gateway.ErrGatewayNotInitialized):
		c.abort(id, types.PhaseSubmitting, FailurePreconditionFailed, err.Error())
	default:
		c.resolve(id, types.PhaseSubmitting, types.OutcomeFailure, classifySubmission(err), err.Error(), func(a *types.BridgeAttempt) {
			// a reverted transaction still has a hash worth showing
			if res.TxHash != (common.Hash{}) {
				a.SourceTxHash = res.TxHash.Hex()
			}
		})
	}
}

func (c *Coordinator) armRelayTimeout(id string) {
	if c.opts.RelayTimeout <= 0 {
		return
	}
	timeout := c.opts.RelayTimeout

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimer()
	c.timer = time.AfterFunc(timeout, func() {
		a, _, ok := c.current(id)
		if !ok {
			return
		}
		msg := fmt.Sprintf("no answer from the relayer after %s, the outcome is unknown", timeout)
		if url, err := config.ExplorerTxURL(a.SourceToken.Network, a.SourceTxHash); err == nil {
			msg += ", check " + url
		}
		c.resolve(id, types.PhaseAwaitingRelay, types.OutcomeUnknown, FailureRelayTimeout, msg, nil)
	})
}

// HandleRelayEvent applies a relayer verdict to the attempt awaiting it. A verdict that
// arrives while the transaction is still being submitted is held until it is sent,
// anything else is dropped.
func (c *Coordinator) HandleRelayEvent(ev types.RelayEvent) {
	c.mu.Lock()
	var id string
	if c.attempt != nil {
		switch c.attempt.Phase {
		case types.PhaseAwaitingRelay:
			id = c.attempt.ID
		case types.PhaseSubmitting:
			// the relayer can see the transaction before our receipt poll does
			if terminal(ev) {
				e, held := ev, c.attempt.ID
				c.early = &e
				c.mu.Unlock()
				log.Printf("Attempt %s: holding relay event %s until submission completes", held, ev.Type)
				return
			}
		}
	}
	c.mu.Unlock()

	if id == "" {
		log.Printf("Ignoring relay event %s, no attempt awaiting the relayer", ev.Type)
		return
	}
	c.applyRelayEvent(id, ev)
}

func terminal(ev types.RelayEvent) bool {
	return ev.Type == types.RelayEventMintSuccess || ev.Type == types.RelayEventMintFailure || ev.Failed()
}

// takeEarlyVerdict returns and clears a verdict held for id
func (c *Coordinator) takeEarlyVerdict(id string) *types.RelayEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt == nil || c.attempt.ID != id {
		return nil
	}
	ev := c.early
	c.early = nil
	return ev
}

func (c *Coordinator) applyRelayEvent(id string, ev types.RelayEvent) {
	switch {
	case ev.Type == types.RelayEventMintFailure || ev.Failed():
		msg := ev.Message
		if msg == "" {
			msg = "relayer reported a failed mint"
		}
		c.resolve(id, types.PhaseAwaitingRelay, types.OutcomeFailure, FailureRelayFailed, msg, nil)
	case ev.Type == types.RelayEventMintSuccess:
		c.resolve(id, types.PhaseAwaitingRelay, types.OutcomeSuccess, "", "", func(a *types.BridgeAttempt) {
			if ev.Data != nil {
				a.TargetTxHash = ev.Data.TargetToTxHash
			}
		})
	default:
		log.Debugf("Ignoring relay event %q", ev.Type)
	}
}

// HandleSessionChange drops an attempt that hasn't touched the chain yet when the account changes
func (c *Coordinator) HandleSessionChange(change wallet.SessionChange) {
	if !change.AccountChanged() {
		return
	}

	c.mu.Lock()
	var id string
	var phase types.Phase
	if c.attempt != nil && abortedBySessionChange(c.attempt.Phase) {
		id, phase = c.attempt.ID, c.attempt.Phase
	}
	c.mu.Unlock()

	if id != "" {
		c.abort(id, phase, FailurePreconditionFailed, "wallet account changed")
	}
}

// Cancel abandons the attempt before anything was sent to the chain
func (c *Coordinator) Cancel() (Snapshot, error) {
	c.mu.Lock()
	if c.attempt == nil {
		c.mu.Unlock()
		return c.Snapshot(), ErrNoAttempt
	}
	id, phase := c.attempt.ID, c.attempt.Phase
	c.mu.Unlock()

	if !cancellable(phase) {
		return c.Snapshot(), fmt.Errorf("%w: cannot cancel in %s", ErrIllegalTransition, phase)
	}
	if c.advance(id, phase, types.PhaseIdle, nil) {
		log.Printf("Attempt %s cancelled in %s", id, phase)
	}
	return c.Snapshot(), nil
}

// Dismiss acknowledges a resolved attempt or a surfaced error and returns to Idle
func (c *Coordinator) Dismiss() (Snapshot, error) {
	c.mu.Lock()
	if c.attempt == nil {
		c.lastError = nil
		s := c.snapshot()
		c.mu.Unlock()
		return s, nil
	}
	id, phase := c.attempt.ID, c.attempt.Phase
	c.mu.Unlock()

	if phase != types.PhaseResolved {
		return c.Snapshot(), fmt.Errorf("%w: cannot dismiss in %s", ErrIllegalTransition, phase)
	}
	c.advance(id, types.PhaseResolved, types.PhaseIdle, nil)

	c.mu.Lock()
	c.lastError = nil
	c.mu.Unlock()
	return c.Snapshot(), nil
}

// enter moves the current attempt from -> to for a user operation
func (c *Coordinator) enter(from, to types.Phase) (string, error) {
	c.mu.Lock()
	if c.attempt == nil {
		c.mu.Unlock()
		return "", ErrNoAttempt
	}
	id, phase := c.attempt.ID, c.attempt.Phase
	c.mu.Unlock()

	if phase == to || (phase != from && busy(phase)) {
		return "", ErrAttemptBusy
	}
	if phase != from {
		return "", fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, phase, to)
	}
	if !c.advance(id, from, to, nil) {
		return "", ErrAttemptBusy
	}
	return id, nil
}

// current returns copies of the attempt and its plan when id is still the live attempt
func (c *Coordinator) current(id string) (types.BridgeAttempt, plan, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempt == nil || c.attempt.ID != id {
		return types.BridgeAttempt{}, plan{}, false
	}
	return *c.attempt, c.plan, true
}

// advance is the single place phases change. It fails when the attempt moved on
// in the meantime, so a late result never overwrites a newer state.
func (c *Coordinator) advance(id string, from, to types.Phase, mutate func(a *types.BridgeAttempt)) bool {
	c.mu.Lock()
	if c.attempt == nil || c.attempt.ID != id || c.attempt.Phase != from {
		c.mu.Unlock()
		return false
	}
	if !canTransition(from, to) {
		c.mu.Unlock()
		log.Errorf("Attempt %s: %s: %s -> %s", id, ErrIllegalTransition, from, to)
		return false
	}

	if mutate != nil {
		mutate(c.attempt)
	}
	c.attempt.Phase = to
	update := AttemptUpdate{From: from, Attempt: *c.attempt}

	switch to {
	case types.PhaseIdle:
		if c.attempt.FailureKind != "" {
			c.lastError = &Failure{Kind: c.attempt.FailureKind, Message: c.attempt.FailureReason}
		}
		c.attempt = nil
		c.plan = plan{}
		c.early = nil
		c.stopTimer()
	case types.PhaseResolved:
		c.early = nil
		c.stopTimer()
	}
	c.mu.Unlock()

	log.Debugf("Attempt %s: %s -> %s", id, from, to)
	c.updates.Publish(update)
	return true
}

// abort sends the attempt back to Idle with a surfaced error, nothing reached the chain
func (c *Coordinator) abort(id string, from types.Phase, kind, reason string) bool {
	ok := c.advance(id, from, types.PhaseIdle, func(a *types.BridgeAttempt) {
		a.FailureKind = kind
		a.FailureReason = reason
	})
	if ok {
		metrics.AttemptsResolved.WithLabelValues("aborted", kind).Inc()
		log.Printf("Attempt %s aborted in %s: %s: %s", id, from, kind, reason)
	}
	return ok
}

func (c *Coordinator) resolve(id string, from types.Phase, outcome types.Outcome, kind, reason string, mutate func(a *types.BridgeAttempt)) bool {
	ok := c.advance(id, from, types.PhaseResolved, func(a *types.BridgeAttempt) {
		a.Outcome = outcome
		a.FailureKind = kind
		a.FailureReason = reason
		if mutate != nil {
			mutate(a)
		}
	})
	if ok {
		metrics.AttemptsResolved.WithLabelValues(string(outcome), kind).Inc()
		if outcome == types.OutcomeSuccess {
			log.Printf("Attempt %s resolved: success", id)
		} else {
			log.Printf("Attempt %s resolved: %s %s: %s", id, outcome, kind, reason)
		}
	}
	return ok
}

// ensureNetwork points the wallet at network before anything is signed
func (c *Coordinator) ensureNetwork(ctx context.Context, network string) error {
	current, err := c.wallet.CurrentNetwork(ctx)
	if err == nil && current == network {
		return nil
	}
	return c.wallet.SwitchNetwork(ctx, network)
}

func switchFailureKind(err error) string {
	switch {
	case errors.Is(err, wallet.ErrUnsupportedNetwork):
		return FailureNetworkNotSupported
	case errors.Is(err, wallet.ErrNotInitialized):
		return FailurePreconditionFailed
	default:
		return FailureTransactionRejected
	}
}

// stopTimer expects c.mu held
func (c *Coordinator) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
