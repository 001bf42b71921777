package types

// network identifiers are the registry keys from config (e.g. "imua-testnet"),
// chain ids only appear where a provider or the relayer needs them

// Token is one side of a bridge pair. Address is empty for the native currency.
type Token struct {
	Symbol  string `json:"symbol" validate:"required"`
	Network string `json:"network" validate:"required"`
	Address string `json:"address,omitempty"`
}

func (t Token) IsNative() bool {
	return t.Address == ""
}

type AuthorizationState string

const (
	AuthorizationUnknown    AuthorizationState = "unknown"
	AuthorizationChecking   AuthorizationState = "checking"
	AuthorizationRequired   AuthorizationState = "required"
	AuthorizationSufficient AuthorizationState = "sufficient"
)

// Phase of a bridge attempt, see bridge.transitions for the legal moves
type Phase string

const (
	PhaseIdle                     Phase = "idle"
	PhaseValidating               Phase = "validating"
	PhaseCheckingAuthorization    Phase = "checking_authorization"
	PhaseAwaitingAuthorization    Phase = "awaiting_authorization"
	PhaseAuthorizing              Phase = "authorizing"
	PhasePreparingSubmission      Phase = "preparing_submission"
	PhaseAwaitingUserConfirmation Phase = "awaiting_user_confirmation"
	PhaseSubmitting               Phase = "submitting"
	PhaseAwaitingRelay            Phase = "awaiting_relay"
	PhaseResolved                 Phase = "resolved"
)

// Outcome is only meaningful once Phase is PhaseResolved
type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// relay never answered within the configured window, funds may or may not have arrived
	OutcomeUnknown Outcome = "unknown"
)

// BridgeAttempt is owned by the coordinator for its whole life and never persisted
type BridgeAttempt struct {
	ID                 string             `json:"id"`
	SourceToken        Token              `json:"sourceToken"`
	TargetToken        Token              `json:"targetToken"`
	SenderAddress      string             `json:"senderAddress"`
	ReceiverAddress    string             `json:"receiverAddress"`
	Amount             string             `json:"amount"` // as entered by the user, decimal units
	AuthorizationState AuthorizationState `json:"authorizationState"`
	AuthorizedAmount   string             `json:"authorizedAmount"` // last observed allowance, decimal units
	Phase              Phase              `json:"phase"`
	Outcome            Outcome            `json:"outcome,omitempty"`
	SourceTxHash       string             `json:"sourceTxHash,omitempty"`
	TargetTxHash       string             `json:"targetTxHash,omitempty"`
	FailureKind        string             `json:"failureKind,omitempty"`
	FailureReason      string             `json:"failureReason,omitempty"`
	TsCreated          int64              `json:"tsCreated"`
}

// RelayRecord is posted to the relayer once per successful source-chain submission
type RelayRecord struct {
	SourceFromChainID              string `json:"sourceFromChainId"`
	SourceFromChainName            string `json:"sourceFromChainName"`
	SourceFromRPCURL               string `json:"sourceFromRpcUrl"`
	SourceFromAddress              string `json:"sourceFromAddress"`
	SourceFromTokenName            string `json:"sourceFromTokenName"`
	SourceFromTokenContractAddress string `json:"sourceFromTokenContractAddress"`
	SourceFromAmount               string `json:"sourceFromAmount"`
	SourceFromHandlingFee          string `json:"sourceFromHandlingFee"`
	SourceFromTxHash               string `json:"sourceFromTxHash"`
	TargetToChainID                string `json:"targetToChainId"`
	TargetToChainName              string `json:"targetToChainName"`
	TargetToRPCURL                 string `json:"targetToRpcUrl"`
	TargetToAddress                string `json:"targetToAddress"`
	TargetToTokenName              string `json:"targetToTokenName"`
	TargetToTokenContractAddress   string `json:"targetToTokenContractAddress"`
	TargetToReceiveAmount          string `json:"targetToReceiveAmount"`
	TargetToTxHash                 string `json:"targetToTxHash"`
	TargetToTxStatus               string `json:"targetToTxStatus"`
	CrossBridgeStatus              string `json:"crossBridgeStatus"`
}

const RelayStatusPending = "pending"

const (
	RelayEventMintSuccess = "MINT_SUCCESS"
	RelayEventMintFailure = "MINT_FAILURE"
	RelayEventHeartbeat   = "heartbeat"
)

type RelayEventData struct {
	TargetToTxHash string `json:"targetToTxHash,omitempty"`
}

// RelayEvent is pushed by the relayer over the channel. There is no attempt id
// in the protocol, events apply to the one in-flight attempt of the account.
type RelayEvent struct {
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    *RelayEventData `json:"data,omitempty"`
}

// Failed reports whether the event carries an explicit success:false
func (e RelayEvent) Failed() bool {
	return e.Success != nil && !*e.Success
}

type Heartbeat struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}
