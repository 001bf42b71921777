package bridge

import (
	"errors"
	"strings"
)

// failure kinds surfaced with an attempt
const (
	FailurePreconditionFailed    = "PRECONDITION_FAILED"
	FailureNetworkNotSupported   = "NETWORK_NOT_SUPPORTED"
	FailureInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
	FailureInsufficientBalance   = "INSUFFICIENT_BALANCE"
	FailureTransactionRejected   = "TRANSACTION_REJECTED"
	FailureAuthorizationFailed   = "AUTHORIZATION_FAILED"
	FailureInsufficientGas       = "INSUFFICIENT_GAS"
	FailureTransactionFailed     = "TRANSACTION_FAILED"
	FailureReportingFailed       = "REPORTING_FAILED"
	FailureRelayFailed           = "RELAY_FAILED"
	FailureRelayTimeout          = "RELAY_TIMEOUT"
)

var (
	ErrPreconditionFailed  = errors.New("precondition failed")
	ErrNetworkNotSupported = errors.New("network not supported")
	ErrAttemptInProgress   = errors.New("a bridge attempt is already in progress")
	ErrAttemptBusy         = errors.New("bridge attempt is busy")
	ErrNoAttempt           = errors.New("no bridge attempt")
	ErrIllegalTransition   = errors.New("illegal phase transition")
)

// Failure is the last error surfaced to the user
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

var gasSignatures = []string{
	"insufficient funds for gas",
	"intrinsic gas too low",
	"out of gas",
	"gas required exceeds allowance",
}

// classifySubmission maps an on-chain submission error to a failure kind
func classifySubmission(err error) string {
	msg := strings.ToLower(err.Error())
	for _, sig := range gasSignatures {
		if strings.Contains(msg, sig) {
			return FailureInsufficientGas
		}
	}
	return FailureTransactionFailed
}
