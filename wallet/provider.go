package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnrecognizedChain = 4902
)

type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

type ProviderEventKind string

const (
	AccountsChanged ProviderEventKind = "accountsChanged"
	ChainChanged    ProviderEventKind = "chainChanged"
)

type ProviderEvent struct {
	Kind     ProviderEventKind
	Accounts []string
	ChainID  string // hex, as providers report it
}

// Provider is the injected wallet boundary: raw requests plus change notifications
type Provider interface {
	Request(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error)
	Subscribe(fn func(ProviderEvent)) (unsubscribe func())
}

func providerCode(err error) (int, bool) {
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Code, true
	}
	return 0, false
}

// some wallets report rejection without the standard code
func isRejection(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := providerCode(err); ok && code == CodeUserRejected {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied")
}
