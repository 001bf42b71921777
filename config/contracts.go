package config

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnconfiguredAddress = errors.New("no contract address configured")

// lock contracts take native currency on the source chain
var LockContracts = map[string]string{
	"ethereum-sepolia": "0x9B1c7A3e6DC54d2b4E14f5E2dF5E0bA3C4C27a51",
	"bsc-testnet":      "0x5f0A7cD1B2E3a4fF68b90c1D2e3F4a5B6c7D8e91",
	"arbitrum-sepolia": "0x3E2aC54B6d7F8091a2B3c4D5e6F708192a3B4c5D",
}

// burn contracts destroy bridged (wrapped) assets
var BurnContracts = map[string]string{
	"imua-testnet": "0x7A4b5C6d7E8f9012A3b4C5d6E7f8091A2b3C4d5E",
}

// network -> symbol -> token contract
var TokenContracts = map[string]map[string]string{
	"imua-testnet": {
		"maoETH":  "0x1F2e3D4c5B6a79880A1b2C3d4E5f60718293A4b5",
		"maoUSDC": "0x2a3B4c5D6e7F80912A3B4c5d6E7f8091a2B3c4D6",
		"maoBNB":  "0x3b4C5d6E7f8091A2b3C4d5E6f708192A3b4C5d6E",
	},
	"ethereum-sepolia": {
		"USDC": "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
	},
}

func lookup(table map[string]string, network, kind string) (common.Address, error) {
	addr, ok := table[network]
	if !ok || addr == "" {
		return common.Address{}, fmt.Errorf("%w: %s contract on %s", ErrUnconfiguredAddress, kind, network)
	}
	return common.HexToAddress(addr), nil
}

func LockContract(network string) (common.Address, error) {
	return lookup(LockContracts, network, "lock")
}

func BurnContract(network string) (common.Address, error) {
	return lookup(BurnContracts, network, "burn")
}

func TokenContract(network, symbol string) (common.Address, error) {
	addr, ok := TokenContracts[network][symbol]
	if !ok || addr == "" {
		return common.Address{}, fmt.Errorf("%w: token %s on %s", ErrUnconfiguredAddress, symbol, network)
	}
	return common.HexToAddress(addr), nil
}

// SupportsBridging is true when at least one of lock / burn is deployed on the network
func SupportsBridging(network string) bool {
	_, lockErr := LockContract(network)
	_, burnErr := BurnContract(network)
	return lockErr == nil || burnErr == nil
}
