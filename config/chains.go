package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownNetwork = errors.New("unknown network")

type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainDescriptor is also the payload handed to a wallet when a chain has to be added
type ChainDescriptor struct {
	Network         string         `json:"network"`
	Name            string         `json:"name"`
	ChainID         int            `json:"chainId"`
	RPCURLs         []string       `json:"rpcUrls"`
	NativeCurrency  NativeCurrency `json:"nativeCurrency"`
	ExplorerBaseURL string         `json:"explorerBaseUrl"`
}

func (d ChainDescriptor) HexChainID() string {
	return fmt.Sprintf("0x%x", d.ChainID)
}

func (d ChainDescriptor) PrimaryRPC() string {
	if len(d.RPCURLs) == 0 {
		return ""
	}
	return d.RPCURLs[0]
}

var ethCurrency = NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18}

// static, network identifier -> chain metadata
var chains = map[string]ChainDescriptor{
	"ethereum-sepolia": {
		Network:         "ethereum-sepolia",
		Name:            "Ethereum Sepolia",
		ChainID:         11155111,
		RPCURLs:         []string{"https://ethereum-sepolia-rpc.publicnode.com", "https://sepolia.drpc.org", "https://rpc.sepolia.org"},
		NativeCurrency:  ethCurrency,
		ExplorerBaseURL: "https://sepolia.etherscan.io",
	},
	"imua-testnet": {
		Network:         "imua-testnet",
		Name:            "Imua Testnet",
		ChainID:         233,
		RPCURLs:         []string{"https://api-eth.exocore-restaking.com"},
		NativeCurrency:  NativeCurrency{Name: "IMUA", Symbol: "IMUA", Decimals: 18},
		ExplorerBaseURL: "https://exoscan.org",
	},
	"bsc-testnet": {
		Network:         "bsc-testnet",
		Name:            "BNB Smart Chain Testnet",
		ChainID:         97,
		RPCURLs:         []string{"https://bsc-testnet-rpc.publicnode.com", "https://data-seed-prebsc-1-s1.bnbchain.org:8545"},
		NativeCurrency:  NativeCurrency{Name: "BNB", Symbol: "tBNB", Decimals: 18},
		ExplorerBaseURL: "https://testnet.bscscan.com",
	},
	"arbitrum-sepolia": {
		Network:         "arbitrum-sepolia",
		Name:            "Arbitrum Sepolia",
		ChainID:         421614,
		RPCURLs:         []string{"https://sepolia-rollup.arbitrum.io/rpc", "https://arbitrum-sepolia.drpc.org"},
		NativeCurrency:  ethCurrency,
		ExplorerBaseURL: "https://sepolia.arbiscan.io",
	},
}

func Describe(network string) (ChainDescriptor, error) {
	d, ok := chains[network]
	if !ok {
		return ChainDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
	// callers must not be able to modify the table through the slice
	d.RPCURLs = append([]string(nil), d.RPCURLs...)
	return d, nil
}

// NetworkByChainID maps a provider chain id back to our network identifier
func NetworkByChainID(chainID int) (string, error) {
	for network, d := range chains {
		if d.ChainID == chainID {
			return network, nil
		}
	}
	return "", fmt.Errorf("%w: chain id %d", ErrUnknownNetwork, chainID)
}

func Networks() []string {
	res := make([]string, 0, len(chains))
	for network := range chains {
		res = append(res, network)
	}
	sort.Strings(res)
	return res
}

func ExplorerAddressURL(network, address string) (string, error) {
	d, err := Describe(network)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(d.ExplorerBaseURL, "/") + "/address/" + address, nil
}

func ExplorerTxURL(network, txHash string) (string, error) {
	d, err := Describe(network)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(d.ExplorerBaseURL, "/") + "/tx/" + txHash, nil
}
