package EVMRPC

import (
	"context"
	"errors"
	"fmt"
	"time"

	"imuabridge/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	log "github.com/sirupsen/logrus"
)

var ErrNoEndpoint = errors.New("no reachable RPC endpoint")

func endpoints(network string) ([]string, error) {
	d, err := config.Describe(network)
	if err != nil {
		return nil, err
	}
	urls := d.RPCURLs
	if len(urls) > config.EVM_RETRIES {
		urls = urls[:config.EVM_RETRIES]
	}
	return urls, nil
}

// WithClient runs f against each configured endpoint of the network until one succeeds
func WithClient[T any](ctx context.Context, network string, f func(client *ethclient.Client) (T, error)) (res T, err error) {
	urls, err := endpoints(network)
	if err != nil {
		return res, err
	}

	err = ErrNoEndpoint
	var client *ethclient.Client
	for _, url := range urls {
		client, err = ethclient.DialContext(ctx, url)
		if err != nil {
			log.Printf("Error connecting to %s: %s", url, err.Error())
			continue
		}

		res, err = f(client)
		client.Close()
		if err == nil {
			return
		}
		log.Printf("RPC call on %s via %s failed: %s", network, url, err.Error())
	}
	return
}

// Dial returns a long-lived client on the first endpoint that answers eth_chainId
func Dial(ctx context.Context, network string) (*ethclient.Client, error) {
	urls, err := endpoints(network)
	if err != nil {
		return nil, err
	}

	for _, url := range urls {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			log.Printf("Error connecting to %s: %s", url, err.Error())
			continue
		}
		if _, err := client.ChainID(ctx); err != nil {
			log.Printf("Endpoint %s for %s not answering: %s", url, network, err.Error())
			client.Close()
			continue
		}
		return client, nil
	}
	return nil, fmt.Errorf("%w for %s", ErrNoEndpoint, network)
}

type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// WaitReceipt polls until the transaction is mined or ctx is done
func WaitReceipt(ctx context.Context, reader ReceiptReader, txHash common.Hash, interval time.Duration) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := reader.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			// nodes behind load balancers flap, keep polling until deadline
			log.Debugf("Receipt lookup for %s failed: %s", txHash.Hex(), err.Error())
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
