package handlers

import (
	"context"
	"net/http"
	"time"

	"imuabridge/config"

	"github.com/go-chi/chi"
	log "github.com/sirupsen/logrus"
)

func describeChain(network string) (*APIChainResponse, error) {
	desc, err := config.Describe(network)
	if err != nil {
		return nil, err
	}
	res := &APIChainResponse{
		ChainDescriptor:  desc,
		SupportsBridging: config.SupportsBridging(network),
		Tokens:           config.TokenContracts[network],
	}
	if addr, err := config.LockContract(network); err == nil {
		res.LockContract = addr.Hex()
	}
	if addr, err := config.BurnContract(network); err == nil {
		res.BurnContract = addr.Hex()
	}
	return res, nil
}

func (a *API) GetChains(w http.ResponseWriter, r *http.Request) {
	var chains []*APIChainResponse
	for _, network := range config.Networks() {
		c, err := describeChain(network)
		if err != nil {
			continue
		}
		chains = append(chains, c)
	}
	responseJSON(w, chains, http.StatusOK)
}

// GetChain adds the current block number, a failing RPC leaves it at zero
func (a *API) GetChain(w http.ResponseWriter, r *http.Request) {
	network := chi.URLParam(r, "network")

	res, err := describeChain(network)
	if err != nil {
		responseError(w, "network", err.Error(), http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	block, err := a.blockNumber(ctx, network)
	if err != nil {
		log.Printf("Error getting block number for %s: %s", network, err.Error())
	} else {
		res.BlockNumber = block
	}
	responseJSON(w, res, http.StatusOK)
}
