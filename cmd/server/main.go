package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"imuabridge/bridge"
	"imuabridge/config"
	"imuabridge/events"
	"imuabridge/gateway"
	"imuabridge/redis"
	"imuabridge/relay"
	"imuabridge/wallet"
	"imuabridge/workers"
	"imuabridge/workers/handlers"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.Print("Starting Imua bridge service")

	config.Init()

	if err := os.MkdirAll(config.Config.LogDirectory(), 0o755); err != nil {
		log.Fatalf("error creating log directory: %v", err)
	}
	logPath := filepath.Join(config.Config.LogDirectory(), fmt.Sprintf("log_%s.txt", time.Now().Format("2006-01-02")))
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file for writing: %v", err)
	}
	defer f.Close()

	log.SetOutput(f)
	if config.Config.Server.LogLevel != "" {
		level, err := log.ParseLevel(config.Config.Server.LogLevel)
		if err != nil {
			log.Fatalf("bad log level: %v", err)
		}
		log.SetLevel(level)
	}

	// the session survives restarts through redis, the service runs without it
	store := redis.Init()
	defer store.Close()
	if err := store.Ping(); err != nil {
		log.Printf("Redis unavailable, wallet session will not persist: %s", err.Error())
	}

	session := wallet.NewSession(store)

	providers := map[string]wallet.Provider{}
	for kind, endpoint := range config.Config.Wallet.Providers {
		p := wallet.NewRPCProvider(endpoint, config.Config.WalletPollInterval())
		defer p.Close()
		providers[kind] = p
	}
	adapter := wallet.NewAdapter(session, providers)

	contracts := gateway.New(adapter, gateway.DialEVM, config.Config.ReceiptTimeout())
	reporter := relay.NewReporter(config.Config.Relay.SubmitURL, config.Config.SubmitTimeout())
	channel := relay.NewChannel(config.Config.Relay.ChannelURL, config.Config.HeartbeatInterval(), config.Config.ReconnectRate())
	defer channel.Close()

	coordinator := bridge.NewCoordinator(adapter, contracts, reporter, bridge.Options{
		BridgedPrefixes: config.Config.BridgedPrefixes(),
		RelayTimeout:    config.Config.RelayTimeout(),
		ApprovalWait:    config.Config.ApprovalWait(),
		RecheckDelay:    config.Config.ApprovalRecheckDelay(),
	})

	// the relay channel follows the connected account
	session.Subscribe(func(change wallet.SessionChange) {
		coordinator.HandleSessionChange(change)
		if !change.AccountChanged() {
			return
		}
		if change.Account == "" {
			channel.Close()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := channel.Open(ctx, change.Account); err != nil {
			log.Printf("Error opening relay channel for %s: %s", change.Account, err.Error())
		}
	})
	channel.OnEvent(coordinator.HandleRelayEvent)

	if config.Config.NATS.URL != "" {
		forwarder, err := events.NewNATSForwarder(config.Config.NATS.URL, config.Config.NATSSubject())
		if err != nil {
			log.Printf("NATS unavailable, attempt updates stay local: %s", err.Error())
		} else {
			defer forwarder.Close()
			events.Attach(coordinator.Updates(), forwarder, func(u bridge.AttemptUpdate) string {
				return string(u.Attempt.Phase)
			})
		}
	}

	if err := session.Restore(); err != nil {
		log.Printf("Error restoring wallet session: %s", err.Error())
	}

	api := handlers.New(coordinator, adapter, store, channel, nil)
	workers.Worker_HTTP(workers.NewRouter(api, channel, "app"))

	log.Print("Imua bridge service stopped")
}
