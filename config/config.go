package config

import "time"

type Configuration struct {
	// Server config
	Server struct {
		UseSSL    bool   `yaml:"ssl"`
		Port      int    `yaml:"port" validate:"gte=0,lte=65535"`
		RedisPort int    `yaml:"redis_port"`
		RedisHost string `yaml:"redis_host"`
		LogLevel  string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error"`
		LogDir    string `yaml:"log_dir"`
	} `yaml:"server"`
	// installed wallet providers, provider kind -> wallet JSON-RPC endpoint
	Wallet struct {
		Providers        map[string]string `yaml:"providers"`
		PollIntervalSecs int               `yaml:"poll_interval" validate:"gte=0"`
	} `yaml:"wallet"`
	// relayer backend endpoints
	Relay struct {
		ChannelURL         string `yaml:"channel_url" validate:"required,url"`
		SubmitURL          string `yaml:"submit_url" validate:"required,url"`
		HeartbeatSecs      int    `yaml:"heartbeat" validate:"gte=0"`
		SubmitTimeoutSecs  int    `yaml:"submit_timeout" validate:"gte=0"`
		// 0 keeps the default rate, the channel is never left unthrottled
		ReconnectPerMinute int    `yaml:"reconnect_per_minute" validate:"gte=0"`
	} `yaml:"relay"`
	Bridge struct {
		// minutes, 0 keeps the default
		RelayTimeoutMins    int      `yaml:"relay_timeout" validate:"gte=0"`
		ApprovalWaitSecs    int      `yaml:"approval_wait" validate:"gte=0"`
		ApprovalRecheckSecs int      `yaml:"approval_recheck_delay" validate:"gte=0"`
		ReceiptTimeoutSecs  int      `yaml:"receipt_timeout" validate:"gte=0"`
		BridgedPrefixes     []string `yaml:"bridged_prefixes"`
	} `yaml:"bridge"`
	// optional, attempt updates are forwarded when URL is set
	NATS struct {
		URL     string `yaml:"url" validate:"omitempty,url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`
}

var Config Configuration

// maximum number of EVM RPC endpoints tried per call
const EVM_RETRIES = 3

const (
	defaultPort               = 8080
	defaultHeartbeat          = 30 * time.Second
	defaultSubmitTimeout      = 15 * time.Second
	defaultReconnectPerMinute = 6
	defaultRelayTimeout       = 30 * time.Minute
	defaultApprovalWait       = 90 * time.Second
	defaultApprovalRecheck    = 5 * time.Second
	defaultReceiptTimeout     = 2 * time.Minute
	defaultWalletPollInterval = 4 * time.Second
	defaultNATSSubject        = "bridge.attempts"
	DefaultBridgedAssetPrefix = "mao"
	defaultLogDir             = "logs"
)

func secondsOr(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

func (c *Configuration) ListenPort() int {
	if c.Server.Port == 0 {
		return defaultPort
	}
	return c.Server.Port
}

func (c *Configuration) LogDirectory() string {
	if c.Server.LogDir == "" {
		return defaultLogDir
	}
	return c.Server.LogDir
}

func (c *Configuration) WalletPollInterval() time.Duration {
	return secondsOr(c.Wallet.PollIntervalSecs, defaultWalletPollInterval)
}

func (c *Configuration) HeartbeatInterval() time.Duration {
	return secondsOr(c.Relay.HeartbeatSecs, defaultHeartbeat)
}

func (c *Configuration) SubmitTimeout() time.Duration {
	return secondsOr(c.Relay.SubmitTimeoutSecs, defaultSubmitTimeout)
}

// ReconnectRate is always positive
func (c *Configuration) ReconnectRate() int {
	if c.Relay.ReconnectPerMinute <= 0 {
		return defaultReconnectPerMinute
	}
	return c.Relay.ReconnectPerMinute
}

func (c *Configuration) RelayTimeout() time.Duration {
	if c.Bridge.RelayTimeoutMins <= 0 {
		return defaultRelayTimeout
	}
	return time.Duration(c.Bridge.RelayTimeoutMins) * time.Minute
}

func (c *Configuration) ApprovalWait() time.Duration {
	return secondsOr(c.Bridge.ApprovalWaitSecs, defaultApprovalWait)
}

func (c *Configuration) ApprovalRecheckDelay() time.Duration {
	return secondsOr(c.Bridge.ApprovalRecheckSecs, defaultApprovalRecheck)
}

func (c *Configuration) ReceiptTimeout() time.Duration {
	return secondsOr(c.Bridge.ReceiptTimeoutSecs, defaultReceiptTimeout)
}

func (c *Configuration) BridgedPrefixes() []string {
	if len(c.Bridge.BridgedPrefixes) == 0 {
		return []string{DefaultBridgedAssetPrefix}
	}
	return c.Bridge.BridgedPrefixes
}

func (c *Configuration) NATSSubject() string {
	if c.NATS.Subject == "" {
		return defaultNATSSubject
	}
	return c.NATS.Subject
}
