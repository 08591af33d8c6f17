package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"

	LedgerDriverRPC       = "rpc"
	LedgerDriverSimulated = "simulated"

	SignerDriverLocal  = "local"
	SignerDriverRemote = "remote"

	// ConfigFileEnv names an optional YAML file. Environment variables always
	// win over values from the file.
	ConfigFileEnv = "NOTARY_CONFIG"

	// MinLeaseSlack is how much longer than WORKER_ATTEMPT_TIMEOUT a claim lease
	// must last: the outcome write plus clock skew. The worker applies the same floor.
	MinLeaseSlack = 15 * time.Second

	defaultAttemptTimeout = 30 * time.Second
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	StoreDriver string
	PostgresDSN string
	SQLitePath  string

	// AuditTopics limits the lifecycle audit subscriber; empty means every
	// anchoring.record_* topic.
	AuditTopics []string

	Ledger LedgerConfig
	Signer SignerConfig
	Worker WorkerConfig

	EnableOutboxRelay    bool
	EnableLifecycleAudit bool
	EnableSwagger        bool
}

type LedgerConfig struct {
	Driver       string
	Endpoint     string
	AuthToken    string
	Timeout      time.Duration
	ConfirmAfter int
}

type SignerConfig struct {
	Driver    string
	SeedHex   string
	RemoteURL string
	AuthToken string
	KeyID     string
	Timeout   time.Duration
}

type WorkerConfig struct {
	ID                       string
	PollInterval             time.Duration
	BatchSize                int
	MaxRetries               int
	BaseDelay                time.Duration
	MaxDelay                 time.Duration
	ConfirmationPollInterval time.Duration
	ConfirmationBatchSize    int
	Concurrency              int
	Loops                    int
	AttemptTimeout           time.Duration
	LeaseTTL                 time.Duration
	ShutdownGrace            time.Duration
}

// binding maps a config key to its environment variable and default.
type binding struct {
	key      string
	env      string
	fallback any
}

var bindings = []binding{
	{"service_name", "SERVICE_NAME", "notary"},
	{"http_port", "HTTP_PORT", "8080"},
	{"store.driver", "STORE_DRIVER", StoreDriverPostgres},
	{"store.postgres_dsn", "POSTGRES_DSN", ""},
	{"store.sqlite_path", "SQLITE_PATH", "notary.db"},
	{"audit.topics", "AUDIT_TOPICS", ""},

	{"ledger.driver", "LEDGER_DRIVER", LedgerDriverRPC},
	{"ledger.endpoint", "LEDGER_RPC_ENDPOINT", ""},
	{"ledger.auth_token", "LEDGER_AUTH_TOKEN", ""},
	{"ledger.timeout", "LEDGER_TIMEOUT", "30s"},
	{"ledger.confirm_after", "LEDGER_SIMULATED_CONFIRM_AFTER", 2},

	{"signer.driver", "SIGNER_DRIVER", SignerDriverLocal},
	{"signer.seed_hex", "SIGNER_SEED_HEX", ""},
	{"signer.remote_url", "SIGNER_REMOTE_URL", ""},
	{"signer.auth_token", "SIGNER_AUTH_TOKEN", ""},
	{"signer.key_id", "SIGNER_KEY_ID", ""},
	{"signer.timeout", "SIGNER_TIMEOUT", "10s"},

	{"worker.id", "WORKER_ID", ""},
	{"worker.poll_interval", "WORKER_POLL_INTERVAL", "2s"},
	{"worker.batch_size", "WORKER_BATCH_SIZE", 100},
	{"worker.max_retries", "WORKER_MAX_RETRIES", 5},
	{"worker.base_delay", "WORKER_BASE_DELAY", "2s"},
	{"worker.max_delay", "WORKER_MAX_DELAY", "5m"},
	{"worker.confirmation_poll_interval", "WORKER_CONFIRMATION_POLL_INTERVAL", "15s"},
	{"worker.confirmation_batch_size", "WORKER_CONFIRMATION_BATCH_SIZE", 100},
	{"worker.concurrency", "WORKER_CONCURRENCY", 4},
	{"worker.loops", "WORKER_LOOPS", 1},
	{"worker.attempt_timeout", "WORKER_ATTEMPT_TIMEOUT", "30s"},
	{"worker.lease_ttl", "WORKER_LEASE_TTL", "2m"},
	{"worker.shutdown_grace", "WORKER_SHUTDOWN_GRACE", "10s"},

	{"enable.outbox_relay", "ENABLE_OUTBOX_RELAY", true},
	{"enable.lifecycle_audit", "ENABLE_LIFECYCLE_AUDIT", true},
	{"enable.swagger", "ENABLE_SWAGGER", true},
}

func Load() (Config, error) {
	v := viper.New()
	for _, b := range bindings {
		v.SetDefault(b.key, b.fallback)
		if err := v.BindEnv(b.key, b.env); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", b.env, err)
		}
	}

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	cfg := Config{
		ServiceName: v.GetString("service_name"),
		HTTPPort:    v.GetString("http_port"),
		StoreDriver: strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
		PostgresDSN: v.GetString("store.postgres_dsn"),
		SQLitePath:  v.GetString("store.sqlite_path"),
		AuditTopics: stringList(v, "audit.topics"),
		Ledger: LedgerConfig{
			Driver:       strings.ToLower(strings.TrimSpace(v.GetString("ledger.driver"))),
			Endpoint:     v.GetString("ledger.endpoint"),
			AuthToken:    v.GetString("ledger.auth_token"),
			Timeout:      v.GetDuration("ledger.timeout"),
			ConfirmAfter: v.GetInt("ledger.confirm_after"),
		},
		Signer: SignerConfig{
			Driver:    strings.ToLower(strings.TrimSpace(v.GetString("signer.driver"))),
			SeedHex:   v.GetString("signer.seed_hex"),
			RemoteURL: v.GetString("signer.remote_url"),
			AuthToken: v.GetString("signer.auth_token"),
			KeyID:     v.GetString("signer.key_id"),
			Timeout:   v.GetDuration("signer.timeout"),
		},
		Worker: WorkerConfig{
			ID:                       v.GetString("worker.id"),
			PollInterval:             v.GetDuration("worker.poll_interval"),
			BatchSize:                v.GetInt("worker.batch_size"),
			MaxRetries:               v.GetInt("worker.max_retries"),
			BaseDelay:                v.GetDuration("worker.base_delay"),
			MaxDelay:                 v.GetDuration("worker.max_delay"),
			ConfirmationPollInterval: v.GetDuration("worker.confirmation_poll_interval"),
			ConfirmationBatchSize:    v.GetInt("worker.confirmation_batch_size"),
			Concurrency:              v.GetInt("worker.concurrency"),
			Loops:                    v.GetInt("worker.loops"),
			AttemptTimeout:           v.GetDuration("worker.attempt_timeout"),
			LeaseTTL:                 v.GetDuration("worker.lease_ttl"),
			ShutdownGrace:            v.GetDuration("worker.shutdown_grace"),
		},
		EnableOutboxRelay:    v.GetBool("enable.outbox_relay"),
		EnableLifecycleAudit: v.GetBool("enable.lifecycle_audit"),
		EnableSwagger:        v.GetBool("enable.swagger"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects unknown drivers and settings that cannot work together.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=%s", StoreDriverSQLite)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.Ledger.Driver {
	case LedgerDriverRPC:
		if strings.TrimSpace(c.Ledger.Endpoint) == "" {
			return fmt.Errorf("LEDGER_RPC_ENDPOINT is required when LEDGER_DRIVER=%s", LedgerDriverRPC)
		}
	case LedgerDriverSimulated:
	default:
		return fmt.Errorf("unsupported LEDGER_DRIVER %q", c.Ledger.Driver)
	}

	switch c.Signer.Driver {
	case SignerDriverLocal:
	case SignerDriverRemote:
		if strings.TrimSpace(c.Signer.RemoteURL) == "" {
			return fmt.Errorf("SIGNER_REMOTE_URL is required when SIGNER_DRIVER=%s", SignerDriverRemote)
		}
	default:
		return fmt.Errorf("unsupported SIGNER_DRIVER %q", c.Signer.Driver)
	}

	attempt := c.Worker.AttemptTimeout
	if attempt <= 0 {
		attempt = defaultAttemptTimeout
	}
	if c.Worker.LeaseTTL > 0 && c.Worker.LeaseTTL < attempt+MinLeaseSlack {
		return fmt.Errorf("WORKER_LEASE_TTL (%s) must be at least WORKER_ATTEMPT_TIMEOUT (%s) + %s so a lease cannot expire mid-attempt",
			c.Worker.LeaseTTL, attempt, MinLeaseSlack)
	}

	if c.Worker.MaxDelay > 0 && c.Worker.BaseDelay > c.Worker.MaxDelay {
		return fmt.Errorf("WORKER_BASE_DELAY (%s) exceeds WORKER_MAX_DELAY (%s)", c.Worker.BaseDelay, c.Worker.MaxDelay)
	}
	return nil
}

// stringList accepts both a YAML sequence and a comma separated env value.
func stringList(v *viper.Viper, key string) []string {
	var raw []string
	switch value := v.Get(key).(type) {
	case []any, []string:
		raw = v.GetStringSlice(key)
	default:
		raw = strings.Split(fmt.Sprint(value), ",")
	}

	var out []string
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
