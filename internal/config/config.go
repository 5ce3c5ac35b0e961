package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database     *dbConfig
	Service      *svcConfig
	Orchestrator *orchestratorConfig
	Scheduler    *schedulerConfig
	Translator   *translatorConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"orchestrator"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	OpsAddress      string `envconfig:"ORCHESTRATOR_OPS_ADDRESS" default:":8080"`
	LogLevel        string `envconfig:"ORCHESTRATOR_LOG_LEVEL" default:"info"`
	LogFormat       string `envconfig:"ORCHESTRATOR_LOG_FORMAT" default:"console"`
	MigrationFolder string `envconfig:"ORCHESTRATOR_MIGRATIONS_FOLDER" default:""`
}

type orchestratorConfig struct {
	SourceLanguage  string   `envconfig:"ORCHESTRATOR_SOURCE_LANGUAGE" default:"en"`
	TargetLanguages []string `envconfig:"ORCHESTRATOR_TARGET_LANGUAGES" default:""`

	DiscoveryInterval  time.Duration `envconfig:"ORCHESTRATOR_DISCOVERY_INTERVAL" default:"30s"`
	DiscoveryBatchSize int           `envconfig:"ORCHESTRATOR_DISCOVERY_BATCH_SIZE" default:"50"`
	DiscoveryTimeout   time.Duration `envconfig:"ORCHESTRATOR_DISCOVERY_TIMEOUT" default:"20s"`

	RecoveryInterval time.Duration `envconfig:"ORCHESTRATOR_RECOVERY_INTERVAL" default:"60s"`
	StaleThreshold   time.Duration `envconfig:"ORCHESTRATOR_STALE_THRESHOLD" default:"10m"`

	BatchSize       int    `envconfig:"ORCHESTRATOR_BATCH_SIZE" default:"500"`
	MinBatchSize    int    `envconfig:"ORCHESTRATOR_MIN_BATCH_SIZE" default:"50"`
	MemorySoftLimit uint64 `envconfig:"ORCHESTRATOR_MEMORY_SOFT_LIMIT" default:"268435456"`
	GCEvery         int    `envconfig:"ORCHESTRATOR_GC_EVERY" default:"10"`

	TranslateTimeout time.Duration `envconfig:"ORCHESTRATOR_TRANSLATE_TIMEOUT" default:"60s"`
	RetryDelay       time.Duration `envconfig:"ORCHESTRATOR_RETRY_DELAY" default:"2s"`
	Concurrency      int           `envconfig:"ORCHESTRATOR_CONCURRENCY" default:"4"`
	PollWait         time.Duration `envconfig:"ORCHESTRATOR_POLL_WAIT" default:"2s"`
}

type schedulerConfig struct {
	Type          string `envconfig:"ORCHESTRATOR_SCHEDULER" default:"memory"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"ORCHESTRATOR_SCHEDULER_PREFIX" default:"orchestrator"`
}

type translatorConfig struct {
	Provider    string  `envconfig:"TRANSLATOR_PROVIDER" default:"echo"`
	BaseURL     string  `envconfig:"TRANSLATOR_BASE_URL" default:""`
	APIKey      string  `envconfig:"TRANSLATOR_API_KEY" default:""`
	Model       string  `envconfig:"TRANSLATOR_MODEL" default:""`
	Temperature float64 `envconfig:"TRANSLATOR_TEMPERATURE" default:"0.2"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns a configuration that needs no environment: an in-memory
// sqlite store, the in-process scheduler and the echo translator.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type: "sqlite",
			Name: ":memory:",
		},
		Service: &svcConfig{
			OpsAddress: ":8080",
			LogLevel:   "info",
			LogFormat:  "console",
		},
		Orchestrator: &orchestratorConfig{
			SourceLanguage:     "en",
			TargetLanguages:    []string{"fr", "de"},
			DiscoveryInterval:  30 * time.Second,
			DiscoveryBatchSize: 50,
			DiscoveryTimeout:   20 * time.Second,
			RecoveryInterval:   60 * time.Second,
			StaleThreshold:     10 * time.Minute,
			BatchSize:          500,
			MinBatchSize:       50,
			MemorySoftLimit:    256 << 20,
			GCEvery:            10,
			TranslateTimeout:   60 * time.Second,
			Concurrency:        4,
			PollWait:           2 * time.Second,
		},
		Scheduler: &schedulerConfig{
			Type:      "memory",
			KeyPrefix: "orchestrator",
		},
		Translator: &translatorConfig{
			Provider:    "echo",
			Temperature: 0.2,
		},
	}
}
