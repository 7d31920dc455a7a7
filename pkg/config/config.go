package config

import (
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Wallet   WalletConfig   `mapstructure:"wallet"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Watcher  WatcherConfig  `mapstructure:"watcher"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
	GrpcPort string `mapstructure:"grpc_port"`
}

type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ChainConfig 描述一条链的 RPC 与 Overlay 合约地址
type ChainConfig struct {
	RpcUrl string `mapstructure:"rpc_url"`
	// Contracts 以 chainId (十进制字符串) 为 key, viper 的 map key 只能是字符串
	Contracts map[string]ContractAddresses `mapstructure:"contracts"`
}

type ContractAddresses struct {
	Market     string `mapstructure:"market"`
	Token      string `mapstructure:"token"`
	Bridge     string `mapstructure:"bridge"`
	LzChainID  uint16 `mapstructure:"lz_chain_id"`
	Collateral string `mapstructure:"collateral"`
}

// ContractsFor 按链 ID 查找合约地址
func (c ChainConfig) ContractsFor(chainID uint64) (ContractAddresses, bool) {
	a, ok := c.Contracts[strconv.FormatUint(chainID, 10)]
	return a, ok
}

type WalletConfig struct {
	Mnemonic       string `mapstructure:"mnemonic"`
	KeystorePath   string `mapstructure:"keystore_path"`
	Password       string `mapstructure:"password"` // 通常通过环境变量 WALLET_PASSWORD 传入
	DerivationPath string `mapstructure:"derivation_path"`
}

type PipelineConfig struct {
	GasMarginBps    uint64        `mapstructure:"gas_margin_bps"`
	EstimateTimeout time.Duration `mapstructure:"estimate_timeout"`
	SubmitTimeout   time.Duration `mapstructure:"submit_timeout"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

func (p PipelineConfig) MinLockTTL() time.Duration {
	return p.EstimateTimeout + p.SubmitTimeout
}

type WatcherConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Workers      int           `mapstructure:"workers"`
}

type LedgerConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
	PopupTTL      time.Duration `mapstructure:"popup_ttl"`
}

var Global Config

func Init() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量覆盖: pipeline.gas_margin_bps -> PIPELINE_GAS_MARGIN_BPS
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := Load(viper.GetViper(), &Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

// Load 把 viper 中的配置解码到 cfg
func Load(v *viper.Viper, cfg *Config) error {
	if err := v.Unmarshal(cfg); err != nil {
		return err
	}
	// 提交锁至少覆盖一次完整的估算 + 广播
	if floor := cfg.Pipeline.MinLockTTL(); cfg.Pipeline.LockTTL < floor {
		cfg.Pipeline.LockTTL = floor
	}
	return nil
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.http_port", "8080")
	v.SetDefault("app.grpc_port", "50051")

	v.SetDefault("db.enabled", false)
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "overlay_user")
	v.SetDefault("db.password", "overlay_password")
	v.SetDefault("db.name", "overlay_db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.mq_type", "redis")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "overlay_ledger_events")

	v.SetDefault("chain.rpc_url", "http://localhost:8545")

	v.SetDefault("wallet.keystore_path", "wallet.json")
	v.SetDefault("wallet.derivation_path", "m/44'/60'/0'/0/0")

	v.SetDefault("pipeline.gas_margin_bps", 2000)
	v.SetDefault("pipeline.estimate_timeout", 15*time.Second)
	v.SetDefault("pipeline.submit_timeout", 60*time.Second)
	v.SetDefault("pipeline.lock_ttl", 90*time.Second)

	v.SetDefault("watcher.poll_interval", 4*time.Second)
	v.SetDefault("watcher.workers", 4)

	v.SetDefault("ledger.retention", 7*24*time.Hour)
	v.SetDefault("ledger.prune_schedule", "@every 1h")
	v.SetDefault("ledger.popup_ttl", 25*time.Second)
}
