package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Dataset    DatasetConfig    `mapstructure:"dataset"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Prefilter  PrefilterConfig  `mapstructure:"prefilter"`
	Models     ModelConfig      `mapstructure:"models"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Caching    CachingConfig    `mapstructure:"caching"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// DatasetConfig selects where retrains read transactions from: "postgres"
// uses Database.URL, "csv" reads the two files below.
type DatasetConfig struct {
	Source           string `mapstructure:"source"`
	TransactionsPath string `mapstructure:"transactions_path"`
	ProductsPath     string `mapstructure:"products_path"`
	TrainOnStart     bool   `mapstructure:"train_on_start"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		ModelEvents     string `mapstructure:"model_events"`
		Recommendations string `mapstructure:"recommendations"`
		RetrainCommands string `mapstructure:"retrain_commands"`
	} `mapstructure:"topics"`
}

type AuthConfig struct {
	JWTSecret string          `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration   `mapstructure:"token_ttl"`
	APIKeys   []string        `mapstructure:"api_keys"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig caps requests per authenticated subject and window.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Window      time.Duration `mapstructure:"window"`
	ClientLimit int           `mapstructure:"client_limit"`
	AdminLimit  int           `mapstructure:"admin_limit"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PrefilterConfig holds the catalog thresholds applied before the matrix is built.
type PrefilterConfig struct {
	TakeNPopular      int     `mapstructure:"take_n_popular"`
	MaxBuyerShare     float64 `mapstructure:"max_buyer_share"`
	MinBuyerShare     float64 `mapstructure:"min_buyer_share"`
	MinDepartmentSize int     `mapstructure:"min_department_size"`
	MinPrice          float64 `mapstructure:"min_price"`
	MaxPrice          float64 `mapstructure:"max_price"`
	RecentWeeks       int     `mapstructure:"recent_weeks"`
}

type ModelConfig struct {
	Factors        int     `mapstructure:"factors"`
	Regularization float64 `mapstructure:"regularization"`
	Iterations     int     `mapstructure:"iterations"`
	Alpha          float64 `mapstructure:"alpha"`
	NumWorkers     int     `mapstructure:"num_workers"`
	PersonalK      int     `mapstructure:"personal_k"`
	BM25K1         float64 `mapstructure:"bm25_k1"`
	BM25B          float64 `mapstructure:"bm25_b"`
	Weighting      bool    `mapstructure:"weighting"`
}

type RankingConfig struct {
	Count                  int     `mapstructure:"count"`
	CostlyPrice            float64 `mapstructure:"costly_price"`
	SimilarUsers           int     `mapstructure:"similar_users"`
	PrivateLabelNeighbours int     `mapstructure:"private_label_neighbours"`
	PrivateLabelMode       string  `mapstructure:"private_label_mode"`
	BatchConcurrency       int     `mapstructure:"batch_concurrency"`
	PersonalTargetLength   int     `mapstructure:"personal_target_length"`
	CandidateTargetLength  int     `mapstructure:"candidate_target_length"`
}

type CachingConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	RecommendationsTTL time.Duration `mapstructure:"recommendations_ttl"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load() (*Config, error) {
	viper.SetConfigName("app")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration with every default applied and no file
// or environment lookups. Used by the offline tools and tests.
func Default() *Config {
	v := viper.New()
	applyDefaults(v)

	var config Config
	_ = v.Unmarshal(&config)
	return &config
}

func setDefaults() {
	applyDefaults(viper.GetViper())
}

func applyDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Dataset defaults
	v.SetDefault("dataset.source", "postgres")
	v.SetDefault("dataset.transactions_path", "data/transaction_data.csv")
	v.SetDefault("dataset.products_path", "data/product.csv")
	v.SetDefault("dataset.train_on_start", true)

	// Redis defaults
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "5s")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.model_events", "model-events")
	v.SetDefault("kafka.topics.recommendations", "recommendations-generated")
	v.SetDefault("kafka.topics.retrain_commands", "retrain-commands")

	// Auth defaults
	v.SetDefault("auth.token_ttl", "24h")
	v.SetDefault("auth.rate_limit.enabled", true)
	v.SetDefault("auth.rate_limit.window", "1m")
	v.SetDefault("auth.rate_limit.client_limit", 600)
	v.SetDefault("auth.rate_limit.admin_limit", 60)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Prefilter defaults
	v.SetDefault("prefilter.take_n_popular", 5000)
	v.SetDefault("prefilter.max_buyer_share", 0.6)
	v.SetDefault("prefilter.min_buyer_share", 0.01)
	v.SetDefault("prefilter.min_department_size", 150)
	v.SetDefault("prefilter.min_price", 1.0)
	v.SetDefault("prefilter.max_price", 45.0)
	v.SetDefault("prefilter.recent_weeks", 16)

	// Model defaults
	v.SetDefault("models.factors", 20)
	v.SetDefault("models.regularization", 0.001)
	v.SetDefault("models.iterations", 15)
	v.SetDefault("models.alpha", 1.0)
	v.SetDefault("models.num_workers", 4)
	v.SetDefault("models.personal_k", 1)
	v.SetDefault("models.bm25_k1", 100.0)
	v.SetDefault("models.bm25_b", 0.8)
	v.SetDefault("models.weighting", true)

	// Ranking defaults
	v.SetDefault("ranking.count", 5)
	v.SetDefault("ranking.costly_price", 7.0)
	v.SetDefault("ranking.similar_users", 6)
	v.SetDefault("ranking.private_label_neighbours", 20)
	v.SetDefault("ranking.private_label_mode", "any")
	v.SetDefault("ranking.batch_concurrency", 8)
	v.SetDefault("ranking.personal_target_length", 3)
	v.SetDefault("ranking.candidate_target_length", 5)

	// Caching defaults
	v.SetDefault("caching.enabled", true)
	v.SetDefault("caching.recommendations_ttl", "15m")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}
