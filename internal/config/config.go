package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Storage    StorageConfig
	Tracing    TracingConfig `mapstructure:"tracing"`
	Redis      RedisConfig
	AI         AIConfig
	Vision     VisionConfig     `mapstructure:"vision"`
	Exam       ExamConfig       `mapstructure:"exam"`
	Proctoring ProctoringConfig `mapstructure:"proctoring"`
	MQ         MQConfig         `mapstructure:"mq"`
	CORS       CORSConfig       `mapstructure:"cors"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
	// 帧分析接口单独限流（每分钟）
	AnalyzePerMinute int `mapstructure:"analyze_per_minute"`
}

// AIConfig 语言模型服务（题目生成与评语）
type AIConfig struct {
	Provider string `mapstructure:"provider"` // openai | gemini
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// VisionConfig 帧识别服务
type VisionConfig struct {
	Provider            string  `mapstructure:"provider"` // http | gemini
	Endpoint            string  `mapstructure:"endpoint"`
	APIKey              string  `mapstructure:"api_key"`
	Model               string  `mapstructure:"model"`
	PersonMinConfidence float64 `mapstructure:"person_min_confidence"`
}

type ExamConfig struct {
	DurationMinutes          int `mapstructure:"duration_minutes"`
	PassScore                int `mapstructure:"pass_score"`
	KnowledgeQuestions       int `mapstructure:"knowledge_questions"`
	LearningQuestions        int `mapstructure:"learning_questions"`
	GenerationTimeoutSeconds int `mapstructure:"generation_timeout_seconds"`
	FeedbackTimeoutSeconds   int `mapstructure:"feedback_timeout_seconds"`
	GenerationLockTTLSeconds int `mapstructure:"generation_lock_ttl_seconds"`
}

type ProctoringConfig struct {
	SampleIntervalSeconds int    `mapstructure:"sample_interval_seconds"`
	AnalyzeTimeoutSeconds int    `mapstructure:"analyze_timeout_seconds"`
	FraudGraceMillis      int    `mapstructure:"fraud_grace_millis"`
	MaxFrameBytes         int    `mapstructure:"max_frame_bytes"`
	PolicyFile            string `mapstructure:"policy_file"`
	StoreEvidence         bool   `mapstructure:"store_evidence"`
	// 单个监考连接的帧上传限流
	FrameRatePerSecond float64 `mapstructure:"frame_rate_per_second"`
	FrameBurst         int     `mapstructure:"frame_burst"`
}

type MQConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Driver    string // mysql | postgres | sqlite
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	Path      string // sqlite 文件路径
}

type JWTConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Secret  string `mapstructure:"secret"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	OSSEndpoint   string `mapstructure:"oss_endpoint"`
	OSSAccessKey  string `mapstructure:"oss_access_key"`
	OSSSecretKey  string `mapstructure:"oss_secret_key"`
	OSSBucket     string `mapstructure:"oss_bucket"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (c ExamConfig) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

func (c ExamConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

func (c ExamConfig) FeedbackTimeout() time.Duration {
	return time.Duration(c.FeedbackTimeoutSeconds) * time.Second
}

func (c ExamConfig) GenerationLockTTL() time.Duration {
	return time.Duration(c.GenerationLockTTLSeconds) * time.Second
}

func (c ProctoringConfig) SampleInterval() time.Duration {
	return time.Duration(c.SampleIntervalSeconds) * time.Second
}

func (c ProctoringConfig) AnalyzeTimeout() time.Duration {
	return time.Duration(c.AnalyzeTimeoutSeconds) * time.Second
}

func (c ProctoringConfig) FraudGrace() time.Duration {
	return time.Duration(c.FraudGraceMillis) * time.Millisecond
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.path", "exam.db")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")

	v.SetDefault("vision.provider", "http")
	v.SetDefault("vision.model", "gemini-2.0-flash")
	v.SetDefault("vision.person_min_confidence", 0.5)

	v.SetDefault("exam.duration_minutes", 30)
	v.SetDefault("exam.pass_score", 70)
	v.SetDefault("exam.knowledge_questions", 5)
	v.SetDefault("exam.learning_questions", 5)
	v.SetDefault("exam.generation_timeout_seconds", 60)
	v.SetDefault("exam.feedback_timeout_seconds", 20)
	v.SetDefault("exam.generation_lock_ttl_seconds", 90)

	v.SetDefault("proctoring.sample_interval_seconds", 5)
	v.SetDefault("proctoring.analyze_timeout_seconds", 15)
	v.SetDefault("proctoring.fraud_grace_millis", 1500)
	v.SetDefault("proctoring.max_frame_bytes", 2<<20)
	v.SetDefault("proctoring.policy_file", "configs/fraud_policy.yaml")
	v.SetDefault("proctoring.store_evidence", true)
	v.SetDefault("proctoring.frame_rate_per_second", 2)
	v.SetDefault("proctoring.frame_burst", 4)

	v.SetDefault("mq.exchange", "exam.events")

	v.SetDefault("rate_limit.max_requests", 100000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("rate_limit.analyze_per_minute", 30)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Database
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// AI / Vision
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("vision.endpoint", "VISION_ENDPOINT")
	v.BindEnv("vision.api_key", "VISION_API_KEY")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.oss_endpoint", "OSS_ENDPOINT")
	v.BindEnv("storage.oss_access_key", "OSS_ACCESS_KEY")
	v.BindEnv("storage.oss_secret_key", "OSS_SECRET_KEY")
	v.BindEnv("storage.oss_bucket", "OSS_BUCKET")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// MQ
	v.BindEnv("mq.url", "MQ_URL")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.JWT.Enabled && c.Server.Mode == "release" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}
	if c.Exam.PassScore < 0 || c.Exam.PassScore > 100 {
		return fmt.Errorf("exam.pass_score must be within 0..100, got %d", c.Exam.PassScore)
	}
	if c.Exam.KnowledgeQuestions <= 0 || c.Exam.LearningQuestions <= 0 {
		return fmt.Errorf("exam question counts must be positive")
	}
	if c.Exam.DurationMinutes <= 0 {
		return fmt.Errorf("exam.duration_minutes must be positive")
	}
	if c.Proctoring.SampleIntervalSeconds <= 0 {
		return fmt.Errorf("proctoring.sample_interval_seconds must be positive")
	}
	return nil
}
