package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort           string        `envconfig:"PORT" default:"8080"`
	StorageDir         string        `envconfig:"STORAGE_DIR" default:"./static/uploads"`
	CORSAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
	RateLimitRequests  int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow    time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
	MaxRequestBytes    int64         `envconfig:"MAX_REQUEST_BYTES" default:"16777216"`
	RedisURL           string        `envconfig:"REDIS_URL"`

	DB   DBConfig
	Auth AuthConfig
	S3   S3Config
	AI   AIConfig
	AMQP AMQPConfig
	Log  LogConfig

	// 存储配置："local" 或 "s3"
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"local"`
}

// DBConfig 描述 Postgres 连接参数。
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"127.0.0.1"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"beehive"`
	Password string `envconfig:"DB_PASSWORD" default:"beehive"`
	Name     string `envconfig:"DB_NAME" default:"beehive"`
	SSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`
}

// AuthConfig 鉴权配置，令牌由外部签发方通过 JWKS 公布公钥。
type AuthConfig struct {
	Issuer             string        `envconfig:"AUTH_ISSUER"`
	JWKSURL            string        `envconfig:"AUTH_JWKS_URL"`
	KeyRefreshInterval time.Duration `envconfig:"AUTH_KEY_REFRESH_INTERVAL" default:"1h"`
}

// S3Config S3/MinIO 端点，不含协议。
type S3Config struct {
	Endpoint  string `envconfig:"S3_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"S3_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"S3_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"S3_BUCKET" default:"beehive"`
	Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	UseSSL    bool   `envconfig:"S3_USE_SSL" default:"false"`
	PathStyle bool   `envconfig:"S3_PATH_STYLE" default:"true"`
}

// AIConfig 内容分析服务（OpenAI 兼容接口）。APIKey 为空时分析功能关闭。
type AIConfig struct {
	APIKey  string        `envconfig:"AI_API_KEY"`
	BaseURL string        `envconfig:"AI_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string        `envconfig:"AI_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"AI_TIMEOUT" default:"60s"`
}

// AMQPConfig 上传事件投递；URL 为空时不投递。
type AMQPConfig struct {
	URL      string `envconfig:"AMQP_URL"`
	Exchange string `envconfig:"AMQP_EXCHANGE" default:"beehive_events"`
}

type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load 读取可选的 .env 文件后从环境变量加载配置，并做启动期校验。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.StorageDriver == "local" {
		if err := ensureDir(cfg.StorageDir); err != nil {
			return nil, fmt.Errorf("确保存储目录失败: %w", err)
		}
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	issuer := strings.TrimSpace(c.Auth.Issuer)
	if issuer == "" {
		return errors.New("AUTH_ISSUER is required")
	}
	u, err := url.Parse(issuer)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("AUTH_ISSUER must be an http(s) URL, got %q", issuer)
	}
	c.Auth.Issuer = issuer

	if c.Auth.KeyRefreshInterval <= 0 {
		c.Auth.KeyRefreshInterval = time.Hour
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = 16 << 20
	}

	switch c.StorageDriver {
	case "local", "s3":
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}

	c.CORSAllowedOrigins = compact(c.CORSAllowedOrigins)
	return nil
}

// JWKSEndpoint 返回签发方的公钥集地址。
func (a AuthConfig) JWKSEndpoint() string {
	if a.JWKSURL != "" {
		return a.JWKSURL
	}
	return strings.TrimRight(a.Issuer, "/") + "/.well-known/jwks.json"
}

// AnalysisEnabled 表示是否配置了内容分析服务。
func (a AIConfig) AnalysisEnabled() bool {
	key := strings.TrimSpace(a.APIKey)
	return key != "" && key != "your_api_key_here"
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.User, c.DB.Password),
		Host:   fmt.Sprintf("%s:%d", c.DB.Host, c.DB.Port),
		Path:   c.DB.Name,
	}

	q := url.Values{}
	if c.DB.SSLMode != "" {
		q.Set("sslmode", c.DB.SSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
