package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	OSS          OSSConfig          `mapstructure:"oss"`
	OAuth        OAuthConfig        `mapstructure:"oauth"`
	Email        EmailConfig        `mapstructure:"email"`
	Queue        QueueConfig        `mapstructure:"queue"`
	CORS         CORSConfig         `mapstructure:"cors"`
	Subscription SubscriptionConfig `mapstructure:"subscription"`
	AI           AIConfig           `mapstructure:"ai"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Log          LogConfig          `mapstructure:"log"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host   string `mapstructure:"host"`
	Port   int    `mapstructure:"port"`
	Mode   string `mapstructure:"mode"`
	AppURL string `mapstructure:"app_url"` // 前端地址，用于邮件链接和支付回跳
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	ExpireHours        int    `mapstructure:"expire_hours"`
	RefreshExpireHours int    `mapstructure:"refresh_expire_hours"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type OAuthConfig struct {
	Github GithubOAuthConfig `mapstructure:"github"`
}

type GithubOAuthConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

type EmailConfig struct {
	Provider       string `mapstructure:"provider"` // smtp, sendgrid, 留空表示未配置
	SMTPHost       string `mapstructure:"smtp_host"`
	SMTPPort       int    `mapstructure:"smtp_port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	SendgridAPIKey string `mapstructure:"sendgrid_api_key"`
	From           string `mapstructure:"from"`
	FromName       string `mapstructure:"from_name"`
	AdminAddress   string `mapstructure:"admin_address"` // 联系表单通知收件人
}

type QueueConfig struct {
	PaymentQueue string `mapstructure:"payment_queue"`
	MaxWorkers   int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type SubscriptionConfig struct {
	Plans        map[string]PlanConfig `mapstructure:"plans"`
	RenewalHours int                   `mapstructure:"renewal_hours"`
}

type PlanConfig struct {
	Ceiling     int     `mapstructure:"ceiling"`
	Unlimited   bool    `mapstructure:"unlimited"`
	Price       float64 `mapstructure:"price"`
	DisplayName string  `mapstructure:"display_name"`
}

type AIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	BaseURL        string `mapstructure:"base_url"`
	SystemPrompt   string `mapstructure:"system_prompt"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

type PaymentConfig struct {
	IntaSend            IntaSendConfig `mapstructure:"intasend"`
	Stripe              StripeConfig   `mapstructure:"stripe"`
	CardProvider        string         `mapstructure:"card_provider"` // intasend, stripe
	Currency            string         `mapstructure:"currency"`
	RecheckDelaySeconds int            `mapstructure:"recheck_delay_seconds"`
	PlanDays            int            `mapstructure:"plan_days"`
}

type IntaSendConfig struct {
	BaseURL          string `mapstructure:"base_url"`
	PublishableKey   string `mapstructure:"publishable_key"`
	SecretKey        string `mapstructure:"secret_key"`
	TestMode         bool   `mapstructure:"test_mode"`
	WebhookChallenge string `mapstructure:"webhook_challenge"`
}

type StripeConfig struct {
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	APIBase       string `mapstructure:"api_base"` // 为空时使用 Stripe 官方地址
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RenewalWindow 配额续期窗口
func (c *Config) RenewalWindow() time.Duration {
	if c.Subscription.RenewalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Subscription.RenewalHours) * time.Hour
}

// RecheckDelay 移动支付状态复查延迟
func (c *Config) RecheckDelay() time.Duration {
	if c.Payment.RecheckDelaySeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Payment.RecheckDelaySeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_expire_hours", 24*30)
	v.SetDefault("queue.payment_queue", "hh:payment_jobs")
	v.SetDefault("queue.max_workers", 2)
	v.SetDefault("subscription.renewal_hours", 24)
	v.SetDefault("subscription.plans", map[string]interface{}{
		"free":       map[string]interface{}{"ceiling": 5, "display_name": "Free"},
		"family":     map[string]interface{}{"ceiling": 50, "price": 500, "display_name": "Family Plan"},
		"premium":    map[string]interface{}{"ceiling": 50, "price": 1000, "display_name": "Premium Plan"},
		"enterprise": map[string]interface{}{"unlimited": true, "price": 5000, "display_name": "Enterprise Plan"},
	})
	v.SetDefault("ai.model", "gemini-1.5-flash")
	v.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("payment.intasend.base_url", "https://payment.intasend.com")
	v.SetDefault("payment.card_provider", "intasend")
	v.SetDefault("payment.currency", "KES")
	v.SetDefault("payment.recheck_delay_seconds", 30)
	v.SetDefault("payment.plan_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)
}
