package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string
	LogLevel string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（提交后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// 下单接口限流
	CreateOrderRateLimit  int
	CreateOrderRateWindow time.Duration

	// 事务超时：超时的事务整体回滚，不留下部分扣减
	TxTimeout time.Duration

	// 非空时启动时确保该管理员账户存在
	AdminEmail    string
	AdminPassword string

	JWTSecret     string
	JWTTTL        time.Duration
	ResetTokenTTL time.Duration

	RazorpayKeyID     string
	RazorpayKeySecret string
	PaymentCurrency   string

	MailHost string
	MailPort int
	MailUser string
	MailPass string
	MailFrom string

	FrontendURL string
	UploadDir   string

	// 为空时不启用 OTLP 导出
	OtelEndpoint   string
	OtelAuthHeader string
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DBPath:                getEnv("DB_PATH", "storefront.db"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:               0,
		KafkaBrokers:          splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:            getEnv("KAFKA_TOPIC", "storefront-order-events"),
		KafkaGroupID:          getEnv("KAFKA_GROUP_ID", "storefront-notifier"),
		OrderEventStream:      getEnv("ORDER_EVENT_STREAM", "storefront:order_events"),
		OrderEventGroup:       getEnv("ORDER_EVENT_GROUP", "storefront-relay-group"),
		OrderEventConsumer:    getEnv("ORDER_EVENT_CONSUMER", "storefront-relay-1"),
		CreateOrderRateLimit:  20,
		CreateOrderRateWindow: time.Minute,
		TxTimeout:             10 * time.Second,
		AdminEmail:            getEnv("ADMIN_EMAIL", ""),
		AdminPassword:         getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:             getEnv("JWT_SECRET", ""),
		JWTTTL:                7 * 24 * time.Hour,
		ResetTokenTTL:         time.Hour,
		RazorpayKeyID:         getEnv("RAZORPAY_KEY_ID", ""),
		RazorpayKeySecret:     getEnv("RAZORPAY_KEY_SECRET", ""),
		PaymentCurrency:       getEnv("PAYMENT_CURRENCY", "INR"),
		MailHost:              getEnv("MAIL_HOST", "localhost"),
		MailPort:              587,
		MailUser:              getEnv("MAIL_USER", ""),
		MailPass:              getEnv("MAIL_PASS", ""),
		MailFrom:              getEnv("MAIL_FROM", "no-reply@storefront.local"),
		FrontendURL:           getEnv("FRONTEND_URL", "http://localhost:5173"),
		UploadDir:             getEnv("UPLOAD_DIR", "uploads"),
		OtelEndpoint:          getEnv("OTEL_ENDPOINT", ""),
		OtelAuthHeader:        getEnv("OTEL_AUTH_HEADER", ""),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("CREATE_ORDER_RATE_LIMIT", cfg.CreateOrderRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CREATE_ORDER_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("CREATE_ORDER_RATE_LIMIT must be > 0")
	}
	cfg.CreateOrderRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("CREATE_ORDER_RATE_WINDOW_SEC", int(cfg.CreateOrderRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CREATE_ORDER_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("CREATE_ORDER_RATE_WINDOW_SEC must be > 0")
	}
	cfg.CreateOrderRateWindow = time.Duration(rateWindowSec) * time.Second

	txTimeoutSec, err := getEnvInt("TX_TIMEOUT_SEC", int(cfg.TxTimeout.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TX_TIMEOUT_SEC: %w", err)
	}
	if txTimeoutSec <= 0 {
		return AppConfig{}, fmt.Errorf("TX_TIMEOUT_SEC must be > 0")
	}
	cfg.TxTimeout = time.Duration(txTimeoutSec) * time.Second

	jwtTTLHour, err := getEnvInt("JWT_TTL_HOUR", int(cfg.JWTTTL.Hours()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid JWT_TTL_HOUR: %w", err)
	}
	if jwtTTLHour <= 0 {
		return AppConfig{}, fmt.Errorf("JWT_TTL_HOUR must be > 0")
	}
	cfg.JWTTTL = time.Duration(jwtTTLHour) * time.Hour

	resetTTLMin, err := getEnvInt("RESET_TOKEN_TTL_MIN", int(cfg.ResetTokenTTL.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid RESET_TOKEN_TTL_MIN: %w", err)
	}
	if resetTTLMin <= 0 {
		return AppConfig{}, fmt.Errorf("RESET_TOKEN_TTL_MIN must be > 0")
	}
	cfg.ResetTokenTTL = time.Duration(resetTTLMin) * time.Minute

	mailPort, err := getEnvInt("MAIL_PORT", cfg.MailPort)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid MAIL_PORT: %w", err)
	}
	cfg.MailPort = mailPort

	if cfg.JWTSecret == "" {
		return AppConfig{}, fmt.Errorf("JWT_SECRET must not be empty")
	}
	if cfg.RazorpayKeySecret == "" {
		return AppConfig{}, fmt.Errorf("RAZORPAY_KEY_SECRET must not be empty")
	}
	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.OrderEventStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
	}
	if cfg.OrderEventGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
	}
	if cfg.OrderEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
