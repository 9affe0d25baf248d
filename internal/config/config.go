package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AllowedOrigins []string // CORS and websocket origin allow-list

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	S3BucketName   string
	MediaURLExpiry time.Duration

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	PushProvider              string // "sns", "fcm" or "" (disabled)
	SNSRegion                 string
	SNSPlatformApplicationARN string
	FCMProjectID              string
	FCMCredentialsFile        string

	Notify   NotifyConfig
	Delivery DeliveryConfig
	WS       WSConfig
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Notifications string
	DeviceTokens  string
}

// NotifyConfig tunes duplicate suppression, bundling and the feed.
type NotifyConfig struct {
	DuplicateWindow time.Duration
	BundleWindow    time.Duration
	PageSize        int
	MaxPageSize     int
}

// DeliveryConfig bounds outbound delivery work.
type DeliveryConfig struct {
	Timeout   time.Duration // per channel attempt
	Workers   int
	QueueSize int
}

type WSConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Notifications: getEnv("DYNAMO_TABLE_NOTIFICATIONS", "notifications"),
			DeviceTokens:  getEnv("DYNAMO_TABLE_DEVICE_TOKENS", "device_tokens"),
		},
		S3BucketName:              getEnv("S3_BUCKET_NAME", "notify-media"),
		MediaURLExpiry:            getEnvDuration("MEDIA_URL_EXPIRY", 15*time.Minute),
		JWTPrivateKeyPath:         getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:          getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:                 getEnvDuration("JWT_EXPIRY", 7*24*time.Hour),
		PushProvider:              getEnv("PUSH_PROVIDER", ""),
		SNSRegion:                 getEnv("SNS_REGION", "us-east-1"),
		SNSPlatformApplicationARN: getEnv("SNS_PLATFORM_APPLICATION_ARN", ""),
		FCMProjectID:              getEnv("FCM_PROJECT_ID", ""),
		FCMCredentialsFile:        getEnv("FCM_CREDENTIALS_FILE", ""),
		Notify: NotifyConfig{
			DuplicateWindow: getEnvDuration("NOTIFY_DUPLICATE_WINDOW", 5*time.Minute),
			BundleWindow:    getEnvDuration("NOTIFY_BUNDLE_WINDOW", 30*time.Minute),
			PageSize:        getEnvInt("FEED_PAGE_SIZE", 20),
			MaxPageSize:     getEnvInt("FEED_MAX_PAGE_SIZE", 100),
		},
		Delivery: DeliveryConfig{
			Timeout:   getEnvDuration("DELIVERY_TIMEOUT", 5*time.Second),
			Workers:   getEnvInt("DELIVERY_WORKERS", 8),
			QueueSize: getEnvInt("DELIVERY_QUEUE_SIZE", 256),
		},
		WS: WSConfig{
			PingInterval: getEnvDuration("WS_PING_INTERVAL", 25*time.Second),
			PongTimeout:  getEnvDuration("WS_PONG_TIMEOUT", 30*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30m", "5s").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
