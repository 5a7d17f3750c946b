package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port              int
	DBDSN             string
	RedisURL          string
	AMQPURL           string
	JWTAccessTTL      time.Duration
	JWTSecret         string
	AllowOrigins      []string
	RateLimitPublic   RateLimitConfig
	RateLimitAuth     RateLimitConfig
	SlackWebhookURL   string
	StrictTransitions bool
	RunMigrations     bool
	Storage           StorageConfig
}

// StorageConfig escolhe onde fica o conteúdo dos anexos.
type StorageConfig struct {
	Provider  string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

const (
	StorageNone   = "none"
	StorageMemory = "memory"
	StorageS3     = "s3"
)

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.AMQPURL = strings.TrimSpace(getEnv("AMQP_URL", ""))

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	accessTTL, err := parseDurationEnv("JWT_ACCESS_TTL", 12*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.JWTAccessTTL = accessTTL

	cfg.AllowOrigins = nil
	for _, origin := range strings.Split(getEnv("ALLOW_ORIGINS", ""), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	publicRPS, err := parseFloatEnv("RATE_LIMIT_PUBLIC_RPS", 5)
	if err != nil {
		return nil, err
	}
	authRPS, err := parseFloatEnv("RATE_LIMIT_AUTH_RPS", 20)
	if err != nil {
		return nil, err
	}
	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: publicRPS, Burst: 10}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: authRPS, Burst: 40}

	cfg.SlackWebhookURL = strings.TrimSpace(getEnv("SLACK_WEBHOOK_URL", ""))

	if cfg.StrictTransitions, err = parseBoolEnv("STRICT_TRANSITIONS", false); err != nil {
		return nil, err
	}
	if cfg.RunMigrations, err = parseBoolEnv("MIGRATIONS", true); err != nil {
		return nil, err
	}

	if cfg.Storage, err = loadStorage(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadStorage() (StorageConfig, error) {
	sc := StorageConfig{
		Provider:  strings.ToLower(strings.TrimSpace(getEnv("STORAGE_PROVIDER", StorageNone))),
		Endpoint:  strings.TrimSpace(getEnv("S3_ENDPOINT", "")),
		Region:    strings.TrimSpace(getEnv("S3_REGION", "auto")),
		Bucket:    strings.TrimSpace(getEnv("S3_BUCKET", "")),
		AccessKey: strings.TrimSpace(getEnv("S3_ACCESS_KEY", "")),
		SecretKey: strings.TrimSpace(getEnv("S3_SECRET_KEY", "")),
	}
	switch sc.Provider {
	case "", StorageNone:
		sc.Provider = StorageNone
	case StorageMemory:
	case StorageS3, "r2":
		sc.Provider = StorageS3
		if sc.Endpoint == "" || sc.Bucket == "" || sc.AccessKey == "" || sc.SecretKey == "" {
			return sc, errors.New("S3_ENDPOINT, S3_BUCKET, S3_ACCESS_KEY e S3_SECRET_KEY obrigatórios para STORAGE_PROVIDER=s3")
		}
	default:
		return sc, errors.New("STORAGE_PROVIDER inválido")
	}
	return sc, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil || dur <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.New(key + " inválido")
	}
	return b, nil
}

func parseFloatEnv(key string, def float64) (float64, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return f, nil
}
