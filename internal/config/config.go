package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Console ConsoleConfig
	API     APIConfig
	Storage StorageConfig
	Login   LoginConfig
	Device  DeviceConfig
	Stub    StubConfig
	Email   EmailConfig
}

type ConsoleConfig struct {
	Env      string
	LogLevel string
}

// APIConfig describes the backend the console talks to.
type APIConfig struct {
	BaseURL        string
	LoginPath      string
	VerifyOTPPath  string
	LogoutPath     string
	RequestTimeout time.Duration
}

// StorageConfig locates the persisted token store. An empty Passphrase
// keeps the file in clear JSON (mode 0600).
type StorageConfig struct {
	Path       string
	Passphrase string
	InMemory   bool
}

type LoginConfig struct {
	DefaultTempTokenTTL time.Duration
	ResendCooldown      time.Duration
	SuccessDelay        time.Duration
}

type DeviceConfig struct {
	Type  string
	Model string
	Name  string
	OS    string
}

// StubConfig configures the development backend (cmd/authstub).
type StubConfig struct {
	Port               string
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	ChallengeTTL       time.Duration
	MaxVerifyAttempts  int
	CodesPerContact    int
	CodeWindow         time.Duration
	Operators          []string
	AuthRequestsPerMin int
	CleanupInterval    time.Duration
	TrustedProxies     []string
	AllowedOrigins     []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
}

type EmailConfig struct {
	Provider    string // "log" or "ses"
	AWSRegion   string
	FromAddress string
}

func Load() (*Config, error) {
	_ = godotenv.Load()
	return load()
}

// LoadFile is Load with an explicit dotenv file. A missing file is an error
// because the caller asked for it by name.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(path); err != nil {
		return nil, fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return load()
}

func load() (*Config, error) {
	env := getEnv("ENV", "development")

	hostname, _ := os.Hostname()

	cfg := &Config{
		Console: ConsoleConfig{
			Env:      env,
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		API: APIConfig{
			BaseURL:        strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
			LoginPath:      getEnv("API_LOGIN_PATH", "/auth/login"),
			VerifyOTPPath:  getEnv("API_VERIFY_OTP_PATH", "/auth/verify-otp"),
			LogoutPath:     getEnv("API_LOGOUT_PATH", "/auth/logout"),
			RequestTimeout: getEnvAsDuration("API_REQUEST_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Path:       getEnv("TOKEN_STORE_PATH", defaultStorePath()),
			Passphrase: getEnv("TOKEN_STORE_PASSPHRASE", ""),
			InMemory:   getEnvAsBool("TOKEN_STORE_IN_MEMORY", false),
		},
		Login: LoginConfig{
			DefaultTempTokenTTL: getEnvAsDuration("OTP_DEFAULT_TTL", 10*time.Minute),
			ResendCooldown:      getEnvAsDuration("OTP_RESEND_COOLDOWN", 30*time.Second),
			SuccessDelay:        getEnvAsDuration("LOGIN_SUCCESS_DELAY", 500*time.Millisecond),
		},
		Device: DeviceConfig{
			Type:  getEnv("DEVICE_TYPE", "desktop"),
			Model: getEnv("DEVICE_MODEL", runtime.GOOS+"/"+runtime.GOARCH),
			Name:  getEnv("DEVICE_NAME", hostname),
			OS:    getEnv("DEVICE_OS", runtime.GOOS),
		},
		Stub: StubConfig{
			Port:               getEnv("PORT", "8080"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			ChallengeTTL:       getEnvAsDuration("OTP_CHALLENGE_TTL", 10*time.Minute),
			MaxVerifyAttempts:  getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			CodesPerContact:    getEnvAsInt("OTP_CODES_PER_CONTACT", 5),
			CodeWindow:         getEnvAsDuration("OTP_CODE_WINDOW", 10*time.Minute),
			Operators:          getEnvAsList("STUB_OPERATORS"),
			AuthRequestsPerMin: getEnvAsInt("AUTH_RATE_LIMIT_PER_MINUTE", 10),
			CleanupInterval:    getEnvAsDuration("CHALLENGE_CLEANUP_INTERVAL", 1*time.Minute),
			TrustedProxies:     getEnvAsList("TRUSTED_PROXIES"),
			AllowedOrigins:     parseAllowedOrigins(env),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:        getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Email: EmailConfig{
			Provider:    getEnv("EMAIL_PROVIDER", "log"),
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", "no-reply@localhost"),
		},
	}

	if !strings.HasPrefix(cfg.API.BaseURL, "http://") && !strings.HasPrefix(cfg.API.BaseURL, "https://") {
		return nil, fmt.Errorf("API_BASE_URL must start with http:// or https:// (got %q)", cfg.API.BaseURL)
	}

	if env == "production" && strings.HasPrefix(cfg.API.BaseURL, "http://") {
		return nil, fmt.Errorf("API_BASE_URL must use https in production")
	}

	return cfg, nil
}

// Validate checks the settings only the development backend needs.
func (c *StubConfig) Validate(env string) error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if err := validateJWTSecret(c.JWTSecret, env); err != nil {
		return err
	}
	if c.ChallengeTTL <= 0 {
		return fmt.Errorf("OTP_CHALLENGE_TTL must be positive")
	}
	if c.MaxVerifyAttempts <= 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// defaultStorePath follows the XDG layout: $XDG_CONFIG_HOME/billdesk/session.json.
func defaultStorePath() string {
	configDirectory := os.Getenv("XDG_CONFIG_HOME")
	if configDirectory == "" {
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "billdesk-session.json")
		}
		configDirectory = filepath.Join(homeDirectory, ".config")
	}
	return filepath.Join(configDirectory, "billdesk", "session.json")
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return getEnvAsList("ALLOWED_ORIGINS")
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
