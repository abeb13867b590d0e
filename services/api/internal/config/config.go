package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file location; WILDWATCH_CONFIG overrides it.
var ConfigPath = configPathFromEnv()

func configPathFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("WILDWATCH_CONFIG")); v != "" {
		return v
	}
	return "config.yaml"
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port           string   `yaml:"port"`
	LogLevel       string   `yaml:"logLevel"`
	DatabaseURL    string   `yaml:"databaseURL"`
	RedisAddr      string   `yaml:"redisAddr"`
	RedisPassword  string   `yaml:"redisPassword"`
	TrustedProxies []string `yaml:"trustedProxies"`
	CORSOrigins    []string `yaml:"corsOrigins"`

	TokenTTL            string `yaml:"tokenTTL"`
	JWTPrivateKeyPath   string `yaml:"jwtPrivateKeyPath"`
	JWTKeyID            string `yaml:"jwtKeyId"`
	JWTVerifyPublicKeys string `yaml:"jwtVerifyPublicKeys"`
	JWTIssuer           string `yaml:"jwtIssuer"`
	JWTAudience         string `yaml:"jwtAudience"`
	JWTLeeway           string `yaml:"jwtLeeway"`

	RegisterRateLimitPerMinute int `yaml:"registerRateLimitPerMinute"`
	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute"`
	UpdateRateLimitPerMinute   int `yaml:"updateRateLimitPerMinute"`

	SeedUsers         bool   `yaml:"seedUsers"`
	SeedAdminPassword string `yaml:"seedAdminPassword"`
	SeedUserPassword  string `yaml:"seedUserPassword"`

	StagingDir      string `yaml:"stagingDir"`
	MaxUploadBytes  int64  `yaml:"maxUploadBytes"`
	AnalysisURL     string `yaml:"analysisURL"`
	ArtifactDir     string `yaml:"artifactDir"`
	AnalysisTimeout string `yaml:"analysisTimeout"`

	ImgurUploadURL string `yaml:"imgurUploadURL"`
	ImgurClientID  string `yaml:"imgurClientID"`
	PublishTimeout string `yaml:"publishTimeout"`

	// DocumentHost selects where data artifacts go: "drive" or "s3".
	DocumentHost         string `yaml:"documentHost"`
	DriveCredentialsFile string `yaml:"driveCredentialsFile"`
	DriveFolderID        string `yaml:"driveFolderID"`
	S3Endpoint           string `yaml:"s3Endpoint"`
	S3AccessKey          string `yaml:"s3AccessKey"`
	S3SecretKey          string `yaml:"s3SecretKey"`
	S3Bucket             string `yaml:"s3Bucket"`
	S3Region             string `yaml:"s3Region"`
	S3UseSSL             bool   `yaml:"s3UseSSL"`
	S3PublicBaseURL      string `yaml:"s3PublicBaseURL"`
	DocumentLinkTTL      string `yaml:"documentLinkTTL"`
}

// Load reads config from path (defaults to ConfigPath).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	str := map[string]*string{
		"PORT":                   &cfg.Port,
		"LOG_LEVEL":              &cfg.LogLevel,
		"DATABASE_URL":           &cfg.DatabaseURL,
		"REDIS_ADDR":             &cfg.RedisAddr,
		"REDIS_PASSWORD":         &cfg.RedisPassword,
		"TOKEN_TTL":              &cfg.TokenTTL,
		"JWT_PRIVATE_KEY_PATH":   &cfg.JWTPrivateKeyPath,
		"JWT_KEY_ID":             &cfg.JWTKeyID,
		"JWT_VERIFY_PUBLIC_KEYS": &cfg.JWTVerifyPublicKeys,
		"JWT_ISSUER":             &cfg.JWTIssuer,
		"JWT_AUDIENCE":           &cfg.JWTAudience,
		"JWT_LEEWAY":             &cfg.JWTLeeway,
		"SEED_ADMIN_PASSWORD":    &cfg.SeedAdminPassword,
		"SEED_USER_PASSWORD":     &cfg.SeedUserPassword,
		"STAGING_DIR":            &cfg.StagingDir,
		"ANALYSIS_URL":           &cfg.AnalysisURL,
		"ARTIFACT_DIR":           &cfg.ArtifactDir,
		"IMGUR_CLIENT_ID":        &cfg.ImgurClientID,
		"DOCUMENT_HOST":          &cfg.DocumentHost,
		"DRIVE_CREDENTIALS_FILE": &cfg.DriveCredentialsFile,
		"DRIVE_FOLDER_ID":        &cfg.DriveFolderID,
		"S3_ENDPOINT":            &cfg.S3Endpoint,
		"S3_ACCESS_KEY":          &cfg.S3AccessKey,
		"S3_SECRET_KEY":          &cfg.S3SecretKey,
		"S3_BUCKET":              &cfg.S3Bucket,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("SEED_USERS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.SeedUsers = b
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = "5000"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 5 << 20
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	if cfg.ImgurUploadURL == "" {
		cfg.ImgurUploadURL = "https://api.imgur.com/3/upload"
	}
	if cfg.DocumentHost == "" {
		cfg.DocumentHost = "drive"
	}
	cfg.DocumentHost = strings.ToLower(strings.TrimSpace(cfg.DocumentHost))
}

func validateConfig(cfg FileConfig) error {
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if cfg.JWTPrivateKeyPath == "" {
		return errors.New("config: jwtPrivateKeyPath is required (set JWT_PRIVATE_KEY_PATH)")
	}
	if cfg.AnalysisURL == "" {
		return errors.New("config: analysisURL is required (set ANALYSIS_URL)")
	}
	if cfg.ImgurClientID == "" {
		return errors.New("config: imgurClientID is required (set IMGUR_CLIENT_ID)")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be > 0")
	}
	switch cfg.DocumentHost {
	case "drive":
		if cfg.DriveCredentialsFile == "" {
			return errors.New("config: driveCredentialsFile is required for documentHost drive")
		}
	case "s3":
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" {
			return errors.New("config: s3Endpoint and s3Bucket are required for documentHost s3")
		}
	default:
		return fmt.Errorf("config: unknown documentHost %q (want drive or s3)", cfg.DocumentHost)
	}
	if cfg.RegisterRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.UpdateRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.SeedUsers && (cfg.SeedAdminPassword == "" || cfg.SeedUserPassword == "") {
		return errors.New("config: seedUsers requires seedAdminPassword and seedUserPassword")
	}
	return nil
}

// ParseDuration parses an optional duration option; empty yields fallback.
func ParseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("invalid %s duration: must be positive", name)
	}
	return dur, nil
}

// ParseNonNegativeDuration is ParseDuration that also accepts zero.
func ParseNonNegativeDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return dur, nil
}

// ParseVerifyPublicKeys parses "kid=path,kid2=path2" into a map.
func ParseVerifyPublicKeys(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kid, path, ok := strings.Cut(pair, "=")
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("invalid jwtVerifyPublicKeys entry %q", pair)
		}
		out[kid] = path
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
