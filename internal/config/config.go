package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"edujam/internal/ai"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "EDUJAM_"

// ErrUnsupportedFormat is returned for config files that are neither JSON nor YAML
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Sweeper   *SweeperConfig   `json:"sweeper"`
	Database  *DatabaseConfig  `json:"database"`
	Auth      *AuthConfig      `json:"auth"`
	AI        *AIConfig        `json:"ai"`
	Storage   *StorageConfig   `json:"storage"`
	Groups    *GroupsConfig    `json:"groups"`
}

type HTTPConfig struct {
	Host           string        `json:"host"`
	Port           int           `json:"port"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	AllowedOrigins []string      `json:"allowed_origins"`
}

// FUNCTIONAL DISCOVERY: WebSocket configuration optimized for classroom scenarios
type WebSocketConfig struct {
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	BufferSize        int           `json:"buffer_size"`
	MaxMessageSize    int64         `json:"max_message_size"`
	CommandsPerMinute int           `json:"commands_per_minute"`
}

type SweeperConfig struct {
	Interval       time.Duration `json:"interval"`
	SessionTimeout time.Duration `json:"session_timeout"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// AuthConfig configures JWT verification. An empty secret disables
// verification and every connection is anonymous.
type AuthConfig struct {
	JWTSecret string `json:"-"`
	Issuer    string `json:"issuer"`
}

// AIConfig configures the tutor. An empty APIKey selects the offline responder.
type AIConfig struct {
	Endpoint    string        `json:"endpoint"`
	APIKey      string        `json:"-"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
}

type StorageConfig struct {
	Dir           string `json:"dir"`
	BaseURL       string `json:"base_url"`
	MaxUploadSize int64  `json:"max_upload_size"`
}

type GroupsConfig struct {
	MaxParticipants int `json:"max_participants"`
}

// DefaultConfig returns production-ready defaults for a single classroom server
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		WebSocket: &WebSocketConfig{
			ReadTimeout:       90 * time.Second,
			WriteTimeout:      5 * time.Second,
			BufferSize:        100,
			MaxMessageSize:    1 << 20,
			CommandsPerMinute: 600,
		},
		Sweeper: &SweeperConfig{
			Interval:       30 * time.Second,
			SessionTimeout: 30 * time.Minute,
		},
		Database: &DatabaseConfig{
			Path:    "./data/edujam.db",
			Timeout: 30 * time.Second,
		},
		Auth: &AuthConfig{},
		AI: &AIConfig{
			Endpoint:    ai.DefaultEndpoint,
			Model:       ai.DefaultModel,
			MaxTokens:   ai.DefaultMaxTokens,
			Temperature: ai.DefaultTemperature,
			Timeout:     ai.DefaultTimeout,
		},
		Storage: &StorageConfig{
			Dir:           "./uploaded-files",
			BaseURL:       "http://localhost:8080/api/files",
			MaxUploadSize: 10 << 20,
		},
		Groups: &GroupsConfig{
			MaxParticipants: 10,
		},
	}
}

// Validate reports the first invalid setting, naming the field
func (c *Config) Validate() error {
	if c.HTTP == nil || c.WebSocket == nil || c.Sweeper == nil || c.Database == nil ||
		c.Auth == nil || c.AI == nil || c.Storage == nil || c.Groups == nil {
		return fmt.Errorf("all configuration sections are required")
	}

	// Port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d is out of range [0, 65535]", c.HTTP.Port)
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http.host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("http.read_timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http.write_timeout must be positive")
	}

	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket.write_timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket.buffer_size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("websocket.max_message_size must be positive")
	}
	if c.WebSocket.CommandsPerMinute <= 0 {
		return fmt.Errorf("websocket.commands_per_minute must be positive")
	}

	if c.Sweeper.Interval <= 0 {
		return fmt.Errorf("sweeper.interval must be positive")
	}
	if c.Sweeper.SessionTimeout <= 0 {
		return fmt.Errorf("sweeper.session_timeout must be positive")
	}
	// TECHNICAL DISCOVERY: The sweeper's probe ping is what refreshes the read
	// deadline of a quiet connection, so the deadline must outlast one tick
	if c.WebSocket.ReadTimeout <= c.Sweeper.Interval {
		return fmt.Errorf("websocket.read_timeout (%v) must exceed sweeper.interval (%v)",
			c.WebSocket.ReadTimeout, c.Sweeper.Interval)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database.timeout must be positive")
	}

	if c.AI.Endpoint == "" {
		return fmt.Errorf("ai.endpoint cannot be empty")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("ai.model cannot be empty")
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("ai.max_tokens must be positive")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("ai.temperature %v is out of range [0, 2]", c.AI.Temperature)
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("ai.timeout must be positive")
	}

	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir cannot be empty")
	}
	if c.Storage.BaseURL == "" {
		return fmt.Errorf("storage.base_url cannot be empty")
	}
	if c.Storage.MaxUploadSize <= 0 {
		return fmt.Errorf("storage.max_upload_size must be positive")
	}

	if c.Groups.MaxParticipants <= 0 {
		return fmt.Errorf("groups.max_participants must be positive")
	}

	return nil
}

// Address returns the listen address for the HTTP server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables that are already set win over the file. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overlays EDUJAM_* environment variables on the defaults.
// Malformed values are logged and ignored.
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(c *Config) {
	envString("HTTP_HOST", &c.HTTP.Host)
	envInt("HTTP_PORT", &c.HTTP.Port)
	envDuration("HTTP_READ_TIMEOUT", &c.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &c.HTTP.WriteTimeout)
	envList("HTTP_ALLOWED_ORIGINS", &c.HTTP.AllowedOrigins)

	envDuration("WEBSOCKET_READ_TIMEOUT", &c.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &c.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &c.WebSocket.BufferSize)
	envInt64("WEBSOCKET_MAX_MESSAGE_SIZE", &c.WebSocket.MaxMessageSize)
	envInt("WEBSOCKET_COMMANDS_PER_MINUTE", &c.WebSocket.CommandsPerMinute)

	envDuration("SWEEPER_INTERVAL", &c.Sweeper.Interval)
	envDuration("SWEEPER_SESSION_TIMEOUT", &c.Sweeper.SessionTimeout)

	envString("DATABASE_PATH", &c.Database.Path)
	envDuration("DATABASE_TIMEOUT", &c.Database.Timeout)

	envString("JWT_SECRET", &c.Auth.JWTSecret)
	envString("JWT_ISSUER", &c.Auth.Issuer)

	envString("AI_ENDPOINT", &c.AI.Endpoint)
	envString("AI_API_KEY", &c.AI.APIKey)
	envString("AI_MODEL", &c.AI.Model)
	envInt("AI_MAX_TOKENS", &c.AI.MaxTokens)
	envFloat("AI_TEMPERATURE", &c.AI.Temperature)
	envDuration("AI_TIMEOUT", &c.AI.Timeout)

	envString("STORAGE_DIR", &c.Storage.Dir)
	envString("STORAGE_BASE_URL", &c.Storage.BaseURL)
	envInt64("STORAGE_MAX_UPLOAD_SIZE", &c.Storage.MaxUploadSize)

	envInt("GROUPS_MAX_PARTICIPANTS", &c.Groups.MaxParticipants)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envString(key string, dst *string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func envList(key string, dst *[]string) {
	if v, ok := lookup(key); ok {
		*dst = splitList(v)
	}
}

func envInt(key string, dst *int) {
	if v, ok := lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Ignoring %s%s=%q: %v", EnvPrefix, key, v, err)
			return
		}
		*dst = n
	}
}

func envInt64(key string, dst *int64) {
	if v, ok := lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Printf("Ignoring %s%s=%q: %v", EnvPrefix, key, v, err)
			return
		}
		*dst = n
	}
}

func envFloat(key string, dst *float64) {
	if v, ok := lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			log.Printf("Ignoring %s%s=%q: %v", EnvPrefix, key, v, err)
			return
		}
		*dst = f
	}
}

func envDuration(key string, dst *time.Duration) {
	if v, ok := lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			log.Printf("Ignoring %s%s=%q: %v", EnvPrefix, key, v, err)
			return
		}
		*dst = d
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ConfigFile is the on-disk shape. Durations are strings such as "30s";
// zero values leave the underlying setting untouched.
// FUNCTIONAL DISCOVERY: Separate struct for file parsing to handle duration strings
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http" yaml:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket" yaml:"websocket"`
	Sweeper   *SweeperConfigFile   `json:"sweeper" yaml:"sweeper"`
	Database  *DatabaseConfigFile  `json:"database" yaml:"database"`
	Auth      *AuthConfigFile      `json:"auth" yaml:"auth"`
	AI        *AIConfigFile        `json:"ai" yaml:"ai"`
	Storage   *StorageConfigFile   `json:"storage" yaml:"storage"`
	Groups    *GroupsConfigFile    `json:"groups" yaml:"groups"`
}

type HTTPConfigFile struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	ReadTimeout    string   `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   string   `json:"write_timeout" yaml:"write_timeout"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

type WebSocketConfigFile struct {
	ReadTimeout       string `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout      string `json:"write_timeout" yaml:"write_timeout"`
	BufferSize        int    `json:"buffer_size" yaml:"buffer_size"`
	MaxMessageSize    int64  `json:"max_message_size" yaml:"max_message_size"`
	CommandsPerMinute int    `json:"commands_per_minute" yaml:"commands_per_minute"`
}

type SweeperConfigFile struct {
	Interval       string `json:"interval" yaml:"interval"`
	SessionTimeout string `json:"session_timeout" yaml:"session_timeout"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path" yaml:"path"`
	Timeout string `json:"timeout" yaml:"timeout"`
}

type AuthConfigFile struct {
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`
	Issuer    string `json:"issuer" yaml:"issuer"`
}

type AIConfigFile struct {
	Endpoint    string   `json:"endpoint" yaml:"endpoint"`
	APIKey      string   `json:"api_key" yaml:"api_key"`
	Model       string   `json:"model" yaml:"model"`
	MaxTokens   int      `json:"max_tokens" yaml:"max_tokens"`
	Temperature *float64 `json:"temperature" yaml:"temperature"`
	Timeout     string   `json:"timeout" yaml:"timeout"`
}

type StorageConfigFile struct {
	Dir           string `json:"dir" yaml:"dir"`
	BaseURL       string `json:"base_url" yaml:"base_url"`
	MaxUploadSize int64  `json:"max_upload_size" yaml:"max_upload_size"`
}

type GroupsConfigFile struct {
	MaxParticipants int `json:"max_participants" yaml:"max_participants"`
}

// LoadFromFile reads a JSON or YAML file, chosen by extension, over the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return config, nil
}

func applyFile(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &file)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return file.apply(c)
}

func (f *ConfigFile) apply(c *Config) error {
	d := durations{}

	if h := f.HTTP; h != nil {
		setString(&c.HTTP.Host, h.Host)
		setInt(&c.HTTP.Port, h.Port)
		d.set("http.read_timeout", &c.HTTP.ReadTimeout, h.ReadTimeout)
		d.set("http.write_timeout", &c.HTTP.WriteTimeout, h.WriteTimeout)
		if len(h.AllowedOrigins) > 0 {
			c.HTTP.AllowedOrigins = h.AllowedOrigins
		}
	}

	if w := f.WebSocket; w != nil {
		d.set("websocket.read_timeout", &c.WebSocket.ReadTimeout, w.ReadTimeout)
		d.set("websocket.write_timeout", &c.WebSocket.WriteTimeout, w.WriteTimeout)
		setInt(&c.WebSocket.BufferSize, w.BufferSize)
		setInt64(&c.WebSocket.MaxMessageSize, w.MaxMessageSize)
		setInt(&c.WebSocket.CommandsPerMinute, w.CommandsPerMinute)
	}

	if s := f.Sweeper; s != nil {
		d.set("sweeper.interval", &c.Sweeper.Interval, s.Interval)
		d.set("sweeper.session_timeout", &c.Sweeper.SessionTimeout, s.SessionTimeout)
	}

	if db := f.Database; db != nil {
		setString(&c.Database.Path, db.Path)
		d.set("database.timeout", &c.Database.Timeout, db.Timeout)
	}

	if a := f.Auth; a != nil {
		setString(&c.Auth.JWTSecret, a.JWTSecret)
		setString(&c.Auth.Issuer, a.Issuer)
	}

	if a := f.AI; a != nil {
		setString(&c.AI.Endpoint, a.Endpoint)
		setString(&c.AI.APIKey, a.APIKey)
		setString(&c.AI.Model, a.Model)
		setInt(&c.AI.MaxTokens, a.MaxTokens)
		if a.Temperature != nil {
			c.AI.Temperature = *a.Temperature
		}
		d.set("ai.timeout", &c.AI.Timeout, a.Timeout)
	}

	if s := f.Storage; s != nil {
		setString(&c.Storage.Dir, s.Dir)
		setString(&c.Storage.BaseURL, s.BaseURL)
		setInt64(&c.Storage.MaxUploadSize, s.MaxUploadSize)
	}

	if g := f.Groups; g != nil {
		setInt(&c.Groups.MaxParticipants, g.MaxParticipants)
	}

	return d.err
}

// durations collects the first parse failure so apply can report it by field
type durations struct{ err error }

func (d *durations) set(field string, dst *time.Duration, v string) {
	if v == "" || d.err != nil {
		return
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		d.err = fmt.Errorf("%s: %w", field, err)
		return
	}
	*dst = parsed
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v > 0 {
		*dst = v
	}
}

// Load builds the runtime configuration with precedence
// defaults < .env < EDUJAM_* environment < config file.
// configPath falls back to EDUJAM_CONFIG_FILE when empty.
func Load(dotEnvPath, configPath string) (*Config, error) {
	if err := LoadDotEnv(dotEnvPath); err != nil {
		return nil, err
	}

	config := LoadFromEnv()

	if configPath == "" {
		configPath, _ = lookup("CONFIG_FILE")
	}
	if configPath != "" {
		if err := applyFile(config, configPath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}
