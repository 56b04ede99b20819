package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the garage controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site          SiteConfig          `yaml:"site"`
	Garage        GarageConfig        `yaml:"garage"`
	Security      SecurityConfig      `yaml:"security"`
	Database      DatabaseConfig      `yaml:"database"`
	MQTT          MQTTConfig          `yaml:"mqtt"`
	API           APIConfig           `yaml:"api"`
	WebSocket     WebSocketConfig     `yaml:"websocket"`
	InfluxDB      InfluxDBConfig      `yaml:"influxdb"`
	Logging       LoggingConfig       `yaml:"logging"`
	Vision        VisionConfig        `yaml:"vision"`
	Voice         VoiceConfig         `yaml:"voice"`
	Manual        ManualConfig        `yaml:"manual"`
	Simulator     SimulatorConfig     `yaml:"simulator"`
	Authorization AuthorizationConfig `yaml:"authorization"`
}

// SiteConfig identifies the installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// GarageConfig holds the door controller's behavioural options.
type GarageConfig struct {
	// AutoCloseSeconds is how long the door stays open before the safety
	// timer closes it. Valid range 1..86400.
	AutoCloseSeconds int `yaml:"auto_close_seconds"`

	// MotionCooldownSeconds is the minimum gap between two plate checks.
	MotionCooldownSeconds int `yaml:"motion_cooldown_seconds"`

	// CameraIndexCandidates lists camera indices to try, in order.
	CameraIndexCandidates []int `yaml:"camera_index_candidates"`

	// InboxSize bounds the coordinator's command queue.
	InboxSize int `yaml:"inbox_size"`

	// SubmitTimeoutMS bounds how long an adapter waits to enqueue a command.
	SubmitTimeoutMS int `yaml:"submit_timeout_ms"`

	// MaxCommandAgeSeconds rejects externally-sourced commands whose
	// timestamp is further than this from now.
	MaxCommandAgeSeconds int `yaml:"max_command_age_seconds"`

	// PublishQueueSize bounds the publisher's outbound queue.
	PublishQueueSize int `yaml:"publish_queue_size"`
}

// SecurityConfig contains the shared secret used on the MQTT and HTTP surfaces.
type SecurityConfig struct {
	SharedSecret string `yaml:"shared_secret"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays bounds the audit trail. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	TLS       MQTTTLSConfig       `yaml:"tls"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTTLSConfig points at PEM files for mutual TLS. All fields are optional;
// with none set the system roots are used.
type MQTTTLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// MQTTTopicsConfig names the door's topics.
type MQTTTopicsConfig struct {
	State   string `yaml:"state"`
	Control string `yaml:"control"`
	System  string `yaml:"system"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`

	// Tags are added to every point. The site ID is added as "site"
	// unless set here.
	Tags map[string]string `yaml:"tags"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// VisionConfig configures the camera and plate recognition pipeline.
type VisionConfig struct {
	Enabled bool `yaml:"enabled"`

	// SnapshotURL is a template for fetching a single JPEG frame; "{index}"
	// is replaced with the camera index.
	SnapshotURL string `yaml:"snapshot_url"`

	// RecognizerURL receives JPEG frames and returns text detections.
	RecognizerURL string `yaml:"recognizer_url"`

	PollIntervalMS int     `yaml:"poll_interval_ms"`
	RequestTimeout int     `yaml:"request_timeout"`
	DiffThreshold  uint8   `yaml:"diff_threshold"`
	MinContourArea int     `yaml:"min_contour_area"`
	BlurSigma      float64 `yaml:"blur_sigma"`
	MinConfidence  float64 `yaml:"min_confidence"`

	// PreviewPath receives the annotated preview frame when preview is on.
	PreviewPath    string `yaml:"preview_path"`
	PreviewEnabled bool   `yaml:"preview_enabled"`
}

// VoiceConfig configures audio capture and transcription.
type VoiceConfig struct {
	Enabled             bool     `yaml:"enabled"`
	RecorderBinary      string   `yaml:"recorder_binary"`
	RecorderArgs        []string `yaml:"recorder_args"`
	ListenSeconds       int      `yaml:"listen_seconds"`
	TranscriberURL      string   `yaml:"transcriber_url"`
	RequestTimeout      int      `yaml:"request_timeout"`
	RetryBackoffSeconds int      `yaml:"retry_backoff_seconds"`
}

// ManualConfig configures the operator console.
type ManualConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SimulatorConfig configures the managed display simulator subprocess.
type SimulatorConfig struct {
	Managed             bool     `yaml:"managed"`
	Binary              string   `yaml:"binary"`
	Args                []string `yaml:"args"`
	RestartOnFailure    bool     `yaml:"restart_on_failure"`
	RestartDelaySeconds int      `yaml:"restart_delay_seconds"`
	MaxRestartAttempts  int      `yaml:"max_restart_attempts"`
}

// AuthorizationConfig seeds the authorised plate store.
type AuthorizationConfig struct {
	SeedPlates []PlateSeed `yaml:"seed_plates"`
}

// PlateSeed is one plate entry from configuration.
type PlateSeed struct {
	Plate    string            `yaml:"plate"`
	Metadata map[string]string `yaml:"metadata"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GARAGEGATE_SECTION_KEY
// For example: GARAGEGATE_DATABASE_PATH, GARAGEGATE_SHARED_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "garage-001",
			Name: "Garage",
		},
		Garage: GarageConfig{
			AutoCloseSeconds:      120,
			MotionCooldownSeconds: 30,
			CameraIndexCandidates: []int{1, 0},
			InboxSize:             64,
			SubmitTimeoutMS:       500,
			MaxCommandAgeSeconds:  30,
			PublishQueueSize:      32,
		},
		Database: DatabaseConfig{
			Path:          "./data/garagegate.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 90,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "garagegate",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Topics: MQTTTopicsConfig{
				State:   "garage/state",
				Control: "garage/control",
				System:  "garage/system/status",
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Vision: VisionConfig{
			SnapshotURL:    "http://localhost:8554/camera/{index}/snapshot.jpg",
			PollIntervalMS: 100,
			RequestTimeout: 10,
			DiffThreshold:  25,
			MinContourArea: 5000,
			BlurSigma:      3.5,
			MinConfidence:  80,
			PreviewPath:    "./data/preview.jpg",
		},
		Voice: VoiceConfig{
			RecorderBinary:      "arecord",
			RecorderArgs:        []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav"},
			ListenSeconds:       5,
			RequestTimeout:      15,
			RetryBackoffSeconds: 30,
		},
		Simulator: SimulatorConfig{
			Binary:              "garagesim",
			RestartOnFailure:    true,
			RestartDelaySeconds: 5,
			MaxRestartAttempts:  10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GARAGEGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Shared secret (always set this from the environment in production)
	if v := os.Getenv("GARAGEGATE_SHARED_SECRET"); v != "" {
		cfg.Security.SharedSecret = v
	}

	// Garage
	if v := os.Getenv("GARAGEGATE_AUTO_CLOSE_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Garage.AutoCloseSeconds = n
		}
	}

	// Database
	if v := os.Getenv("GARAGEGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GARAGEGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GARAGEGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GARAGEGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GARAGEGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GARAGEGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	// Garage behaviour
	if c.Garage.AutoCloseSeconds < 1 || c.Garage.AutoCloseSeconds > 86400 {
		errs = append(errs, "garage.auto_close_seconds must be between 1 and 86400")
	}
	if c.Garage.MotionCooldownSeconds < 0 {
		errs = append(errs, "garage.motion_cooldown_seconds must not be negative")
	}
	if c.Vision.Enabled && len(c.Garage.CameraIndexCandidates) == 0 {
		errs = append(errs, "garage.camera_index_candidates must list at least one camera when vision is enabled")
	}
	if c.Garage.InboxSize < 1 {
		errs = append(errs, "garage.inbox_size must be at least 1")
	}
	if c.Garage.PublishQueueSize < 1 {
		errs = append(errs, "garage.publish_queue_size must be at least 1")
	}
	if c.Garage.MaxCommandAgeSeconds < 1 {
		errs = append(errs, "garage.max_command_age_seconds must be at least 1")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.State == "" || c.MQTT.Topics.Control == "" {
		errs = append(errs, "mqtt.topics.state and mqtt.topics.control are required")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Vision.Enabled {
		if c.Vision.SnapshotURL == "" {
			errs = append(errs, "vision.snapshot_url is required when vision is enabled")
		}
		if c.Vision.RecognizerURL == "" {
			errs = append(errs, "vision.recognizer_url is required when vision is enabled")
		}
	}
	if c.Voice.Enabled && c.Voice.TranscriberURL == "" {
		errs = append(errs, "voice.transcriber_url is required when voice is enabled")
	}

	// The shared secret authenticates remote door commands and is echoed in
	// every state message, so an empty or short one is refused.
	const minSecretLength = 16
	if c.Security.SharedSecret == "" {
		errs = append(errs, "security.shared_secret is required (set GARAGEGATE_SHARED_SECRET environment variable)")
	} else if len(c.Security.SharedSecret) < minSecretLength {
		errs = append(errs, "security.shared_secret must be at least 16 characters")
	}

	for i, p := range c.Authorization.SeedPlates {
		if strings.TrimSpace(p.Plate) == "" {
			errs = append(errs, fmt.Sprintf("authorization.seed_plates[%d].plate is required", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AutoClose returns the auto-close delay as a Duration.
func (c *Config) AutoClose() time.Duration {
	return time.Duration(c.Garage.AutoCloseSeconds) * time.Second
}

// MotionCooldown returns the motion cooldown as a Duration.
func (c *Config) MotionCooldown() time.Duration {
	return time.Duration(c.Garage.MotionCooldownSeconds) * time.Second
}

// SubmitTimeout returns the adapter submit timeout as a Duration.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Garage.SubmitTimeoutMS) * time.Millisecond
}

// MaxCommandAge returns the replay window as a Duration.
func (c *Config) MaxCommandAge() time.Duration {
	return time.Duration(c.Garage.MaxCommandAgeSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
