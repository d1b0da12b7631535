package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical behavior defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/behavior.defaults.json"

// TuningConfig is the root behavior tuning document. The schema matches the
// /api/config endpoint so the same JSON can be used for startup
// configuration, hot reload, and runtime inspection. All fields are
// pointers so a partial file overrides only what it names; the Get*
// accessors supply defaults for absent fields.
type TuningConfig struct {
	// Behavior engine params
	StaticThresholdSeconds  *float64 `json:"static_threshold_seconds,omitempty"`
	StaticDebounceSeconds   *float64 `json:"static_debounce_seconds,omitempty"`
	PositionTolerancePixels *float64 `json:"position_tolerance_pixels,omitempty"`
	MinFramesForStatic      *int     `json:"min_frames_for_static,omitempty"`
	MinFramesForMoving      *int     `json:"min_frames_for_moving,omitempty"`
	DebounceSeconds         *float64 `json:"debounce_seconds,omitempty"`
	MinConfidence           *float64 `json:"min_confidence,omitempty"`
	MaxRetainedEvents       *int     `json:"max_retained_events,omitempty"`

	// Track store params
	MaxHistoryLength     *int     `json:"max_history_length,omitempty"`
	TrackTimeoutSeconds  *float64 `json:"track_timeout_seconds,omitempty"`
	HistoryMaxAgeSeconds *float64 `json:"history_max_age_seconds,omitempty"`

	// Event delivery params
	QueueSize *int           `json:"queue_size,omitempty"`
	Webhook   *WebhookConfig `json:"webhook,omitempty"`
	MQTT      *MQTTConfig    `json:"mqtt,omitempty"`
}

// WebhookConfig holds the HTTP delivery channel settings.
type WebhookConfig struct {
	Enabled        *bool             `json:"enabled,omitempty"`
	URL            *string           `json:"url,omitempty"`
	TimeoutSeconds *float64          `json:"timeout_seconds,omitempty"`
	MaxRetries     *int              `json:"max_retries,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// MQTTConfig holds the MQTT delivery channel settings.
type MQTTConfig struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Broker   *string `json:"broker,omitempty"`
	Port     *int    `json:"port,omitempty"`
	Topic    *string `json:"topic,omitempty"`
	QoS      *int    `json:"qos,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	ClientID *string `json:"client_id,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// The Get* accessors make an empty config equivalent to the defaults.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical behavior defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/vision/tracks/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are in range.
func (c *TuningConfig) Validate() error {
	if c.StaticThresholdSeconds != nil {
		if *c.StaticThresholdSeconds < 1 || *c.StaticThresholdSeconds > 300 {
			return fmt.Errorf("static_threshold_seconds must be between 1 and 300, got %f", *c.StaticThresholdSeconds)
		}
	}
	if c.StaticDebounceSeconds != nil {
		if *c.StaticDebounceSeconds < 1 || *c.StaticDebounceSeconds > 300 {
			return fmt.Errorf("static_debounce_seconds must be between 1 and 300, got %f", *c.StaticDebounceSeconds)
		}
	}
	if c.PositionTolerancePixels != nil {
		if *c.PositionTolerancePixels < 1 || *c.PositionTolerancePixels > 100 {
			return fmt.Errorf("position_tolerance_pixels must be between 1 and 100, got %f", *c.PositionTolerancePixels)
		}
	}
	if c.MinFramesForStatic != nil {
		if *c.MinFramesForStatic < 2 || *c.MinFramesForStatic > 1000 {
			return fmt.Errorf("min_frames_for_static must be between 2 and 1000, got %d", *c.MinFramesForStatic)
		}
	}
	if c.MinFramesForMoving != nil {
		if *c.MinFramesForMoving < 2 || *c.MinFramesForMoving > 1000 {
			return fmt.Errorf("min_frames_for_moving must be between 2 and 1000, got %d", *c.MinFramesForMoving)
		}
	}
	if c.DebounceSeconds != nil {
		if *c.DebounceSeconds < 0.1 || *c.DebounceSeconds > 30 {
			return fmt.Errorf("debounce_seconds must be between 0.1 and 30, got %f", *c.DebounceSeconds)
		}
	}
	if c.MinConfidence != nil {
		if *c.MinConfidence < 0 || *c.MinConfidence > 1 {
			return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
		}
	}
	if c.MaxRetainedEvents != nil {
		if *c.MaxRetainedEvents < 10 || *c.MaxRetainedEvents > 100000 {
			return fmt.Errorf("max_retained_events must be between 10 and 100000, got %d", *c.MaxRetainedEvents)
		}
	}
	if c.MaxHistoryLength != nil {
		if *c.MaxHistoryLength < 10 || *c.MaxHistoryLength > 10000 {
			return fmt.Errorf("max_history_length must be between 10 and 10000, got %d", *c.MaxHistoryLength)
		}
	}
	if c.TrackTimeoutSeconds != nil {
		if *c.TrackTimeoutSeconds < 1 || *c.TrackTimeoutSeconds > 3600 {
			return fmt.Errorf("track_timeout_seconds must be between 1 and 3600, got %f", *c.TrackTimeoutSeconds)
		}
	}
	if c.HistoryMaxAgeSeconds != nil {
		if *c.HistoryMaxAgeSeconds < 30 || *c.HistoryMaxAgeSeconds > 86400 {
			return fmt.Errorf("history_max_age_seconds must be between 30 and 86400, got %f", *c.HistoryMaxAgeSeconds)
		}
	}
	if c.QueueSize != nil {
		if *c.QueueSize < 10 || *c.QueueSize > 100000 {
			return fmt.Errorf("queue_size must be between 10 and 100000, got %d", *c.QueueSize)
		}
	}
	if err := c.Webhook.validate(); err != nil {
		return err
	}
	if err := c.MQTT.validate(); err != nil {
		return err
	}
	return nil
}

func (w *WebhookConfig) validate() error {
	if w == nil {
		return nil
	}
	if w.TimeoutSeconds != nil {
		if *w.TimeoutSeconds < 1 || *w.TimeoutSeconds > 60 {
			return fmt.Errorf("webhook.timeout_seconds must be between 1 and 60, got %f", *w.TimeoutSeconds)
		}
	}
	if w.MaxRetries != nil {
		if *w.MaxRetries < 0 || *w.MaxRetries > 10 {
			return fmt.Errorf("webhook.max_retries must be between 0 and 10, got %d", *w.MaxRetries)
		}
	}
	if w.GetEnabled() {
		u, err := url.Parse(w.GetURL())
		if err != nil {
			return fmt.Errorf("webhook.url is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("webhook.url must use http or https, got %q", w.GetURL())
		}
		if u.Host == "" {
			return fmt.Errorf("webhook.url has no host: %q", w.GetURL())
		}
	}
	return nil
}

func (m *MQTTConfig) validate() error {
	if m == nil {
		return nil
	}
	if m.Port != nil {
		if *m.Port < 1 || *m.Port > 65535 {
			return fmt.Errorf("mqtt.port must be between 1 and 65535, got %d", *m.Port)
		}
	}
	if m.QoS != nil {
		if *m.QoS < 0 || *m.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", *m.QoS)
		}
	}
	if m.GetEnabled() && m.GetBroker() == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// Redacted returns a deep copy safe to serve over HTTP: delivery
// credentials are masked, everything else is unchanged.
func (c *TuningConfig) Redacted() *TuningConfig {
	if c == nil {
		return nil
	}
	out := *c
	if c.Webhook != nil {
		w := *c.Webhook
		if len(c.Webhook.Headers) > 0 {
			w.Headers = make(map[string]string, len(c.Webhook.Headers))
			for k := range c.Webhook.Headers {
				w.Headers[k] = "********"
			}
		}
		out.Webhook = &w
	}
	if c.MQTT != nil {
		m := *c.MQTT
		if m.Password != nil {
			m.Password = ptrString("********")
		}
		out.MQTT = &m
	}
	return &out
}

// GetStaticThreshold returns the minimum dwell before a static event.
func (c *TuningConfig) GetStaticThreshold() time.Duration {
	if c.StaticThresholdSeconds == nil {
		return 30 * time.Second // default
	}
	return time.Duration(*c.StaticThresholdSeconds * float64(time.Second))
}

// GetStaticDebounce returns the minimum interval between repeated static
// events for the same track. Defaults to the static threshold so a track
// re-reports its stillness at most once per qualifying period.
func (c *TuningConfig) GetStaticDebounce() time.Duration {
	if c.StaticDebounceSeconds == nil {
		return c.GetStaticThreshold()
	}
	return time.Duration(*c.StaticDebounceSeconds * float64(time.Second))
}

// GetPositionTolerancePixels returns the static displacement tolerance.
func (c *TuningConfig) GetPositionTolerancePixels() float64 {
	if c.PositionTolerancePixels == nil {
		return 10 // default
	}
	return *c.PositionTolerancePixels
}

// GetMinFramesForStatic returns the observation window for the static test.
func (c *TuningConfig) GetMinFramesForStatic() int {
	if c.MinFramesForStatic == nil {
		return 30
	}
	return *c.MinFramesForStatic
}

// GetMinFramesForMoving returns the observation window for the moving test.
// Deliberately shorter than the static window so resumed motion is noticed
// quickly while stillness needs sustained evidence.
func (c *TuningConfig) GetMinFramesForMoving() int {
	if c.MinFramesForMoving == nil {
		return 10
	}
	return *c.MinFramesForMoving
}

// GetDebounce returns the per-track interval for appeared/moving events.
func (c *TuningConfig) GetDebounce() time.Duration {
	if c.DebounceSeconds == nil {
		return 2 * time.Second
	}
	return time.Duration(*c.DebounceSeconds * float64(time.Second))
}

// GetMinConfidence returns the confidence floor for event emission.
func (c *TuningConfig) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return 0.5
	}
	return *c.MinConfidence
}

// GetMaxRetainedEvents returns the size of the recent-events ring.
func (c *TuningConfig) GetMaxRetainedEvents() int {
	if c.MaxRetainedEvents == nil {
		return 1000
	}
	return *c.MaxRetainedEvents
}

// GetMaxHistoryLength returns the per-track position history cap.
func (c *TuningConfig) GetMaxHistoryLength() int {
	if c.MaxHistoryLength == nil {
		return 100
	}
	return *c.MaxHistoryLength
}

// GetTrackTimeout returns the absence after which a track is evicted.
func (c *TuningConfig) GetTrackTimeout() time.Duration {
	if c.TrackTimeoutSeconds == nil {
		return 30 * time.Second
	}
	return time.Duration(*c.TrackTimeoutSeconds * float64(time.Second))
}

// GetHistoryMaxAge returns the retention for histories of departed tracks.
func (c *TuningConfig) GetHistoryMaxAge() time.Duration {
	if c.HistoryMaxAgeSeconds == nil {
		return 300 * time.Second
	}
	return time.Duration(*c.HistoryMaxAgeSeconds * float64(time.Second))
}

// GetQueueSize returns the dispatcher queue capacity.
func (c *TuningConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return 1000
	}
	return *c.QueueSize
}

// GetEnabled reports whether webhook delivery is on. Nil-safe.
func (w *WebhookConfig) GetEnabled() bool {
	if w == nil || w.Enabled == nil {
		return false
	}
	return *w.Enabled
}

// GetURL returns the webhook endpoint. Nil-safe.
func (w *WebhookConfig) GetURL() string {
	if w == nil || w.URL == nil {
		return ""
	}
	return *w.URL
}

// GetTimeout returns the per-request webhook timeout. Nil-safe.
func (w *WebhookConfig) GetTimeout() time.Duration {
	if w == nil || w.TimeoutSeconds == nil {
		return 5 * time.Second
	}
	return time.Duration(*w.TimeoutSeconds * float64(time.Second))
}

// GetMaxRetries returns the webhook retry budget. Nil-safe.
func (w *WebhookConfig) GetMaxRetries() int {
	if w == nil || w.MaxRetries == nil {
		return 3
	}
	return *w.MaxRetries
}

// GetHeaders returns extra headers sent with each webhook POST. Nil-safe.
func (w *WebhookConfig) GetHeaders() map[string]string {
	if w == nil {
		return nil
	}
	return w.Headers
}

// GetEnabled reports whether MQTT delivery is on. Nil-safe.
func (m *MQTTConfig) GetEnabled() bool {
	if m == nil || m.Enabled == nil {
		return false
	}
	return *m.Enabled
}

// GetBroker returns the MQTT broker host. Nil-safe.
func (m *MQTTConfig) GetBroker() string {
	if m == nil || m.Broker == nil {
		return ""
	}
	return *m.Broker
}

// GetPort returns the MQTT broker port. Nil-safe.
func (m *MQTTConfig) GetPort() int {
	if m == nil || m.Port == nil {
		return 1883
	}
	return *m.Port
}

// GetTopic returns the MQTT publish topic. Nil-safe.
func (m *MQTTConfig) GetTopic() string {
	if m == nil || m.Topic == nil {
		return "dwell/events"
	}
	return *m.Topic
}

// GetQoS returns the MQTT publish QoS. Nil-safe.
func (m *MQTTConfig) GetQoS() int {
	if m == nil || m.QoS == nil {
		return 1
	}
	return *m.QoS
}

// GetUsername returns the MQTT username. Nil-safe.
func (m *MQTTConfig) GetUsername() string {
	if m == nil || m.Username == nil {
		return ""
	}
	return *m.Username
}

// GetPassword returns the MQTT password. Nil-safe.
func (m *MQTTConfig) GetPassword() string {
	if m == nil || m.Password == nil {
		return ""
	}
	return *m.Password
}

// GetClientID returns the MQTT client id. Nil-safe.
func (m *MQTTConfig) GetClientID() string {
	if m == nil || m.ClientID == nil {
		return "dwell-report"
	}
	return *m.ClientID
}
