// internal/config/config.go
package config

type Config struct {
	// Revision is stamped by Load on every successful read.
	// It is not part of the file format.
	Revision uint64 `yaml:"-"`

	Fieldrec FieldrecConfig `yaml:"fieldrec"`
}

type FieldrecConfig struct {
	Recording RecordingConfig `yaml:"recording"`
	Display   DisplayConfig   `yaml:"display"`
	Catalog   CatalogConfig   `yaml:"catalog"`
	Retention RetentionConfig `yaml:"retention"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Units     []UnitConfig    `yaml:"units"`
}

// ---- RECORDING (GLOBAL) ----

type RecordingConfig struct {
	Root      string  `yaml:"root"`
	Container string  `yaml:"container"`
	FPS       float64 `yaml:"fps"`
}

// ---- DISPLAY ----

type DisplayConfig struct {
	FrameIntervalMs int `yaml:"frame_interval_ms"`
}

// ---- CATALOG ----

type CatalogConfig struct {
	// Path of the SQLite file. Empty disables the catalog.
	Path string `yaml:"path"`
}

// ---- RETENTION ----

type RetentionConfig struct {
	Enabled  bool   `yaml:"enabled"`
	KeepDays int    `yaml:"keep_days"`
	Schedule string `yaml:"schedule"`
}

// ---- MQTT ----

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// ---- UNIT ----

type UnitConfig struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`

	Stream          StreamConfig         `yaml:"stream"`
	FieldBus        FieldBusConfig       `yaml:"fieldbus"`
	RotationMinutes int                  `yaml:"rotation_minutes"`
	Overlay         []OverlayPointConfig `yaml:"overlay"`
	Thresholds      ThresholdConfig      `yaml:"thresholds"`
	Pins            PinConfig            `yaml:"pins"`
}

// ---- STREAM ----

type StreamConfig struct {
	// URL empty means the unit has no video source; the field-bus side
	// still runs.
	URL          string  `yaml:"url"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	FPS          float64 `yaml:"fps"`
	RetryDelayMs int     `yaml:"retry_delay_ms"`
	FailBudgetMs int     `yaml:"fail_budget_ms"`
}

// ---- FIELD BUS ----

type FieldBusConfig struct {
	Port         string `yaml:"port"`
	SlaveID      uint8  `yaml:"slave_id"`
	BaseRegister uint16 `yaml:"base_register"`
	Count        uint16 `yaml:"count"`

	BaudRate int    `yaml:"baud_rate"`
	Parity   string `yaml:"parity"`
	DataBits int    `yaml:"data_bits"`
	StopBits int    `yaml:"stop_bits"`

	TimeoutMs      int `yaml:"timeout_ms"`
	IntervalMs     int `yaml:"interval_ms"`
	FailThreshold  int `yaml:"fail_threshold"`
	BackoffStartMs int `yaml:"backoff_start_ms"`
	BackoffMaxMs   int `yaml:"backoff_max_ms"`
}

// ---- OVERLAY ----

type OverlayPointConfig struct {
	Index   int    `yaml:"index"`
	Enabled bool   `yaml:"enabled"`
	Label   string `yaml:"label"`
}

// ---- THRESHOLDS ----

type ThresholdConfig struct {
	CamTempMax  float64 `yaml:"cam_temp_max"`
	AirPressMax float64 `yaml:"air_press_max"`
	AirTempMax  float64 `yaml:"air_temp_max"`
}

// ---- PINS ----

// PinConfig is the explicit per-unit pin assignment.
// Zero means unassigned.
type PinConfig struct {
	Control       int `yaml:"control"`
	CameraState   int `yaml:"camera_state"`
	AirFilter     int `yaml:"air_filter"`
	CameraRemoved int `yaml:"camera_removed"`
}
