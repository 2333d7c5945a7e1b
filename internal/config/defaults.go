// internal/config/defaults.go
package config

import "runtime"

// Documented defaults. Every zero-valued field in the file receives one of
// these, so an empty unit entry is a complete, runnable unit.
const (
	DefaultContainer = "avi"
	DefaultWriterFPS = 20.0

	DefaultFrameIntervalMs = 100

	DefaultKeepDays  = 30
	DefaultSchedule  = "30 3 * * *"
	DefaultMQTTQoS   = 1
	DefaultMQTTTopic = "fieldrec"

	DefaultStreamWidth  = 1280
	DefaultStreamHeight = 720
	DefaultStreamFPS    = 15.0
	DefaultRetryDelayMs = 5000
	DefaultFailBudgetMs = 60000

	DefaultSlaveID        = 1
	DefaultBaseRegister   = 76
	DefaultCount          = 16
	DefaultBaudRate       = 9600
	DefaultParity         = "O"
	DefaultDataBits       = 8
	DefaultStopBits       = 1
	DefaultTimeoutMs      = 1000
	DefaultIntervalMs     = 1000
	DefaultFailThreshold  = 5
	DefaultBackoffStartMs = 2000
	DefaultBackoffMaxMs   = 15000

	DefaultRotationMinutes = 60

	DefaultCamTempMax  = 60.0
	DefaultAirPressMax = 3.0
	DefaultAirTempMax  = 40.0
)

// DefaultRoot is the recordings directory, relative to the working dir.
const DefaultRoot = "recordings"

// DefaultSerialPort returns the conventional first USB serial adapter for
// the running OS.
func DefaultSerialPort() string {
	if runtime.GOOS == "windows" {
		return "COM3"
	}
	return "/dev/ttyUSB0"
}

// ApplyDefaults fills every unset field with its documented default.
// It is total: applying it to an empty Config yields a runnable one
// (modulo units, which the operator must list). It MUST run before
// Validate.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	f := &cfg.Fieldrec

	if f.Recording.Root == "" {
		f.Recording.Root = DefaultRoot
	}
	if f.Recording.Container == "" {
		f.Recording.Container = DefaultContainer
	}
	if f.Recording.FPS == 0 {
		f.Recording.FPS = DefaultWriterFPS
	}

	if f.Display.FrameIntervalMs == 0 {
		f.Display.FrameIntervalMs = DefaultFrameIntervalMs
	}

	if f.Retention.KeepDays == 0 {
		f.Retention.KeepDays = DefaultKeepDays
	}
	if f.Retention.Schedule == "" {
		f.Retention.Schedule = DefaultSchedule
	}

	if f.MQTT.QoS == 0 {
		f.MQTT.QoS = DefaultMQTTQoS
	}
	if f.MQTT.TopicPrefix == "" {
		f.MQTT.TopicPrefix = DefaultMQTTTopic
	}

	for i := range f.Units {
		applyUnitDefaults(&f.Units[i])
	}
}

func applyUnitDefaults(u *UnitConfig) {
	if u.Label == "" {
		u.Label = u.ID
	}

	s := &u.Stream
	if s.Width == 0 {
		s.Width = DefaultStreamWidth
	}
	if s.Height == 0 {
		s.Height = DefaultStreamHeight
	}
	if s.FPS == 0 {
		s.FPS = DefaultStreamFPS
	}
	if s.RetryDelayMs == 0 {
		s.RetryDelayMs = DefaultRetryDelayMs
	}
	if s.FailBudgetMs == 0 {
		s.FailBudgetMs = DefaultFailBudgetMs
	}

	b := &u.FieldBus
	if b.Port == "" {
		b.Port = DefaultSerialPort()
	}
	if b.SlaveID == 0 {
		b.SlaveID = DefaultSlaveID
	}
	if b.BaseRegister == 0 {
		b.BaseRegister = DefaultBaseRegister
	}
	if b.Count == 0 {
		b.Count = DefaultCount
	}
	if b.BaudRate == 0 {
		b.BaudRate = DefaultBaudRate
	}
	if b.Parity == "" {
		b.Parity = DefaultParity
	}
	if b.DataBits == 0 {
		b.DataBits = DefaultDataBits
	}
	if b.StopBits == 0 {
		b.StopBits = DefaultStopBits
	}
	if b.TimeoutMs == 0 {
		b.TimeoutMs = DefaultTimeoutMs
	}
	if b.IntervalMs == 0 {
		b.IntervalMs = DefaultIntervalMs
	}
	if b.FailThreshold == 0 {
		b.FailThreshold = DefaultFailThreshold
	}
	if b.BackoffStartMs == 0 {
		b.BackoffStartMs = DefaultBackoffStartMs
	}
	if b.BackoffMaxMs == 0 {
		b.BackoffMaxMs = DefaultBackoffMaxMs
	}

	if u.RotationMinutes == 0 {
		u.RotationMinutes = DefaultRotationMinutes
	}

	t := &u.Thresholds
	if t.CamTempMax == 0 {
		t.CamTempMax = DefaultCamTempMax
	}
	if t.AirPressMax == 0 {
		t.AirPressMax = DefaultAirPressMax
	}
	if t.AirTempMax == 0 {
		t.AirTempMax = DefaultAirTempMax
	}
}
