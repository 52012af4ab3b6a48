// v2
// internal/config/config.go
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vmcpilot/engine/internal/breaker"
	"vmcpilot/engine/internal/domain"
	"vmcpilot/engine/internal/setpoints"
)

// Config captures all runtime settings required by the control engine.
// Values can be provided by environment variables, a properties file, or
// fall back to sensible defaults so the engine can boot with minimal setup.
type Config struct {
	// ListenAddress defines the TCP address used by the HTTP server.
	ListenAddress string
	// LogFilePath is the absolute or relative path to the log file.
	LogFilePath string
	// HTTPReadTimeout bounds the time to read incoming requests.
	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout bounds the time to write responses.
	HTTPWriteTimeout time.Duration
	// ShutdownTimeout limits graceful shutdown attempts.
	ShutdownTimeout time.Duration
	// PropertiesPath records the path used to load property values.
	PropertiesPath string
	// KafkaBrokers lists the bootstrap brokers.
	KafkaBrokers []string
	// TelemetryTopic carries unit readings into the engine.
	TelemetryTopic string
	// CommandTopic carries actuation command envelopes to the units.
	CommandTopic string
	// AckTopic carries per-command acknowledgements back from the units.
	AckTopic string
	// SetpointTopic broadcasts target changes to the units.
	SetpointTopic string
	// ConsumerGroup is the Kafka group identifier used for checkpointing.
	ConsumerGroup string
	// Units lists the unit IDs this engine instance drives.
	Units []string
	// CycleInterval is the tick period of the control loop per unit.
	CycleInterval time.Duration
	// CycleTimeout bounds one full decision cycle.
	CycleTimeout time.Duration
	// AckTimeout bounds the wait for a command acknowledgement.
	AckTimeout time.Duration
	// HistoryWindow is the maximum age of retained telemetry.
	HistoryWindow time.Duration
	// HistoryMaxSamples caps the buffered snapshots per unit.
	HistoryMaxSamples int
	// ForecastHorizon is how far ahead conditions are projected.
	ForecastHorizon time.Duration
	// ForecastMinSamples gates forecasting until enough history exists.
	ForecastMinSamples int
	// PredictorURL points at an external forecast service. Empty selects
	// the built-in trend forecaster.
	PredictorURL string
	// PredictorTimeout bounds one forecast request.
	PredictorTimeout time.Duration
	// JournalPath locates the append-only decision journal.
	JournalPath string
	// DefaultTargets seeds every unit's setpoints at boot.
	DefaultTargets setpoints.Targets
	// UnitTargets holds per-unit boot overrides layered over the defaults.
	UnitTargets map[string]TargetOverride
	// Breaker carries the Kafka circuit breaker tunables.
	Breaker breaker.Settings
}

// TargetOverride overrides individual setpoints for one unit. Nil fields
// inherit the defaults.
type TargetOverride struct {
	TemperatureC *float64
	HumidityPct  *float64
	DewPointC    *float64
	SpareNumber  *int
}

// TargetsFor resolves the boot setpoints for a unit by layering its
// overrides over the defaults.
func (c Config) TargetsFor(unitID string) setpoints.Targets {
	t := c.DefaultTargets
	o, ok := c.UnitTargets[unitID]
	if !ok {
		return t
	}
	if o.TemperatureC != nil {
		t.TemperatureC = *o.TemperatureC
	}
	if o.HumidityPct != nil {
		t.HumidityPct = *o.HumidityPct
	}
	if o.DewPointC != nil {
		t.DewPointC = *o.DewPointC
	}
	if o.SpareNumber != nil {
		t.SpareNumber = *o.SpareNumber
	}
	return t
}

const (
	defaultListenAddress      = ":8090"
	defaultLogFile            = "logs/engine.log"
	defaultReadTimeout        = 5 * time.Second
	defaultWriteTimeout       = 10 * time.Second
	defaultShutdown           = 5 * time.Second
	defaultPropsPath          = "engine.properties"
	defaultKafkaBrokers       = "kafka:9092"
	defaultTelemetryTopic     = "vmc.telemetry"
	defaultCommandTopic       = "vmc.commands"
	defaultAckTopic           = "vmc.acks"
	defaultSetpointTopic      = "vmc.setpoints"
	defaultConsumerGroup      = "vmc-engine"
	defaultUnits              = "unit-a"
	defaultCycleInterval      = 5 * time.Second
	defaultCycleTimeout       = 3 * time.Second
	defaultAckTimeout         = 5 * time.Second
	defaultHistoryWindow      = 30 * time.Minute
	defaultHistoryMaxSamples  = 720
	defaultForecastHorizon    = 10 * time.Minute
	defaultForecastMinSamples = 3
	defaultPredictorTimeout   = 2 * time.Second
	defaultJournalPath        = "data/decisions.jsonl"
	defaultTargetTemperature  = 22.0
	defaultTargetHumidity     = 50.0
	defaultTargetDewPoint     = 18.0
	defaultSpareNumber        = 1
	defaultCBFailures         = 5
	defaultCBSuccesses        = 2
	defaultCBOpen             = 30 * time.Second
	defaultCBTimeout          = 3 * time.Second
	defaultCBBackoff          = 200 * time.Millisecond
)

// Load resolves configuration by layering defaults, an optional properties
// file, and finally environment variables. The properties file location can
// be overridden with ENGINE_PROPERTIES_PATH.
func Load() (Config, error) {
	cfg := Config{
		ListenAddress:      defaultListenAddress,
		LogFilePath:        filepath.Clean(defaultLogFile),
		HTTPReadTimeout:    defaultReadTimeout,
		HTTPWriteTimeout:   defaultWriteTimeout,
		ShutdownTimeout:    defaultShutdown,
		KafkaBrokers:       splitAndTrim(defaultKafkaBrokers),
		TelemetryTopic:     defaultTelemetryTopic,
		CommandTopic:       defaultCommandTopic,
		AckTopic:           defaultAckTopic,
		SetpointTopic:      defaultSetpointTopic,
		ConsumerGroup:      defaultConsumerGroup,
		Units:              splitAndTrim(defaultUnits),
		CycleInterval:      defaultCycleInterval,
		CycleTimeout:       defaultCycleTimeout,
		AckTimeout:         defaultAckTimeout,
		HistoryWindow:      defaultHistoryWindow,
		HistoryMaxSamples:  defaultHistoryMaxSamples,
		ForecastHorizon:    defaultForecastHorizon,
		ForecastMinSamples: defaultForecastMinSamples,
		PredictorTimeout:   defaultPredictorTimeout,
		JournalPath:        filepath.Clean(defaultJournalPath),
		DefaultTargets: setpoints.Targets{
			TemperatureC: defaultTargetTemperature,
			HumidityPct:  defaultTargetHumidity,
			DewPointC:    defaultTargetDewPoint,
			SpareNumber:  defaultSpareNumber,
		},
		UnitTargets: map[string]TargetOverride{},
		Breaker: breaker.Settings{
			FailureThreshold: defaultCBFailures,
			SuccessesToClose: defaultCBSuccesses,
			OpenInterval:     defaultCBOpen,
			AttemptTimeout:   defaultCBTimeout,
			Backoff:          defaultCBBackoff,
		},
	}

	propsPath := strings.TrimSpace(os.Getenv("ENGINE_PROPERTIES_PATH"))
	if propsPath == "" {
		propsPath = defaultPropsPath
	}
	cfg.PropertiesPath = propsPath

	if err := applyProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.DefaultTargets.Validate(); err != nil {
		return Config{}, fmt.Errorf("default targets: %w", err)
	}
	if len(cfg.Units) == 0 {
		return Config{}, errors.New("units cannot be empty")
	}
	for _, unit := range cfg.Units {
		if err := cfg.TargetsFor(unit).Validate(); err != nil {
			return Config{}, fmt.Errorf("targets for %s: %w", unit, err)
		}
	}

	return cfg, nil
}

func applyProperties(cfg *Config, path string) error {
	return forEachProperty(path, func(key, value string) error {
		if err := setProperty(cfg, key, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
		return nil
	})
}

// forEachProperty walks a key=value properties file, skipping blanks and
// comment lines. A missing file surfaces as os.ErrNotExist so callers can
// treat it as optional.
func forEachProperty(path string, fn func(key, value string) error) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		// Close errors are ignored because configuration loading has
		// already completed and there is no logger available at this
		// stage of initialization.
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := fn(key, value); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	return nil
}

func setProperty(cfg *Config, key, value string) error {
	switch key {
	case "listen_address":
		if value == "" {
			return errors.New("listen_address cannot be empty")
		}
		cfg.ListenAddress = value
	case "log_path":
		if value == "" {
			return errors.New("log_path cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(value)
	case "http_read_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.HTTPReadTimeout = d
	case "http_write_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.HTTPWriteTimeout = d
	case "shutdown_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.ShutdownTimeout = d
	case "kafka_brokers":
		brokers := splitAndTrim(value)
		if len(brokers) == 0 {
			return errors.New("kafka_brokers cannot be empty")
		}
		cfg.KafkaBrokers = brokers
	case "telemetry_topic":
		if value == "" {
			return errors.New("telemetry_topic cannot be empty")
		}
		cfg.TelemetryTopic = value
	case "command_topic":
		if value == "" {
			return errors.New("command_topic cannot be empty")
		}
		cfg.CommandTopic = value
	case "ack_topic":
		if value == "" {
			return errors.New("ack_topic cannot be empty")
		}
		cfg.AckTopic = value
	case "setpoint_topic":
		if value == "" {
			return errors.New("setpoint_topic cannot be empty")
		}
		cfg.SetpointTopic = value
	case "consumer_group":
		if value == "" {
			return errors.New("consumer_group cannot be empty")
		}
		cfg.ConsumerGroup = value
	case "units":
		units := splitAndTrim(value)
		if len(units) == 0 {
			return errors.New("units cannot be empty")
		}
		cfg.Units = units
	case "cycle_interval_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.CycleInterval = d
	case "cycle_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.CycleTimeout = d
	case "ack_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.AckTimeout = d
	case "history_window_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.HistoryWindow = d
	case "history_max_samples":
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.HistoryMaxSamples = n
	case "forecast_horizon_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.ForecastHorizon = d
	case "forecast_min_samples":
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.ForecastMinSamples = n
	case "predictor_url":
		cfg.PredictorURL = value
	case "predictor_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.PredictorTimeout = d
	case "journal_path":
		if value == "" {
			return errors.New("journal_path cannot be empty")
		}
		cfg.JournalPath = filepath.Clean(value)
	case "target_temperature_c":
		f, err := parseFloatBetween(value, domain.TargetTempMinC, domain.TargetTempMaxC)
		if err != nil {
			return err
		}
		cfg.DefaultTargets.TemperatureC = f
	case "target_humidity_pct":
		f, err := parseFloatBetween(value, domain.HumidityMinPct, domain.HumidityMaxPct)
		if err != nil {
			return err
		}
		cfg.DefaultTargets.HumidityPct = f
	case "target_dew_point_c":
		f, err := parseFloatBetween(value, domain.TargetDewPointMinC, domain.TargetDewPointMaxC)
		if err != nil {
			return err
		}
		cfg.DefaultTargets.DewPointC = f
	case "spare_number":
		n, err := parseIntBetween(value, domain.SpareNumberMin, domain.SpareNumberMax)
		if err != nil {
			return err
		}
		cfg.DefaultTargets.SpareNumber = n
	case "cb_enabled":
		cfg.Breaker.Enabled = parseBool(value)
	case "cb_failure_threshold":
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.Breaker.FailureThreshold = n
	case "cb_success_threshold":
		n, err := parsePositiveInt(value)
		if err != nil {
			return err
		}
		cfg.Breaker.SuccessesToClose = n
	case "cb_open_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.Breaker.OpenInterval = d
	case "cb_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.Breaker.AttemptTimeout = d
	case "cb_backoff_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.Breaker.Backoff = d
	default:
		// Per-unit setpoint overrides: target_temperature_c.<unit>=value
		// and friends. Other unknown keys are ignored to keep the loader
		// forward-compatible.
		return setOverrideProperty(cfg, key, value)
	}
	return nil
}

func setOverrideProperty(cfg *Config, key, value string) error {
	switch {
	case strings.HasPrefix(key, "target_temperature_c."):
		unit := strings.TrimPrefix(key, "target_temperature_c.")
		f, err := parseFloatBetween(value, domain.TargetTempMinC, domain.TargetTempMaxC)
		if err != nil {
			return err
		}
		o := cfg.UnitTargets[unit]
		o.TemperatureC = &f
		cfg.UnitTargets[unit] = o
	case strings.HasPrefix(key, "target_humidity_pct."):
		unit := strings.TrimPrefix(key, "target_humidity_pct.")
		f, err := parseFloatBetween(value, domain.HumidityMinPct, domain.HumidityMaxPct)
		if err != nil {
			return err
		}
		o := cfg.UnitTargets[unit]
		o.HumidityPct = &f
		cfg.UnitTargets[unit] = o
	case strings.HasPrefix(key, "target_dew_point_c."):
		unit := strings.TrimPrefix(key, "target_dew_point_c.")
		f, err := parseFloatBetween(value, domain.TargetDewPointMinC, domain.TargetDewPointMaxC)
		if err != nil {
			return err
		}
		o := cfg.UnitTargets[unit]
		o.DewPointC = &f
		cfg.UnitTargets[unit] = o
	case strings.HasPrefix(key, "spare_number."):
		unit := strings.TrimPrefix(key, "spare_number.")
		n, err := parseIntBetween(value, domain.SpareNumberMin, domain.SpareNumberMax)
		if err != nil {
			return err
		}
		o := cfg.UnitTargets[unit]
		o.SpareNumber = &n
		cfg.UnitTargets[unit] = o
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnvTrimmed("ENGINE_LISTEN_ADDRESS"); ok {
		if v == "" {
			return errors.New("ENGINE_LISTEN_ADDRESS cannot be empty")
		}
		cfg.ListenAddress = v
	}
	if v, ok := lookupEnvTrimmed("ENGINE_LOG_PATH"); ok {
		if v == "" {
			return errors.New("ENGINE_LOG_PATH cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(v)
	}
	if v, ok := lookupEnvTrimmed("ENGINE_HTTP_READ_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_HTTP_READ_TIMEOUT_MS: %w", err)
		}
		cfg.HTTPReadTimeout = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_HTTP_WRITE_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_HTTP_WRITE_TIMEOUT_MS: %w", err)
		}
		cfg.HTTPWriteTimeout = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_SHUTDOWN_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_SHUTDOWN_TIMEOUT_MS: %w", err)
		}
		cfg.ShutdownTimeout = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_KAFKA_BROKERS"); ok {
		brokers := splitAndTrim(v)
		if len(brokers) == 0 {
			return errors.New("ENGINE_KAFKA_BROKERS cannot be empty")
		}
		cfg.KafkaBrokers = brokers
	} else if v, ok := lookupEnvTrimmed("KAFKA_BROKERS"); ok {
		brokers := splitAndTrim(v)
		if len(brokers) == 0 {
			return errors.New("KAFKA_BROKERS cannot be empty")
		}
		cfg.KafkaBrokers = brokers
	}
	if v, ok := lookupEnvTrimmed("ENGINE_TELEMETRY_TOPIC"); ok {
		if v == "" {
			return errors.New("ENGINE_TELEMETRY_TOPIC cannot be empty")
		}
		cfg.TelemetryTopic = v
	}
	if v, ok := lookupEnvTrimmed("ENGINE_COMMAND_TOPIC"); ok {
		if v == "" {
			return errors.New("ENGINE_COMMAND_TOPIC cannot be empty")
		}
		cfg.CommandTopic = v
	}
	if v, ok := lookupEnvTrimmed("ENGINE_ACK_TOPIC"); ok {
		if v == "" {
			return errors.New("ENGINE_ACK_TOPIC cannot be empty")
		}
		cfg.AckTopic = v
	}
	if v, ok := lookupEnvTrimmed("ENGINE_SETPOINT_TOPIC"); ok {
		if v == "" {
			return errors.New("ENGINE_SETPOINT_TOPIC cannot be empty")
		}
		cfg.SetpointTopic = v
	}
	if v, ok := lookupEnvTrimmed("ENGINE_CONSUMER_GROUP"); ok {
		if v == "" {
			return errors.New("ENGINE_CONSUMER_GROUP cannot be empty")
		}
		cfg.ConsumerGroup = v
	}
	if v, ok := lookupEnvTrimmed("ENGINE_UNITS"); ok {
		units := splitAndTrim(v)
		if len(units) == 0 {
			return errors.New("ENGINE_UNITS cannot be empty")
		}
		cfg.Units = units
	}
	if v, ok := lookupEnvTrimmed("ENGINE_CYCLE_INTERVAL_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_CYCLE_INTERVAL_MS: %w", err)
		}
		cfg.CycleInterval = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_CYCLE_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_CYCLE_TIMEOUT_MS: %w", err)
		}
		cfg.CycleTimeout = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_ACK_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_ACK_TIMEOUT_MS: %w", err)
		}
		cfg.AckTimeout = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_HISTORY_WINDOW_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_HISTORY_WINDOW_MS: %w", err)
		}
		cfg.HistoryWindow = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_HISTORY_MAX_SAMPLES"); ok {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("ENGINE_HISTORY_MAX_SAMPLES: %w", err)
		}
		cfg.HistoryMaxSamples = n
	}
	if v, ok := lookupEnvTrimmed("ENGINE_FORECAST_HORIZON_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_FORECAST_HORIZON_MS: %w", err)
		}
		cfg.ForecastHorizon = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_FORECAST_MIN_SAMPLES"); ok {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("ENGINE_FORECAST_MIN_SAMPLES: %w", err)
		}
		cfg.ForecastMinSamples = n
	}
	if v, ok := lookupEnvTrimmed("ENGINE_PREDICTOR_URL"); ok {
		cfg.PredictorURL = v
	}
	if v, ok := lookupEnvTrimmed("ENGINE_PREDICTOR_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("ENGINE_PREDICTOR_TIMEOUT_MS: %w", err)
		}
		cfg.PredictorTimeout = d
	}
	if v, ok := lookupEnvTrimmed("ENGINE_JOURNAL_PATH"); ok {
		if v == "" {
			return errors.New("ENGINE_JOURNAL_PATH cannot be empty")
		}
		cfg.JournalPath = filepath.Clean(v)
	}
	if v, ok := lookupEnvTrimmed("ENGINE_TARGET_TEMPERATURE_C"); ok {
		f, err := parseFloatBetween(v, domain.TargetTempMinC, domain.TargetTempMaxC)
		if err != nil {
			return fmt.Errorf("ENGINE_TARGET_TEMPERATURE_C: %w", err)
		}
		cfg.DefaultTargets.TemperatureC = f
	}
	if v, ok := lookupEnvTrimmed("ENGINE_TARGET_HUMIDITY_PCT"); ok {
		f, err := parseFloatBetween(v, domain.HumidityMinPct, domain.HumidityMaxPct)
		if err != nil {
			return fmt.Errorf("ENGINE_TARGET_HUMIDITY_PCT: %w", err)
		}
		cfg.DefaultTargets.HumidityPct = f
	}
	if v, ok := lookupEnvTrimmed("ENGINE_TARGET_DEW_POINT_C"); ok {
		f, err := parseFloatBetween(v, domain.TargetDewPointMinC, domain.TargetDewPointMaxC)
		if err != nil {
			return fmt.Errorf("ENGINE_TARGET_DEW_POINT_C: %w", err)
		}
		cfg.DefaultTargets.DewPointC = f
	}
	if v, ok := lookupEnvTrimmed("ENGINE_SPARE_NUMBER"); ok {
		n, err := parseIntBetween(v, domain.SpareNumberMin, domain.SpareNumberMax)
		if err != nil {
			return fmt.Errorf("ENGINE_SPARE_NUMBER: %w", err)
		}
		cfg.DefaultTargets.SpareNumber = n
	}
	if v, ok := lookupEnvTrimmed("CB_ENABLED"); ok {
		cfg.Breaker.Enabled = parseBool(v)
	}
	if v, ok := lookupEnvTrimmed("CB_KAFKA_FAILURE_THRESHOLD"); ok {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("CB_KAFKA_FAILURE_THRESHOLD: %w", err)
		}
		cfg.Breaker.FailureThreshold = n
	}
	if v, ok := lookupEnvTrimmed("CB_KAFKA_SUCCESS_THRESHOLD"); ok {
		n, err := parsePositiveInt(v)
		if err != nil {
			return fmt.Errorf("CB_KAFKA_SUCCESS_THRESHOLD: %w", err)
		}
		cfg.Breaker.SuccessesToClose = n
	}
	if v, ok := lookupEnvTrimmed("CB_KAFKA_OPEN_SECONDS"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("CB_KAFKA_OPEN_SECONDS: %w", err)
		}
		if f <= 0 {
			return errors.New("CB_KAFKA_OPEN_SECONDS must be > 0")
		}
		cfg.Breaker.OpenInterval = time.Duration(f * float64(time.Second))
	}
	if v, ok := lookupEnvTrimmed("CB_KAFKA_TIMEOUT_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("CB_KAFKA_TIMEOUT_MS: %w", err)
		}
		cfg.Breaker.AttemptTimeout = d
	}
	if v, ok := lookupEnvTrimmed("CB_KAFKA_BACKOFF_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("CB_KAFKA_BACKOFF_MS: %w", err)
		}
		cfg.Breaker.Backoff = d
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitAndTrim(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositiveMillis(v string) (time.Duration, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if ms <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parsePositiveInt(v string) (int, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return n, nil
}

func parseIntBetween(v string, lo, hi int) (int, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value must be between %d and %d", lo, hi)
	}
	return n, nil
}

func parseFloatBetween(v string, lo, hi float64) (float64, error) {
	if strings.TrimSpace(v) == "" {
		return 0, errors.New("value cannot be empty")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %w", err)
	}
	if f < lo || f > hi {
		return 0, fmt.Errorf("value must be between %g and %g", lo, hi)
	}
	return f, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
