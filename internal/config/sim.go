// v1
// internal/config/sim.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// SimConfig holds the runtime settings of the simulated unit.
type SimConfig struct {
	LogFilePath     string
	PropertiesPath  string
	KafkaBrokers    []string
	TelemetryTopic  string
	CommandTopic    string
	AckTopic        string
	SetpointTopic   string
	UnitID          string
	SampleInterval  time.Duration
	ShutdownTimeout time.Duration
	// MQTTBroker mirrors readings to an MQTT broker when set. Empty
	// disables the mirror.
	MQTTBroker      string
	MQTTTopicPrefix string
	InitialTempC    float64
	InitialHumidity float64
	OutdoorBaseC    float64
	OutdoorSwingC   float64
}

const (
	defaultSimLogFile        = "logs/unitsim.log"
	defaultSimPropsPath      = "unitsim.properties"
	defaultSimUnitID         = "unit-a"
	defaultSimSampleInterval = 2 * time.Second
	defaultSimMQTTPrefix     = "vmcpilot/units"
	defaultSimInitialTemp    = 21.0
	defaultSimInitialHum     = 55.0
	defaultSimOutdoorBase    = 12.0
	defaultSimOutdoorSwing   = 8.0
)

// LoadSim resolves the simulator configuration with the same layering as
// Load. The properties file location can be overridden with
// UNITSIM_PROPERTIES_PATH.
func LoadSim() (SimConfig, error) {
	cfg := SimConfig{
		LogFilePath:     filepath.Clean(defaultSimLogFile),
		KafkaBrokers:    splitAndTrim(defaultKafkaBrokers),
		TelemetryTopic:  defaultTelemetryTopic,
		CommandTopic:    defaultCommandTopic,
		AckTopic:        defaultAckTopic,
		SetpointTopic:   defaultSetpointTopic,
		UnitID:          defaultSimUnitID,
		SampleInterval:  defaultSimSampleInterval,
		ShutdownTimeout: defaultShutdown,
		MQTTTopicPrefix: defaultSimMQTTPrefix,
		InitialTempC:    defaultSimInitialTemp,
		InitialHumidity: defaultSimInitialHum,
		OutdoorBaseC:    defaultSimOutdoorBase,
		OutdoorSwingC:   defaultSimOutdoorSwing,
	}

	propsPath := strings.TrimSpace(os.Getenv("UNITSIM_PROPERTIES_PATH"))
	if propsPath == "" {
		propsPath = defaultSimPropsPath
	}
	cfg.PropertiesPath = propsPath

	if err := applySimProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return SimConfig{}, err
		}
	}

	if err := applySimEnv(&cfg); err != nil {
		return SimConfig{}, err
	}

	return cfg, nil
}

func applySimProperties(cfg *SimConfig, path string) error {
	return forEachProperty(path, func(key, value string) error {
		if err := setSimProperty(cfg, key, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
		return nil
	})
}

func setSimProperty(cfg *SimConfig, key, value string) error {
	switch key {
	case "log_path":
		if value == "" {
			return errors.New("log_path cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(value)
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
	case "unit_id":
		if value == "" {
			return errors.New("unit_id cannot be empty")
		}
		cfg.UnitID = value
	case "sample_interval_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.SampleInterval = d
	case "shutdown_timeout_ms":
		d, err := parsePositiveMillis(value)
		if err != nil {
			return err
		}
		cfg.ShutdownTimeout = d
	case "mqtt_broker":
		cfg.MQTTBroker = value
	case "mqtt_topic_prefix":
		if value == "" {
			return errors.New("mqtt_topic_prefix cannot be empty")
		}
		cfg.MQTTTopicPrefix = strings.TrimSuffix(value, "/")
	case "initial_temperature_c":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		cfg.InitialTempC = f
	case "initial_humidity_pct":
		f, err := parseFloatBetween(value, 0, 100)
		if err != nil {
			return err
		}
		cfg.InitialHumidity = f
	case "outdoor_base_c":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		cfg.OutdoorBaseC = f
	case "outdoor_swing_c":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number: %w", err)
		}
		cfg.OutdoorSwingC = f
	default:
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return nil
}

func applySimEnv(cfg *SimConfig) error {
	if v, ok := lookupEnvTrimmed("UNITSIM_LOG_PATH"); ok {
		if v == "" {
			return errors.New("UNITSIM_LOG_PATH cannot be empty")
		}
		cfg.LogFilePath = filepath.Clean(v)
	}
	if v, ok := lookupEnvTrimmed("UNITSIM_KAFKA_BROKERS"); ok {
		brokers := splitAndTrim(v)
		if len(brokers) == 0 {
			return errors.New("UNITSIM_KAFKA_BROKERS cannot be empty")
		}
		cfg.KafkaBrokers = brokers
	} else if v, ok := lookupEnvTrimmed("KAFKA_BROKERS"); ok {
		brokers := splitAndTrim(v)
		if len(brokers) == 0 {
			return errors.New("KAFKA_BROKERS cannot be empty")
		}
		cfg.KafkaBrokers = brokers
	}
	if v, ok := lookupEnvTrimmed("UNITSIM_UNIT_ID"); ok {
		if v == "" {
			return errors.New("UNITSIM_UNIT_ID cannot be empty")
		}
		cfg.UnitID = v
	}
	if v, ok := lookupEnvTrimmed("UNITSIM_SAMPLE_INTERVAL_MS"); ok {
		d, err := parsePositiveMillis(v)
		if err != nil {
			return fmt.Errorf("UNITSIM_SAMPLE_INTERVAL_MS: %w", err)
		}
		cfg.SampleInterval = d
	}
	if v, ok := lookupEnvTrimmed("UNITSIM_MQTT_BROKER"); ok {
		cfg.MQTTBroker = v
	}
	if v, ok := lookupEnvTrimmed("UNITSIM_MQTT_TOPIC_PREFIX"); ok {
		if v == "" {
			return errors.New("UNITSIM_MQTT_TOPIC_PREFIX cannot be empty")
		}
		cfg.MQTTTopicPrefix = strings.TrimSuffix(v, "/")
	}
	return nil
}
