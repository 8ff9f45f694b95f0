package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sosodev/duration"
)

// ErrInvalid is wrapped by every error LoadFromEnv returns.
var ErrInvalid = errors.New("invalid config")

const (
	RunModeAll    = "all"
	RunModeLogger = "logger"
	RunModeAPI    = "api"
	RunModeOnce   = "once"

	SensorDriverBME280 = "bme280"
	SensorDriverFake   = "fake"

	maxQueryLimit = 1000
)

// samplePresets maps SAMPLE_MODE to its default interval.
var samplePresets = map[string]time.Duration{
	"log":     time.Hour,
	"monitor": time.Second,
}

type Config struct {
	AppEnv   string
	LogLevel slog.Level
	HTTPAddr string
	RunMode  string

	// StaticDir is the absolute path to the directory served at /static/.
	// Set via STATIC_DIR (relative paths are resolved against the process working directory at startup).
	StaticDir string

	SQLiteDriver          string
	SQLiteDSN             string
	SQLitePath            string
	SQLiteMaxOpenConns    int
	SQLiteMaxIdleConns    int
	SQLiteConnMaxLifetime time.Duration
	SQLiteLogStatements   bool

	SensorDriver  string
	I2CBus        string
	BME280Address uint16

	SampleMode     string
	SampleInterval time.Duration
	QueryLimit     int

	RetentionMaxRows int
	RetentionMaxAge  time.Duration

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string
}

// MQTTEnabled reports whether readings should be forwarded to a broker.
func (c Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, invalidf("APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	httpAddr := strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	if httpAddr == "" {
		httpAddr = ":5000"
	}

	runMode := strings.ToLower(strings.TrimSpace(os.Getenv("RUN_MODE")))
	if runMode == "" {
		runMode = RunModeAll
	}
	switch runMode {
	case RunModeAll, RunModeLogger, RunModeAPI, RunModeOnce:
	default:
		return Config{}, invalidf("RUN_MODE %q (allowed: all, logger, api, once)", runMode)
	}

	staticDir := strings.TrimSpace(os.Getenv("STATIC_DIR"))
	if staticDir == "" {
		staticDir = "static"
	}
	staticDir, err = filepath.Abs(staticDir)
	if err != nil {
		return Config{}, invalidf("STATIC_DIR %q: %v", staticDir, err)
	}

	driver := strings.TrimSpace(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "sqlite3"
	}
	switch driver {
	case "sqlite3", "sqlite":
	default:
		return Config{}, invalidf("DB_DRIVER %q (allowed: sqlite3, sqlite)", driver)
	}
	dsn := strings.TrimSpace(os.Getenv("DB_DSN"))
	path := strings.TrimSpace(os.Getenv("SQLITE_PATH"))
	if path == "" {
		path = "data/sensor_data.db"
	}

	maxOpenConns, err := intFromEnv("DB_MAX_OPEN_CONNS", 4)
	if err != nil {
		return Config{}, err
	}
	maxIdleConns, err := intFromEnv("DB_MAX_IDLE_CONNS", 4)
	if err != nil {
		return Config{}, err
	}

	connMaxLifetimeStr := strings.TrimSpace(os.Getenv("DB_CONN_MAX_LIFETIME"))
	if connMaxLifetimeStr == "" {
		connMaxLifetimeStr = "0s"
	}
	connMaxLifetime, err := time.ParseDuration(connMaxLifetimeStr)
	if err != nil {
		return Config{}, invalidf("DB_CONN_MAX_LIFETIME %q: %v", connMaxLifetimeStr, err)
	}

	logSQL, err := boolFromEnv("DB_LOG_SQL", false)
	if err != nil {
		return Config{}, err
	}

	sensorDriver := strings.ToLower(strings.TrimSpace(os.Getenv("SENSOR_DRIVER")))
	if sensorDriver == "" {
		sensorDriver = SensorDriverBME280
	}
	switch sensorDriver {
	case SensorDriverBME280, SensorDriverFake:
	default:
		return Config{}, invalidf("SENSOR_DRIVER %q (allowed: bme280, fake)", sensorDriver)
	}

	i2cBus := strings.TrimSpace(os.Getenv("I2C_BUS"))

	bme280AddressStr := strings.TrimSpace(os.Getenv("BME280_ADDRESS"))
	if bme280AddressStr == "" {
		bme280AddressStr = "0x77"
	}
	bme280Address, err := strconv.ParseUint(bme280AddressStr, 0, 16)
	if err != nil {
		return Config{}, invalidf("BME280_ADDRESS %q: %v", bme280AddressStr, err)
	}
	if bme280Address != 0x76 && bme280Address != 0x77 {
		return Config{}, invalidf("BME280_ADDRESS %q (allowed: 0x76, 0x77)", bme280AddressStr)
	}

	sampleMode := strings.ToLower(strings.TrimSpace(os.Getenv("SAMPLE_MODE")))
	if sampleMode == "" {
		sampleMode = "log"
	}
	sampleInterval, ok := samplePresets[sampleMode]
	if !ok {
		return Config{}, invalidf("SAMPLE_MODE %q (allowed: log, monitor)", sampleMode)
	}
	if s := strings.TrimSpace(os.Getenv("SAMPLE_INTERVAL")); s != "" {
		sampleInterval, err = time.ParseDuration(s)
		if err != nil {
			return Config{}, invalidf("SAMPLE_INTERVAL %q: %v", s, err)
		}
		if sampleInterval <= 0 {
			return Config{}, invalidf("SAMPLE_INTERVAL must be positive, got %v", sampleInterval)
		}
	}

	queryLimit, err := intFromEnv("QUERY_LIMIT", 100)
	if err != nil {
		return Config{}, err
	}
	if queryLimit <= 0 || queryLimit > maxQueryLimit {
		return Config{}, invalidf("QUERY_LIMIT %d (must be 1..%d)", queryLimit, maxQueryLimit)
	}

	retentionMaxRows, err := intFromEnv("RETENTION_MAX_ROWS", 100000)
	if err != nil {
		return Config{}, err
	}
	if retentionMaxRows < 0 {
		return Config{}, invalidf("RETENTION_MAX_ROWS must be >= 0, got %d", retentionMaxRows)
	}

	retentionMaxAge, err := parseRetentionAge(strings.TrimSpace(os.Getenv("RETENTION_MAX_AGE")))
	if err != nil {
		return Config{}, err
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))

	mqttPort, err := intFromEnv("MQTT_PORT", 1883)
	if err != nil {
		return Config{}, err
	}
	if mqttPort <= 0 || mqttPort > 65535 {
		return Config{}, invalidf("MQTT_PORT %d out of range", mqttPort)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "sensorlog-" + uuid.NewString()
	}

	mqttTopic := strings.TrimSpace(os.Getenv("MQTT_TOPIC"))
	if mqttTopic == "" {
		mqttTopic = "sensorlog/readings"
	}

	return Config{
		AppEnv:                appEnv,
		LogLevel:              level,
		HTTPAddr:              httpAddr,
		RunMode:               runMode,
		StaticDir:             staticDir,
		SQLiteDriver:          driver,
		SQLiteDSN:             dsn,
		SQLitePath:            path,
		SQLiteMaxOpenConns:    maxOpenConns,
		SQLiteMaxIdleConns:    maxIdleConns,
		SQLiteConnMaxLifetime: connMaxLifetime,
		SQLiteLogStatements:   logSQL,
		SensorDriver:          sensorDriver,
		I2CBus:                i2cBus,
		BME280Address:         uint16(bme280Address),
		SampleMode:            sampleMode,
		SampleInterval:        sampleInterval,
		QueryLimit:            queryLimit,
		RetentionMaxRows:      retentionMaxRows,
		RetentionMaxAge:       retentionMaxAge,
		MQTTBroker:            mqttBroker,
		MQTTPort:              mqttPort,
		MQTTClientID:          mqttClientID,
		MQTTTopic:             mqttTopic,
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, invalidf("LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

// parseRetentionAge accepts a Go duration ("720h") or an ISO-8601 duration ("P30D").
// Empty and zero values disable age-based retention.
func parseRetentionAge(s string) (time.Duration, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, invalidf("RETENTION_MAX_AGE must be >= 0, got %v", d)
		}
		return d, nil
	}
	iso, err := duration.Parse(strings.ToUpper(s))
	if err != nil {
		return 0, invalidf("RETENTION_MAX_AGE %q (expected Go or ISO-8601 duration)", s)
	}
	if iso.Negative {
		return 0, invalidf("RETENTION_MAX_AGE must be >= 0, got %q", s)
	}
	return iso.ToTimeDuration(), nil
}

func intFromEnv(key string, def int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, invalidf("%s %q: %v", key, s, err)
	}
	return n, nil
}

func boolFromEnv(key string, def bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, invalidf("%s %q: %v", key, s, err)
	}
	return b, nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...)
}
