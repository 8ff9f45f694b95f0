// Package sensor reads temperature, pressure and humidity from an
// environmental sensor.
package sensor

import (
	"fmt"

	"sensorlog/internal/config"
)

// Sample is one snapshot from a Source. Temperature is in °C, Pressure in
// hPa and Humidity in %RH.
type Sample struct {
	Temperature float64 `json:"temperature"`
	Pressure    float64 `json:"pressure"`
	Humidity    float64 `json:"humidity"`
}

// Source is a sensor that can be sampled on demand. Implementations are safe
// for concurrent use.
type Source interface {
	Read() (Sample, error)
	Close() error
}

// Error reports a failed sensor operation. Read errors are transient and may
// succeed on the next attempt.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return "sensor " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns the source selected by cfg.SensorDriver. Hardware sources open
// their device lazily, so only an unknown driver fails here.
func New(cfg config.Config) (Source, error) {
	switch cfg.SensorDriver {
	case config.SensorDriverBME280:
		return NewBME280(cfg.I2CBus, cfg.BME280Address), nil
	case config.SensorDriverFake:
		return NewFake(), nil
	default:
		return nil, fmt.Errorf("unknown sensor driver %q", cfg.SensorDriver)
	}
}
