package sensor

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

var errClosed = errors.New("device closed")

// BME280 reads a Bosch BME280 over I²C. The bus and device are opened on the
// first Read and reopened after a failed open. Reads are serialized so
// concurrent callers never interleave bus transactions.
type BME280 struct {
	busName string
	addr    uint16

	mu     sync.Mutex
	bus    i2c.BusCloser
	dev    *bmxx80.Dev
	closed bool
}

// NewBME280 returns a source for the device at addr on busName ("" selects
// the default bus, usually /dev/i2c-1). No bus I/O happens until Read.
func NewBME280(busName string, addr uint16) *BME280 {
	return &BME280{busName: busName, addr: addr}
}

func (s *BME280) Read() (Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Sample{}, &Error{Op: "read", Err: errClosed}
	}
	if s.dev == nil {
		if err := s.open(); err != nil {
			return Sample{}, &Error{Op: "open device", Err: err}
		}
	}
	var env physic.Env
	if err := s.dev.Sense(&env); err != nil {
		return Sample{}, &Error{Op: "read", Err: err}
	}
	return sampleFromEnv(env), nil
}

// open must be called with mu held.
func (s *BME280) open() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(s.busName)
	if err != nil {
		return fmt.Errorf("open bus %q: %w", s.busName, err)
	}
	dev, err := bmxx80.NewI2C(bus, s.addr, &bmxx80.DefaultOpts)
	if err != nil {
		_ = bus.Close()
		return fmt.Errorf("init device at 0x%02x: %w", s.addr, err)
	}
	s.bus = bus
	s.dev = dev
	return nil
}

func (s *BME280) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.dev == nil {
		return nil
	}
	haltErr := s.dev.Halt()
	busErr := s.bus.Close()
	s.dev = nil
	s.bus = nil
	return errors.Join(haltErr, busErr)
}

// sampleFromEnv converts periph's fixed-point units to °C, hPa and %RH.
func sampleFromEnv(env physic.Env) Sample {
	return Sample{
		Temperature: env.Temperature.Celsius(),
		Pressure:    float64(env.Pressure) / float64(100*physic.Pascal),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
	}
}
