package sensor

import (
	"errors"
	"math"
	"sync"
	"testing"

	"periph.io/x/conn/v3/physic"

	"sensorlog/internal/config"
)

func TestSampleFromEnv(t *testing.T) {
	env := physic.Env{
		Temperature: physic.ZeroCelsius + 21*physic.Kelvin + 500*physic.MilliKelvin,
		Pressure:    101320 * physic.Pascal,
		Humidity:    45 * physic.PercentRH,
	}

	got := sampleFromEnv(env)

	if math.Abs(got.Temperature-21.5) > 1e-9 {
		t.Errorf("Temperature = %v; want 21.5", got.Temperature)
	}
	if math.Abs(got.Pressure-1013.2) > 1e-9 {
		t.Errorf("Pressure = %v; want 1013.2", got.Pressure)
	}
	if got.Humidity != 45 {
		t.Errorf("Humidity = %v; want 45", got.Humidity)
	}
}

func TestBME280_ClosedDevice(t *testing.T) {
	s := NewBME280("", 0x77)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() on unopened device = %v; want nil", err)
	}

	_, err := s.Read()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("Read() error = %v; want *Error", err)
	}
	if se.Op != "read" || !errors.Is(err, errClosed) {
		t.Errorf("Read() after Close = %v; want read: device closed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v; want nil", err)
	}
}

func TestBME280_MissingBusFailsPerRead(t *testing.T) {
	s := NewBME280("no-such-bus", 0x77)
	defer func() { _ = s.Close() }()

	for i := 0; i < 2; i++ {
		_, err := s.Read()
		var se *Error
		if !errors.As(err, &se) {
			t.Fatalf("Read() #%d error = %v; want *Error", i, err)
		}
		if se.Op != "open device" {
			t.Errorf("Read() #%d Op = %q; want open device", i, se.Op)
		}
	}
}

func TestError(t *testing.T) {
	cause := errors.New("i2c nack")
	err := error(&Error{Op: "read", Err: cause})

	if got := err.Error(); got != "sensor read: i2c nack" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false; want true")
	}
}

func TestFake_ValuesStayInRange(t *testing.T) {
	f := NewFakeSeeded(1)
	for i := 0; i < 1000; i++ {
		s, err := f.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if s.Temperature < 15 || s.Temperature > 30 {
			t.Fatalf("Temperature %v out of range", s.Temperature)
		}
		if s.Pressure < 980 || s.Pressure > 1040 {
			t.Fatalf("Pressure %v out of range", s.Pressure)
		}
		if s.Humidity < 20 || s.Humidity > 80 {
			t.Fatalf("Humidity %v out of range", s.Humidity)
		}
	}
}

func TestFake_SeedIsDeterministic(t *testing.T) {
	a, b := NewFakeSeeded(42), NewFakeSeeded(42)
	for i := 0; i < 10; i++ {
		sa, _ := a.Read()
		sb, _ := b.Read()
		if sa != sb {
			t.Fatalf("read %d: %+v != %+v", i, sa, sb)
		}
	}
}

func TestFake_ConcurrentReads(t *testing.T) {
	f := NewFake()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := f.Read(); err != nil {
					t.Errorf("Read() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestNew(t *testing.T) {
	src, err := New(config.Config{SensorDriver: config.SensorDriverFake})
	if err != nil {
		t.Fatalf("New(fake) error = %v", err)
	}
	if _, ok := src.(*Fake); !ok {
		t.Errorf("New(fake) = %T; want *Fake", src)
	}

	src, err = New(config.Config{SensorDriver: config.SensorDriverBME280, I2CBus: "no-such-bus", BME280Address: 0x76})
	if err != nil {
		t.Fatalf("New(bme280) error = %v; want lazy open", err)
	}
	if _, ok := src.(*BME280); !ok {
		t.Errorf("New(bme280) = %T; want *BME280", src)
	}
	_ = src.Close()

	if _, err := New(config.Config{SensorDriver: "dht22"}); err == nil {
		t.Error("New(dht22) error = nil; want error")
	}
}
