package entity

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/snapshot"
)

type derivation int

const (
	derived derivation = iota
	// missing falls back to the last valid value
	missing
	// unknown reports absent without touching the last valid value
	unknown
)

// Sensor projects one catalog field out of a snapshot.
//
// When the field cannot be read the sensor reports its last valid value, so
// a momentarily incomplete response does not blank the reading.
type Sensor struct {
	Type SensorType

	device   string
	language string
	logger   *zap.Logger
	deriveFn func(snapshot.Resource) (any, derivation)

	mu      sync.Mutex
	last    any
	hasLast bool
}

func newSensor(st SensorType, deviceName, language string, logger *zap.Logger) *Sensor {
	s := &Sensor{
		Type:     st,
		device:   deviceName,
		language: language,
		logger:   logger,
	}
	s.deriveFn = s.derive
	return s
}

// Name returns the display name, prefixed with the device name.
func (s *Sensor) Name() string {
	return fmt.Sprintf("%s %s", s.device, s.Type.Name)
}

// UniqueID returns a stable identifier built from the device serial.
func (s *Sensor) UniqueID(id snapshot.Identity) string {
	return fmt.Sprintf("%s %s", id.Serial, s.Type.Name)
}

// Value returns the projected value: float64 for numeric sensors, string
// for enum and text sensors. The second result is false when no value is
// known.
func (s *Sensor) Value(snap snapshot.Snapshot) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, d := s.safeDerive(snap)
	switch d {
	case derived:
		s.last, s.hasLast = v, true
		return v, true
	case unknown:
		return nil, false
	default:
		return s.last, s.hasLast
	}
}

func (s *Sensor) safeDerive(snap snapshot.Snapshot) (v any, d derivation) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Sensor derivation panicked",
				zap.String("sensor", s.Type.Key),
				zap.Any("panic", r),
			)
			v, d = nil, missing
		}
	}()
	return s.deriveFn(snap.Resource(s.Type.Source))
}

func (s *Sensor) derive(res snapshot.Resource) (any, derivation) {
	if res == nil {
		return nil, missing
	}

	switch s.Type.Kind {
	case Enum:
		code, ok := res.Int(s.Type.Key)
		if !ok {
			return nil, missing
		}
		label, ok := StatusLabel(s.language, code)
		if !ok {
			return nil, unknown
		}
		return label, derived

	case Text:
		str, ok := res.String(s.Type.Key)
		if !ok {
			return nil, missing
		}
		return str, derived
	}

	if s.Type.Key == KeyPowerAct {
		return derivePower(res)
	}

	f, ok := res.Float(s.Type.Key)
	if !ok {
		return nil, missing
	}
	return Scale(s.Type.Unit, f), derived
}

// derivePower adds the relay-switched nominal load to the measured power.
// Both factors must be present; otherwise the last value stands.
func derivePower(res snapshot.Resource) (any, derivation) {
	raw, ok := res.Float(KeyPowerAct)
	if !ok {
		raw, ok = res.Float("power1")
	}
	if !ok {
		return nil, missing
	}

	relay, okRelay := res.Int("rel1_out")
	load, okLoad := res.Int("load_nom")
	if !okRelay || !okLoad {
		return nil, missing
	}
	return float64(relay*load) + raw, derived
}
