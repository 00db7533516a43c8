package entity

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/muurk/mypv/internal/logging"
	"github.com/muurk/mypv/internal/snapshot"
)

// Manufacturer is reported in every entity's device info.
const Manufacturer = "my-PV"

// Platforms
const (
	PlatformSensor = "sensor"
	PlatformButton = "button"
	PlatformSwitch = "switch"
)

// Object IDs of the two controls
const (
	ObjectBoost = "boost"
	ObjectMode  = "mode"
)

// DeviceInfo groups a device's entities for a host.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// State is the projected state of one entity.
type State struct {
	UniqueID  string `json:"unique_id"`
	ObjectID  string `json:"object_id"`
	Platform  string `json:"platform"`
	Name      string `json:"name"`
	Value     any    `json:"value"`
	Unit      string `json:"unit,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Available bool   `json:"available"`
}

// Options selects what a Set exposes.
type Options struct {
	Host     string
	Name     string
	Language string
	// Sensors are catalog keys; empty means DefaultSensors.
	Sensors []string
	Logger  *zap.Logger
}

// Set is every entity exposed for one device.
type Set struct {
	Host    string
	Name    string
	Sensors []*Sensor
	Boost   *BoostButton
	Mode    *ModeSwitch
}

// NewSet builds the entities for one device.
func NewSet(opts Options, booster Booster, setter ModeSetter, source SnapshotSource) (*Set, error) {
	keys := opts.Sensors
	if len(keys) == 0 {
		keys = DefaultSensors
	}
	if err := ValidateSensors(keys); err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = opts.Host
	}
	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}

	set := &Set{
		Host:  opts.Host,
		Name:  name,
		Boost: &BoostButton{host: opts.Host, device: name, booster: booster},
		Mode:  &ModeSwitch{host: opts.Host, device: name, setter: setter, source: source},
	}

	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		st, _ := Lookup(key)
		set.Sensors = append(set.Sensors, newSensor(st, name, lang, logger.With(zap.String("host", opts.Host))))
	}
	return set, nil
}

// Sensor returns the sensor for key.
func (s *Set) Sensor(key string) (*Sensor, bool) {
	for _, sensor := range s.Sensors {
		if sensor.Type.Key == key {
			return sensor, true
		}
	}
	return nil, false
}

// Device returns the device info shared by all entities.
func (s *Set) Device(snap snapshot.Snapshot) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{snap.Identity.Serial},
		Name:         s.Name,
		Manufacturer: Manufacturer,
		Model:        snap.Identity.Model,
	}
}

// SensorStates projects every sensor.
func (s *Set) SensorStates(snap snapshot.Snapshot) []State {
	states := make([]State, 0, len(s.Sensors))
	for _, sensor := range s.Sensors {
		v, ok := sensor.Value(snap)
		states = append(states, State{
			UniqueID:  sensor.UniqueID(snap.Identity),
			ObjectID:  sensor.Type.Key,
			Platform:  PlatformSensor,
			Name:      sensor.Name(),
			Value:     v,
			Unit:      sensor.Type.Unit,
			Icon:      sensor.Type.Icon,
			Available: ok,
		})
	}
	return states
}

// States projects every entity: sensors, then the button and the switch.
func (s *Set) States(snap snapshot.Snapshot) []State {
	states := s.SensorStates(snap)
	states = append(states,
		State{
			UniqueID:  s.Boost.UniqueID(),
			ObjectID:  ObjectBoost,
			Platform:  PlatformButton,
			Name:      s.Boost.Name(),
			Icon:      "mdi:water-boiler",
			Available: snap.Data != nil,
		},
		s.ModeState(snap),
	)
	return states
}

// ModeState projects the mode switch alone.
func (s *Set) ModeState(snap snapshot.Snapshot) State {
	return State{
		UniqueID:  s.Mode.UniqueID(snap.Identity),
		ObjectID:  ObjectMode,
		Platform:  PlatformSwitch,
		Name:      s.Mode.Name(),
		Value:     s.Mode.IsOn(snap),
		Icon:      "mdi:power",
		Available: snap.Setup != nil || s.Mode.Pending(),
	}
}

// FormatValue renders a state value with its unit.
func FormatValue(st State) string {
	if !st.Available {
		return "unavailable"
	}
	switch v := st.Value.(type) {
	case nil:
		return "-"
	case float64:
		if st.Unit != "" {
			return fmt.Sprintf("%g %s", v, st.Unit)
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "on"
		}
		return "off"
	default:
		return fmt.Sprint(v)
	}
}
