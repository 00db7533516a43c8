package entity

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muurk/mypv/internal/snapshot"
)

// Units
const (
	UnitWatt    = "W"
	UnitCelsius = "°C"
	UnitAmpere  = "A"
	UnitHertz   = "Hz"
	UnitVolt    = "V"
)

// ValueKind is how a raw field is projected.
type ValueKind int

const (
	// Numeric values are scaled by unit
	Numeric ValueKind = iota
	// Enum values are integer codes decoded through a locale table
	Enum
	// Text values are passed through as strings
	Text
)

// SensorType describes one field a device reports.
type SensorType struct {
	Key    string
	Name   string
	Unit   string
	Icon   string
	Source snapshot.Kind
	Kind   ValueKind
}

// KeyPowerAct is the derived total power sensor.
const KeyPowerAct = "power_act"

// KeyStatus is the enum status sensor.
const KeyStatus = "screen_mode_flag"

// DefaultSensors are monitored when a device is added without a selection.
var DefaultSensors = []string{KeyStatus, "temp1"}

// Catalog lists every supported sensor.
var Catalog = []SensorType{
	{Key: KeyPowerAct, Name: "Power", Unit: UnitWatt, Icon: "mdi:flash", Source: snapshot.KindData},
	{Key: "power_solar_act", Name: "Solar power", Unit: UnitWatt, Icon: "mdi:solar-power", Source: snapshot.KindData},
	{Key: "power_grid_act", Name: "Grid power", Unit: UnitWatt, Icon: "mdi:transmission-tower", Source: snapshot.KindData},
	{Key: "power_max", Name: "Maximum power", Unit: UnitWatt, Icon: "mdi:flash-outline", Source: snapshot.KindData},
	{Key: "boostpower", Name: "Boost power", Unit: UnitWatt, Icon: "mdi:water-boiler", Source: snapshot.KindData},
	{Key: "load_nom", Name: "Nominal load", Unit: UnitWatt, Icon: "mdi:gauge", Source: snapshot.KindData},
	{Key: "temp1", Name: "Temperature 1", Unit: UnitCelsius, Icon: "mdi:thermometer", Source: snapshot.KindData},
	{Key: "temp2", Name: "Temperature 2", Unit: UnitCelsius, Icon: "mdi:thermometer", Source: snapshot.KindData},
	{Key: "temp3", Name: "Temperature 3", Unit: UnitCelsius, Icon: "mdi:thermometer", Source: snapshot.KindData},
	{Key: "temp4", Name: "Temperature 4", Unit: UnitCelsius, Icon: "mdi:thermometer", Source: snapshot.KindData},
	{Key: "temp_ps", Name: "Power stage temperature", Unit: UnitCelsius, Icon: "mdi:thermometer-alert", Source: snapshot.KindData},
	{Key: "curr_mains", Name: "Mains current", Unit: UnitAmpere, Icon: "mdi:current-ac", Source: snapshot.KindData},
	{Key: "volt_mains", Name: "Mains voltage", Unit: UnitVolt, Icon: "mdi:flash-triangle", Source: snapshot.KindData},
	{Key: "volt_out", Name: "Output voltage", Unit: UnitVolt, Icon: "mdi:sine-wave", Source: snapshot.KindData},
	{Key: "freq", Name: "Grid frequency", Unit: UnitHertz, Icon: "mdi:sine-wave", Source: snapshot.KindData},
	{Key: KeyStatus, Name: "Status", Icon: "mdi:information-outline", Source: snapshot.KindData, Kind: Enum},
	{Key: "boostactive", Name: "Boost active", Icon: "mdi:water-boiler-alert", Source: snapshot.KindData},
	{Key: "rel1_out", Name: "Relay 1", Icon: "mdi:electric-switch", Source: snapshot.KindData},
	{Key: "fwversion", Name: "Firmware version", Icon: "mdi:chip", Source: snapshot.KindData, Kind: Text},
	{Key: "cur_ip", Name: "IP address", Icon: "mdi:ip-network", Source: snapshot.KindData, Kind: Text},
	{Key: "ww1target", Name: "Hot water target", Unit: UnitCelsius, Icon: "mdi:thermometer-water", Source: snapshot.KindSetup},
	{Key: "devmode", Name: "Device mode", Icon: "mdi:power", Source: snapshot.KindSetup},
	{Key: "device", Name: "Model", Icon: "mdi:information", Source: snapshot.KindInfo, Kind: Text},
	{Key: "sn", Name: "Serial number", Icon: "mdi:barcode", Source: snapshot.KindInfo, Kind: Text},
}

var catalogIndex = func() map[string]SensorType {
	m := make(map[string]SensorType, len(Catalog))
	for _, st := range Catalog {
		m[st.Key] = st
	}
	return m
}()

// Lookup returns the sensor type for key.
func Lookup(key string) (SensorType, bool) {
	st, ok := catalogIndex[key]
	return st, ok
}

// ValidateSensors reports the first key not in the catalog.
func ValidateSensors(keys []string) error {
	var unknown []string
	for _, k := range keys {
		if _, ok := catalogIndex[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("unknown sensor(s): %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Available filters the catalog to sensors the device can serve. Data
// sensors are kept only if their key appears in data; the derived power
// sensor also accepts power1. Info and setup sensors are always kept.
func Available(data snapshot.Resource) []SensorType {
	out := make([]SensorType, 0, len(Catalog))
	for _, st := range Catalog {
		if st.Source != snapshot.KindData {
			out = append(out, st)
			continue
		}
		if data.Has(st.Key) || (st.Key == KeyPowerAct && data.Has("power1")) {
			out = append(out, st)
		}
	}
	return out
}

// Scale converts a raw device integer into its display unit: tenths of a
// degree or ampere, and millihertz.
func Scale(unit string, v float64) float64 {
	switch unit {
	case UnitCelsius, UnitAmpere:
		return v / 10
	case UnitHertz:
		return v / 1000
	}
	return v
}
