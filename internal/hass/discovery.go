package hass

import (
	"github.com/muurk/mypv/internal/entity"
	"github.com/muurk/mypv/internal/snapshot"
)

type availability struct {
	Topic string `json:"topic"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"ids"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"mf"`
	Model        string   `json:"mdl,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

// discoveryConfig is a Home Assistant MQTT discovery payload using the
// abbreviated keys.
type discoveryConfig struct {
	Name             string          `json:"name"`
	UniqueID         string          `json:"uniq_id"`
	ObjectID         string          `json:"obj_id,omitempty"`
	StateTopic       string          `json:"stat_t,omitempty"`
	CommandTopic     string          `json:"cmd_t,omitempty"`
	Availability     []availability  `json:"avty"`
	AvailabilityMode string          `json:"avty_mode"`
	Unit             string          `json:"unit_of_meas,omitempty"`
	DeviceClass      string          `json:"dev_cla,omitempty"`
	StateClass       string          `json:"stat_cla,omitempty"`
	Icon             string          `json:"ic,omitempty"`
	PayloadPress     string          `json:"pl_prs,omitempty"`
	PayloadOn        string          `json:"pl_on,omitempty"`
	PayloadOff       string          `json:"pl_off,omitempty"`
	Device           discoveryDevice `json:"dev"`
}

// announcement is one retained discovery message.
type announcement struct {
	topic  string
	config discoveryConfig
}

var deviceClasses = map[string]string{
	entity.UnitWatt:    "power",
	entity.UnitCelsius: "temperature",
	entity.UnitHertz:   "frequency",
	entity.UnitAmpere:  "current",
	entity.UnitVolt:    "voltage",
}

// announcements builds the discovery configs for every entity of set.
func announcements(t Topics, set *entity.Set, snap snapshot.Snapshot) []announcement {
	serial := snap.Identity.Serial
	info := set.Device(snap)
	fw, _ := snap.Info.String("fwversion")
	dev := discoveryDevice{
		Identifiers:  info.Identifiers,
		Name:         info.Name,
		Manufacturer: info.Manufacturer,
		Model:        info.Model,
		SWVersion:    fw,
	}
	avty := []availability{{Topic: t.Bridge()}, {Topic: t.Status(serial)}}

	base := func(st entity.State) discoveryConfig {
		return discoveryConfig{
			Name:             st.Name,
			UniqueID:         st.UniqueID,
			ObjectID:         NodeID(serial) + "_" + st.ObjectID,
			Availability:     avty,
			AvailabilityMode: "all",
			Icon:             st.Icon,
			Device:           dev,
		}
	}

	var out []announcement
	for _, st := range set.States(snap) {
		cfg := base(st)
		switch st.Platform {
		case entity.PlatformSensor:
			cfg.StateTopic = t.State(serial, st.ObjectID)
			cfg.Unit = st.Unit
			if class, ok := deviceClasses[st.Unit]; ok {
				cfg.DeviceClass = class
				cfg.StateClass = "measurement"
			}
		case entity.PlatformButton:
			cfg.CommandTopic = t.BoostPress(serial)
			cfg.PayloadPress = PayloadPress
		case entity.PlatformSwitch:
			cfg.StateTopic = t.State(serial, st.ObjectID)
			cfg.CommandTopic = t.ModeSet(serial)
			cfg.PayloadOn = PayloadOn
			cfg.PayloadOff = PayloadOff
		}
		out = append(out, announcement{
			topic:  t.Discovery(st.Platform, serial, st.ObjectID),
			config: cfg,
		})
	}
	return out
}
