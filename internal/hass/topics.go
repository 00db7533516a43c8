package hass

import "strings"

const (
	// DefaultTopicPrefix roots state, status and command topics
	DefaultTopicPrefix = "mypv"

	// DefaultDiscoveryPrefix is Home Assistant's discovery root
	DefaultDiscoveryPrefix = "homeassistant"

	PayloadOnline  = "online"
	PayloadOffline = "offline"
	PayloadPress   = "PRESS"
	PayloadOn      = "ON"
	PayloadOff     = "OFF"
)

// Topics derives every topic from two prefixes.
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

func (t Topics) withDefaults() Topics {
	if t.Prefix == "" {
		t.Prefix = DefaultTopicPrefix
	}
	if t.DiscoveryPrefix == "" {
		t.DiscoveryPrefix = DefaultDiscoveryPrefix
	}
	return t
}

// Bridge is the availability topic written by the last will.
func (t Topics) Bridge() string {
	return t.Prefix + "/bridge/status"
}

// NodeID is the discovery node for a device.
func NodeID(serial string) string {
	return "mypv_" + sanitize(serial)
}

// Discovery is the config topic of one entity.
func (t Topics) Discovery(platform, serial, object string) string {
	return strings.Join([]string{t.DiscoveryPrefix, platform, NodeID(serial), object, "config"}, "/")
}

// State is the state topic of one entity.
func (t Topics) State(serial, object string) string {
	return t.device(serial) + "/" + object + "/state"
}

// Status is the availability topic of a device.
func (t Topics) Status(serial string) string {
	return t.device(serial) + "/status"
}

// BoostPress is the boost button's command topic.
func (t Topics) BoostPress(serial string) string {
	return t.device(serial) + "/boost/press"
}

// ModeSet is the mode switch's command topic.
func (t Topics) ModeSet(serial string) string {
	return t.device(serial) + "/mode/set"
}

func (t Topics) device(serial string) string {
	return t.Prefix + "/" + sanitize(serial)
}

// sanitize keeps a topic level free of separators and wildcards.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', ' ':
			return '_'
		}
		return r
	}, s)
}
