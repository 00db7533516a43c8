// Package config manages the mypv configuration file.
//
// The file is YAML and stores the devices to poll, keyed by host, along
// with application preferences. Nothing read back from a device other than
// its last known identity is persisted.
//
// # Configuration File Location
//
// The file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/mypv/config.yaml or $HOME/.config/mypv/config.yaml
//   - macOS: $HOME/.config/mypv/config.yaml
//   - Windows: %LOCALAPPDATA%\mypv\config.yaml
//
// MYPV_CONFIG overrides the path entirely.
//
// # Security
//
// The MQTT broker password is never written to the file. It is read from
// MYPV_MQTT_PASSWORD when the bridge connects.
//
// # Usage Example
//
//	path, err := config.GetConfigPath()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	registry, err := config.LoadFrom(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := registry.AddDevice("192.168.1.50", &config.Device{
//	    Name:    "Boiler",
//	    Sensors: []string{"power_act", "temp1"},
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := registry.SaveTo(path); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// Writes are serialized by a mutex and replace the file atomically
// through a temporary file and rename.
package config
