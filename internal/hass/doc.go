// Package hass publishes devices to Home Assistant over MQTT.
//
// Each device appears once its serial number is known. The bridge then
// publishes retained discovery configs, one per entity:
//
//	<discovery>/sensor/mypv_<serial>/<sensor key>/config
//	<discovery>/button/mypv_<serial>/boost/config
//	<discovery>/switch/mypv_<serial>/mode/config
//
// and on every update the entity states and the device availability:
//
//	<prefix>/<serial>/<object>/state
//	<prefix>/<serial>/status            online | offline
//
// Commands are accepted on <prefix>/<serial>/boost/press (PRESS) and
// <prefix>/<serial>/mode/set (ON or OFF). A bridge-wide availability topic,
// <prefix>/bridge/status, carries the MQTT last will; entities require both
// it and the device topic to be online.
package hass
