// Package entity projects a device snapshot into host-facing entities:
// sensors, the boost button and the mode switch.
//
// Projection is pure apart from two pieces of per-entity memory: each sensor
// remembers its last valid value, and the mode switch remembers an
// optimistic state between a successful write and the next setup fetch.
// Unit scaling happens here and never in the snapshot.
package entity
