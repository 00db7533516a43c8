package snapshot

import "time"

// Identity is the device identity read from the info resource.
type Identity struct {
	Serial string `json:"serial"`
	Model  string `json:"model"`
}

// Known reports whether a serial number has been established.
func (i Identity) Known() bool {
	return i.Serial != ""
}

// identityFrom extracts the identity fields from an info resource.
func identityFrom(info Resource) Identity {
	var id Identity
	id.Serial, _ = info.String("sn")
	id.Model, _ = info.String("device")
	return id
}

// Snapshot is the merged, last-known-good view of one device.
//
// Each resource field holds either the last successfully fetched value or
// nil if that resource has never been fetched successfully. A Snapshot is a
// value: once published it is never modified.
type Snapshot struct {
	Data  Resource
	Info  Resource
	Setup Resource

	// LastSuccessAt is when the data resource was last fetched successfully.
	LastSuccessAt time.Time
	// LastError is the data failure of the latest cycle, nil on success.
	LastError error
	// Failures holds the latest failure per resource kind that has not
	// since been superseded by a success.
	Failures map[Kind]error

	DataFetchedAt  time.Time
	InfoFetchedAt  time.Time
	SetupFetchedAt time.Time

	// Cycle increments on every published snapshot.
	Cycle uint64
	// SetupCycle is the Cycle in which Setup was last replaced.
	SetupCycle uint64

	Identity Identity
}

// Resource returns the stored resource for kind.
func (s Snapshot) Resource(kind Kind) Resource {
	switch kind {
	case KindData:
		return s.Data
	case KindInfo:
		return s.Info
	case KindSetup:
		return s.Setup
	}
	return nil
}

// Empty reports whether nothing has been fetched yet.
func (s Snapshot) Empty() bool {
	return s.Data == nil && s.Info == nil && s.Setup == nil
}

// Healthy reports whether the latest cycle fetched data successfully.
func (s Snapshot) Healthy() bool {
	return s.Data != nil && s.LastError == nil
}
