package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/mypv/internal/snapshot"
)

// Summary returns a one-line summary of the device
func (s *Set) Summary(snap snapshot.Snapshot) string {
	model := snap.Identity.Model
	if model == "" {
		model = "my-PV device"
	}
	serial := snap.Identity.Serial
	if serial == "" {
		serial = "unknown serial"
	}
	return fmt.Sprintf("%s %s @ %s (%s)", model, serial, s.Host, healthLabel(snap))
}

// FormatDeviceInfo returns identity and polling status
func (s *Set) FormatDeviceInfo(snap snapshot.Snapshot) string {
	var b strings.Builder

	b.WriteString("=== Device Information ===\n")
	fmt.Fprintf(&b, "Name:          %s\n", s.Name)
	fmt.Fprintf(&b, "Host:          %s\n", s.Host)
	fmt.Fprintf(&b, "Model:         %s\n", orDash(snap.Identity.Model))
	fmt.Fprintf(&b, "Serial Number: %s\n", orDash(snap.Identity.Serial))
	fmt.Fprintf(&b, "Status:        %s\n", healthLabel(snap))
	fmt.Fprintf(&b, "Last Success:  %s\n", formatTime(snap.LastSuccessAt))
	if snap.LastError != nil {
		fmt.Fprintf(&b, "Last Error:    %v\n", snap.LastError)
	}

	return b.String()
}

// FormatSensors returns one line per sensor
func (s *Set) FormatSensors(snap snapshot.Snapshot) string {
	var b strings.Builder

	b.WriteString("=== Sensors ===\n")
	states := s.SensorStates(snap)
	width := 0
	for _, st := range states {
		if n := len(st.Name); n > width {
			width = n
		}
	}
	for _, st := range states {
		fmt.Fprintf(&b, "%-*s  %s\n", width, st.Name, FormatValue(st))
	}

	return b.String()
}

// FormatControls returns the boost and mode state
func (s *Set) FormatControls(snap snapshot.Snapshot) string {
	var b strings.Builder

	boost, _ := snap.Data.Bool("boostactive")
	b.WriteString("=== Controls ===\n")
	fmt.Fprintf(&b, "Boost:       %s\n", onOff(boost))
	fmt.Fprintf(&b, "Device mode: %s\n", FormatValue(s.ModeState(snap)))

	return b.String()
}

// FormatCompact returns a compact multi-line format suitable for terminal display
func (s *Set) FormatCompact(snap snapshot.Snapshot) string {
	var b strings.Builder

	b.WriteString(s.Summary(snap))
	b.WriteString("\n")
	for _, st := range s.States(snap) {
		if st.Platform == PlatformButton {
			continue
		}
		fmt.Fprintf(&b, "  %s=%s", st.ObjectID, FormatValue(st))
	}
	b.WriteString("\n")

	return b.String()
}

// FormatDetailed returns every section with a banner
func (s *Set) FormatDetailed(snap snapshot.Snapshot) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("╔════════════════════════════════════════════════════════════════╗\n")
	b.WriteString("║                     MY-PV DEVICE STATUS                        ║\n")
	b.WriteString("╚════════════════════════════════════════════════════════════════╝\n")
	b.WriteString("\n")

	b.WriteString(s.FormatDeviceInfo(snap))
	b.WriteString("\n")
	b.WriteString(s.FormatSensors(snap))
	b.WriteString("\n")
	b.WriteString(s.FormatControls(snap))

	return b.String()
}

func healthLabel(snap snapshot.Snapshot) string {
	switch {
	case snap.Empty():
		return "no data"
	case snap.Healthy():
		return "online"
	default:
		return "stale"
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
