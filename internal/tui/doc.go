// Package tui is the live terminal dashboard behind "mypv watch".
//
// The dashboard lists every configured device with its sensors, boost and
// mode state, and redraws whenever a device publishes a new snapshot.
//
// Keys:
//
//	↑/k, ↓/j  select device
//	b         press boost on the selected device
//	m         toggle the device mode
//	r         refresh now
//	?         toggle full help
//	q         quit
//
// Commands run as tea.Cmds so the view never blocks on the network; the
// outcome of the last command is shown in the status line.
package tui
