// Package ui renders the boxed results printed by one-shot CLI commands
// such as add, boost and mode.
//
// A result is a titled box with ordered key/value details and, for
// failures, the error and a list of troubleshooting tips:
//
//	p := ui.NewPrinter(os.Stdout)
//	p.PrintResult(ui.Success("Device added",
//		ui.Detail{Key: "Host", Value: "192.168.1.50"},
//		ui.Detail{Key: "Serial", Value: "2001002106190004"},
//	))
//
// Output width follows the terminal, clamped to MinWidth..MaxWidth. When
// stdout is not a terminal lipgloss drops the colors.
package ui
