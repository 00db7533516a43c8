package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/mypv/internal/coordinator"
)

// Run shows the dashboard until the user quits or ctx is canceled.
func Run(ctx context.Context, devices []Device, opts ...tea.ProgramOption) error {
	updates := make(chan string, 16)
	for _, dev := range devices {
		host := dev.Host()
		stop := dev.OnUpdate(func(coordinator.Update) {
			select {
			case updates <- host:
			default:
			}
		})
		defer stop()
	}

	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(NewModel(ctx, devices, updates), opts...)
	if _, err := p.Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return err
	}
	return nil
}
