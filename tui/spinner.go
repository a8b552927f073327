package tui

import (
	"github.com/charmbracelet/huh/spinner"
)

// ShowSpinner displays a spinner while action runs and returns its error.
// Without a TTY the action runs silently.
func ShowSpinner(title string, action func() error) error {
	if !HasTTY {
		return action()
	}
	var actionErr error
	if err := spinner.New().
		Title(title).
		Action(func() {
			actionErr = action()
		}).
		Run(); err != nil {
		return err
	}
	return actionErr
}
