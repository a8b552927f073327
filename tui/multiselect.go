package tui

import (
	"github.com/charmbracelet/huh"
)

// MultiSelect will display a multi-select list of names and return the selected ones
func MultiSelect(title string, description string, names []string) ([]string, error) {
	if !HasTTY {
		return nil, ErrNoTTY
	}
	var selected []string
	var options []huh.Option[string]

	for _, name := range names {
		options = append(options, huh.NewOption(name, name))
	}

	if description == "" {
		description = "Toggle selection by pressing the spacebar\nPress enter to confirm"
	}

	if err := huh.NewMultiSelect[string]().
		Options(
			options...,
		).
		Title(title).
		Description(description + "\n").
		Value(&selected).
		WithHeight(20).
		Run(); err != nil {
		return nil, err
	}

	return selected, nil
}
