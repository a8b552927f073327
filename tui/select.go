package tui

import (
	"github.com/charmbracelet/huh"
)

// Select asks for one of names.
func Select(title string, description string, names []string) (string, error) {
	if !HasTTY {
		return "", ErrNoTTY
	}
	var selected string

	var opts []huh.Option[string]
	for _, name := range names {
		opts = append(opts, huh.NewOption(name, name))
	}

	descriptionText := description
	if description != "" && description != "\n" {
		descriptionText += "\n"
	}

	if err := huh.NewSelect[string]().
		Title(title).
		Description(descriptionText).
		Options(opts...).
		Value(&selected).Run(); err != nil {
		return "", err
	}

	return selected, nil
}
