package main

import (
	"errors"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrGraphFileRequired is returned when -g is omitted and stdin isn't a
// terminal to prompt on, grounded on the teacher's pkg/ux machine-mode
// fallback for prompts with no interactive session to run in.
var ErrGraphFileRequired = errors.New("wasmati-query: -g FILE is required (no terminal to prompt on)")

// promptGraphFile asks for the -g archive path interactively when the
// flag was omitted but a terminal is attached.
func promptGraphFile() (string, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return "", ErrGraphFileRequired
	}
	var path string
	input := huh.NewInput().
		Title("Path to a serialized CPG archive (-g)").
		Placeholder("graph.zip").
		Value(&path)
	if err := huh.NewForm(huh.NewGroup(input)).Run(); err != nil {
		return "", err
	}
	if path == "" {
		return "", ErrGraphFileRequired
	}
	return path, nil
}
