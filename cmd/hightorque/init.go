package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/tianrking/HighTorque-Control/pkg/config"
)

type InitCommand struct{}

func (c *InitCommand) Execute(args []string) error {
	path := opts.Config
	if _, err := os.Stat(path); err == nil {
		if !confirm(fmt.Sprintf("%s already exists. Overwrite it?", path), "Overwrite") {
			fmt.Println("Aborted.")
			return nil
		}
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Printf("%s Configuration written to %s\n", successStyle.Render("✓"), path)
	fmt.Println("Edit it to match your bus, then run: " + headerStyle.Render("hightorque scan"))
	return nil
}

// confirm asks a yes/no question. A declined form or a ctrl-c counts as no.
func confirm(title, affirmative string) bool {
	var yes bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative(affirmative).
				Negative("Abort").
				Value(&yes),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return yes
}
