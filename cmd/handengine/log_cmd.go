package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/lox/handengine/internal/phh"
)

// LogCmd is the root command for hand log utilities.
type LogCmd struct {
	Show   LogShowCmd   `cmd:"show" help:"Pretty-print a hand log"`
	Export LogExportCmd `cmd:"export" help:"Export a hand log as Poker Hand History (TOML)"`
}

// LogShowCmd renders a log for a terminal.
type LogShowCmd struct {
	File    string `arg:"" name:"file" help:"Hand log in JSON Lines form" type:"existingfile"`
	Viewer  string `help:"Show hole cards as this player would have seen them"`
	NoColor bool   `help:"Disable colour output"`
}

func (cmd LogShowCmd) Run() error {
	if cmd.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
	l, skipped, err := loadLog(cmd.File)
	if err != nil {
		return err
	}
	renderLog(os.Stdout, l, cmd.Viewer)
	if skipped > 0 {
		fmt.Fprintf(os.Stderr, "%d malformed lines skipped\n", skipped)
	}
	return nil
}

// LogExportCmd converts a log to PHH.
type LogExportCmd struct {
	File   string `arg:"" name:"file" help:"Hand log in JSON Lines form" type:"existingfile"`
	Output string `short:"o" help:"Write to this file instead of stdout"`
	Table  string `default:"default" help:"Table name recorded in the export"`
}

func (cmd LogExportCmd) Run() error {
	var w io.Writer = os.Stdout
	if cmd.Output != "" {
		f, err := os.Create(cmd.Output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return cmd.export(w)
}

func (cmd LogExportCmd) export(w io.Writer) error {
	l, _, err := loadLog(cmd.File)
	if err != nil {
		return err
	}
	var ts time.Time
	if info, err := os.Stat(cmd.File); err == nil {
		ts = info.ModTime()
	}
	h, err := phh.FromLog(l, cmd.Table, ts)
	if err != nil {
		return err
	}
	return phh.Encode(w, h)
}
