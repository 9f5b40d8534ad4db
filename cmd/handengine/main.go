package main

import (
	"github.com/alecthomas/kong"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	Version kong.VersionFlag `short:"v" help:"Show version"`
	Serve   ServeCmd         `cmd:"" help:"Run tables and stream spectator frames over WebSocket"`
	Verify  VerifyCmd        `cmd:"" help:"Check a hand log against its revealed proof"`
	Replay  ReplayCmd        `cmd:"" help:"Re-drive a logged hand through a fresh state machine"`
	Log     LogCmd           `cmd:"" help:"Inspect and export hand logs"`
	Soak    SoakCmd          `cmd:"" help:"Play many seeded hands across tables and audit every log"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("handengine"),
		kong.Description("Provably fair poker hand engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
