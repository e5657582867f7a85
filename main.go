package main

import (
	"github.com/bungeeguard/bungeeguard/internal/app"
	"github.com/bungeeguard/bungeeguard/internal/cli"
)

func main() {
	rootCmd := app.BungeeGuard()
	rootCmd.AddCommand(
		cli.Version(),
		cli.CheckConfig(),
		cli.DefaultConfigCommand(),
		cli.DefaultEnv(),
		cli.GenToken(),
		cli.CheckHandshake(),
		cli.Forward(),
	)
	_ = rootCmd.Execute()
}
