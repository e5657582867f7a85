package cli

import (
	"fmt"
	"runtime"

	"github.com/bungeeguard/bungeeguard/internal/build"

	"github.com/spf13/cobra"
)

func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "BungeeGuard version information",
		Long:  `Print the version information of BungeeGuard`,
		Run: func(cmd *cobra.Command, args []string) {
			version()
		},
	}
}

func version() {
	fmt.Printf("BungeeGuard v%s (Go version: %s)\n", build.Version, runtime.Version())
}
