package cli

import (
	"fmt"
	"os"

	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/proxytoken"

	"github.com/spf13/cobra"
)

func GenToken() *cobra.Command {
	var genTokenConfigFile string
	var genTokenLength int
	var genTokenQuiet bool
	var genTokenPrintOnly bool
	var genTokenCmd = &cobra.Command{
		Use:   "gentoken",
		Short: "Generate proxy token",
		Long:  `Generate proxy token and store it in proxy token file unless one exists`,
		Run: func(cmd *cobra.Command, args []string) {
			genToken(cmd, genTokenConfigFile, genTokenLength, genTokenQuiet, genTokenPrintOnly)
		},
	}
	genTokenCmd.Flags().StringVarP(&genTokenConfigFile, "config", "c", "config.yml", "path to config file")
	genTokenCmd.Flags().String("proxy.token_file", "token.yml", "path to proxy token file")
	genTokenCmd.Flags().IntVarP(&genTokenLength, "length", "l", proxytoken.DefaultLength, "token length, only used with --print-only")
	genTokenCmd.Flags().BoolVarP(&genTokenQuiet, "quiet", "q", false, "only output the token without anything else")
	genTokenCmd.Flags().BoolVarP(&genTokenPrintOnly, "print-only", "", false, "print a fresh token without touching token file")
	return genTokenCmd
}

func genToken(cmd *cobra.Command, genTokenConfigFile string, length int, quiet bool, printOnly bool) {
	if printOnly {
		token, err := proxytoken.Generate(length)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(token)
		if !quiet {
			fmt.Println()
		}
		return
	}
	cfg, _, err := config.GetConfig(cmd, genTokenConfigFile)
	if err != nil {
		fmt.Printf("error getting config: %v\n", err)
		os.Exit(1)
	}
	token, created, err := proxytoken.LoadOrCreate(cfg.Proxy.TokenFile)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	if quiet {
		fmt.Print(token)
		return
	}
	state := "existing"
	if created {
		state = "new"
	}
	fmt.Printf("%s proxy token in %s:\n%s\nadd it to allowed-tokens of every backend server\n", state, cfg.Proxy.TokenFile, token)
}
