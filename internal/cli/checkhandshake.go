package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/handshake"
	"github.com/bungeeguard/bungeeguard/internal/tokenstore"

	"github.com/spf13/cobra"
)

func CheckHandshake() *cobra.Command {
	var checkHandshakeConfigFile string
	var checkHandshakeCmd = &cobra.Command{
		Use:   "checkhandshake [HANDSHAKE]",
		Short: "Verify forwarding handshake",
		Long: `Verify forwarding handshake against allowed tokens of configuration file.
Handshake is read from argument or STDIN. NUL separators may be written as \0
or \x00, a Go quoted string is accepted too.`,
		Args: cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runCheckHandshake(cmd, checkHandshakeConfigFile, args)
		},
	}
	checkHandshakeCmd.Flags().StringVarP(&checkHandshakeConfigFile, "config", "c", "config.yml", "path to config file")
	return checkHandshakeCmd
}

func runCheckHandshake(cmd *cobra.Command, checkHandshakeConfigFile string, args []string) {
	cfg, _, err := config.GetConfig(cmd, checkHandshakeConfigFile)
	if err != nil {
		fmt.Printf("error getting config: %v\n", err)
		os.Exit(1)
	}
	var raw string
	if len(args) == 1 {
		raw = args[0]
	} else {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Printf("error reading STDIN: %v\n", err)
			os.Exit(1)
		}
		raw = strings.TrimRight(string(data), "\r\n")
	}
	out, err := checkHandshake(cfg, parseHandshakeArg(raw))
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	fmt.Println(out)
}

var nulReplacer = strings.NewReplacer(`\x00`, "\x00", `\0`, "\x00")

func parseHandshakeArg(s string) string {
	if strings.HasPrefix(s, `"`) {
		if unquoted, err := strconv.Unquote(s); err == nil {
			return unquoted
		}
	}
	return nulReplacer.Replace(s)
}

// checkHandshake verifies raw against allowed tokens of cfg. The check never
// learns a token, whatever the configured policy.
func checkHandshake(cfg config.Config, raw string) (string, error) {
	redaction, err := cfg.Redaction()
	if err != nil {
		return "", err
	}
	store := tokenstore.New(tokenstore.Config{Policy: tokenstore.PolicyFixed})
	store.Load(cfg.AllowedTokens)

	v, err := handshake.Codec{Redaction: redaction}.DecodeAndVerify(raw, store)
	if err != nil {
		var f *handshake.Failure
		if errors.As(err, &f) {
			return "", fmt.Errorf("denied: %s (%s)", f.Reason, f.Context)
		}
		return "", err
	}
	return fmt.Sprintf("valid handshake for %s @ %s\nforwarded to backend: %q", v.ID, v.ClientAddressHostname, v.Encode()), nil
}
