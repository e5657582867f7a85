package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/disclosure"
	"github.com/bungeeguard/bungeeguard/internal/forwarder"
	"github.com/bungeeguard/bungeeguard/internal/property"
	"github.com/bungeeguard/bungeeguard/internal/proxytoken"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type forwardOptions struct {
	tokenFile  string
	server     string
	client     string
	name       string
	id         string
	offline    bool
	properties []string
}

func Forward() *cobra.Command {
	var forwardConfigFile string
	var opts forwardOptions
	var forwardCmd = &cobra.Command{
		Use:   "forward",
		Short: "Build forwarding handshake",
		Long:  `Build the forwarding handshake a proxy sends to a backend server, with proxy token attached`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, _, err := config.GetConfig(cmd, forwardConfigFile)
			if err != nil {
				fmt.Printf("error getting config: %v\n", err)
				os.Exit(1)
			}
			opts.tokenFile = cfg.Proxy.TokenFile
			out, err := forwardHandshake(opts)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%q\n", out)
		},
	}
	forwardCmd.Flags().StringVarP(&forwardConfigFile, "config", "c", "config.yml", "path to config file")
	forwardCmd.Flags().String("proxy.token_file", "token.yml", "path to proxy token file")
	forwardCmd.Flags().StringVarP(&opts.server, "server", "s", "localhost", "server hostname the player connected to")
	forwardCmd.Flags().StringVarP(&opts.client, "client", "", "127.0.0.1", "player address")
	forwardCmd.Flags().StringVarP(&opts.name, "name", "n", "", "player name")
	forwardCmd.Flags().StringVarP(&opts.id, "id", "", "", "player UUID, required unless --offline")
	forwardCmd.Flags().BoolVarP(&opts.offline, "offline", "", false, "offline mode login, UUID is derived from name")
	forwardCmd.Flags().StringArrayVarP(&opts.properties, "property", "P", nil, "profile property as name=value, may be repeated")
	return forwardCmd
}

func forwardHandshake(opts forwardOptions) (string, error) {
	var profile *disclosure.Profile
	var id uuid.UUID
	if opts.offline {
		if opts.name == "" {
			return "", errors.New("offline login requires --name")
		}
		id = forwarder.OfflineID(opts.name)
	} else {
		var err error
		if id, err = uuid.Parse(opts.id); err != nil {
			return "", fmt.Errorf("invalid --id: %w", err)
		}
		props, err := parseProperties(opts.properties)
		if err != nil {
			return "", err
		}
		profile = &disclosure.Profile{ID: id, Name: opts.name, Properties: props}
	}

	token, created, err := proxytoken.LoadOrCreate(opts.tokenFile)
	if err != nil {
		return "", err
	}
	if created {
		fmt.Fprintf(os.Stderr, "generated new proxy token in %s\n", opts.tokenFile)
	}

	_, view := disclosure.Inject(profile, token)
	return forwarder.NewConnector(view).Handshake(opts.server, opts.client, id)
}

func parseProperties(values []string) (property.List, error) {
	props := make(property.List, 0, len(values))
	for _, v := range values {
		name, value, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid property %q, expected name=value", v)
		}
		if name == property.TokenName {
			return nil, fmt.Errorf("property %s is reserved", property.TokenName)
		}
		props = append(props, property.New(name, value, ""))
	}
	return props, nil
}
