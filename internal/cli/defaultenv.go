package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/config"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
)

func DefaultEnv() *cobra.Command {
	var baseConfigFile string
	var baseNonZeroOnly bool
	var defaultEnvCmd = &cobra.Command{
		Use:   "defaultenv",
		Short: "Generate full environment var list with defaults",
		Long:  `Generate full BungeeGuard environment var list with defaults`,
		Run: func(cmd *cobra.Command, args []string) {
			defaultEnv(baseConfigFile, baseNonZeroOnly)
		},
	}
	defaultEnvCmd.Flags().StringVarP(&baseConfigFile, "base", "b", "", "path to the base config file to use")
	defaultEnvCmd.Flags().BoolVarP(&baseNonZeroOnly, "base-non-zero-only", "", false, "only output environment variables for keys set in base config file")
	return defaultEnvCmd
}

func defaultEnv(baseFile string, baseNonZeroOnly bool) {
	lines, err := envLines(baseFile, baseNonZeroOnly)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	for _, line := range lines {
		fmt.Println(line)
	}
}

func envLines(baseFile string, baseNonZeroOnly bool) ([]string, error) {
	conf, meta, err := config.GetConfig(nil, baseFile)
	if err != nil {
		return nil, err
	}
	if err = conf.Validate(); err != nil {
		return nil, err
	}
	envKeys := make([]string, 0, len(meta.KnownEnvVars))
	for env, info := range meta.KnownEnvVars {
		if baseNonZeroOnly && !info.InFile {
			continue
		}
		envKeys = append(envKeys, env)
	}
	sort.Strings(envKeys)
	lines := make([]string, 0, len(envKeys))
	for _, env := range envKeys {
		lines = append(lines, env+"="+envValue(meta.KnownEnvVars[env].Value))
	}
	return lines, nil
}

// envValue formats v the way the configuration loader parses it back.
// Lists are comma separated.
func envValue(v any) string {
	switch val := v.(type) {
	case []string:
		return strconv.Quote(strings.Join(val, ","))
	case []any:
		return strconv.Quote(strings.Join(cast.ToStringSlice(val), ","))
	case string:
		return strconv.Quote(val)
	default:
		return cast.ToString(val)
	}
}
