// Package config contains BungeeGuard Config and the code to load it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/configtypes"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-envparse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is a prefix of environment variables overriding configuration keys.
// Key path separators and dashes become underscores: log.level is
// BUNGEEGUARD_LOG_LEVEL and allowed-tokens is BUNGEEGUARD_ALLOWED_TOKENS.
const EnvPrefix = "BUNGEEGUARD"

// AllowedTokensKey is the configuration key holding trusted proxy tokens.
const AllowedTokensKey = "allowed-tokens"

type Config struct {
	// AllowedTokens are proxy tokens the backend trusts.
	AllowedTokens []string `mapstructure:"allowed-tokens" json:"allowed-tokens" toml:"allowed-tokens" yaml:"allowed-tokens"`
	// TokenPolicy is fixed (only AllowedTokens are trusted, an empty list denies
	// everyone) or trust-first-use (while AllowedTokens is empty the first token
	// presented is trusted and written back to the configuration file).
	TokenPolicy string `mapstructure:"token-policy" json:"token-policy" toml:"token-policy" yaml:"token-policy"`

	// NoDataKickMessage is shown when the handshake carries no usable forwarded data.
	NoDataKickMessage string `mapstructure:"no-data-kick-message" json:"no-data-kick-message" toml:"no-data-kick-message" yaml:"no-data-kick-message"`
	// NoPropertiesKickMessage is shown when forwarded data has no token. Falls back
	// to NoDataKickMessage when empty.
	NoPropertiesKickMessage string `mapstructure:"no-properties-kick-message" json:"no-properties-kick-message" toml:"no-properties-kick-message" yaml:"no-properties-kick-message"`
	// InvalidTokenKickMessage is shown when the token is not trusted.
	InvalidTokenKickMessage string `mapstructure:"invalid-token-kick-message" json:"invalid-token-kick-message" toml:"invalid-token-kick-message" yaml:"invalid-token-kick-message"`

	// HandshakeSource selects how handshakes reach the verifier: event (HTTP
	// verification API), packet (TCP gateway) or auto to pick the first enabled.
	HandshakeSource string `mapstructure:"handshake_source" json:"handshake_source" toml:"handshake_source" yaml:"handshake_source"`

	// HTTP is a configuration for HTTP server with health, metrics and verification endpoints.
	HTTP configtypes.HTTPServer `mapstructure:"http_server" json:"http_server" toml:"http_server" yaml:"http_server"`
	// Log is a configuration for logging.
	Log configtypes.Log `mapstructure:"log" json:"log" toml:"log" yaml:"log"`
	// Gateway is a configuration of the TCP intermediary in front of a backend server.
	Gateway configtypes.Gateway `mapstructure:"gateway" json:"gateway" toml:"gateway" yaml:"gateway"`
	// VerifyAPI is a configuration of the HTTP handshake verification endpoint.
	VerifyAPI configtypes.VerifyAPI `mapstructure:"verify_api" json:"verify_api" toml:"verify_api" yaml:"verify_api"`
	// Proxy is a configuration of the sending side.
	Proxy configtypes.Proxy `mapstructure:"proxy" json:"proxy" toml:"proxy" yaml:"proxy"`
	// Prometheus metrics configuration.
	Prometheus configtypes.Prometheus `mapstructure:"prometheus" json:"prometheus" toml:"prometheus" yaml:"prometheus"`
	// Health check endpoint configuration.
	Health configtypes.Health `mapstructure:"health" json:"health" toml:"health" yaml:"health"`
	// Shutdown is a configuration for graceful shutdown.
	Shutdown configtypes.Shutdown `mapstructure:"shutdown" json:"shutdown" toml:"shutdown" yaml:"shutdown"`

	// WatchConfig reloads allowed tokens when the configuration file changes.
	WatchConfig bool `mapstructure:"watch_config" json:"watch_config" toml:"watch_config" yaml:"watch_config"`
	// PidFile is a path to write a file with BungeeGuard process PID.
	PidFile string `mapstructure:"pid_file" json:"pid_file" toml:"pid_file" yaml:"pid_file"`
}

type Meta struct {
	FileNotFound bool
	UnknownKeys  []string
	UnknownEnvs  []string
	// KnownEnvVars maps every environment variable name to the key it
	// overrides and the resolved value.
	KnownEnvVars map[string]EnvVarInfo
}

// EnvVarInfo describes a configuration key settable from environment.
type EnvVarInfo struct {
	Key   string
	Value any
	// InFile is true when the configuration file sets the key.
	InFile bool
}

var defaults = map[string]any{
	"allowed-tokens":             []string{},
	"token-policy":               "fixed",
	"no-data-kick-message":       "&cUnable to authenticate - no data was forwarded by the proxy.",
	"no-properties-kick-message": "",
	"invalid-token-kick-message": "&cUnable to authenticate.",
	"handshake_source":           "auto",

	"http_server.address": "",
	"http_server.port":    8000,

	"log.level":                 "info",
	"log.file":                  "",
	"log.token_redaction":       "prefix",
	"log.rejections_per_second": 10.0,
	"log.rejections_burst":      20,

	"gateway.enabled":                false,
	"gateway.listen":                 ":25565",
	"gateway.backend":                "",
	"gateway.read_timeout":           "5s",
	"gateway.dial_timeout":           "5s",
	"gateway.connections_per_second": 0.0,
	"gateway.connections_burst":      50,

	"verify_api.enabled":             false,
	"verify_api.handler_prefix":      "/verify",
	"verify_api.requests_per_second": 0.0,
	"verify_api.requests_burst":      100,

	"proxy.token_file": "token.yml",

	"prometheus.enabled":        false,
	"prometheus.handler_prefix": "/metrics",
	"health.enabled":            false,
	"health.handler_prefix":     "/health",

	"shutdown.timeout": "30s",
	"watch_config":     false,
	"pid_file":         "",
}

func DefineFlags(rootCmd *cobra.Command) {
	rootCmd.Flags().StringP("pid_file", "", "", "optional path to create PID file")
	rootCmd.Flags().StringP("http_server.address", "a", "", "interface address to listen on")
	rootCmd.Flags().StringP("http_server.port", "p", "8000", "port to bind HTTP server to")
	rootCmd.Flags().StringP("log.level", "", "info", "set the log level: trace, debug, info, error, fatal or none")
	rootCmd.Flags().StringP("log.file", "", "", "optional log file - if not specified logs go to STDOUT")
	rootCmd.Flags().StringP("token-policy", "", "fixed", "token policy: fixed or trust-first-use")
	rootCmd.Flags().StringP("handshake_source", "", "auto", "handshake source: auto, event or packet")
	rootCmd.Flags().BoolP("gateway.enabled", "", false, "enable TCP gateway in front of a backend server")
	rootCmd.Flags().StringP("gateway.listen", "", ":25565", "address for the gateway to accept client connections on")
	rootCmd.Flags().StringP("gateway.backend", "", "", "address of the backend server behind the gateway")
	rootCmd.Flags().BoolP("verify_api.enabled", "", false, "enable HTTP handshake verification endpoint")
	rootCmd.Flags().BoolP("prometheus.enabled", "", false, "enable Prometheus metrics endpoint")
	rootCmd.Flags().BoolP("health.enabled", "", false, "enable health check endpoint")
	rootCmd.Flags().BoolP("watch_config", "", false, "reload allowed tokens when config file changes")
}

var bindPFlags = []string{
	"pid_file", "http_server.port", "http_server.address", "log.level", "log.file", "token-policy",
	"handshake_source", "gateway.enabled", "gateway.listen", "gateway.backend", "verify_api.enabled",
	"prometheus.enabled", "health.enabled", "watch_config", "proxy.token_file",
}

var envKeyReplacer = strings.NewReplacer(".", "_", "-", "_")

func newViper() *viper.Viper {
	v := viper.NewWithOptions(viper.WithDecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		configtypes.StringToDurationHookFunc(),
	)))
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	return v
}

// setConfigFile points v to configFile. Files without extension are read as YAML.
func setConfigFile(v *viper.Viper, configFile string) {
	v.SetConfigFile(configFile)
	if filepath.Ext(configFile) == "" {
		v.SetConfigType("yaml")
	}
}

func GetConfig(cmd *cobra.Command, configFile string) (Config, Meta, error) {
	v := newViper()

	if cmd != nil {
		for _, flag := range bindPFlags {
			_ = v.BindPFlag(flag, cmd.Flags().Lookup(flag))
		}
	}

	meta := Meta{}

	if configFile != "" {
		setConfigFile(v, configFile)
		err := v.ReadInConfig()
		if err != nil {
			var configFileNotFoundError *os.PathError
			if errors.As(err, &configFileNotFoundError) {
				meta.FileNotFound = true
			} else {
				return Config{}, Meta{}, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	conf := &Config{}

	err := v.Unmarshal(conf)
	if err != nil {
		return Config{}, Meta{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	meta.UnknownKeys = findUnknownKeys(v.AllSettings(), conf, "")
	meta.KnownEnvVars = knownEnvVars(v)
	meta.UnknownEnvs = checkEnvironmentVars(meta.KnownEnvVars)

	return *conf, meta, nil
}

// EnvVarName returns the environment variable overriding key.
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(envKeyReplacer.Replace(key))
}

func knownEnvVars(v *viper.Viper) map[string]EnvVarInfo {
	known := make(map[string]EnvVarInfo, len(defaults))
	for _, key := range v.AllKeys() {
		known[EnvVarName(key)] = EnvVarInfo{Key: key, Value: v.Get(key), InFile: v.InConfig(key)}
	}
	return known
}

// findValidKeys recursively finds valid keys in a struct, including embedded structs
func findValidKeys(typ reflect.Type, validKeys map[string]reflect.StructField) {
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")

		if tag != "" && tag != ",squash" {
			validKeys[tag] = field
		} else if field.Anonymous && strings.Contains(tag, "squash") {
			embeddedType := field.Type
			if embeddedType.Kind() == reflect.Ptr {
				embeddedType = embeddedType.Elem()
			}
			if embeddedType.Kind() == reflect.Struct {
				findValidKeys(embeddedType, validKeys)
			}
		}
	}
}

func findUnknownKeys(data map[string]interface{}, configStruct interface{}, parentKey string) []string {
	var unknownKeys []string
	val := reflect.ValueOf(configStruct)

	if val.Kind() == reflect.Ptr && val.IsNil() {
		val = reflect.New(val.Type().Elem())
	}
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	validKeys := make(map[string]reflect.StructField)
	findValidKeys(typ, validKeys)

	for key, value := range data {
		field, exists := validKeys[key]
		if !exists {
			unknownKeys = append(unknownKeys, appendKeyPath(parentKey, key))
			continue
		}
		fieldValue := val.FieldByName(field.Name)
		if fieldValue.Kind() != reflect.Struct || field.Anonymous {
			continue
		}
		if nestedMap, ok := value.(map[string]interface{}); ok {
			unknownKeys = append(unknownKeys, findUnknownKeys(nestedMap, fieldValue.Interface(), appendKeyPath(parentKey, key))...)
		}
	}

	return unknownKeys
}

func appendKeyPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func checkEnvironmentVars(knownEnvVars map[string]EnvVarInfo) []string {
	var unknownEnvs []string
	envPrefix := EnvPrefix + "_"
	envVars := os.Environ()

	for _, envVar := range envVars {
		kv, err := envparse.Parse(strings.NewReader(envVar))
		if err != nil {
			continue
		}
		for envKey := range kv {
			if !strings.HasPrefix(envKey, envPrefix) {
				continue
			}
			// Kubernetes adds service discovery variables for a service
			// named bungeeguard. We skip warnings about them.
			if isKubernetesEnvVar(envKey) {
				continue
			}
			if _, ok := knownEnvVars[envKey]; !ok {
				unknownEnvs = append(unknownEnvs, envKey)
			}
		}
	}
	return unknownEnvs
}

var k8sEnvRegex = regexp.MustCompile(`^BUNGEEGUARD(?:_[A-Z]+)?_(PORT|SERVICE_)`)

func isKubernetesEnvVar(envKey string) bool {
	return k8sEnvRegex.MatchString(envKey)
}

// DefaultConfig returns configuration with defaults only. Panics on error so
// it is mostly useful in tests and defaultconfig command.
func DefaultConfig() Config {
	conf, _, err := GetConfig(nil, "")
	if err != nil {
		panic("error during getting default config: " + err.Error())
	}
	return conf
}
