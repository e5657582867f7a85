package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bungeeguard/bungeeguard/internal/config"
	"github.com/bungeeguard/bungeeguard/internal/forwarder"
	"github.com/bungeeguard/bungeeguard/internal/proxytoken"

	"github.com/stretchr/testify/require"
)

func TestValidateConfigFile(t *testing.T) {
	dir := t.TempDir()

	err := validateConfigFile(nil, filepath.Join(dir, "missing.yml"), false)
	require.ErrorContains(t, err, "config file not found")

	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("allowed-tokens: [abc]\nunknown_key: 1\n"), 0600))
	require.NoError(t, validateConfigFile(nil, path, false))
	require.ErrorContains(t, validateConfigFile(nil, path, true), "unknown_key")

	require.NoError(t, os.WriteFile(path, []byte("token-policy: sometimes\n"), 0600))
	require.ErrorContains(t, validateConfigFile(nil, path, false), "error validating config")
}

func TestWriteDefaultConfig(t *testing.T) {
	for _, ext := range []string{"json", "toml", "yaml", "yml"} {
		t.Run(ext, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config."+ext)
			require.NoError(t, writeDefaultConfig(path))

			cfg, meta, err := config.GetConfig(nil, path)
			require.NoError(t, err)
			require.False(t, meta.FileNotFound)
			require.Empty(t, meta.UnknownKeys)
			require.NoError(t, cfg.Validate())
			defaults := config.DefaultConfig()
			require.Empty(t, cfg.AllowedTokens)
			require.Equal(t, defaults.TokenPolicy, cfg.TokenPolicy)
			require.Equal(t, defaults.InvalidTokenKickMessage, cfg.InvalidTokenKickMessage)
			require.Equal(t, defaults.Log, cfg.Log)
			require.Equal(t, defaults.Gateway, cfg.Gateway)
			require.Equal(t, defaults.Shutdown, cfg.Shutdown)

			require.ErrorContains(t, writeDefaultConfig(path), "already exists")
		})
	}
	require.ErrorContains(t, writeDefaultConfig(filepath.Join(t.TempDir(), "config.ini")), "supported extensions")
}

func TestEnvLines(t *testing.T) {
	lines, err := envLines("", false)
	require.NoError(t, err)
	require.Contains(t, lines, `BUNGEEGUARD_TOKEN_POLICY="fixed"`)
	require.Contains(t, lines, `BUNGEEGUARD_ALLOWED_TOKENS=""`)
	require.Contains(t, lines, `BUNGEEGUARD_HTTP_SERVER_PORT=8000`)
	require.Contains(t, lines, `BUNGEEGUARD_GATEWAY_READ_TIMEOUT="5s"`)

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("allowed-tokens: [first, second]\n"), 0600))
	lines, err = envLines(path, true)
	require.NoError(t, err)
	require.Equal(t, []string{`BUNGEEGUARD_ALLOWED_TOKENS="first,second"`}, lines)
}

func TestParseHandshakeArg(t *testing.T) {
	require.Equal(t, "a\x00b\x00c", parseHandshakeArg(`a\0b\x00c`))
	require.Equal(t, "a\x00b", parseHandshakeArg(`"a\x00b"`))
	require.Equal(t, `"broken`, parseHandshakeArg(`"broken`))
}

func TestForwardThenCheck(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token.yml")
	out, err := forwardHandshake(forwardOptions{
		tokenFile:  tokenFile,
		server:     "play.example.com",
		client:     "203.0.113.5",
		name:       "Notch",
		id:         "069a79f4-44e9-4726-a5be-fca90e38aaf5",
		properties: []string{"textures=abc"},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "play.example.com\x00203.0.113.5\x00069a79f444e94726a5befca90e38aaf5\x00"))

	token, err := proxytoken.Load(tokenFile)
	require.NoError(t, err)
	require.Len(t, token, proxytoken.DefaultLength)
	require.Contains(t, out, token)

	cfg := config.DefaultConfig()
	_, err = checkHandshake(cfg, out)
	require.ErrorContains(t, err, "denied: INCORRECT_TOKEN")
	require.NotContains(t, err.Error(), token)

	cfg.AllowedTokens = []string{token}
	verdict, err := checkHandshake(cfg, out)
	require.NoError(t, err)
	require.Contains(t, verdict, "valid handshake for 069a79f4-44e9-4726-a5be-fca90e38aaf5 @ 203.0.113.5")
	require.Contains(t, verdict, "textures")
	require.NotContains(t, verdict, token)
}

func TestForwardOffline(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token.yml")
	require.NoError(t, proxytoken.Save(tokenFile, "secret"))

	out, err := forwardHandshake(forwardOptions{tokenFile: tokenFile, server: "s", client: "c", name: "Notch", offline: true})
	require.NoError(t, err)
	id := forwarder.OfflineID("Notch")
	require.Equal(t, "s\x00c\x00"+strings.ReplaceAll(id.String(), "-", "")+"\x00[{\"name\":\"bungeeguard-token\",\"value\":\"secret\"}]", out)

	_, err = forwardHandshake(forwardOptions{tokenFile: tokenFile, offline: true})
	require.Error(t, err)
}

func TestForwardErrors(t *testing.T) {
	tokenFile := filepath.Join(t.TempDir(), "token.yml")
	_, err := forwardHandshake(forwardOptions{tokenFile: tokenFile, id: "nope"})
	require.ErrorContains(t, err, "invalid --id")

	id := "069a79f4-44e9-4726-a5be-fca90e38aaf5"
	_, err = forwardHandshake(forwardOptions{tokenFile: tokenFile, id: id, properties: []string{"novalue"}})
	require.ErrorContains(t, err, "expected name=value")

	_, err = forwardHandshake(forwardOptions{tokenFile: tokenFile, id: id, properties: []string{"bungeeguard-token=forged"}})
	require.ErrorContains(t, err, "reserved")
}
