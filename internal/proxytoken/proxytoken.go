// Package proxytoken manages the secret a proxy adds to forwarded
// connections.
package proxytoken

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultLength is the length of generated tokens.
const DefaultLength = 64

const tokenChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

type tokenFile struct {
	Token string `yaml:"token"`
}

// Generate returns a random alphanumeric token of the given length.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("token length must be positive, got %d", length)
	}
	max := big.NewInt(int64(len(tokenChars)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("error reading random: %w", err)
		}
		b[i] = tokenChars[n.Int64()]
	}
	return string(b), nil
}

// Load reads the token from path. A missing file yields an empty token and
// no error.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var f tokenFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", fmt.Errorf("error parsing %s: %w", path, err)
	}
	return f.Token, nil
}

// Save writes token to path, creating parent directories.
func Save(path string, token string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := yaml.Marshal(tokenFile{Token: token})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadOrCreate returns the token stored at path. When there is none a new
// token is generated and saved right away. A save failure is logged and the
// generated token is still returned, it is then valid for this process only.
func LoadOrCreate(path string) (token string, created bool, err error) {
	token, err = Load(path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("error loading proxy token, generating a new one")
	}
	if token != "" {
		return token, false, nil
	}
	token, err = Generate(DefaultLength)
	if err != nil {
		return "", false, err
	}
	if err := Save(path, token); err != nil {
		log.Error().Err(err).Str("path", path).Msg("error saving proxy token")
	}
	return token, true, nil
}
