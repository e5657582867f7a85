package config

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var ErrNoConfigFile = errors.New("no configuration file")

// TokenFile is the configuration file as a backing store of allowed tokens.
// It satisfies tokenstore.Source and tokenstore.Persister.
type TokenFile struct {
	mu   sync.Mutex
	path string
}

// NewTokenFile creates TokenFile for the configuration file at path.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{path: path}
}

// Path of the configuration file.
func (f *TokenFile) Path() string {
	return f.path
}

// LoadTokens reads allowed tokens the same way GetConfig does, so environment
// overrides apply. A missing file yields no tokens.
func (f *TokenFile) LoadTokens() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conf, _, err := GetConfig(nil, f.path)
	if err != nil {
		return nil, err
	}
	return conf.AllowedTokens, nil
}

// SaveTokens writes tokens under allowed-tokens keeping other keys of the file.
// The file is created when missing.
func (f *TokenFile) SaveTokens(tokens []string) error {
	if f.path == "" {
		return ErrNoConfigFile
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	v := viper.New()
	setConfigFile(v, f.path)
	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("error reading config file %s: %w", f.path, err)
		}
	}
	v.Set(AllowedTokensKey, tokens)
	if err := v.WriteConfigAs(f.path); err != nil {
		return fmt.Errorf("error writing config file %s: %w", f.path, err)
	}
	log.Info().Str("path", f.path).Int("num_tokens", len(tokens)).Msg("allowed tokens saved to configuration file")
	return nil
}

// Watch calls onChange every time the configuration file is written or
// replaced. Watching lasts for the lifetime of the process.
func Watch(path string, onChange func()) error {
	if path == "" {
		return ErrNoConfigFile
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("error watching config file: %w", err)
	}
	v := viper.New()
	setConfigFile(v, path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("path", e.Name).Str("op", e.Op.String()).Msg("configuration file changed")
		onChange()
	})
	v.WatchConfig()
	return nil
}
