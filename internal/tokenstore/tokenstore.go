// Package tokenstore keeps the set of proxy tokens a backend trusts.
package tokenstore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bungeeguard/bungeeguard/internal/metrics"

	"github.com/rs/zerolog/log"
)

// Policy decides how the store treats tokens it has not seen.
type Policy int

const (
	// PolicyFixed accepts only configured tokens. An empty set denies
	// every connection.
	PolicyFixed Policy = iota
	// PolicyTrustFirstUse accepts and remembers the first token presented
	// while the set is empty, then behaves like PolicyFixed.
	PolicyTrustFirstUse
)

// ParsePolicy parses a policy name: fixed or trust-first-use.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "fixed":
		return PolicyFixed, nil
	case "trust-first-use", "trust_first_use", "tofu":
		return PolicyTrustFirstUse, nil
	default:
		return 0, fmt.Errorf("unknown token policy %q", s)
	}
}

func (p Policy) String() string {
	if p == PolicyTrustFirstUse {
		return "trust-first-use"
	}
	return "fixed"
}

// Source supplies the configured tokens on reload.
type Source interface {
	LoadTokens() ([]string, error)
}

// Persister stores tokens learned by PolicyTrustFirstUse.
type Persister interface {
	SaveTokens(tokens []string) error
}

var ErrNoSource = errors.New("token store has no source to reload from")

// Config of Store.
type Config struct {
	Policy Policy
	// Source is used by Reload. Optional.
	Source Source
	// Persister receives the bootstrap token. Optional, without it a
	// learned token lives only in memory.
	Persister Persister
}

// Store is safe for concurrent use.
type Store struct {
	config Config

	mu     sync.RWMutex
	tokens map[string]struct{}
	// order keeps configuration order for persisting and listing.
	order []string
	// learned is the token trusted on first use. Once set the bootstrap is
	// over for the lifetime of the store.
	learned string
}

// New creates an empty Store. Call Load or Reload before use.
func New(c Config) *Store {
	return &Store{
		config: c,
		tokens: map[string]struct{}{},
	}
}

// Policy returns the policy the store was created with.
func (s *Store) Policy() Policy {
	return s.config.Policy
}

// Load replaces the trusted set. Empty strings and duplicates are dropped.
func (s *Store) Load(tokens []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(tokens)
}

func (s *Store) setLocked(tokens []string) {
	set := make(map[string]struct{}, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := set[t]; ok {
			continue
		}
		set[t] = struct{}{}
		order = append(order, t)
	}
	s.tokens = set
	s.order = order
}

// Reload reads tokens from the configured Source and loads them. On error
// the current set stays in place. The store is locked for the whole read so
// a reload never interleaves with a first-use bootstrap. Under
// PolicyTrustFirstUse an empty Source keeps the learned token, so the
// bootstrap happens at most once.
func (s *Store) Reload() error {
	if s.config.Source == nil {
		return ErrNoSource
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.config.Source.LoadTokens()
	if err != nil {
		metrics.TokenStoreReloads.WithLabelValues("error").Inc()
		return fmt.Errorf("error loading tokens: %w", err)
	}
	s.setLocked(tokens)
	if len(s.tokens) == 0 && s.learned != "" {
		s.tokens[s.learned] = struct{}{}
		s.order = append(s.order, s.learned)
		log.Warn().Msg("reloaded token list is empty, keeping the token trusted on first use")
		s.persistLocked()
	}
	metrics.TokenStoreReloads.WithLabelValues("ok").Inc()
	return nil
}

// IsAllowed reports whether token is trusted. Under PolicyTrustFirstUse an
// empty store accepts token, keeps it and persists it.
func (s *Store) IsAllowed(token string) bool {
	if token == "" {
		return false
	}
	s.mu.RLock()
	_, ok := s.tokens[token]
	bootstrap := s.bootstrapLocked()
	s.mu.RUnlock()
	if !bootstrap {
		return ok
	}

	// Check again under the write lock, another connection may have won.
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bootstrapLocked() {
		_, ok := s.tokens[token]
		return ok
	}
	s.tokens[token] = struct{}{}
	s.order = append(s.order, token)
	s.learned = token
	metrics.TokenStoreBootstrap.Inc()
	log.Warn().Str("policy", s.config.Policy.String()).Msg("no tokens configured, trusting the first token presented")
	s.persistLocked()
	return true
}

func (s *Store) bootstrapLocked() bool {
	return s.config.Policy == PolicyTrustFirstUse && s.learned == "" && len(s.tokens) == 0
}

func (s *Store) persistLocked() {
	if s.config.Persister == nil {
		return
	}
	if err := s.config.Persister.SaveTokens(append([]string(nil), s.order...)); err != nil {
		log.Error().Err(err).Msg("error persisting learned token, it is trusted until restart only")
	}
}

// Tokens returns a copy of the trusted tokens in load order.
func (s *Store) Tokens() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of trusted tokens.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}
