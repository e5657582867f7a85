// Package disclosure attaches the proxy token to a connection's profile
// properties for the backend connector only.
//
// A Gate is created for every connection at login. It returns two views of
// the same profile: the PublicView, shared with everything that renders or
// relays player information to other clients, and the ForwardingView, which
// is handed to the component that builds the forwarding handshake. Only the
// ForwardingView ever sees the token. The two views have different method
// sets, so a ForwardingView can not be passed where a PropertyReader is
// expected.
package disclosure

import (
	"errors"
	"sync"

	"github.com/bungeeguard/bungeeguard/internal/property"

	"github.com/google/uuid"
)

var ErrOfflineProfile = errors.New("offline profile has no identity")

// Profile is the login result of a connection. A nil *Profile stands for an
// offline mode login, which has no identity and no properties.
type Profile struct {
	ID         uuid.UUID
	Name       string
	Properties property.List
}

// PropertyReader is what consumers other than the backend connector may
// depend on.
type PropertyReader interface {
	Properties() property.List
}

// Gate owns the profile of one connection. The profile is never modified to
// carry the token.
type Gate struct {
	mu         sync.RWMutex
	offline    bool
	id         uuid.UUID
	name       string
	properties property.List
}

// Inject wraps profile at login time. The returned ForwardingView must be
// given to the backend connector and nothing else.
func Inject(profile *Profile, secret string) (*Gate, ForwardingView) {
	g := &Gate{}
	if profile == nil {
		g.offline = true
		g.properties = property.List{}
	} else {
		g.id = profile.ID
		g.name = profile.Name
		g.properties = profile.Properties.Clone()
	}
	return g, ForwardingView{gate: g, secret: secret}
}

// Offline reports whether the connection logged in without a profile.
func (g *Gate) Offline() bool {
	return g.offline
}

// Identity returns the profile identity. It fails for offline logins.
func (g *Gate) Identity() (uuid.UUID, string, error) {
	if g.offline {
		return uuid.Nil, "", ErrOfflineProfile
	}
	return g.id, g.name, nil
}

// SetProperties replaces the stored properties, for example after a skin
// change. Both views observe the new list.
func (g *Gate) SetProperties(list property.List) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.properties = list.Clone()
}

// Public returns the view shared with the rest of the proxy.
func (g *Gate) Public() PublicView {
	return PublicView{gate: g}
}

func (g *Gate) snapshot() property.List {
	if g == nil {
		return property.List{}
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.properties.Clone()
}

// PublicView exposes the stored properties unchanged.
type PublicView struct {
	gate *Gate
}

// Properties returns a copy of the stored properties.
func (v PublicView) Properties() property.List {
	return v.gate.snapshot()
}

// ForwardingView exposes the stored properties with the token appended. The
// zero value, or a view with an empty secret, falls back to the stored
// properties.
type ForwardingView struct {
	gate   *Gate
	secret string
}

// Valid reports whether the view was produced by Inject with a secret.
func (v ForwardingView) Valid() bool {
	return v.gate != nil && v.secret != ""
}

// ForwardedProperties returns the properties to put into the forwarding
// handshake: the stored list followed by the token property.
func (v ForwardingView) ForwardedProperties() property.List {
	props := v.gate.snapshot()
	if !v.Valid() {
		return props
	}
	return props.With(property.New(property.TokenName, v.secret, ""))
}

// Identity returns the identity of the underlying profile.
func (v ForwardingView) Identity() (uuid.UUID, string, error) {
	if v.gate == nil {
		return uuid.Nil, "", ErrOfflineProfile
	}
	return v.gate.Identity()
}
