// Package forwarder builds the forwarding handshake a proxy sends to a
// backend in place of the plain server hostname.
package forwarder

import (
	"crypto/md5"
	"errors"

	"github.com/bungeeguard/bungeeguard/internal/disclosure"
	"github.com/bungeeguard/bungeeguard/internal/handshake"

	"github.com/google/uuid"
)

var ErrNoForwardingView = errors.New("connector has no forwarding view")

// Connector is the backend connector of a single proxied connection. It is
// the only holder of the connection's ForwardingView.
type Connector struct {
	view disclosure.ForwardingView
}

// NewConnector creates a connector for the view returned by
// disclosure.Inject.
func NewConnector(view disclosure.ForwardingView) *Connector {
	return &Connector{view: view}
}

// Handshake returns the forwarding handshake for a login to serverHostname
// from clientAddress. id is the identity the proxy assigned to the
// connection, for offline logins see OfflineID.
func (c *Connector) Handshake(serverHostname, clientAddress string, id uuid.UUID) (string, error) {
	if !c.view.Valid() {
		return "", ErrNoForwardingView
	}
	return handshake.Encode(serverHostname, clientAddress, id, c.view.ForwardedProperties()), nil
}

// OfflineID returns the identity proxies assign to offline mode players: a
// version 3 UUID of "OfflinePlayer:<name>" without a namespace.
func OfflineID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = (sum[6] & 0x0f) | 0x30
	sum[8] = (sum[8] & 0x3f) | 0x80
	return uuid.UUID(sum)
}
