// Package handshake decodes the forwarding handshake sent by a proxy in
// place of the server hostname and verifies the token embedded into its
// property list.
//
// The handshake consists of NUL separated segments:
//
//	<server hostname>\0<client address>\0<32 hex digit identity>\0<properties JSON>
//
// The properties segment is optional in the format but required for
// verification since it carries the token.
package handshake

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/property"

	"github.com/google/uuid"
)

const separator = "\x00"

var (
	ErrSegmentCount = errors.New("handshake must have 3 or 4 segments")
	ErrIdentity     = errors.New("malformed identity")
)

// Decoded is a structurally valid handshake. Nothing in it is trusted yet.
type Decoded struct {
	ServerHostname        string
	ClientAddressHostname string
	ID                    uuid.UUID
	// Properties is nil when the handshake had no properties segment.
	Properties property.List

	rawID string
}

// HasProperties reports whether the properties segment was present.
func (d Decoded) HasProperties() bool {
	return d.Properties != nil
}

// Describe returns a connection descriptor safe to log. It never includes
// property values.
func (d Decoded) Describe() string {
	switch {
	case d.rawID != "":
		return d.ID.String() + " @ " + d.ClientAddressHostname
	case d.ClientAddressHostname != "":
		return d.ClientAddressHostname
	default:
		return "unknown"
	}
}

// Decode parses raw without verifying anything. On error the returned
// Decoded holds whatever fields were parsed before the failure so that the
// connection can still be described.
func Decode(raw string) (d Decoded, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode panic: %v", r)
		}
	}()

	segments := splitSegments(raw)
	if len(segments) != 3 && len(segments) != 4 {
		return d, fmt.Errorf("%w: got %d", ErrSegmentCount, len(segments))
	}
	d.ServerHostname = segments[0]
	d.ClientAddressHostname = segments[1]

	id, err := parseIdentity(segments[2])
	if err != nil {
		return d, err
	}
	d.ID = id
	d.rawID = segments[2]

	if len(segments) == 3 {
		return d, nil
	}
	props, err := property.Parse(segments[3])
	if err != nil {
		return d, fmt.Errorf("malformed properties: %w", err)
	}
	d.Properties = props
	return d, nil
}

// splitSegments splits on NUL ignoring trailing empty segments, so a
// handshake ending with an empty properties segment is treated as having
// none.
func splitSegments(raw string) []string {
	segments := strings.Split(raw, separator)
	for len(segments) > 0 && segments[len(segments)-1] == "" {
		segments = segments[:len(segments)-1]
	}
	return segments
}

func parseIdentity(s string) (uuid.UUID, error) {
	var (
		id  uuid.UUID
		err error
	)
	switch len(s) {
	case 32:
		id, err = uuid.Parse(s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:32])
	case 36:
		id, err = uuid.Parse(s)
	default:
		return uuid.Nil, fmt.Errorf("%w: length %d", ErrIdentity, len(s))
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrIdentity, err)
	}
	return id, nil
}

// Verified is a handshake whose token has been accepted and removed from
// Properties. It is the only form which may be passed on to the backend.
type Verified struct {
	ServerHostname        string
	ClientAddressHostname string
	ID                    uuid.UUID
	Properties            property.List

	rawID string
}

// PropertiesJSON returns the sanitized property list in wire form.
func (v Verified) PropertiesJSON() string {
	return v.Properties.Encode()
}

// Encode re-joins the sanitized handshake in the format it arrived in. The
// identity keeps its original spelling.
func (v Verified) Encode() string {
	id := v.rawID
	if id == "" {
		id = undashed(v.ID)
	}
	return join(v.ServerHostname, v.ClientAddressHostname, id, v.Properties.Encode())
}

// Encode builds a forwarding handshake as a proxy sends it.
func Encode(serverHostname, clientAddressHostname string, id uuid.UUID, props property.List) string {
	return join(serverHostname, clientAddressHostname, undashed(id), props.Encode())
}

func join(segments ...string) string {
	return strings.Join(segments, separator)
}

func undashed(id uuid.UUID) string {
	return hex.EncodeToString(id[:])
}
