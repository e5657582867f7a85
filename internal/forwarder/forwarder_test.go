package forwarder

import (
	"testing"

	"github.com/bungeeguard/bungeeguard/internal/disclosure"
	"github.com/bungeeguard/bungeeguard/internal/handshake"
	"github.com/bungeeguard/bungeeguard/internal/property"
	"github.com/bungeeguard/bungeeguard/internal/tokenstore"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestHandshakeCarriesToken(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	_, view := disclosure.Inject(&disclosure.Profile{
		ID:         id,
		Name:       "Player",
		Properties: property.List{property.New("textures", "abc", "sig")},
	}, "S3cr3t")

	raw, err := NewConnector(view).Handshake("play.example.com", "203.0.113.5", id)
	require.NoError(t, err)
	require.Equal(t,
		"play.example.com\x00203.0.113.5\x0000112233445566778899aabbccddeeff\x00"+
			`[{"name":"textures","value":"abc","signature":"sig"},{"name":"bungeeguard-token","value":"S3cr3t"}]`,
		raw)
}

func TestProxyToBackend(t *testing.T) {
	store := tokenstore.New(tokenstore.Config{Policy: tokenstore.PolicyFixed})
	store.Load([]string{"S3cr3t"})

	id := uuid.New()
	gate, view := disclosure.Inject(&disclosure.Profile{
		ID:         id,
		Name:       "Player",
		Properties: property.List{property.New("textures", "abc", "")},
	}, "S3cr3t")

	raw, err := NewConnector(view).Handshake("play.example.com", "203.0.113.5", id)
	require.NoError(t, err)

	v, err := handshake.DecodeAndVerify(raw, store)
	require.NoError(t, err)
	require.Equal(t, id, v.ID)
	require.Equal(t, gate.Public().Properties().Encode(), v.PropertiesJSON())

	// A client replaying what it can observe through the public view has no token.
	forged := handshake.Encode("play.example.com", "198.51.100.7", id, gate.Public().Properties())
	_, err = handshake.DecodeAndVerify(forged, store)
	require.ErrorIs(t, err, handshake.ErrNoToken)
}

func TestProxyToBackendWrongSecret(t *testing.T) {
	store := tokenstore.New(tokenstore.Config{Policy: tokenstore.PolicyFixed})
	store.Load([]string{"S3cr3t"})

	_, view := disclosure.Inject(nil, "other")
	id := OfflineID("Player")
	raw, err := NewConnector(view).Handshake("host", "addr", id)
	require.NoError(t, err)
	_, err = handshake.DecodeAndVerify(raw, store)
	require.ErrorIs(t, err, handshake.ErrIncorrectToken)
}

func TestHandshakeWithoutView(t *testing.T) {
	_, err := NewConnector(disclosure.ForwardingView{}).Handshake("host", "addr", uuid.New())
	require.ErrorIs(t, err, ErrNoForwardingView)
}

func TestOfflineID(t *testing.T) {
	require.Equal(t, "b50ad385-829d-3141-a216-7e7d7539ba7f", OfflineID("Notch").String())
	require.Equal(t, uuid.Version(3), OfflineID("Notch").Version())
}
