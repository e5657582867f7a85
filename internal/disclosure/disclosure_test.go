package disclosure

import (
	"sync"
	"testing"

	"github.com/bungeeguard/bungeeguard/internal/property"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile() *Profile {
	return &Profile{
		ID:   uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"),
		Name: "Player",
		Properties: property.List{
			property.New("textures", "abc", "sig"),
		},
	}
}

func requireNoToken(t *testing.T, list property.List) {
	t.Helper()
	_, found := list.Get(property.TokenName)
	require.False(t, found)
}

// tabList stands for any consumer that shows properties to other clients.
func tabList(r PropertyReader) property.List {
	return r.Properties()
}

func TestForwardingViewAddsToken(t *testing.T) {
	_, view := Inject(testProfile(), "S")
	props := view.ForwardedProperties()
	require.Len(t, props, 2)
	require.Equal(t, "textures", props[0].Name)
	require.Equal(t, property.TokenName, props[1].Name)
	require.Equal(t, "S", props[1].Value)
}

func TestPublicViewNeverHasToken(t *testing.T) {
	gate, view := Inject(testProfile(), "S")
	_ = view.ForwardedProperties()

	props := tabList(gate.Public())
	require.Len(t, props, 1)
	requireNoToken(t, props)

	// Reading through the forwarding view must not leave anything behind.
	_ = view.ForwardedProperties()
	requireNoToken(t, gate.Public().Properties())
}

func TestInjectDoesNotModifyProfile(t *testing.T) {
	p := testProfile()
	_, view := Inject(p, "S")
	_ = view.ForwardedProperties()
	require.Len(t, p.Properties, 1)
	requireNoToken(t, p.Properties)
}

func TestOfflineProfile(t *testing.T) {
	gate, view := Inject(nil, "S")
	require.True(t, gate.Offline())
	_, _, err := gate.Identity()
	require.ErrorIs(t, err, ErrOfflineProfile)

	props := view.ForwardedProperties()
	require.Len(t, props, 1)
	require.Equal(t, property.TokenName, props[0].Name)
	require.Equal(t, "S", props[0].Value)
	require.Len(t, gate.Public().Properties(), 0)
}

func TestEmptyPropertiesOnlineProfile(t *testing.T) {
	_, view := Inject(&Profile{ID: uuid.New(), Name: "x"}, "S")
	props := view.ForwardedProperties()
	require.Equal(t, `[{"name":"bungeeguard-token","value":"S"}]`, props.Encode())
}

func TestZeroForwardingViewDoesNotLeak(t *testing.T) {
	var view ForwardingView
	require.False(t, view.Valid())
	require.Len(t, view.ForwardedProperties(), 0)
	_, _, err := view.Identity()
	require.ErrorIs(t, err, ErrOfflineProfile)

	var public PublicView
	require.Len(t, public.Properties(), 0)
}

func TestEmptySecretDoesNotAddProperty(t *testing.T) {
	_, view := Inject(testProfile(), "")
	require.False(t, view.Valid())
	props := view.ForwardedProperties()
	require.Len(t, props, 1)
	requireNoToken(t, props)
}

func TestReturnedListsAreCopies(t *testing.T) {
	gate, view := Inject(testProfile(), "S")
	public := gate.Public().Properties()
	public[0].Value = "changed"
	require.Equal(t, "abc", gate.Public().Properties()[0].Value)

	forwarded := view.ForwardedProperties()
	forwarded[0].Value = "changed"
	require.Equal(t, "abc", view.ForwardedProperties()[0].Value)
}

func TestSetPropertiesVisibleToBothViews(t *testing.T) {
	gate, view := Inject(testProfile(), "S")
	gate.SetProperties(property.List{property.New("a", "1", ""), property.New("b", "2", "")})

	require.Len(t, gate.Public().Properties(), 2)
	forwarded := view.ForwardedProperties()
	require.Len(t, forwarded, 3)
	require.Equal(t, property.TokenName, forwarded[2].Name)
}

func TestIdentity(t *testing.T) {
	gate, view := Inject(testProfile(), "S")
	id, name, err := gate.Identity()
	require.NoError(t, err)
	require.Equal(t, "Player", name)
	require.Equal(t, uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"), id)

	id2, _, err := view.Identity()
	require.NoError(t, err)
	require.Equal(t, id, id2)
}

func TestConcurrentReaders(t *testing.T) {
	gate, view := Inject(testProfile(), "S")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, found := gate.Public().Properties().Get(property.TokenName)
				assert.False(t, found)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, found := view.ForwardedProperties().Get(property.TokenName)
				assert.True(t, found)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		gate.SetProperties(property.List{property.New("textures", "def", "")})
	}()
	wg.Wait()
}
