package handshake

import (
	"errors"
	"strings"
	"testing"

	"github.com/bungeeguard/bungeeguard/internal/property"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type allowList map[string]bool

func (a allowList) IsAllowed(token string) bool {
	return a[token]
}

const testIdentity = "00112233445566778899aabbccddeeff"

func raw(segments ...string) string {
	return strings.Join(segments, "\x00")
}

func requireReason(t *testing.T, err error, reason Reason) *Failure {
	t.Helper()
	require.Error(t, err)
	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, reason, f.Reason)
	return f
}

func TestDecodeAndVerifyExample(t *testing.T) {
	in := raw("play.example.com", "203.0.113.5", testIdentity,
		`[{"name":"bungeeguard-token","value":"S3cr3t"},{"name":"textures","value":"abc"}]`)

	v, err := DecodeAndVerify(in, allowList{"S3cr3t": true})
	require.NoError(t, err)
	require.Equal(t, "play.example.com", v.ServerHostname)
	require.Equal(t, "203.0.113.5", v.ClientAddressHostname)
	require.Equal(t, uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff"), v.ID)
	require.Len(t, v.Properties, 1)
	require.Equal(t, "textures", v.Properties[0].Name)
	require.Equal(t, "abc", v.Properties[0].Value)
	require.Equal(t, `[{"name":"textures","value":"abc"}]`, v.PropertiesJSON())
}

func TestDecodeAndVerifyStripsEveryToken(t *testing.T) {
	in := raw("host", "addr", testIdentity,
		`[{"name":"a","value":"1"},{"name":"bungeeguard-token","value":"old"},{"name":"b","value":"2","signature":"s"},{"name":"bungeeguard-token","value":"tok"},{"name":"c","value":"3"}]`)

	v, err := DecodeAndVerify(in, allowList{"tok": true})
	require.NoError(t, err)
	require.Len(t, v.Properties, 3)
	for i, name := range []string{"a", "b", "c"} {
		require.Equal(t, name, v.Properties[i].Name)
	}
	require.Equal(t, "s", v.Properties[1].Signature)
	_, found := v.Properties.Get(property.TokenName)
	require.False(t, found)
}

func TestDecodeAndVerifyChecksLastToken(t *testing.T) {
	in := raw("host", "addr", testIdentity,
		`[{"name":"bungeeguard-token","value":"good"},{"name":"bungeeguard-token","value":"bad"}]`)
	_, err := DecodeAndVerify(in, allowList{"good": true})
	requireReason(t, err, ReasonIncorrectToken)
}

func TestDecodeAndVerifySegmentCount(t *testing.T) {
	inputs := []string{
		"",
		"host",
		raw("host", "addr"),
		raw("host", "addr", testIdentity, "[]", "extra"),
		raw("a", "b", "c", "d", "e", "f"),
	}
	for _, in := range inputs {
		_, err := DecodeAndVerify(in, allowList{})
		f := requireReason(t, err, ReasonInvalidHandshake)
		require.ErrorIs(t, err, ErrSegmentCount)
		require.ErrorIs(t, err, ErrInvalidHandshake)
		require.NotContains(t, f.Context, "\x00")
	}
}

func TestDecodeAndVerifyNoPropertiesSegment(t *testing.T) {
	_, err := DecodeAndVerify(raw("host", "addr", testIdentity), allowList{"tok": true})
	f := requireReason(t, err, ReasonNoToken)
	require.Equal(t, "00112233-4455-6677-8899-aabbccddeeff @ addr", f.Context)
	require.ErrorIs(t, err, ErrNoToken)
}

func TestDecodeAndVerifyTrailingEmptySegment(t *testing.T) {
	_, err := DecodeAndVerify(raw("host", "addr", testIdentity, ""), allowList{"tok": true})
	requireReason(t, err, ReasonNoToken)
}

func TestDecodeAndVerifyEmptyProperties(t *testing.T) {
	_, err := DecodeAndVerify(raw("host", "addr", testIdentity, "[]"), allowList{"tok": true})
	requireReason(t, err, ReasonNoToken)
}

func TestDecodeAndVerifyNoTokenProperty(t *testing.T) {
	_, err := DecodeAndVerify(raw("host", "addr", testIdentity, `[{"name":"textures","value":"abc"}]`), allowList{"tok": true})
	requireReason(t, err, ReasonNoToken)
}

func TestDecodeAndVerifyIncorrectToken(t *testing.T) {
	in := raw("host", "10.0.0.1", testIdentity, `[{"name":"bungeeguard-token","value":"forged-token"}]`)
	_, err := DecodeAndVerify(in, allowList{"S3cr3t": true})
	f := requireReason(t, err, ReasonIncorrectToken)
	require.ErrorIs(t, err, ErrIncorrectToken)
	require.Contains(t, f.Context, "10.0.0.1")
	require.Contains(t, f.Context, "forg...")
	require.NotContains(t, f.Context, "forged-token")
}

func TestDecodeAndVerifyNilChecker(t *testing.T) {
	in := raw("host", "addr", testIdentity, `[{"name":"bungeeguard-token","value":"tok"}]`)
	_, err := DecodeAndVerify(in, nil)
	requireReason(t, err, ReasonIncorrectToken)
}

func TestDecodeAndVerifyRedaction(t *testing.T) {
	in := raw("host", "addr", testIdentity, `[{"name":"bungeeguard-token","value":"forged-token"}]`)

	_, err := Codec{Redaction: RedactNone}.DecodeAndVerify(in, allowList{})
	f := requireReason(t, err, ReasonIncorrectToken)
	require.True(t, strings.HasSuffix(f.Context, " - forged-token"))

	_, err = Codec{Redaction: RedactHidden}.DecodeAndVerify(in, allowList{})
	f = requireReason(t, err, ReasonIncorrectToken)
	require.NotContains(t, f.Context, "forg")
}

func TestDecodeAndVerifyMalformedIdentity(t *testing.T) {
	inputs := []string{
		"zz112233445566778899aabbccddeeff",
		"0011223344556677",
		"00112233-4455-6677-8899-aabbccddeeff00",
	}
	for _, id := range inputs {
		_, err := DecodeAndVerify(raw("host", "addr", id, `[{"name":"bungeeguard-token","value":"tok"}]`), allowList{"tok": true})
		f := requireReason(t, err, ReasonInvalidHandshake)
		require.ErrorIs(t, err, ErrIdentity)
		require.Equal(t, "addr", f.Context)
	}
}

func TestDecodeAndVerifyDashedIdentity(t *testing.T) {
	in := raw("host", "addr", "00112233-4455-6677-8899-aabbccddeeff", `[{"name":"bungeeguard-token","value":"tok"}]`)
	v, err := DecodeAndVerify(in, allowList{"tok": true})
	require.NoError(t, err)
	require.Equal(t, raw("host", "addr", "00112233-4455-6677-8899-aabbccddeeff", "[]"), v.Encode())
}

func TestDecodeAndVerifyMalformedProperties(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"name":"bungeeguard-token","value":"tok"}`,
		`[{"name":"bungeeguard-token"}]`,
		`[{"value":"tok"}]`,
		`[1,2]`,
		`[{"name":"textures","name":"bungeeguard-token","value":"tok"}]`,
	}
	for _, props := range inputs {
		_, err := DecodeAndVerify(raw("host", "addr", testIdentity, props), allowList{"tok": true})
		f := requireReason(t, err, ReasonInvalidHandshake)
		require.Equal(t, "00112233-4455-6677-8899-aabbccddeeff @ addr", f.Context)
	}
}

func TestVerifiedEncodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name  string
		props string
		want  string
	}{
		{
			name:  "token first",
			props: `[{"name":"bungeeguard-token","value":"tok"},{"name":"textures","value":"abc","signature":"c2ln"}]`,
			want:  `[{"name":"textures","value":"abc","signature":"c2ln"}]`,
		},
		{
			name:  "token last",
			props: `[{"name":"textures","value":"abc"},{"name":"x","value":"y","extra":[1,2]},{"name":"bungeeguard-token","value":"tok","signature":""}]`,
			want:  `[{"name":"textures","value":"abc"},{"name":"x","value":"y","extra":[1,2]}]`,
		},
		{
			name:  "token only",
			props: `[{"name":"bungeeguard-token","value":"tok"}]`,
			want:  `[]`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := raw("mc.example.org:25565", "2001:db8::1", testIdentity, tc.props)
			v, err := DecodeAndVerify(in, allowList{"tok": true})
			require.NoError(t, err)
			require.Equal(t, raw("mc.example.org:25565", "2001:db8::1", testIdentity, tc.want), v.Encode())
		})
	}
}

func TestEncode(t *testing.T) {
	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	props := property.List{property.New(property.TokenName, "tok", "")}
	encoded := Encode("host", "addr", id, props)
	require.Equal(t, raw("host", "addr", testIdentity, `[{"name":"bungeeguard-token","value":"tok"}]`), encoded)

	v, err := DecodeAndVerify(encoded, allowList{"tok": true})
	require.NoError(t, err)
	require.Equal(t, id, v.ID)
	require.Len(t, v.Properties, 0)
}

func TestDecodeWithoutProperties(t *testing.T) {
	d, err := Decode(raw("host", "addr", testIdentity))
	require.NoError(t, err)
	require.False(t, d.HasProperties())

	d, err = Decode(raw("host", "addr", testIdentity, "[]"))
	require.NoError(t, err)
	require.True(t, d.HasProperties())
}

func TestDescribeUnknown(t *testing.T) {
	require.Equal(t, "unknown", Decoded{}.Describe())
}

func TestReasonString(t *testing.T) {
	require.Equal(t, "INVALID_HANDSHAKE", ReasonInvalidHandshake.String())
	require.Equal(t, "NO_TOKEN", ReasonNoToken.String())
	require.Equal(t, "INCORRECT_TOKEN", ReasonIncorrectToken.String())
	require.Equal(t, "REASON(0)", Reason(0).String())
}

func TestParseRedaction(t *testing.T) {
	r, err := ParseRedaction("")
	require.NoError(t, err)
	require.Equal(t, RedactPrefix, r)
	r, err = ParseRedaction("HIDDEN")
	require.NoError(t, err)
	require.Equal(t, RedactHidden, r)
	r, err = ParseRedaction("none")
	require.NoError(t, err)
	require.Equal(t, RedactNone, r)
	_, err = ParseRedaction("partial")
	require.Error(t, err)

	require.Equal(t, "<redacted>", RedactPrefix.Apply("abcd"))
	require.Equal(t, "abcd... (6 chars)", RedactPrefix.Apply("abcdef"))
}

type panickingChecker struct{}

func (panickingChecker) IsAllowed(string) bool {
	panic("must not be called")
}

func TestDecodeAndVerifyDoesNotConsultStoreWithoutToken(t *testing.T) {
	_, err := DecodeAndVerify(raw("host", "addr", testIdentity, `[{"name":"a","value":"b"}]`), panickingChecker{})
	requireReason(t, err, ReasonNoToken)
}
