package handshake

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/property"
)

// Reason is the class of a rejected handshake.
type Reason int

const (
	// ReasonInvalidHandshake means the handshake could not be decoded, so no
	// field of it can be trusted.
	ReasonInvalidHandshake Reason = iota + 1
	// ReasonNoToken means the handshake was well-formed but carried no token.
	ReasonNoToken
	// ReasonIncorrectToken means a token was supplied but is not trusted.
	ReasonIncorrectToken
)

func (r Reason) String() string {
	switch r {
	case ReasonInvalidHandshake:
		return "INVALID_HANDSHAKE"
	case ReasonNoToken:
		return "NO_TOKEN"
	case ReasonIncorrectToken:
		return "INCORRECT_TOKEN"
	default:
		return fmt.Sprintf("REASON(%d)", int(r))
	}
}

// Sentinels matched by errors.Is against a *Failure of the same reason.
var (
	ErrInvalidHandshake = errors.New("invalid handshake")
	ErrNoToken          = errors.New("no token")
	ErrIncorrectToken   = errors.New("incorrect token")
)

// Failure is a terminal verification result.
type Failure struct {
	Reason Reason
	// Context describes the connection for operators. For an incorrect token
	// it contains the token in redacted form, so it must never be shown to
	// the connecting client.
	Context string

	cause error
}

func (f *Failure) Error() string {
	var sb strings.Builder
	sb.WriteString("handshake rejected: ")
	sb.WriteString(f.Reason.String())
	if f.Context != "" {
		sb.WriteString(" (")
		sb.WriteString(f.Context)
		sb.WriteString(")")
	}
	if f.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(f.cause.Error())
	}
	return sb.String()
}

func (f *Failure) Unwrap() error {
	return f.cause
}

func (f *Failure) Is(target error) bool {
	switch target {
	case ErrInvalidHandshake:
		return f.Reason == ReasonInvalidHandshake
	case ErrNoToken:
		return f.Reason == ReasonNoToken
	case ErrIncorrectToken:
		return f.Reason == ReasonIncorrectToken
	}
	return false
}

// AsFailure finds the first *Failure in err's chain.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// TokenChecker decides whether a presented token is trusted.
type TokenChecker interface {
	IsAllowed(token string) bool
}

// Codec decodes and verifies handshakes.
type Codec struct {
	// Redaction controls how an untrusted token is written into
	// Failure.Context. Zero value keeps a short prefix.
	Redaction Redaction
}

// DecodeAndVerify verifies raw with the default Codec.
func DecodeAndVerify(raw string, tokens TokenChecker) (Verified, error) {
	return Codec{}.DecodeAndVerify(raw, tokens)
}

// DecodeAndVerify decodes raw, checks its token with tokens and returns the
// sanitized handshake. Any returned error is a *Failure. All token
// properties are removed from the result.
func (c Codec) DecodeAndVerify(raw string, tokens TokenChecker) (Verified, error) {
	d, err := Decode(raw)
	if err != nil {
		return Verified{}, &Failure{Reason: ReasonInvalidHandshake, Context: d.Describe(), cause: err}
	}
	connection := d.Describe()

	if len(d.Properties) == 0 {
		return Verified{}, &Failure{Reason: ReasonNoToken, Context: connection}
	}

	kept, removed := d.Properties.Without(property.TokenName)
	if len(removed) == 0 {
		return Verified{}, &Failure{Reason: ReasonNoToken, Context: connection}
	}
	// Duplicates are all stripped, the last one is the one we check.
	token := removed[len(removed)-1].Value

	if tokens == nil || !tokens.IsAllowed(token) {
		return Verified{}, &Failure{
			Reason:  ReasonIncorrectToken,
			Context: connection + " - " + c.Redaction.Apply(token),
		}
	}

	return Verified{
		ServerHostname:        d.ServerHostname,
		ClientAddressHostname: d.ClientAddressHostname,
		ID:                    d.ID,
		Properties:            kept,
		rawID:                 d.rawID,
	}, nil
}
