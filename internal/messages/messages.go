// Package messages renders the text shown to clients whose handshake was
// rejected.
//
// Templates use '&' followed by a formatting code for colors and styles
// ("&cDenied") and may reference {{reason}}, the rejection reason name.
// Nothing derived from the failure context is ever rendered, so a token
// value can not leak into a client facing message.
package messages

import (
	"fmt"
	"strings"

	"github.com/bungeeguard/bungeeguard/internal/handshake"

	"github.com/tidwall/sjson"
	"github.com/valyala/fasttemplate"
)

const (
	// AltColorChar starts a formatting code in configured templates.
	AltColorChar = '&'
	// ColorChar starts a formatting code in rendered text.
	ColorChar = '§'
)

const formattingCodes = "0123456789AaBbCcDdEeFfKkLlMmNnOoRrXx"

// Translate replaces AltColorChar with ColorChar wherever it is followed by
// a formatting code. Codes are lowercased.
func Translate(s string) string {
	runes := []rune(s)
	for i := 0; i < len(runes)-1; i++ {
		if runes[i] == AltColorChar && strings.ContainsRune(formattingCodes, runes[i+1]) {
			runes[i] = ColorChar
			runes[i+1] = []rune(strings.ToLower(string(runes[i+1])))[0]
		}
	}
	return string(runes)
}

// Config of Messages. Templates are given in their configured form.
type Config struct {
	NoData string
	// NoProperties falls back to NoData when empty.
	NoProperties string
	InvalidToken string
}

// Messages maps rejection reasons to rendered text.
type Messages struct {
	noData       *fasttemplate.Template
	noProperties *fasttemplate.Template
	invalidToken *fasttemplate.Template
}

// New compiles templates of c.
func New(c Config) (*Messages, error) {
	if c.NoProperties == "" {
		c.NoProperties = c.NoData
	}
	m := &Messages{}
	var err error
	if m.noData, err = compile(c.NoData); err != nil {
		return nil, fmt.Errorf("no-data-kick-message: %w", err)
	}
	if m.noProperties, err = compile(c.NoProperties); err != nil {
		return nil, fmt.Errorf("no-properties-kick-message: %w", err)
	}
	if m.invalidToken, err = compile(c.InvalidToken); err != nil {
		return nil, fmt.Errorf("invalid-token-kick-message: %w", err)
	}
	return m, nil
}

func compile(tpl string) (*fasttemplate.Template, error) {
	return fasttemplate.NewTemplate(Translate(tpl), "{{", "}}")
}

func (m *Messages) template(reason handshake.Reason) *fasttemplate.Template {
	switch reason {
	case handshake.ReasonNoToken:
		return m.noProperties
	case handshake.ReasonIncorrectToken:
		return m.invalidToken
	default:
		return m.noData
	}
}

// Text returns the rendered message for reason.
func (m *Messages) Text(reason handshake.Reason) string {
	return m.template(reason).ExecuteString(map[string]any{
		"reason": reason.String(),
	})
}

// ForError returns the rendered message for a rejection error. Errors other
// than *handshake.Failure are treated as an invalid handshake.
func (m *Messages) ForError(err error) string {
	return m.Text(reasonOf(err))
}

// Chat returns the rendered message for reason as a chat text component, the
// form used by disconnect packets.
func (m *Messages) Chat(reason handshake.Reason) string {
	return ChatComponent(m.Text(reason))
}

// ChatComponent wraps text into a JSON chat text component.
func ChatComponent(text string) string {
	out, err := sjson.Set(`{"text":""}`, "text", text)
	if err != nil {
		return `{"text":""}`
	}
	return out
}

func reasonOf(err error) handshake.Reason {
	if f, ok := handshake.AsFailure(err); ok {
		return f.Reason
	}
	return handshake.ReasonInvalidHandshake
}
