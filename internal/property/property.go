// Package property contains profile property lists exchanged in the
// forwarding handshake.
package property

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// TokenName is the name of the property carrying the proxy token.
const TokenName = "bungeeguard-token"

var (
	ErrNotList           = errors.New("property list is not a JSON array")
	ErrMalformedProperty = errors.New("malformed property")
)

// Property is a single profile attribute. Signature is optional and empty
// when absent.
type Property struct {
	Name      string
	Value     string
	Signature string

	// raw keeps the object exactly as it was received so that properties we
	// do not own are forwarded verbatim, including unknown fields.
	raw  string
	orig [3]string
}

// New creates a property which was not received from the wire.
func New(name, value, signature string) Property {
	return Property{Name: name, Value: value, Signature: signature}
}

func (p Property) unchanged() bool {
	return p.raw != "" && p.orig == [3]string{p.Name, p.Value, p.Signature}
}

func (p Property) json() string {
	if p.unchanged() {
		return p.raw
	}
	// Paths are constant so Set can not fail here.
	obj, _ := sjson.Set("{}", "name", p.Name)
	obj, _ = sjson.Set(obj, "value", p.Value)
	if p.Signature != "" {
		obj, _ = sjson.Set(obj, "signature", p.Signature)
	}
	return obj
}

// List is an ordered property list. Names may repeat, lookups return the
// first match.
type List []Property

// Parse decodes a JSON array of property objects. Every object must carry
// string name and value fields, signature may be a string or null.
func Parse(data string) (List, error) {
	if !gjson.Valid(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrNotList)
	}
	res := gjson.Parse(data)
	if !res.IsArray() {
		return nil, ErrNotList
	}
	list := List{}
	var err error
	res.ForEach(func(_, item gjson.Result) bool {
		var p Property
		p, err = fromResult(item)
		if err != nil {
			err = fmt.Errorf("property %d: %w", len(list), err)
			return false
		}
		list = append(list, p)
		return true
	})
	if err != nil {
		return nil, err
	}
	return list, nil
}

func fromResult(item gjson.Result) (Property, error) {
	if !item.IsObject() {
		return Property{}, fmt.Errorf("%w: not an object", ErrMalformedProperty)
	}
	// Objects are forwarded verbatim, so a repeated key could be read
	// differently by the backend than it was checked here.
	if key, ok := repeatedKey(item); ok {
		return Property{}, fmt.Errorf("%w: repeated key %q", ErrMalformedProperty, key)
	}
	name := item.Get("name")
	if name.Type != gjson.String {
		return Property{}, fmt.Errorf("%w: name is not a string", ErrMalformedProperty)
	}
	value := item.Get("value")
	if value.Type != gjson.String {
		return Property{}, fmt.Errorf("%w: value of %q is not a string", ErrMalformedProperty, name.Str)
	}
	p := Property{Name: name.Str, Value: value.Str, raw: strings.TrimSpace(item.Raw)}
	if sig := item.Get("signature"); sig.Exists() {
		switch sig.Type {
		case gjson.String:
			p.Signature = sig.Str
		case gjson.Null:
		default:
			return Property{}, fmt.Errorf("%w: signature of %q is not a string", ErrMalformedProperty, name.Str)
		}
	}
	p.orig = [3]string{p.Name, p.Value, p.Signature}
	return p, nil
}

func repeatedKey(item gjson.Result) (string, bool) {
	var seen [3]bool
	var repeated string
	item.ForEach(func(key, _ gjson.Result) bool {
		var i int
		switch key.String() {
		case "name":
			i = 0
		case "value":
			i = 1
		case "signature":
			i = 2
		default:
			return true
		}
		if seen[i] {
			repeated = key.String()
			return false
		}
		seen[i] = true
		return true
	})
	return repeated, repeated != ""
}

// Encode serializes the list as a compact JSON array.
func (l List) Encode() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range l {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(p.json())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Get returns the first property with the given name.
func (l List) Get(name string) (Property, bool) {
	for _, p := range l {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Without splits the list into properties not named name and the removed
// ones, both in original order.
func (l List) Without(name string) (kept List, removed List) {
	kept = make(List, 0, len(l))
	for _, p := range l {
		if p.Name == name {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	return kept, removed
}

// With returns a copy of the list with p appended. The receiver is not
// modified.
func (l List) With(p Property) List {
	out := make(List, len(l), len(l)+1)
	copy(out, l)
	return append(out, p)
}

// Clone returns a copy which does not share storage with l.
func (l List) Clone() List {
	if l == nil {
		return List{}
	}
	out := make(List, len(l))
	copy(out, l)
	return out
}

func (l List) MarshalJSON() ([]byte, error) {
	return []byte(l.Encode()), nil
}

func (l *List) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
