package settingshub

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Property is one named value of a group. Value holds the raw JSON payload.
type Property struct {
	Name  string
	Value json.RawMessage
}

// Properties keeps the order reported by the server; it marshals to and from
// a JSON object without reordering keys.
type Properties []Property

// Get returns the payload of the named property.
func (p Properties) Get(name string) (json.RawMessage, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return nil, false
}

// Set encodes value and stores it under name, keeping the position of an
// existing entry.
func (p *Properties) Set(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = raw
			return nil
		}
	}
	*p = append(*p, Property{Name: name, Value: raw})
	return nil
}

func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(prop.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(prop.Value) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(prop.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties must be a JSON object, got %v", tok)
	}
	out := Properties{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		out = append(out, Property{Name: name, Value: raw})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}
