package settings

import (
	"bytes"
	"encoding/json"
	"fmt"

	xerrors "settingshub/internal/errors"
)

// Property 是分组内的一个具名属性。
type Property struct {
	Name  string
	Value Value
}

// Properties 是有序的属性列表，顺序即存储端报告的字段顺序。
type Properties []Property

// Get 按名称查找属性。
func (p Properties) Get(name string) (Value, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return Value{}, false
}

// Set 覆盖同名属性并保持其位置，不存在时追加到末尾。
func (p *Properties) Set(name string, value Value) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Property{Name: name, Value: value})
}

func (p Properties) Len() int { return len(p) }

func (p Properties) Names() []string {
	names := make([]string, len(p))
	for i, prop := range p {
		names[i] = prop.Name
	}
	return names
}

// Without 返回剔除指定名称后的新列表。
func (p Properties) Without(names ...string) Properties {
	if len(names) == 0 {
		return append(Properties(nil), p...)
	}
	skip := make(map[string]struct{}, len(names))
	for _, name := range names {
		skip[name] = struct{}{}
	}
	out := make(Properties, 0, len(p))
	for _, prop := range p {
		if _, ok := skip[prop.Name]; ok {
			continue
		}
		out = append(out, prop)
	}
	return out
}

// Equal 比较名称、顺序与取值。
func (p Properties) Equal(other Properties) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i].Name != other[i].Name || !p[i].Value.Equal(other[i].Value) {
			return false
		}
	}
	return true
}

// MarshalJSON 输出 JSON 对象，键顺序与列表一致。
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
		encoded, err := prop.Value.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON 按对象中出现的顺序解析属性，重复的键以最后一次为准。
func (p *Properties) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeDecodeFailure, err, "")
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return xerrors.New(xerrors.CodeDecodeFailure, fmt.Sprintf("属性列表必须是 JSON 对象，实际为 %v", tok))
	}

	out := Properties{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return xerrors.Wrap(xerrors.CodeDecodeFailure, err, "")
		}
		name, ok := keyTok.(string)
		if !ok {
			return xerrors.New(xerrors.CodeDecodeFailure, "属性名必须是字符串")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return xerrors.Wrap(xerrors.CodeDecodeFailure, err, "", xerrors.WithMetadata("property", name))
		}
		value, err := Decode(raw)
		if err != nil {
			return err
		}
		out.Set(name, value)
	}
	if _, err := dec.Token(); err != nil {
		return xerrors.Wrap(xerrors.CodeDecodeFailure, err, "")
	}
	*p = out
	return nil
}
