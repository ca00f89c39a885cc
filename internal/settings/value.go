package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	xerrors "settingshub/internal/errors"
)

// Kind 标识属性值的 JSON 类型。
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value 是属性的载荷。零值表示 null。
//
// 数字以 JSON 字面量保存，42 和 42.0 是两个不同的值，读写过程中不会发生
// 整数到浮点的转换。
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	seq  []Value
	m    map[string]Value
}

func Null() Value { return Value{} }

func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

func Int(i int64) Value { return Value{kind: KindNumber, n: json.Number(strconv.FormatInt(i, 10))} }

// Float 构造浮点数值，NaN 与无穷大在编码时会报错。
func Float(f float64) Value {
	return Value{kind: KindNumber, n: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// Number 直接使用 JSON 数字字面量。
func Number(n json.Number) Value { return Value{kind: KindNumber, n: n} }

func String(s string) Value { return Value{kind: KindString, s: s} }

func Sequence(items ...Value) Value {
	seq := make([]Value, len(items))
	copy(seq, items)
	return Value{kind: KindSequence, seq: seq}
}

func Mapping(entries map[string]Value) Value {
	m := make(map[string]Value, len(entries))
	for k, v := range entries {
		m[k] = v
	}
	return Value{kind: KindMapping, m: m}
}

// Strings 是字符串序列的快捷构造。
func Strings(items ...string) Value {
	seq := make([]Value, len(items))
	for i, item := range items {
		seq[i] = String(item)
	}
	return Value{kind: KindSequence, seq: seq}
}

// FromAny 把常见的 Go 值转换为 Value，无法表示的类型返回 INVALID_ARGUMENT。
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if !validNumber(string(t)) {
			return Value{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("非法的数字字面量 %q", string(t)))
		}
		return Number(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(json.Number(strconv.FormatUint(uint64(t), 10))), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Number(json.Number(strconv.FormatUint(t, 10))), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case []string:
		return Strings(t...), nil
	case []any:
		seq := make([]Value, 0, len(t))
		for _, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			seq = append(seq, converted)
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			converted, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = converted
		}
		return Value{kind: KindMapping, m: m}, nil
	}

	// 其余切片与 map 通过反射展开。
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		seq := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			converted, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, err
			}
			seq = append(seq, converted)
		}
		return Value{kind: KindSequence, seq: seq}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			converted, err := FromAny(iter.Value().Interface())
			if err != nil {
				return Value{}, err
			}
			m[iter.Key().String()] = converted
		}
		return Value{kind: KindMapping, m: m}, nil
	}
	return Value{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的属性值类型 %T", v))
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

func (v Value) AsNumber() (json.Number, bool) { return v.n, v.kind == KindNumber }

// AsInt64 只在数字字面量是整数时成功。
func (v Value) AsInt64() (int64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	i, err := v.n.Int64()
	return i, err == nil
}

func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.n.Float64()
	return f, err == nil
}

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsSequence 返回序列的副本。
func (v Value) AsSequence() ([]Value, bool) {
	if v.kind != KindSequence {
		return nil, false
	}
	out := make([]Value, len(v.seq))
	copy(out, v.seq)
	return out, true
}

// AsMapping 返回映射的副本。
func (v Value) AsMapping() (map[string]Value, bool) {
	if v.kind != KindMapping {
		return nil, false
	}
	out := make(map[string]Value, len(v.m))
	for k, item := range v.m {
		out[k] = item
	}
	return out, true
}

// Interface 转换为 encoding/json 风格的 Go 值，数字保持 json.Number。
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Equal 做深比较。
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindSequence:
		if len(v.seq) != len(other.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(other.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, item := range v.m {
			o, ok := other.m[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// String 返回 JSON 表示，编码失败时返回空串。
func (v Value) String() string {
	data, err := Encode(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if !validNumber(string(v.n)) {
			return xerrors.New(xerrors.CodeEncodeFailure, fmt.Sprintf("非法的数字字面量 %q", string(v.n)))
		}
		buf.WriteString(string(v.n))
	case KindString:
		encoded, err := json.Marshal(v.s)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeEncodeFailure, err, "")
		}
		buf.Write(encoded)
	case KindSequence:
		buf.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMapping:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := json.Marshal(k)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeEncodeFailure, err, "")
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			if err := v.m[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return xerrors.New(xerrors.CodeEncodeFailure, "未知的属性值类型 "+v.kind.String())
	}
	return nil
}

// Encode 将属性值编码为 JSON。
func Encode(v Value) ([]byte, error) {
	return v.MarshalJSON()
}

// Decode 解析 JSON 载荷，数字按字面量保留，多余的尾部数据视为错误。
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, xerrors.Wrap(xerrors.CodeDecodeFailure, err, "")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, xerrors.New(xerrors.CodeDecodeFailure, "JSON 载荷后存在多余数据")
	}
	return fromDecoded(raw), nil
}

func fromDecoded(raw any) Value {
	switch t := raw.(type) {
	case bool:
		return Bool(t)
	case json.Number:
		return Number(t)
	case string:
		return String(t)
	case []any:
		seq := make([]Value, len(t))
		for i, item := range t {
			seq[i] = fromDecoded(item)
		}
		return Value{kind: KindSequence, seq: seq}
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = fromDecoded(item)
		}
		return Value{kind: KindMapping, m: m}
	default:
		return Null()
	}
}

func validNumber(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err != nil {
		// 超出 float64 范围的整数字面量仍然合法。
		if !errors.Is(err, strconv.ErrRange) {
			return false
		}
	} else if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return json.Valid([]byte(s))
}
