package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Well-known profile field names. Profiles are open-ended; these are the keys
// the platform reads, not a closed set.
const (
	FieldResidentID         = "residentId"
	FieldResidentName       = "residentName"
	FieldEmail              = "email"
	FieldGivenName          = "givenName"
	FieldFamilyName         = "familyName"
	FieldCommunityName      = "communityName"
	FieldCommunityTrueName  = "communityTrueName"
	FieldCommunityPlaceName = "communityPlaceName"
	FieldRole               = "role"
	FieldSubject            = "subject"
	FieldGrade              = "grade"
	FieldTags               = "tags"
	FieldImpactStatement    = "impactStatement"
	FieldAvatarURL          = "avatarURL"
	FieldPermissions        = "permissions"
	FieldCreatedAt          = "createdAt"
	FieldUpdatedAt          = "updatedAt"
	FieldLastLoginAt        = "lastLoginAt"
	FieldLastLogoutAt       = "lastLogoutAt"
	FieldOnline             = "online"
)

type ValueKind uint8

const (
	KindUnset ValueKind = iota
	KindNull
	KindString
	KindNumber
	KindBool
	KindStrings
	KindRaw
)

func (k ValueKind) String() string {
	switch k {
	case KindUnset:
		return "unset"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindStrings:
		return "strings"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}

// Value is a single profile field. The zero Value is unset: it is dropped from
// transmitted payloads and skipped by Merge.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	flag bool
	list []string
	raw  json.RawMessage
}

func Unset() Value { return Value{} }

func Null() Value { return Value{kind: KindNull} }

func String(value string) Value { return Value{kind: KindString, str: value} }

func Number(value float64) Value { return Value{kind: KindNumber, num: value} }

func Bool(value bool) Value { return Value{kind: KindBool, flag: value} }

func Strings(values ...string) Value {
	list := make([]string, len(values))
	copy(list, values)
	return Value{kind: KindStrings, list: list}
}

// Raw keeps an arbitrary JSON document (objects, mixed arrays) verbatim.
func Raw(doc json.RawMessage) Value {
	if len(bytes.TrimSpace(doc)) == 0 {
		return Null()
	}
	var compacted bytes.Buffer
	if err := json.Compact(&compacted, doc); err != nil {
		return Value{kind: KindRaw, raw: bytes.Clone(doc)}
	}
	return Value{kind: KindRaw, raw: compacted.Bytes()}
}

// ValueOf converts a decoded Go value into a profile Value.
func ValueOf(input any) (Value, error) {
	switch typed := input.(type) {
	case nil:
		return Null(), nil
	case Value:
		return typed.clone(), nil
	case string:
		return String(typed), nil
	case bool:
		return Bool(typed), nil
	case float64:
		return Number(typed), nil
	case float32:
		return Number(float64(typed)), nil
	case int:
		return Number(float64(typed)), nil
	case int32:
		return Number(float64(typed)), nil
	case int64:
		return Number(float64(typed)), nil
	case json.Number:
		parsed, err := typed.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("core: invalid profile number %q: %w", typed.String(), err)
		}
		return Number(parsed), nil
	case []string:
		return Strings(typed...), nil
	case []any:
		list := make([]string, 0, len(typed))
		for _, item := range typed {
			text, ok := item.(string)
			if !ok {
				return rawFromAny(input)
			}
			list = append(list, text)
		}
		return Strings(list...), nil
	case json.RawMessage:
		var value Value
		if err := value.UnmarshalJSON(typed); err != nil {
			return Value{}, err
		}
		return value, nil
	default:
		return rawFromAny(input)
	}
}

func rawFromAny(input any) (Value, error) {
	encoded, err := json.Marshal(input)
	if err != nil {
		return Value{}, fmt.Errorf("core: unsupported profile value %T: %w", input, err)
	}
	return Raw(encoded), nil
}

func (v Value) Kind() ValueKind { return v.kind }

func (v Value) IsUnset() bool { return v.kind == KindUnset }

func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.flag, true
}

func (v Value) AsStrings() ([]string, bool) {
	if v.kind != KindStrings {
		return nil, false
	}
	return slices.Clone(v.list), true
}

func (v Value) AsRaw() (json.RawMessage, bool) {
	if v.kind != KindRaw {
		return nil, false
	}
	return bytes.Clone(v.raw), true
}

// Interface returns the value as plain Go data (nil for unset and null).
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.flag
	case KindStrings:
		return slices.Clone(v.list)
	case KindRaw:
		var decoded any
		if err := json.Unmarshal(v.raw, &decoded); err != nil {
			return nil
		}
		return decoded
	default:
		return nil
	}
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num || (math.IsNaN(v.num) && math.IsNaN(other.num))
	case KindBool:
		return v.flag == other.flag
	case KindStrings:
		return slices.Equal(v.list, other.list)
	case KindRaw:
		return bytes.Equal(v.raw, other.raw)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindUnset:
		return "<unset>"
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.flag)
	case KindStrings:
		return "[" + strings.Join(v.list, ",") + "]"
	default:
		return string(v.raw)
	}
}

func (v Value) clone() Value {
	out := v
	if v.list != nil {
		out.list = slices.Clone(v.list)
	}
	if v.raw != nil {
		out.raw = bytes.Clone(v.raw)
	}
	return out
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.flag)
	case KindStrings:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindRaw:
		return bytes.Clone(v.raw), nil
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("core: empty profile value")
	}
	switch trimmed[0] {
	case 'n':
		*v = Null()
		return nil
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return err
		}
		*v = String(text)
		return nil
	case 't', 'f':
		var flag bool
		if err := json.Unmarshal(trimmed, &flag); err != nil {
			return err
		}
		*v = Bool(flag)
		return nil
	case '[':
		if list, ok := decodeStringList(trimmed); ok {
			*v = Strings(list...)
			return nil
		}
		*v = Raw(trimmed)
		return nil
	case '{':
		*v = Raw(trimmed)
		return nil
	default:
		var number float64
		if err := json.Unmarshal(trimmed, &number); err != nil {
			return fmt.Errorf("core: decode profile value: %w", err)
		}
		if !exactInteger(trimmed, number) {
			*v = Raw(trimmed)
			return nil
		}
		*v = Number(number)
		return nil
	}
}

// decodeStringList accepts arrays whose elements are all JSON strings. Any
// other element (null included) leaves the array to be kept raw.
func decodeStringList(data []byte) ([]string, bool) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, false
	}
	list := make([]string, 0, len(elements))
	for _, element := range elements {
		element = bytes.TrimSpace(element)
		if len(element) == 0 || element[0] != '"' {
			return nil, false
		}
		var text string
		if err := json.Unmarshal(element, &text); err != nil {
			return nil, false
		}
		list = append(list, text)
	}
	return list, true
}

// exactInteger reports false for integer literals float64 cannot hold
// exactly. Fractional and exponent literals are taken as numbers.
func exactInteger(literal []byte, number float64) bool {
	if bytes.ContainsAny(literal, ".eE") {
		return true
	}
	return strconv.FormatFloat(number, 'f', -1, 64) == strings.TrimPrefix(string(literal), "+")
}

// Profile is the resident record as an open mapping of field name to Value.
// A nil Profile means the resident is absent.
type Profile map[string]Value

// ProfileFromMap converts decoded JSON-like data into a Profile.
func ProfileFromMap(input map[string]any) (Profile, error) {
	out := make(Profile, len(input))
	for key, raw := range input {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		value, err := ValueOf(raw)
		if err != nil {
			return nil, fmt.Errorf("core: profile field %q: %w", trimmed, err)
		}
		out[trimmed] = value
	}
	return out, nil
}

func (p Profile) Clone() Profile {
	if p == nil {
		return nil
	}
	out := make(Profile, len(p))
	for key, value := range p {
		out[key] = value.clone()
	}
	return out
}

// Compact returns a copy without unset fields. It is the shape that goes on
// the wire: removal of a field is expressed by omission.
func (p Profile) Compact() Profile {
	out := make(Profile, len(p))
	for key, value := range p {
		if value.IsUnset() {
			continue
		}
		out[key] = value.clone()
	}
	return out
}

// Merge applies patch over p key by key, last write wins. Unset entries in
// the patch are ignored. Neither input is modified.
func (p Profile) Merge(patch Profile) Profile {
	out := make(Profile, len(p)+len(patch))
	for key, value := range p {
		out[key] = value.clone()
	}
	for key, value := range patch {
		if value.IsUnset() {
			continue
		}
		out[key] = value.clone()
	}
	return out
}

// Without removes keys explicitly.
func (p Profile) Without(keys ...string) Profile {
	out := p.Clone()
	if out == nil {
		return nil
	}
	for _, key := range keys {
		delete(out, key)
	}
	return out
}

func (p Profile) Equal(other Profile) bool {
	if len(p) != len(other) {
		return false
	}
	for key, value := range p {
		candidate, ok := other[key]
		if !ok || !value.Equal(candidate) {
			return false
		}
	}
	return true
}

func (p Profile) Get(key string) (Value, bool) {
	value, ok := p[key]
	if !ok || value.IsUnset() {
		return Value{}, false
	}
	return value, true
}

func (p Profile) Keys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Map returns the profile as plain Go data, omitting unset fields.
func (p Profile) Map() map[string]any {
	out := make(map[string]any, len(p))
	for key, value := range p {
		if value.IsUnset() {
			continue
		}
		out[key] = value.Interface()
	}
	return out
}

func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Value(p.Compact()))
}

func (p Profile) text(key string) string {
	value, ok := p.Get(key)
	if !ok {
		return ""
	}
	text, _ := value.AsString()
	return strings.TrimSpace(text)
}

func (p Profile) ResidentID() string { return p.text(FieldResidentID) }

func (p Profile) ResidentName() string { return p.text(FieldResidentName) }

func (p Profile) Email() string { return p.text(FieldEmail) }

func (p Profile) GivenName() string { return p.text(FieldGivenName) }

func (p Profile) FamilyName() string { return p.text(FieldFamilyName) }

func (p Profile) Role() string { return p.text(FieldRole) }

func (p Profile) AvatarURL() string { return p.text(FieldAvatarURL) }

func (p Profile) Tags() []string {
	value, ok := p.Get(FieldTags)
	if !ok {
		return nil
	}
	tags, _ := value.AsStrings()
	return tags
}

func (p Profile) Online() bool {
	value, ok := p.Get(FieldOnline)
	if !ok {
		return false
	}
	online, _ := value.AsBool()
	return online
}
