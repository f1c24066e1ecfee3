package tenantdata

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"
)

func jsonName(f reflect.StructField) string {
	name := strings.Split(f.Tag.Get("json"), ",")[0]
	if name == "-" {
		return ""
	}
	return name
}

// decodeLenient fills the tagged fields of the struct dst points to from the
// JSON object in data. Unknown keys and values that do not fit their field
// are returned in extra unchanged. A number sent for a string field is also
// copied into the field as text so it can still be matched on.
func decodeLenient(data []byte, dst interface{}) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	v := reflect.ValueOf(dst).Elem()
	t := v.Type()
	fields := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := jsonName(t.Field(i)); name != "" {
			fields[name] = i
		}
	}

	var extra map[string]json.RawMessage
	for k, raw := range all {
		i, ok := fields[k]
		if ok {
			f := v.Field(i)
			if err := json.Unmarshal(raw, f.Addr().Interface()); err == nil {
				continue
			}
			f.Set(reflect.Zero(f.Type()))
			if f.Kind() == reflect.String && isNumber(raw) {
				f.SetString(string(bytes.TrimSpace(raw)))
			}
		}
		if extra == nil {
			extra = make(map[string]json.RawMessage)
		}
		extra[k] = raw
	}
	return extra, nil
}

func isNumber(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !(raw[0] == '-' || (raw[0] >= '0' && raw[0] <= '9')) {
		return false
	}
	var n json.Number
	return json.Unmarshal(raw, &n) == nil
}

// marshalWithExtra encodes v and merges extra back in. An extra value wins
// over a key v left empty, or over the text copy decodeLenient made of it.
func marshalWithExtra(v interface{}, extra map[string]json.RawMessage) ([]byte, error) {
	base, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return base, err
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, val := range extra {
		if cur, ok := merged[k]; !ok || placeholder(cur, val) {
			merged[k] = val
		}
	}
	return json.Marshal(merged)
}

func placeholder(cur, orig json.RawMessage) bool {
	switch string(bytes.TrimSpace(cur)) {
	case `""`, "null", "[]", "{}":
		return true
	}
	var s string
	return json.Unmarshal(cur, &s) == nil && s == string(bytes.TrimSpace(orig))
}
