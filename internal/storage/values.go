package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is a fixed-width UTC layout so stored timestamps sort as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t with TimeLayout in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts TimeLayout or any RFC 3339 timestamp.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// EncodeValue converts a field value to the text stored in a dynamic column.
// Strings are kept verbatim, scalars are formatted and containers become JSON.
// Nil and the empty string become SQL NULL; whitespace-only strings are kept.
func EncodeValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if val == "" {
			return nil, nil
		}
		return val, nil
	case json.Number:
		return val.String(), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case time.Time:
		return FormatTime(val), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encode field value: %w", err)
		}
		return string(data), nil
	}
}

// FieldsFromMap builds normalized, name-sorted fields from a decoded object.
// Keys that normalize to the same name keep the value of the greatest key.
func FieldsFromMap(m map[string]any) Fields {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(Fields, 0, len(m))
	for _, k := range keys {
		out = append(out, Field{Name: k, Value: m[k]})
	}
	out = NormalizeFields(out)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// NormalizeFields renames fields with NormalizeFieldName. When two fields
// collapse onto one name, the later value wins at the earlier position.
func NormalizeFields(fields Fields) Fields {
	out := make(Fields, 0, len(fields))
	at := make(map[string]int, len(fields))
	for _, f := range fields {
		name := NormalizeFieldName(f.Name)
		if i, dup := at[name]; dup {
			out[i].Value = f.Value
			continue
		}
		at[name] = len(out)
		out = append(out, Field{Name: name, Value: f.Value})
	}
	return out
}

// ValueRow lays out the encoded values of fields in columns order.
func ValueRow(fields Fields, columns []string) ([]any, error) {
	byName := make(map[string]any, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.Value
	}
	out := make([]any, len(columns))
	for i, c := range columns {
		enc, err := EncodeValue(byName[c])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c, err)
		}
		out[i] = enc
	}
	return out, nil
}

// SplitContent splits stored annotation text back into newline-terminated lines.
func SplitContent(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
