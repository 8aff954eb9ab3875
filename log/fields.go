package log

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// field is one formatted attribute.
type field struct {
	Key   string
	Type  string // "string", "int64", "bool", "float64", "time", "error", "json", "any"
	Value string
}

// toFields converts an attribute to fields, flattening groups into dotted keys.
func toFields(prefix string, attr slog.Attr) []field {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return nil
	}
	if attr.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if attr.Key != "" {
			groupPrefix = prefix + attr.Key + "."
		}
		var out []field
		for _, a := range attr.Value.Group() {
			out = append(out, toFields(groupPrefix, a)...)
		}
		return out
	}
	f := toField(attr)
	f.Key = prefix + f.Key
	return []field{f}
}

// toField converts a resolved, non-group slog.Attr to a field.
func toField(attr slog.Attr) field {
	f := field{Key: attr.Key}

	switch attr.Value.Kind() {
	case slog.KindString:
		f.Type = "string"
		f.Value = attr.Value.String()
	case slog.KindInt64:
		f.Type = "int64"
		f.Value = strconv.FormatInt(attr.Value.Int64(), 10)
	case slog.KindUint64:
		f.Type = "uint64"
		f.Value = strconv.FormatUint(attr.Value.Uint64(), 10)
	case slog.KindBool:
		f.Type = "bool"
		f.Value = strconv.FormatBool(attr.Value.Bool())
	case slog.KindFloat64:
		f.Type = "float64"
		f.Value = strconv.FormatFloat(attr.Value.Float64(), 'g', -1, 64)
	case slog.KindTime:
		f.Type = "time"
		f.Value = attr.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		f.Type = "duration"
		f.Value = attr.Value.Duration().String()
	default:
		v := attr.Value.Any()
		switch {
		case v == nil:
			f.Type = "any"
			f.Value = "<nil>"
		case isError(v):
			f.Type = "error"
			f.Value = v.(error).Error()
		default:
			if data, err := json.Marshal(v); err == nil {
				f.Type = "json"
				f.Value = string(data)
			} else {
				f.Type = "any"
				f.Value = fmt.Sprintf("%v", v)
			}
		}
	}
	return f
}

func isError(v any) bool {
	_, ok := v.(error)
	return ok
}

func writeField(b *strings.Builder, f field) {
	b.WriteByte(' ')
	b.WriteString(f.Key)
	b.WriteByte('=')
	b.WriteString(quote(f.Value))
}

// quote quotes s if it would not survive as a bare logfmt value.
func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " =\"\t\n\\") {
		return strconv.Quote(s)
	}
	return s
}

func shortSource(file string, line int) string {
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}
