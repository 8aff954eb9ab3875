package log

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToField(t *testing.T) {
	tests := []struct {
		name     string
		attr     slog.Attr
		wantType string
		wantVal  string
	}{
		{name: "string", attr: slog.String("key", "value"), wantType: "string", wantVal: "value"},
		{name: "int64", attr: slog.Int64("key", 123), wantType: "int64", wantVal: "123"},
		{name: "uint64", attr: slog.Uint64("key", 7), wantType: "uint64", wantVal: "7"},
		{name: "bool", attr: slog.Bool("key", true), wantType: "bool", wantVal: "true"},
		{name: "float64", attr: slog.Float64("key", 1.23), wantType: "float64", wantVal: "1.23"},
		{
			name:     "time",
			attr:     slog.Time("key", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			wantType: "time",
			wantVal:  "2024-01-01T00:00:00Z",
		},
		{name: "duration", attr: slog.Duration("key", time.Hour), wantType: "duration", wantVal: "1h0m0s"},
		{name: "error", attr: slog.Any("key", errors.New("test error")), wantType: "error", wantVal: "test error"},
		{name: "nil", attr: slog.Any("key", nil), wantType: "any", wantVal: "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := toField(tt.attr)
			assert.Equal(t, tt.attr.Key, f.Key)
			assert.Equal(t, tt.wantType, f.Type)
			assert.Equal(t, tt.wantVal, f.Value)
		})
	}
}

func TestToField_JSON(t *testing.T) {
	type MyStruct struct {
		Field string `json:"field"`
	}
	obj := MyStruct{Field: "data"}

	f := toField(slog.Any("key", obj))
	assert.Equal(t, "json", f.Type)

	var decoded MyStruct
	require.NoError(t, json.Unmarshal([]byte(f.Value), &decoded))
	assert.Equal(t, obj, decoded)
}

func TestToFields_LogValuerAndGroups(t *testing.T) {
	fields := toFields("", slog.Any("key", logValuer{val: "resolved"}))
	require.Len(t, fields, 1)
	assert.Equal(t, field{Key: "key", Type: "string", Value: "resolved"}, fields[0])

	fields = toFields("p.", slog.Group("sys", slog.String("name", "tick"), slog.Int("n", 2)))
	assert.Equal(t, []field{
		{Key: "p.sys.name", Type: "string", Value: "tick"},
		{Key: "p.sys.n", Type: "int64", Value: "2"},
	}, fields)
}

type logValuer struct {
	val string
}

func (l logValuer) LogValue() slog.Value {
	return slog.StringValue(l.val)
}

func TestNewHandler_Defaults(t *testing.T) {
	h := NewHandler()
	assert.True(t, h.Enabled(context.TODO(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.TODO(), slog.LevelDebug))
}

func TestHandler_Output(t *testing.T) {
	var lines []string
	h := NewHandler(WithLevel(slog.LevelDebug), WithPrinter(func(s string) { lines = append(lines, s) }))
	logger := slog.New(h).With("plugin", "testing").WithGroup("sys")

	logger.Debug("ran system", "name", "test_system", "took", 3*time.Millisecond)
	logger.Info("two words", "msg", "a b")

	require.Len(t, lines, 2)
	assert.Equal(t, `level=DEBUG msg="ran system" plugin=testing sys.name=test_system sys.took=3ms`, lines[0])
	assert.Equal(t, `level=INFO msg="two words" plugin=testing sys.msg="a b"`, lines[1])
}

func TestHandler_Filtered(t *testing.T) {
	called := false
	logger := slog.New(NewHandler(WithPrinter(func(string) { called = true })))

	logger.Debug("hidden")
	assert.False(t, called)
}

func TestHandler_Source(t *testing.T) {
	var line string
	logger := slog.New(NewHandler(WithSource(true), WithPrinter(func(s string) { line = s })))

	logger.Info("with source")
	assert.Contains(t, line, "source=log_test.go:")
}
