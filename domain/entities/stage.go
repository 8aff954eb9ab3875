package entities

import (
	"fmt"
	"strings"
)

// Stage is a point in the host's plugin pipeline at which a declared system runs.
// The numeric values are part of the wire ABI and must not change.
type Stage uint8

const (
	StagePre         Stage = 0
	StageTick        Stage = 1
	StageSendPackets Stage = 2
	StageCleanUp     Stage = 3
)

var stageNames = [...]string{
	StagePre:         "pre",
	StageTick:        "tick",
	StageSendPackets: "send_packets",
	StageCleanUp:     "clean_up",
}

// Stages returns every stage in pipeline order.
func Stages() []Stage {
	return []Stage{StagePre, StageTick, StageSendPackets, StageCleanUp}
}

// Valid reports whether s is one of the defined stages.
func (s Stage) Valid() bool {
	return s <= StageCleanUp
}

func (s Stage) String() string {
	if !s.Valid() {
		return fmt.Sprintf("stage(%d)", uint8(s))
	}
	return stageNames[s]
}

// ParseStage parses a stage name. Matching is case-insensitive and accepts
// both "send_packets" and "sendpackets".
func ParseStage(name string) (Stage, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for i, n := range stageNames {
		if norm == n || norm == strings.ReplaceAll(n, "_", "") {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
