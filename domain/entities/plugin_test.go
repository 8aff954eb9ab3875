package entities

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validInfo() PluginInfo {
	return PluginInfo{
		Name:    "Testing Plugin",
		Version: "1.0.0",
		Systems: []SystemInfo{
			{Name: "test_system", Stage: StageTick},
			{Name: "cleanup", Stage: StageCleanUp},
		},
	}
}

func TestPluginInfo_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PluginInfo)
		wantErr string
	}{
		{name: "valid", mutate: func(*PluginInfo) {}},
		{name: "no systems", mutate: func(p *PluginInfo) { p.Systems = nil }},
		{name: "empty name", mutate: func(p *PluginInfo) { p.Name = "" }, wantErr: "PluginInfo.Name"},
		{name: "empty version", mutate: func(p *PluginInfo) { p.Version = "" }, wantErr: "PluginInfo.Version"},
		{name: "long version", mutate: func(p *PluginInfo) { p.Version = strings.Repeat("1", 65) }, wantErr: `"max"`},
		{name: "duplicate system", mutate: func(p *PluginInfo) { p.Systems[1].Name = "test_system" }, wantErr: `"unique"`},
		{name: "empty system name", mutate: func(p *PluginInfo) { p.Systems[0].Name = "" }, wantErr: "Systems[0].Name"},
		{name: "non ascii system name", mutate: func(p *PluginInfo) { p.Systems[0].Name = "tick\n" }, wantErr: `"printascii"`},
		{name: "stage out of range", mutate: func(p *PluginInfo) { p.Systems[1].Stage = 4 }, wantErr: "Systems[1].Stage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := validInfo()
			tt.mutate(&info)

			err := info.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPluginInfo_SystemsAt(t *testing.T) {
	info := validInfo()
	info.Systems = append(info.Systems, SystemInfo{Name: "second_tick", Stage: StageTick})

	assert.Equal(t, []SystemInfo{
		{Name: "test_system", Stage: StageTick},
		{Name: "second_tick", Stage: StageTick},
	}, info.SystemsAt(StageTick))
	assert.Empty(t, info.SystemsAt(StagePre))
}

func TestPluginInfo_Serialization(t *testing.T) {
	info := validInfo()

	data, err := json.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"tick"`)

	var back PluginInfo
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, info, back)

	out, err := yaml.Marshal(info)
	require.NoError(t, err)
	assert.Contains(t, string(out), "stage: clean_up")
}

func TestStage(t *testing.T) {
	assert.Equal(t, []Stage{StagePre, StageTick, StageSendPackets, StageCleanUp}, Stages())
	assert.Equal(t, "send_packets", StageSendPackets.String())
	assert.Equal(t, "stage(7)", Stage(7).String())
	assert.False(t, Stage(4).Valid())

	for _, in := range []string{"SendPackets", "send-packets", " send_packets "} {
		s, err := ParseStage(in)
		require.NoError(t, err, in)
		assert.Equal(t, StageSendPackets, s)
	}

	_, err := ParseStage("post")
	assert.Error(t, err)

	_, err = Stage(9).MarshalText()
	assert.Error(t, err)
}

func TestErrorDetail(t *testing.T) {
	detail := NewErrorDetail("memory", "layout mismatch").WithCode("layout_mismatch")
	detail.Wrapped = NewErrorDetail("internal", "trap")

	assert.Equal(t, "memory: layout mismatch [layout_mismatch]: trap", detail.Error())

	var nilDetail *ErrorDetail
	assert.Empty(t, nilDetail.Error())
}
