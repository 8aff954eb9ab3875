package entities

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level singleton; building a validator is expensive.
var validate = validator.New()

// PluginInfo is the decoded form of a plugin registration: the value a guest's
// setup export describes, copied out of guest memory.
type PluginInfo struct {
	Name    string       `json:"name" yaml:"name" validate:"required,max=255"`
	Version string       `json:"version" yaml:"version" validate:"required,max=64"`
	Systems []SystemInfo `json:"systems" yaml:"systems" validate:"unique=Name,dive"`
}

// SystemInfo declares one guest-exported callback and the stage it runs at.
type SystemInfo struct {
	Name  string `json:"name" yaml:"name" validate:"required,max=255,printascii"`
	Stage Stage  `json:"stage" yaml:"stage" validate:"lte=3"`
}

// Validate checks the registration for the invariants the host relies on
// when building its dispatch table.
func (p PluginInfo) Validate() error {
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid plugin registration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid plugin registration: %w", err)
	}
	return nil
}

// SystemsAt returns the systems declared for stage, in declaration order.
func (p PluginInfo) SystemsAt(stage Stage) []SystemInfo {
	var out []SystemInfo
	for _, s := range p.Systems {
		if s.Stage == stage {
			out = append(out, s)
		}
	}
	return out
}
