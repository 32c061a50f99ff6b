// internal/game/options.go
package game

import (
	"errors"
	"fmt"

	"github.com/jason-s-yu/gamehub/internal/models"
)

var (
	// ErrUnknownOption is returned for option keys a module does not declare.
	ErrUnknownOption = errors.New("game: unknown option")
	// ErrInvalidOption is returned for a value that is not allowed for its option.
	ErrInvalidOption = errors.New("game: invalid option value")
)

// OptionType is how an option is presented and validated.
type OptionType string

const (
	OptionSelect  OptionType = "select"
	OptionBoolean OptionType = "boolean"
)

// Choice is one allowed value of a select option.
type Choice struct {
	Label string      `json:"label"`
	Value interface{} `json:"value"`
}

// OptionSpec declares one configurable game option.
type OptionSpec struct {
	ID      string      `json:"id"`
	Label   string      `json:"label"`
	Type    OptionType  `json:"type"`
	Default interface{} `json:"defaultValue"`
	Choices []Choice    `json:"choices,omitempty"`
}

// Info describes a module to the lobby.
type Info struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"displayName"`
	Description string       `json:"description"`
	MinPlayers  int          `json:"minPlayers"`
	MaxPlayers  int          `json:"maxPlayers"`
	Options     []OptionSpec `json:"gameOptions"`
}

// DefaultOptions returns every declared option at its default value.
func (i Info) DefaultOptions() models.Options {
	opts := make(models.Options, len(i.Options))
	for _, spec := range i.Options {
		opts[spec.ID] = spec.Default
	}
	return opts
}

// Spec finds the declaration of an option.
func (i Info) Spec(id string) (OptionSpec, bool) {
	for _, spec := range i.Options {
		if spec.ID == id {
			return spec, true
		}
	}
	return OptionSpec{}, false
}

// MergeOptions validates changes against the schema and returns current with
// the changes applied. current itself is not modified. If a change is
// invalid, nothing is applied.
func (i Info) MergeOptions(current, changes models.Options) (models.Options, error) {
	merged := current.Clone()
	if merged == nil {
		merged = models.Options{}
	}
	for key, val := range changes {
		spec, ok := i.Spec(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOption, key)
		}
		canonical, err := spec.validate(val)
		if err != nil {
			return nil, err
		}
		merged[key] = canonical
	}
	return merged, nil
}

// validate returns the declared form of val so that 15 and 15.0 are stored
// the same way.
func (s OptionSpec) validate(val interface{}) (interface{}, error) {
	switch s.Type {
	case OptionBoolean:
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", ErrInvalidOption, s.ID)
		}
		return b, nil
	case OptionSelect:
		for _, c := range s.Choices {
			if sameValue(c.Value, val) {
				return c.Value, nil
			}
		}
		return nil, fmt.Errorf("%w: %v is not a choice of %s", ErrInvalidOption, val, s.ID)
	}
	return nil, fmt.Errorf("%w: %s has unsupported type %q", ErrInvalidOption, s.ID, s.Type)
}

func sameValue(a, b interface{}) bool {
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum || bNum {
		return aNum && bNum && fa == fb
	}
	return a == b
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
