// Package pattern decides when a turn has gathered enough tool results.
//
// A pattern maps recognizable signals in a user query (keyword phrases,
// extracted entities, an optional CEL predicate) to the set of tool
// categories a complete answer needs. The router treats a matched pattern's
// categories as the termination condition for the tool loop; queries
// matching no pattern are considered answered after one successful call.
// The table ships with embedded defaults and can be extended or overridden
// row-by-row from YAML files.
package pattern

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roundslab/rounds/engine/core"
)

// Pattern is one row of the task-pattern table. A row matches when every
// configured signal agrees: at least one keyword phrase occurs in the
// lowercased query, every listed entity kind was recognized, and the
// optional CEL predicate evaluates true.
type Pattern struct {
	Name        string   `yaml:"name"                  json:"name"                  validate:"required,pattern_name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Keywords    []string `yaml:"keywords,omitempty"    json:"keywords,omitempty"    validate:"dive,required"`
	Entities    []string `yaml:"entities,omitempty"    json:"entities,omitempty"    validate:"dive,oneof=patients substances"`
	When        string   `yaml:"when,omitempty"        json:"when,omitempty"`
	Require     []string `yaml:"require"               json:"require"               validate:"min=1,dive,required"`
}

var patternNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// RegisterValidators adds the custom tag checks the Pattern struct relies on.
func RegisterValidators(v *validator.Validate) error {
	return v.RegisterValidation("pattern_name", func(fl validator.FieldLevel) bool {
		return patternNameRegex.MatchString(fl.Field().String())
	})
}

// Validate runs the struct tags plus the cross-field rule tags cannot
// express: a row with no signals at all would match every query.
func (p *Pattern) Validate(v *validator.Validate) error {
	if err := v.Struct(p); err != nil {
		return core.NewError(err, "INVALID_PATTERN", map[string]any{"pattern": p.Name})
	}
	if len(p.Keywords) == 0 && len(p.Entities) == 0 && p.When == "" {
		return core.NewError(nil, "PATTERN_HAS_NO_SIGNALS", map[string]any{"pattern": p.Name})
	}
	return nil
}

// matchesSignals checks the deterministic signals only; the CEL predicate is
// evaluated by the snapshot so evaluation errors can be reported per row.
func (p *Pattern) matchesSignals(loweredQuery string, entities Entities) bool {
	if len(p.Keywords) > 0 {
		hit := false
		for _, keyword := range p.Keywords {
			if strings.Contains(loweredQuery, strings.ToLower(keyword)) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	for _, kind := range p.Entities {
		if len(entities[kind]) == 0 {
			return false
		}
	}
	return true
}
