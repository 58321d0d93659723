package store

import (
	"fmt"
	"sort"
)

// Patch collects a sparse column update. Only columns on the allow-list can
// be set, so callers cannot inject arbitrary column names into an UPDATE.
type Patch struct {
	allowed map[string]struct{}
	values  map[string]any
}

// NewPatch returns an empty patch restricted to the given columns.
func NewPatch(allowed ...string) *Patch {
	p := &Patch{
		allowed: make(map[string]struct{}, len(allowed)),
		values:  map[string]any{},
	}
	for _, col := range allowed {
		p.allowed[col] = struct{}{}
	}
	return p
}

// Set records a value for column. A nil value writes SQL NULL.
func (p *Patch) Set(column string, value any) error {
	if _, ok := p.allowed[column]; !ok {
		return &InvalidArgumentError{Field: column, Message: "column is not patchable"}
	}
	p.values[column] = value
	return nil
}

// Empty reports whether no column was set.
func (p *Patch) Empty() bool { return len(p.values) == 0 }

// Columns returns the set columns in sorted order.
func (p *Patch) Columns() []string {
	cols := make([]string, 0, len(p.values))
	for col := range p.values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// Values returns a copy of the column/value map.
func (p *Patch) Values() map[string]any {
	out := make(map[string]any, len(p.values))
	for k, v := range p.values {
		out[k] = v
	}
	return out
}

// Field is a tri-state optional value: unset, set to null, or set to a value.
type Field[T any] struct {
	Set   bool
	Value *T
}

// Value returns a set Field holding v.
func Value[T any](v T) Field[T] { return Field[T]{Set: true, Value: &v} }

// Null returns a set Field holding SQL NULL.
func Null[T any]() Field[T] { return Field[T]{Set: true} }

func (f Field[T]) apply(p *Patch, column string) error {
	if !f.Set {
		return nil
	}
	if f.Value == nil {
		return p.Set(column, nil)
	}
	return p.Set(column, *f.Value)
}

// Allowed values for the conversation quality knobs.
var (
	QualityLevels    = []string{"low", "medium", "high"}
	ReasoningEfforts = []string{"minimal", "low", "medium", "high"}
	Verbosities      = []string{"low", "medium", "high"}
)

// ConversationSettingsColumns is the allow-list for UpdateConversationSettings.
var ConversationSettingsColumns = []string{
	"streaming_enabled",
	"tools_enabled",
	"quality_level",
	"reasoning_effort",
	"verbosity",
}

// SettingsPatch is a partial update of a conversation's behaviour settings.
// ActiveTools, when non-nil, replaces the reserved metadata key.
type SettingsPatch struct {
	StreamingEnabled *bool
	ToolsEnabled     *bool
	QualityLevel     Field[string]
	ReasoningEffort  Field[string]
	Verbosity        Field[string]
	ActiveTools      *[]string
}

// Build validates enum values and returns the column patch.
func (s SettingsPatch) Build() (*Patch, error) {
	p := NewPatch(ConversationSettingsColumns...)
	if s.StreamingEnabled != nil {
		if err := p.Set("streaming_enabled", *s.StreamingEnabled); err != nil {
			return nil, err
		}
	}
	if s.ToolsEnabled != nil {
		if err := p.Set("tools_enabled", *s.ToolsEnabled); err != nil {
			return nil, err
		}
	}
	knobs := []struct {
		column  string
		field   Field[string]
		allowed []string
	}{
		{"quality_level", s.QualityLevel, QualityLevels},
		{"reasoning_effort", s.ReasoningEffort, ReasoningEfforts},
		{"verbosity", s.Verbosity, Verbosities},
	}
	for _, k := range knobs {
		if err := ValidateEnum(k.column, k.field.Value, k.allowed); err != nil {
			return nil, err
		}
		if err := k.field.apply(p, k.column); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ValidateEnum accepts nil or one of allowed.
func ValidateEnum(field string, v *string, allowed []string) error {
	if v == nil {
		return nil
	}
	for _, a := range allowed {
		if *v == a {
			return nil
		}
	}
	return &InvalidArgumentError{Field: field, Message: fmt.Sprintf("must be one of %v", allowed)}
}
