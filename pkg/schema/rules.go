package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// ValidationKind names a validation rule.
type ValidationKind string

const (
	RuleLength  ValidationKind = "Length"
	RuleRegex   ValidationKind = "Regex"
	RuleEmail   ValidationKind = "Email"
	RuleNumeric ValidationKind = "Numeric"
	RuleRange   ValidationKind = "Range"
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ValidationKind) UnmarshalText(text []byte) error {
	for _, vk := range []ValidationKind{RuleLength, RuleRegex, RuleEmail, RuleNumeric, RuleRange} {
		if strings.EqualFold(string(vk), string(text)) {
			*k = vk
			return nil
		}
	}
	return fmt.Errorf("unknown validation type %q", text)
}

// ValidationType is a rule with its parameters.
// Length uses Min and an optional Max, Range uses both, Regex uses Pattern.
type ValidationType struct {
	Type    ValidationKind `json:"type" yaml:"type"`
	Min     *float64       `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *float64       `json:"max,omitempty" yaml:"max,omitempty"`
	Pattern string         `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Validation binds a rule to a field.
type Validation struct {
	Field          string         `json:"field" yaml:"field"`
	ValidationType ValidationType `json:"validation_type" yaml:"validation_type"`
	ErrorMessage   *string        `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// patterns caches compiled Regex rules by source pattern.
var patterns sync.Map

// compilePattern returns the compiled form of pattern, compiling it at most
// once. Invalid patterns are not cached.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if re, ok := patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	actual, _ := patterns.LoadOrStore(pattern, re)
	return actual.(*regexp.Regexp), nil
}

// RuleError lists the rule violations found in a record.
type RuleError struct {
	Entity     string
	Violations []string
}

// Error implements the error interface.
func (e *RuleError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Entity, strings.Join(e.Violations, "; "))
}

// ValidateRecord applies the entity's validation rules to a decoded record.
// Absent and null values are skipped.
func (e *Entity) ValidateRecord(record map[string]any) error {
	var violations []string
	for _, v := range e.Validations {
		value, ok := record[v.Field]
		if !ok || value == nil {
			continue
		}
		if err := v.check(value); err != nil {
			if v.ErrorMessage != nil && *v.ErrorMessage != "" {
				violations = append(violations, *v.ErrorMessage)
			} else {
				violations = append(violations, err.Error())
			}
		}
	}
	if len(violations) > 0 {
		return &RuleError{Entity: e.Name, Violations: violations}
	}
	return nil
}

func (v Validation) check(value any) error {
	rule := v.ValidationType
	switch rule.Type {
	case RuleLength:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field '%s' must be a string", v.Field)
		}
		n := float64(utf8.RuneCountInString(s))
		if rule.Min != nil && n < *rule.Min {
			return fmt.Errorf("field '%s' must be at least %g characters", v.Field, *rule.Min)
		}
		if rule.Max != nil && n > *rule.Max {
			return fmt.Errorf("field '%s' must be at most %g characters", v.Field, *rule.Max)
		}
	case RuleRegex:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("field '%s' must be a string", v.Field)
		}
		re, err := compilePattern(rule.Pattern)
		if err != nil {
			return fmt.Errorf("field '%s' has an invalid pattern: %v", v.Field, err)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("field '%s' does not match pattern %s", v.Field, rule.Pattern)
		}
	case RuleEmail:
		s, ok := value.(string)
		if !ok || !emailPattern.MatchString(s) {
			return fmt.Errorf("field '%s' must be a valid email address", v.Field)
		}
	case RuleNumeric:
		if _, ok := toFloat(value); !ok {
			return fmt.Errorf("field '%s' must be numeric", v.Field)
		}
	case RuleRange:
		n, ok := toFloat(value)
		if !ok {
			return fmt.Errorf("field '%s' must be numeric", v.Field)
		}
		if (rule.Min != nil && n < *rule.Min) || (rule.Max != nil && n > *rule.Max) {
			return fmt.Errorf("field '%s' must be between %g and %g", v.Field, deref(rule.Min), deref(rule.Max))
		}
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
