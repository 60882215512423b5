package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateEntity checks a single entity definition for structural problems.
func ValidateEntity(e *Entity) error {
	var errs []error

	if strings.TrimSpace(e.Name) == "" {
		return errors.New("entity name must not be empty")
	}
	if strings.Contains(e.Name, "/") {
		errs = append(errs, fmt.Errorf("entity %s: name must not contain '/'", e.Name))
	}

	seen := make(map[string]bool, len(e.Fields))
	for i, f := range e.Fields {
		if strings.TrimSpace(f.Name) == "" {
			errs = append(errs, fmt.Errorf("entity %s: field %d has no name", e.Name, i))
			continue
		}
		if seen[f.Name] {
			errs = append(errs, fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name))
		}
		seen[f.Name] = true
		if f.DataType == "" {
			errs = append(errs, fmt.Errorf("entity %s: field %s has no data type", e.Name, f.Name))
		}
	}

	for _, r := range e.Endpoints.CustomRoutes {
		if !strings.HasPrefix(r.Path, "/") {
			errs = append(errs, fmt.Errorf("entity %s: custom route path %q must start with '/'", e.Name, r.Path))
		}
		if _, err := ParseHTTPMethod(string(r.Method)); err != nil {
			errs = append(errs, fmt.Errorf("entity %s: custom route %s: %w", e.Name, r.Path, err))
		}
	}

	for _, rel := range e.Relationships {
		if rel.RelatedEntity == "" {
			errs = append(errs, fmt.Errorf("entity %s: relationship %s has no related entity", e.Name, rel.Name))
		}
	}

	for _, v := range e.Validations {
		if _, ok := e.Field(v.Field); !ok {
			errs = append(errs, fmt.Errorf("entity %s: validation references unknown field %s", e.Name, v.Field))
		}
		if v.ValidationType.Type == RuleRegex {
			if _, err := compilePattern(v.ValidationType.Pattern); err != nil {
				errs = append(errs, fmt.Errorf("entity %s: invalid pattern for %s: %w", e.Name, v.Field, err))
			}
		}
	}

	return errors.Join(errs...)
}

// ValidateEntities validates every entity and joins the problems found.
func ValidateEntities(entities []Entity) error {
	if len(entities) == 0 {
		return errors.New("no entities configured")
	}
	var errs []error
	for i := range entities {
		if err := ValidateEntity(&entities[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NameCollisions returns the routing keys shared by more than one entity.
func NameCollisions(entities []Entity) []string {
	counts := make(map[string]int)
	var order []string
	for i := range entities {
		key := entities[i].RouteKey()
		if counts[key] == 0 {
			order = append(order, key)
		}
		counts[key]++
	}
	var dups []string
	for _, key := range order {
		if counts[key] > 1 {
			dups = append(dups, key)
		}
	}
	return dups
}
