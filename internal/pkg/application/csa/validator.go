package csa

import (
	"context"
	"fmt"

	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
)

type requiredFieldsValidator struct{}

// NewValidator creates the schema validator run before every write. It
// checks the structural requirements of each entity type and encoding;
// any violation aborts the write before a store is touched.
func NewValidator() Validator {
	return &requiredFieldsValidator{}
}

func (v *requiredFieldsValidator) Validate(ctx context.Context, entityType EntityType, encoding string, item map[string]any) error {
	violations := []string{}

	if len(item) == 0 {
		return cserrors.NewValidationError("payload must not be empty")
	}

	requireString := func(key string) {
		if s, ok := item[key].(string); !ok || s == "" {
			violations = append(violations, fmt.Sprintf("%s is required", key))
		}
	}

	switch entityType {
	case Systems, Deployments, Procedures:
		if encoding == "application/geo+json" {
			if t, _ := item["type"].(string); t != "Feature" {
				violations = append(violations, "type must be Feature")
			}
			if _, ok := item["properties"].(map[string]any); !ok {
				violations = append(violations, "properties is required")
			}
		} else {
			requireString("type")
			requireString("uniqueId")
		}
	case Datastreams:
		requireString("name")
		if _, ok := item["schema"].(map[string]any); !ok {
			violations = append(violations, "schema is required")
		}
	case Observations:
		if _, ok := item["result"]; !ok {
			violations = append(violations, "result is required")
		}
		requireString("resultTime")
	}

	if len(violations) > 0 {
		return cserrors.NewValidationError(violations...)
	}

	return nil
}
