package preset

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/computesdk/orchestrator/pkg/errors"
	"github.com/computesdk/orchestrator/pkg/types"
)

var validate = validator.New()

// ValidatePreset checks a PresetSpec without touching the cluster. It is
// used by both create and update.
func (m *manager) ValidatePreset(spec types.PresetSpec) error {
	return ValidateSpec(spec)
}

// ValidateSpec is the pure validation function behind ValidatePreset.
func ValidateSpec(spec types.PresetSpec) error {
	if err := validate.Struct(spec); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.NewValidationError("invalid preset spec", nil, err)
		}

		details := make(map[string]interface{}, len(verrs))
		for _, fe := range verrs {
			details[fieldName(fe.Field())] = fmt.Sprintf("failed %q validation (value %q)", fe.Tag(), fe.Value())
		}
		return errors.NewValidationError("invalid preset spec", details, err)
	}

	for key := range spec.Labels {
		if reservedLabels[key] {
			return errors.NewValidationError(
				"preset labels cannot override orchestrator-owned keys",
				map[string]interface{}{"field": "labels", "value": key},
				nil,
			)
		}
	}
	return nil
}

// fieldName maps exported struct field names to their wire names.
func fieldName(field string) string {
	switch field {
	case "ID":
		return "id"
	case "Name":
		return "name"
	case "Image":
		return "image"
	default:
		return field
	}
}
