package importer

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"cleaning-crm/common"
)

// ErrInvalidMapping is matched by every *MappingError
var ErrInvalidMapping = errors.New("invalid column mapping")

// MappingError lists everything wrong with a mapping at once
type MappingError struct {
	Problems []common.ValidationError
}

func (e *MappingError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "invalid column mapping: " + strings.Join(msgs, "; ")
}

func (e *MappingError) Is(target error) bool { return target == ErrInvalidMapping }

// ValidateMapping is the pre-flight check run before any row is written:
// required fields must be mapped, field keys must exist and mapped columns
// must be present in the file.
func ValidateMapping(fields []FieldSpec, mapping ColumnMapping, headers []string) error {
	var problems []common.ValidationError

	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}

	for _, f := range fields {
		column := mapping[f.Key]
		if column == "" {
			if f.Required {
				problems = append(problems, common.ValidationError{
					Field:   f.Key,
					Message: fmt.Sprintf("%s is required and must be mapped to a column", f.Label),
				})
			}
			continue
		}
		if !known[column] {
			problems = append(problems, common.ValidationError{
				Field:   f.Key,
				Message: fmt.Sprintf("column %q is not in the file", column),
			})
		}
	}

	var unknown []string
	for key, column := range mapping {
		if column == "" {
			continue
		}
		if _, ok := fieldByKey(fields, key); !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	for _, key := range unknown {
		problems = append(problems, common.ValidationError{
			Field:   key,
			Message: "unknown field",
		})
	}

	if len(problems) > 0 {
		return &MappingError{Problems: problems}
	}
	return nil
}
