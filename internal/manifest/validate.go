package manifest

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ValidationError reports a manifest that is missing required fields or holds invalid values.
type ValidationError struct {
	Kind   string
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s manifest:\n  - %s", e.Kind, strings.Join(e.Fields, "\n  - "))
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks a decoded manifest against its struct tags.
// kind names the manifest in the returned error.
func Validate(kind string, v any) error {
	err := structValidator().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %s manifest: %w", kind, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			fields = append(fields, fmt.Sprintf("%s: failed '%s=%s' (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			fields = append(fields, fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag()))
		}
	}
	return &ValidationError{Kind: kind, Fields: fields}
}
