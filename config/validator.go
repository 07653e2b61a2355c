package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// "env" restricts the deployment environment to known values.
	_ = validate.RegisterValidation("env", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "development", "staging", "production":
			return true
		}
		return false
	})
}

// ValidationError describes a single invalid configuration field.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors aggregates all validation failures for one config.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration against struct tags and
// cross-field rules that tags cannot express.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, verr := range verrs {
				errs = append(errs, ValidationError{
					Field:   normalizeFieldPath(verr.Namespace()),
					Value:   verr.Value(),
					Message: formatValidationError(verr),
				})
			}
		} else {
			return fmt.Errorf("config validation error: %w", err)
		}
	}

	// Rules spanning multiple fields.
	if cfg.Indexer.ChunkOverlap >= cfg.Indexer.ChunkSize {
		errs = append(errs, ValidationError{
			Field:   "indexer.chunk_overlap",
			Value:   cfg.Indexer.ChunkOverlap,
			Message: "must be smaller than indexer.chunk_size",
		})
	}
	if cfg.Embedding.Provider == "http" && cfg.Embedding.Endpoint == "" {
		errs = append(errs, ValidationError{
			Field:   "embedding.endpoint",
			Value:   "",
			Message: "required when embedding.provider is http",
		})
	}
	if cfg.Dense.Backend == "pgvector" && cfg.Dense.DatabaseURL == "" {
		errs = append(errs, ValidationError{
			Field:   "dense.database_url",
			Value:   "",
			Message: "required when dense.backend is pgvector",
		})
	}
	if cfg.Memory.TopKFused > cfg.Memory.TopKDense+cfg.Memory.TopKSparse {
		errs = append(errs, ValidationError{
			Field:   "memory.top_k_fused",
			Value:   cfg.Memory.TopKFused,
			Message: "cannot exceed top_k_dense + top_k_sparse",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// normalizeFieldPath converts "Config.Server.HTTP.Port" to "server.http.port".
func normalizeFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:] // drop root struct name
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}

// formatValidationError produces a human-readable message for a tag failure.
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	case "url":
		return "must be a valid URL"
	case "env":
		return "must be one of: development, staging, production"
	default:
		return fmt.Sprintf("failed validation: %s", err.Tag())
	}
}
