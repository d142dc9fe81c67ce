package catalog

import "fmt"

// ConfigurationError marks a malformed catalog entry. It is fatal at load
// time: the pipeline does not start on a catalog that fails validation.
type ConfigurationError struct {
	Entity string
	ID     string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("catalog %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("catalog %s %q: %s", e.Entity, e.ID, e.Reason)
}

func configErr(entity, id, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Entity: entity, ID: id, Reason: fmt.Sprintf(format, args...)}
}
