package custom_errors

import (
	"errors"
)

// ValidationError collects every problem found while validating a configuration so they can be
// reported together.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (c *ValidationError) Add(err error) {
	if err != nil {
		c.Errors = append(c.Errors, err)
	}
}

func (c *ValidationError) HasError() bool {
	return len(c.Errors) > 0
}

func (c *ValidationError) Error() string {
	if len(c.Errors) == 0 {
		return ""
	}
	return errors.Join(c.Errors...).Error()
}

// Unwrap lets errors.Is and errors.As reach the collected errors.
func (c *ValidationError) Unwrap() []error {
	return c.Errors
}
