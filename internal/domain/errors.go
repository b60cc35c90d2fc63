package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrItemNotFound        = errors.New("item not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrInvalidOptions      = errors.New("invalid options")
)

// ConfigurationError means a required endpoint or credential is missing or rejected.
// It is the only error a scoring request surfaces to its caller.
type ConfigurationError struct {
	Component string
	Msg       string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: configuration error: %s", e.Component, e.Msg)
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}
