// Package config reads the service configuration file, an INI-style format
// with [section] headers, "key: value" options and # comments, tracking
// which options were read.
package config

import (
	"fmt"

	gerrors "gradient-infill-go/pkg/errors"
)

// ErrMissingOption returns an error for a required but missing option.
func ErrMissingOption(section, option string) *gerrors.HostError {
	return gerrors.ConfigOptionError(section, option)
}

// ErrMissingSection returns an error for a missing section.
func ErrMissingSection(section string) *gerrors.HostError {
	return gerrors.New(gerrors.ErrConfigSection, fmt.Sprintf("section '%s' not found", section)).
		SetSection(section)
}

// ErrInvalidValue returns an error for a value that does not parse.
func ErrInvalidValue(section, option, value, expected string, cause error) *gerrors.HostError {
	return gerrors.ConfigTypeError(section, option, value, expected, cause)
}

// ErrOutOfRange returns an error for a value outside the allowed range.
func ErrOutOfRange(section, option string, value float64, constraint string) *gerrors.HostError {
	return gerrors.New(gerrors.ErrConfigValidation,
		fmt.Sprintf("option '%s' in section '%s': value %v %s", option, section, value, constraint)).
		SetSection(section).
		SetOption(option)
}

// ErrInvalidChoice returns an error for a value not in the allowed set.
func ErrInvalidChoice(section, option, value string, choices []string) *gerrors.HostError {
	return gerrors.New(gerrors.ErrConfigValidation,
		fmt.Sprintf("option '%s' in section '%s': '%s' is not a valid choice (valid: %v)", option, section, value, choices)).
		SetSection(section).
		SetOption(option)
}

func newError(message string) *gerrors.HostError {
	return gerrors.New(gerrors.ErrConfigOption, message)
}
