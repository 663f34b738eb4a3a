// Package sovd validates SOVD diagnostic command submissions.
//
// Validation is a pure function over (command name, params): no I/O, no
// clock, no state. The supported command set is closed at build time.
package sovd

import (
	"fmt"
	"regexp"
)

// Supported command names.
const (
	CommandReadDTC      = "ReadDTC"
	CommandClearDTC     = "ClearDTC"
	CommandReadDataByID = "ReadDataByID"
)

// Param format grammars.
var (
	ecuAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{2}$`)
	dataIDPattern     = regexp.MustCompile(`^0x[0-9a-fA-F]{4}$`)
	dtcCodePattern    = regexp.MustCompile(`^P[0-9a-fA-F]{4}$`)
)

// Reason classifies why a submission was rejected.
type Reason string

// Rejection reasons, in order of specificity.
const (
	ReasonUnknownCommand Reason = "unknown_command"
	ReasonMissingField   Reason = "missing_field"
	ReasonBadFormat      Reason = "bad_format"
)

// ValidationError describes a rejected command submission.
type ValidationError struct {
	Field   string
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command: field %q: %s", e.Field, e.Message)
}

func unknownCommand(name string) error {
	return &ValidationError{
		Field:   "command_name",
		Reason:  ReasonUnknownCommand,
		Message: fmt.Sprintf("unsupported command %q", name),
	}
}

func missing(field string) error {
	return &ValidationError{
		Field:   field,
		Reason:  ReasonMissingField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

func badFormat(field, expected string) error {
	return &ValidationError{
		Field:   field,
		Reason:  ReasonBadFormat,
		Message: fmt.Sprintf("%s must match %s", field, expected),
	}
}

// Validate checks a command submission against the closed SOVD command set.
// A nil return means the params are acceptable as-is; they are stored and
// forwarded without further interpretation.
func Validate(name string, params map[string]any) error {
	switch name {
	case CommandReadDTC:
		return validateEcuAddress(params)
	case CommandClearDTC:
		if err := validateEcuAddress(params); err != nil {
			return err
		}
		return validateOptional(params, "dtcCode", dtcCodePattern, "P followed by 4 hex digits")
	case CommandReadDataByID:
		if err := validateEcuAddress(params); err != nil {
			return err
		}
		return validateRequired(params, "dataId", dataIDPattern, "0x followed by 4 hex digits")
	default:
		return unknownCommand(name)
	}
}

func validateEcuAddress(params map[string]any) error {
	return validateRequired(params, "ecuAddress", ecuAddressPattern, "0x followed by 2 hex digits")
}

func validateRequired(params map[string]any, field string, pattern *regexp.Regexp, expected string) error {
	raw, ok := params[field]
	if !ok {
		return missing(field)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		if s == "" && ok {
			return missing(field)
		}
		return badFormat(field, expected)
	}
	if !pattern.MatchString(s) {
		return badFormat(field, expected)
	}
	return nil
}

func validateOptional(params map[string]any, field string, pattern *regexp.Regexp, expected string) error {
	raw, ok := params[field]
	if !ok {
		return nil
	}
	s, ok := raw.(string)
	if !ok || !pattern.MatchString(s) {
		return badFormat(field, expected)
	}
	return nil
}
