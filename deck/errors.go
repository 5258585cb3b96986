package deck

import (
	"errors"
	"fmt"
)

// Code classifies pipeline failures and advisories with a stable identifier
// that survives serialization into job records and HTTP responses.
type Code string

const (
	CodeBadImage       Code = "BAD_IMAGE"
	CodeOCRLowConf     Code = "OCR_LOW_CONF"
	CodeMatchAmbiguous Code = "MATCH_AMBIGUOUS"
	CodeExportInvalid  Code = "EXPORT_INVALID"
	CodeRateLimit      Code = "RATE_LIMIT"
	CodeTimeout        Code = "TIMEOUT"
	CodeInternal       Code = "INTERNAL"
)

// Advisory codes attached to decks as warnings, never as failures.
const (
	WarnMTGOLandFix     Code = "MTGO_LAND_FIX_APPLIED"
	WarnMTGOLandAnomaly Code = "MTGO_LAND_ANOMALY"
	WarnMainCount       Code = "MAIN_COUNT_UNUSUAL"
	WarnUnparsedLine    Code = "UNPARSED_LINE"
)

// Error is a classified pipeline error. The zero Code is treated as INTERNAL.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a classification to an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the classification from err, walking the wrap chain.
// Unclassified errors report INTERNAL; nil reports the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) && de.Code != "" {
		return de.Code
	}
	return CodeInternal
}

// Warning is a non-fatal advisory attached to a parsed or resolved deck.
type Warning struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func warnf(code Code, format string, args ...any) Warning {
	return Warning{Code: code, Message: fmt.Sprintf(format, args...)}
}
