// Package xerr provides error-composition helpers, plus the build-mode
// switch and Critical/Severe reporting in release.go.
//
// errors.go is a direct port of the teacher's build/errors.go: helpers
// that build human-readable sentences describing what layer of the
// system failed and why, composing multiple independent failures (e.g.
// "close the metadata file" and "close the sector file" both failing
// during a rollback) into one reported error. mm2 itself uses only
// Release and Critical from this package.
package xerr

import (
	"errors"
	"strings"
)

// ExtendErr returns a new error extending err with a descriptive prefix.
// If err is nil, ExtendErr returns nil, discarding the prefix.
func ExtendErr(s string, err error) error {
	if err == nil {
		return nil
	}
	return errors.New(s + ": " + err.Error())
}

// ComposeErrors merges multiple errors into one, skipping nils. Returns
// nil if every input is nil.
func ComposeErrors(errs ...error) error {
	var parts []string
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return errors.New(strings.Join(parts, "; "))
}

// JoinErrors concatenates the non-nil errors in errs using sep.
func JoinErrors(errs []error, sep string) error {
	var parts []string
	for _, err := range errs {
		if err != nil {
			parts = append(parts, err.Error())
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return errors.New(strings.Join(parts, sep))
}
