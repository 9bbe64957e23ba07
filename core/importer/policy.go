package importer

import (
	"fmt"
	"strings"

	"github.com/trezcool/schoolsaas/core"
)

// BlankScoreMode decides what happens to a row whose score cell is blank or not a whole number.
type BlankScoreMode int

const (
	// BlankScoreZero records the score as 0.
	BlankScoreZero BlankScoreMode = iota
	// BlankScoreSkipRow skips the whole row.
	BlankScoreSkipRow
	// BlankScoreReject fails the import with a ScoreValidationError.
	BlankScoreReject
)

func (m BlankScoreMode) String() string {
	switch m {
	case BlankScoreSkipRow:
		return "skip"
	case BlankScoreReject:
		return "reject"
	default:
		return "zero"
	}
}

// ParseBlankScoreMode parses "zero" (or ""), "skip" and "reject".
func ParseBlankScoreMode(s string) (BlankScoreMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "zero":
		return BlankScoreZero, nil
	case "skip":
		return BlankScoreSkipRow, nil
	case "reject":
		return BlankScoreReject, nil
	}
	return BlankScoreZero, fmt.Errorf("unknown blank score mode %q", s)
}

// Policy holds the overridable coercions of the import.
type Policy struct {
	BlankScore BlankScoreMode
	// AdmissionRetries is how many times a colliding admission number is regenerated.
	// With 0 no existence check is made and a collision fails on the unique constraint.
	AdmissionRetries int
}

func DefaultPolicy() Policy {
	return Policy{BlankScore: BlankScoreZero}
}

// PolicyFromConfig builds the Policy configured by IMPORT_BLANK_SCORE & IMPORT_ADMISSION_RETRIES.
func PolicyFromConfig(conf core.ImportConfig) (Policy, error) {
	mode, err := ParseBlankScoreMode(conf.BlankScore)
	if err != nil {
		return Policy{}, err
	}
	if conf.AdmissionRetries < 0 {
		return Policy{}, fmt.Errorf("admission retries cannot be negative (got %d)", conf.AdmissionRetries)
	}
	return Policy{BlankScore: mode, AdmissionRetries: conf.AdmissionRetries}, nil
}
