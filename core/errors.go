package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrConfiguration       = errors.New("configuration error")
	ErrValidation          = errors.New("sample validation failed")
	ErrNoValidSampleSet    = errors.New("no valid sample set")
	ErrMonotonicity        = errors.New("monotonicity violation")
	ErrInsufficientHistory = errors.New("insufficient correlation history")
	ErrTimeConversion      = errors.New("time conversion failed")
)

// ConfigurationError reports contradictory or unusable parameters.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration error: " + e.Msg }

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError enumerates every problem found in a group of samples.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("sample validation failed with %d problem(s): %s",
		len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NoValidSampleSetError is returned once a selection strategy has exhausted
// its search space.
type NoValidSampleSetError struct {
	Strategy   SelectionKind
	Start      time.Time
	Stop       time.Time
	Candidates int
	LastReject *Rejection
}

func (e *NoValidSampleSetError) Error() string {
	msg := fmt.Sprintf("no valid sample set found by %s between %s and %s after %d candidate(s)",
		e.Strategy, e.Start.UTC().Format(time.RFC3339), e.Stop.UTC().Format(time.RFC3339), e.Candidates)
	if e.LastReject != nil {
		msg += fmt.Sprintf("; last rejection by %s: %s", e.LastReject.Filter, e.LastReject.Reason)
	}
	return msg
}

func (e *NoValidSampleSetError) Unwrap() error { return ErrNoValidSampleSet }

// MonotonicityError carries the conflicting values of a candidate that
// would not strictly advance ground time and onboard clock.
type MonotonicityError struct {
	NewTdtG        float64
	PriorTdtG      float64
	NewEncoded     float64
	PriorEncoded   float64
	PriorRecordSeq int64
}

func (e *MonotonicityError) Error() string {
	return fmt.Sprintf(
		"new correlation does not advance history record %d: TDT(G) %.6f vs prior %.6f, encoded SCLK %.0f vs prior %.0f",
		e.PriorRecordSeq, e.NewTdtG, e.PriorTdtG, e.NewEncoded, e.PriorEncoded)
}

func (e *MonotonicityError) Unwrap() error { return ErrMonotonicity }

// InsufficientHistoryError is returned when predicted mode finds no record
// inside the look-back bounds.
type InsufficientHistoryError struct {
	LookBackHours    float64
	MaxLookBackHours float64
	Msg              string
}

func (e *InsufficientHistoryError) Error() string {
	msg := fmt.Sprintf(
		"no correlation record between %.2f and %.2f hours before the new ground time; "+
			"use the assigned or no-drift rate mode, or widen the look-back bounds",
		e.LookBackHours, e.MaxLookBackHours)
	if e.Msg != "" {
		msg = e.Msg + ": " + msg
	}
	return msg
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }

// TimeConversionError wraps a failure reported by the time/geometry service.
type TimeConversionError struct {
	Op  string
	Err error
}

func (e *TimeConversionError) Error() string {
	if e.Err == nil {
		return "time conversion " + e.Op + " failed"
	}
	return fmt.Sprintf("time conversion %s failed: %v", e.Op, e.Err)
}

func (e *TimeConversionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTimeConversion}
	}
	return []error{ErrTimeConversion, e.Err}
}

func timeConversion(op string, err error) error {
	var tce *TimeConversionError
	if errors.As(err, &tce) {
		return err
	}
	return &TimeConversionError{Op: op, Err: err}
}
