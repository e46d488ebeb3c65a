package reasoning

import (
	"errors"
	"fmt"
)

// ErrInvalidValue indicates a reasoning level outside "0".."3".
var ErrInvalidValue = errors.New("invalid reasoning effort")

// Effort is the caller-selected reasoning intensity. Values are ordered:
// None < Low < Medium < High.
type Effort int

const (
	None Effort = iota
	Low
	Medium
	High
)

// Parse accepts exactly one of "0", "1", "2" or "3".
func Parse(text string) (Effort, error) {
	switch text {
	case "0":
		return None, nil
	case "1":
		return Low, nil
	case "2":
		return Medium, nil
	case "3":
		return High, nil
	default:
		return None, fmt.Errorf("%w: %q must be one of 0, 1, 2 or 3", ErrInvalidValue, text)
	}
}

// Generic returns the lowercase word sent in the reasoning_effort field.
// None has no generic form and reports false.
func (e Effort) Generic() (string, bool) {
	switch e {
	case Low:
		return "low", true
	case Medium:
		return "medium", true
	case High:
		return "high", true
	default:
		return "", false
	}
}

func (e Effort) String() string {
	if word, ok := e.Generic(); ok {
		return word
	}
	return "none"
}

// Set implements flag.Value.
func (e *Effort) Set(text string) error {
	parsed, err := Parse(text)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}
