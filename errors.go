package popcache

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrClosed is returned by Set after the Manager was closed.
var ErrClosed = errors.New("popcache: manager is closed")

var _ error = (*ParseError)(nil)
var _ error = (*StorageError)(nil)

// ParseError reports a population value that is not a non-negative integer.
type ParseError struct {
	Input  string
	Reason string
}

func (err *ParseError) Error() string {
	return fmt.Sprintf("popcache: can not use %q as a population: %s", err.Input, err.Reason)
}

// StorageError wraps a DurableStore failure with the operation and key it happened on.
type StorageError struct {
	Op  string
	Key Key
	Err error
}

func (err *StorageError) Error() string {
	if err.Key == "" {
		return fmt.Sprintf("popcache: storage %s: %s", err.Op, err.Err.Error())
	}
	return fmt.Sprintf("popcache: storage %s key=%s: %s", err.Op, err.Key, err.Err.Error())
}

func (err *StorageError) Unwrap() error {
	return err.Err
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var perr *ParseError
	return errors.As(err, &perr)
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr)
}

// ParseValue parses a decimal population. Surrounding spaces are ignored.
func ParseValue(s string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		var nerr *strconv.NumError
		if errors.As(err, &nerr) && nerr.Err == strconv.ErrRange {
			return 0, &ParseError{Input: s, Reason: "out of range"}
		}
		return 0, &ParseError{Input: s, Reason: "not an integer"}
	}
	if v < 0 {
		return 0, &ParseError{Input: s, Reason: "negative"}
	}
	return v, nil
}
