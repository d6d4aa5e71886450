package main

import (
	"context"
	"errors"
)

// configErr wraps a configuration/startup error so exitCodeFor can map it to
// exit code 2 per SPEC_FULL.md §7's error taxonomy.
type configErr struct {
	err error
}

func (e *configErr) Error() string { return e.err.Error() }
func (e *configErr) Unwrap() error { return e.err }

func wrapConfigError(err error) error {
	if err == nil {
		return nil
	}
	return &configErr{err: err}
}

func isConfigError(err error) bool {
	var c *configErr
	return errors.As(err, &c)
}

func isCancelledError(err error) bool {
	return errors.Is(err, context.Canceled)
}
