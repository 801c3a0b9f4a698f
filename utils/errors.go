package utils

import errors "github.com/go-errors/errors"

var (
	NotFoundError      = errors.New("Not found")
	InvalidConfigError = errors.New("Invalid configuration")

	// Returned by terminal flow and hunt objects when an update is
	// attempted. Callers generally treat it as a no-op signal
	// rather than a failure.
	AlreadyTerminatedError = errors.New("Already terminated")
)

func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return errors.WrapPrefix(err, message, 1)
}
