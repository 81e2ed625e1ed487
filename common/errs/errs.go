package errs

// ErrorKind identifies a kind of internal error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// NotFound is returned when a requested item is not found.
	NotFound = ErrorKind("Not Found")

	// InvalidArgument is returned when a given argument or configuration value is invalid.
	InvalidArgument = ErrorKind("Invalid Argument")

	// Unsupported is returned when a requested feature or driver is not supported.
	Unsupported = ErrorKind("Unsupported")

	// ConflictSetting is returned when the runtime state conflicts with the configuration. E.g. chain id mismatch.
	ConflictSetting = ErrorKind("Conflict Setting")

	// Unavailable is returned when a remote provider can't serve the request.
	Unavailable = ErrorKind("Unavailable")

	// Closed is returned when using a resource that has already been closed.
	Closed = ErrorKind("Closed")

	// Timeout is returned when an operation didn't finish in time.
	Timeout = ErrorKind("Timeout")

	// InternalError is returned when something unexpected happened.
	InternalError = ErrorKind("Internal Error")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}
