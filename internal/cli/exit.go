package cli

import "fmt"

// Process exit codes.
const (
	exitValidation   = 1
	exitRuntime      = 2
	exitFileNotFound = 3
	exitProvider     = 5
	exitTimeout      = 10
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
