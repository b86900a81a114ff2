package wsns

import (
	"errors"
	"fmt"
)

// Error codes carried by the errors this package raises.
const (
	CodeDuplicateParam         = "E_DUPLICATE_NAMESPACE_PARAM"
	CodeDuplicateNamespace     = "E_DUPLICATE_NAMESPACE"
	CodeInvalidPattern         = "E_INVALID_NAMESPACE_PATTERN"
	CodeCommitted              = "E_NAMESPACES_COMMITTED"
	CodeMissingNamedMiddleware = "E_MISSING_NAMED_WS_MIDDLEWARE"
	CodeMissingHandler         = "E_MISSING_WS_HANDLER"
	CodeInvalidHandler         = "E_INVALID_NAMESPACE_HANDLER"
	CodeMissingEventHandler    = "E_MISSING_EVENT_HANDLER"
	CodeMiddlewareHalted       = "E_MIDDLEWARE_HALTED"
	CodeMiddlewareTimeout      = "E_MIDDLEWARE_TIMEOUT"
	CodeNextCalledTwice        = "E_NEXT_CALLED_TWICE"
)

// Sentinels for use with errors.Is. Errors returned by this package match
// the sentinel sharing their code.
var (
	ErrDuplicateParam         = &Exception{Code: CodeDuplicateParam}
	ErrDuplicateNamespace     = &Exception{Code: CodeDuplicateNamespace}
	ErrInvalidPattern         = &Exception{Code: CodeInvalidPattern}
	ErrCommitted              = &Exception{Code: CodeCommitted}
	ErrMissingNamedMiddleware = &Exception{Code: CodeMissingNamedMiddleware}
	ErrMissingHandler         = &Exception{Code: CodeMissingHandler}
	ErrInvalidHandler         = &Exception{Code: CodeInvalidHandler}
	ErrMissingEventHandler    = &Exception{Code: CodeMissingEventHandler}
	ErrMiddlewareHalted       = &Exception{Code: CodeMiddlewareHalted}
	ErrMiddlewareTimeout      = &Exception{Code: CodeMiddlewareTimeout}
	ErrNextCalledTwice        = &Exception{Code: CodeNextCalledTwice}
)

// Exception is an error with a client facing status and code. Handlers and
// middleware may return exceptions to control the error payload sent to
// clients.
type Exception struct {
	Name    string
	Message string
	Status  int
	Code    string
	Stack   string
	cause   error
}

var _ error = &Exception{}

// NewException creates an exception. A zero status defaults to 500.
func NewException(message string, status int, code string) *Exception {
	if status == 0 {
		status = 500
	}
	return &Exception{
		Name:    "Exception",
		Message: message,
		Status:  status,
		Code:    code,
	}
}

// WrapException creates an exception wrapping cause.
func WrapException(cause error, message string, status int, code string) *Exception {
	e := NewException(message, status, code)
	e.cause = cause
	return e
}

func (e *Exception) Error() string {
	if e.Code == "" {
		return e.Message
	}
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *Exception) Unwrap() error {
	return e.cause
}

// Is reports whether target is an exception with the same code.
func (e *Exception) Is(target error) bool {
	t, ok := target.(*Exception)
	if !ok || t.Code == "" {
		return false
	}
	return t.Code == e.Code
}

// PanicError is produced when a handler or middleware panics.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// StatusOf returns the status carried by err, or 500.
func StatusOf(err error) int {
	var exception *Exception
	if errors.As(err, &exception) && exception.Status != 0 {
		return exception.Status
	}
	var withStatus interface{ Status() int }
	if errors.As(err, &withStatus) {
		return withStatus.Status()
	}
	return 500
}

// CodeOf returns the code carried by err, or an empty string.
func CodeOf(err error) string {
	var exception *Exception
	if errors.As(err, &exception) {
		return exception.Code
	}
	var withCode interface{ Code() string }
	if errors.As(err, &withCode) {
		return withCode.Code()
	}
	return ""
}

// NameOf returns the name of err, defaulting to "Error".
func NameOf(err error) string {
	var exception *Exception
	if errors.As(err, &exception) && exception.Name != "" {
		return exception.Name
	}
	return "Error"
}

// StackOf returns the stack captured for err, if any.
func StackOf(err error) string {
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return panicErr.Stack
	}
	var exception *Exception
	if errors.As(err, &exception) {
		return exception.Stack
	}
	return ""
}

func newDuplicateParamError(param, pattern string) *Exception {
	return NewException(
		fmt.Sprintf(`The "%s" param is mentioned twice in the namespace pattern "%s"`, param, pattern),
		500,
		CodeDuplicateParam,
	)
}

func newInvalidPatternError(pattern, reason string) *Exception {
	return NewException(
		fmt.Sprintf(`Invalid namespace pattern "%s": %s`, pattern, reason),
		500,
		CodeInvalidPattern,
	)
}

func newDuplicateNamespaceError(pattern string) *Exception {
	return NewException(
		fmt.Sprintf(`The namespace pattern "%s" is already registered`, pattern),
		500,
		CodeDuplicateNamespace,
	)
}

func newCommittedError(pattern string) *Exception {
	return NewException(
		fmt.Sprintf(`Cannot add namespace "%s" after namespaces have been committed`, pattern),
		500,
		CodeCommitted,
	)
}

func newMissingNamedMiddlewareError(name string) *Exception {
	return NewException(
		fmt.Sprintf(`Cannot find a ws middleware named "%s"`, name),
		500,
		CodeMissingNamedMiddleware,
	)
}

func newMissingHandlerError(reference, pattern string, cause error) *Exception {
	return WrapException(
		cause,
		fmt.Sprintf(`Cannot resolve handler "%s" for namespace "%s"`, reference, pattern),
		500,
		CodeMissingHandler,
	)
}

func newMissingEventHandlerError(event, pattern string) *Exception {
	return NewException(
		fmt.Sprintf(`Cannot find a handler for event "%s" in namespace "%s"`, event, pattern),
		404,
		CodeMissingEventHandler,
	)
}

func newMiddlewareHaltedError(name string) *Exception {
	return NewException(
		fmt.Sprintf(`Middleware "%s" returned without calling next`, name),
		403,
		CodeMiddlewareHalted,
	)
}

func newMiddlewareTimeoutError(pattern string) *Exception {
	return NewException(
		fmt.Sprintf(`Middleware for namespace "%s" did not complete in time`, pattern),
		408,
		CodeMiddlewareTimeout,
	)
}

func newNextCalledTwiceError(name string) *Exception {
	return NewException(
		fmt.Sprintf(`Middleware "%s" called next more than once`, name),
		500,
		CodeNextCalledTwice,
	)
}
