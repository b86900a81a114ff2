package wsns

import (
	"errors"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ErrorResponse is the error payload sent to clients, either as the first
// argument of an acknowledgement or with a declined connection.
type ErrorResponse struct {
	Name    string    `json:"name" msgpack:"name"`
	Message string    `json:"message" msgpack:"message"`
	Data    ErrorData `json:"data" msgpack:"data"`
}

// ErrorData carries the status, code and, outside production, the stack of
// an error response.
type ErrorData struct {
	Status int    `json:"status" msgpack:"status"`
	Code   string `json:"code,omitempty" msgpack:"code,omitempty"`
	Stack  string `json:"stack,omitempty" msgpack:"stack,omitempty"`
}

var _ error = &ErrorResponse{}

func (r *ErrorResponse) Error() string {
	return r.Message
}

// ExceptionHandler turns errors raised during the socket lifecycle into
// client responses, and reports them.
type ExceptionHandler interface {
	Handle(err error, ctx *Context) (*ErrorResponse, error)
	Report(err error, ctx *Context)
}

// WsHandler may be implemented by errors to produce their own response.
type WsHandler interface {
	WsHandle(ctx *Context) (*ErrorResponse, error)
}

// WsReporter may be implemented by errors to report themselves.
type WsReporter interface {
	WsReport(ctx *Context)
}

// Reporter receives every reportable error, after the exception handler
// reported it.
type Reporter interface {
	Report(err error, ctx *Context) error
}

// ReportFilter may be implemented by exception handlers to decide which
// errors reach the reporters.
type ReportFilter interface {
	ShouldReport(err error) bool
}

// SerializeError builds the minimal error response for err.
func SerializeError(err error) *ErrorResponse {
	return &ErrorResponse{
		Name:    NameOf(err),
		Message: messageOf(err),
		Data:    ErrorData{Status: StatusOf(err)},
	}
}

func messageOf(err error) string {
	var exception *Exception
	if errors.As(err, &exception) && exception.Message != "" {
		return exception.Message
	}
	var response *ErrorResponse
	if errors.As(err, &response) {
		return response.Message
	}
	return err.Error()
}

// DefaultExceptionHandler is the exception handler used unless one is set
// with Server.SetExceptionHandler. Errors are not reported when their status
// is in IgnoreStatuses or their code is in IgnoreCodes. Missing event
// handlers are never reported.
type DefaultExceptionHandler struct {
	Environment    Environment
	IgnoreStatuses []int
	IgnoreCodes    []string
	Logger         *zap.Logger

	// Fields adds fields to the report logs.
	Fields func(ctx *Context) []zap.Field
}

var (
	_ ExceptionHandler = &DefaultExceptionHandler{}
	_ ReportFilter     = &DefaultExceptionHandler{}
)

var internalIgnoreCodes = []string{CodeMissingEventHandler}

// NewDefaultExceptionHandler creates the default exception handler for env.
func NewDefaultExceptionHandler(env Environment, logger *zap.Logger) *DefaultExceptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultExceptionHandler{
		Environment:    env,
		IgnoreStatuses: []int{400, 422, 401},
		IgnoreCodes:    []string{},
		Logger:         logger,
	}
}

// ShouldReport reports whether err is supposed to be reported.
func (h *DefaultExceptionHandler) ShouldReport(err error) bool {
	var exception *Exception
	if errors.As(err, &exception) && exception.Status != 0 {
		if slices.Contains(h.IgnoreStatuses, exception.Status) {
			return false
		}
	}
	if code := CodeOf(err); code != "" {
		if slices.Contains(h.IgnoreCodes, code) || slices.Contains(internalIgnoreCodes, code) {
			return false
		}
	}
	return true
}

// Handle makes the response for err. Errors implementing WsHandler make their
// own response.
func (h *DefaultExceptionHandler) Handle(err error, ctx *Context) (*ErrorResponse, error) {
	var handler WsHandler
	if errors.As(err, &handler) {
		return handler.WsHandle(ctx)
	}

	response := &ErrorResponse{
		Name:    NameOf(err),
		Message: messageOf(err),
		Data: ErrorData{
			Status: StatusOf(err),
			Code:   CodeOf(err),
		},
	}
	if h.Environment != Production {
		response.Data.Stack = StackOf(err)
	}
	return response, nil
}

// Report logs err at a level chosen by its status: error from 500, warn from
// 400, info below. Server errors are not logged in the test environment.
func (h *DefaultExceptionHandler) Report(err error, ctx *Context) {
	if !h.ShouldReport(err) {
		return
	}

	var reporter WsReporter
	if errors.As(err, &reporter) {
		reporter.WsReport(ctx)
		return
	}

	logger := h.Logger
	if ctx != nil {
		logger = ctx.Logger()
	}
	if logger == nil {
		return
	}

	var fields []zap.Field
	if h.Fields != nil && ctx != nil {
		fields = h.Fields(ctx)
	}

	message := messageOf(err)
	switch status := StatusOf(err); {
	case status >= 500:
		if h.Environment != Test {
			logger.Error(message, append(fields, zap.Error(err))...)
		}
	case status >= 400:
		logger.Warn(message, fields...)
	default:
		logger.Info(message, fields...)
	}
}

// ExceptionManager runs the exception handler for errors raised during the
// socket lifecycle. The response is always produced first; reporting runs
// afterwards on its own goroutine and never affects the response.
type ExceptionManager struct {
	mu        sync.RWMutex
	handler   ExceptionHandler
	reporters []Reporter
	logger    *zap.Logger

	wg sync.WaitGroup
}

// NewExceptionManager creates an exception manager without a handler. Until
// one is set, errors are serialized with SerializeError and not reported.
func NewExceptionManager(logger *zap.Logger) *ExceptionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExceptionManager{logger: logger}
}

// SetHandler sets the exception handler.
func (m *ExceptionManager) SetHandler(handler ExceptionHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = handler
}

// AddReporter adds a reporter.
func (m *ExceptionManager) AddReporter(reporter Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reporters = append(m.reporters, reporter)
}

// Handle produces the response for err and schedules its report. It never
// panics; if the exception handler fails, the error is serialized with
// SerializeError.
func (m *ExceptionManager) Handle(err error, ctx *Context) *ErrorResponse {
	m.mu.RLock()
	handler := m.handler
	reporters := slices.Clone(m.reporters)
	m.mu.RUnlock()

	response := m.respond(handler, err, ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.report(handler, reporters, err, ctx)
	}()

	return response
}

// Wait blocks until every scheduled report completed.
func (m *ExceptionManager) Wait() {
	m.wg.Wait()
}

func (m *ExceptionManager) respond(handler ExceptionHandler, err error, ctx *Context) *ErrorResponse {
	if handler == nil {
		return SerializeError(err)
	}

	var response *ErrorResponse
	handlerErr := execWithRecovery(func() error {
		var err2 error
		response, err2 = handler.Handle(err, ctx)
		return err2
	})
	if handlerErr != nil {
		m.loggerFor(ctx).Error(
			"unexpected exception raised from ws exception handler Handle method",
			zap.Error(handlerErr),
			zap.NamedError("original", err),
		)
		return SerializeError(err)
	}
	if response == nil {
		return SerializeError(err)
	}
	return response
}

func (m *ExceptionManager) report(handler ExceptionHandler, reporters []Reporter, err error, ctx *Context) {
	if handler == nil {
		return
	}

	if reportErr := execWithRecovery(func() error {
		handler.Report(err, ctx)
		return nil
	}); reportErr != nil {
		m.loggerFor(ctx).Error(
			"unexpected exception raised from ws exception handler Report method",
			zap.Error(reportErr),
			zap.NamedError("original", err),
		)
	}

	if len(reporters) == 0 {
		return
	}
	if filter, ok := handler.(ReportFilter); ok && !filter.ShouldReport(err) {
		return
	}
	for _, reporter := range reporters {
		if reportErr := execWithRecovery(func() error {
			return reporter.Report(err, ctx)
		}); reportErr != nil {
			m.loggerFor(ctx).Warn("failed to deliver error report", zap.Error(reportErr))
		}
	}
}

func (m *ExceptionManager) loggerFor(ctx *Context) *zap.Logger {
	if ctx != nil {
		return ctx.Logger()
	}
	return m.logger
}
