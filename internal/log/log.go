// Package log wraps logrus with context aware helpers.
//
// An operation attached to the context with WithOperation tags every message logged with that
// context with the operation name and a unique identifier, so that a single apply or restore
// can be followed in the journal.
package log

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const logFormatWithCaller = "[%s] %s"

// callerSkip skips emit and the exported helper to reach the code which logged.
const callerSkip = 2

var reportCaller atomic.Bool

type operationKey struct{}
type loggerKey struct{}

type operation struct {
	name string
	id   string
}

// SetReportCaller prefixes every message with the calling function and its position.
func SetReportCaller(reportCallerEnabled bool) {
	reportCaller.Store(reportCallerEnabled)
}

// WithOperation returns a context tagging logs with the operation name and a new identifier.
// An operation already present in ctx is kept, so nested calls share the same identifier.
func WithOperation(ctx context.Context, name string) context.Context {
	if _, ok := ctx.Value(operationKey{}).(operation); ok {
		return ctx
	}
	return context.WithValue(ctx, operationKey{}, operation{name: name, id: uuid.NewString()})
}

// OperationID returns the identifier attached by WithOperation, if any.
func OperationID(ctx context.Context) string {
	op, ok := ctx.Value(operationKey{}).(operation)
	if !ok {
		return ""
	}
	return op.id
}

// WithLogger makes all messages logged with the returned context use logger instead of the
// logrus standard logger.
func WithLogger(ctx context.Context, logger *logrus.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Debug logs at the DEBUG level.
// Arguments are handled in the manner of fmt.Print.
func Debug(ctx context.Context, args ...interface{}) {
	emit(ctx, logrus.DebugLevel, fmt.Sprint(args...))
}

// Info logs at the INFO level.
// Arguments are handled in the manner of fmt.Print.
func Info(ctx context.Context, args ...interface{}) {
	emit(ctx, logrus.InfoLevel, fmt.Sprint(args...))
}

// Warning logs at the WARNING level.
// Arguments are handled in the manner of fmt.Print.
func Warning(ctx context.Context, args ...interface{}) {
	emit(ctx, logrus.WarnLevel, fmt.Sprint(args...))
}

// Error logs at the ERROR level.
// Arguments are handled in the manner of fmt.Print.
func Error(ctx context.Context, args ...interface{}) {
	emit(ctx, logrus.ErrorLevel, fmt.Sprint(args...))
}

// Debugf logs at the DEBUG level.
// Arguments are handled in the manner of fmt.Printf.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	emit(ctx, logrus.DebugLevel, fmt.Sprintf(format, args...))
}

// Infof logs at the INFO level.
// Arguments are handled in the manner of fmt.Printf.
func Infof(ctx context.Context, format string, args ...interface{}) {
	emit(ctx, logrus.InfoLevel, fmt.Sprintf(format, args...))
}

// Warningf logs at the WARNING level.
// Arguments are handled in the manner of fmt.Printf.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	emit(ctx, logrus.WarnLevel, fmt.Sprintf(format, args...))
}

// Errorf logs at the ERROR level.
// Arguments are handled in the manner of fmt.Printf.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	emit(ctx, logrus.ErrorLevel, fmt.Sprintf(format, args...))
}

func emit(ctx context.Context, level logrus.Level, msg string) {
	logger := logrus.StandardLogger()
	if l, ok := ctx.Value(loggerKey{}).(*logrus.Logger); ok && l != nil {
		logger = l
	}
	if !logger.IsLevelEnabled(level) {
		return
	}

	if reportCaller.Load() {
		if pc, file, line, ok := runtime.Caller(callerSkip); ok {
			caller := fmt.Sprintf("%s:%d %s()", file, line, runtime.FuncForPC(pc).Name())
			msg = fmt.Sprintf(logFormatWithCaller, caller, msg)
		}
	}

	entry := logrus.NewEntry(logger)
	if op, ok := ctx.Value(operationKey{}).(operation); ok {
		entry = entry.WithFields(logrus.Fields{"op": op.name, "id": op.id})
	}
	entry.Log(level, msg)
}
