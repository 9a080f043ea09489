package command

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
)

// PanicLogger receives a recovered panic value and its cleaned stack.
type PanicLogger func(funcName string, err any, stack []byte, fields ...map[string]any)

// PanicError is a recovered panic turned into an error.
type PanicError struct {
	Func  string
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Func, e.Value)
}

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// RecoverPanic converts a recovered value into a PanicError with a cleaned
// stack. It returns nil when r is nil.
func RecoverPanic(funcName string, r any) *PanicError {
	if r == nil {
		return nil
	}
	return &PanicError{Func: funcName, Value: r, Stack: captureStack()}
}

// MakePanicHandler returns a deferred helper that recovers, reports to logger
// and stores the panic in dst when dst is not nil.
func MakePanicHandler(logger PanicLogger) func(funcName string, dst *error, fields ...map[string]any) {
	return func(funcName string, dst *error, fields ...map[string]any) {
		if r := recover(); r != nil {
			perr := &PanicError{Func: funcName, Value: r, Stack: captureStack()}
			if logger != nil {
				logger(funcName, r, perr.Stack, fields...)
			}
			if dst != nil {
				*dst = perr
			}
		}
	}
}

// LoggerPanicLogger reports panics through a Logger at error level.
func LoggerPanicLogger(logger Logger) PanicLogger {
	logger = NormalizeLogger(logger)
	return func(funcName string, err any, stack []byte, fields ...map[string]any) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("recovered from panic in %s: %v (%T)\n", funcName, err, err))

		if len(fields) > 0 && fields[0] != nil {
			keys := make([]string, 0, len(fields[0]))
			for k := range fields[0] {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				sb.WriteString(fmt.Sprintf("  %s: %v\n", k, fields[0][k]))
			}
		}

		sb.Write(stack)
		logger.Error("%s", sb.String())
	}
}

func captureStack() []byte {
	fullStack := make([]byte, 8096)
	n := runtime.Stack(fullStack, false)
	return cleanStackTrace(fullStack[:n])
}

func cleanStackTrace(stack []byte) []byte {
	lines := strings.Split(string(stack), "\n")

	panicLineIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "panic(") {
			panicLineIndex = i
			break
		}
	}

	// drop the panic() call line and its file reference
	if panicLineIndex >= 0 && panicLineIndex+2 < len(lines) {
		lines = lines[panicLineIndex+2:]
	}

	return []byte(strings.Join(lines, "\n"))
}
