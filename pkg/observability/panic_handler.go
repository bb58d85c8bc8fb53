package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic is meant for defer statements. A recovered panic is logged
// at error level with its stack trace and swallowed; the goroutine keeps
// running.
func RecoverPanic(logger *Logger, task string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic": r,
			"stack": string(debug.Stack()),
			"task":  task,
		}).Error("panic recovered")
	}
}

// MustRecover turns a recovered panic value into an error:
//
//	defer func() { err = observability.MustRecover(recover()) }()
func MustRecover(r interface{}) error {
	if r == nil {
		return nil
	}
	return fmt.Errorf("panic: %v", r)
}
