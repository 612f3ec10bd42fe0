// Package concurrency holds goroutine helpers.
package concurrency

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn in a goroutine with panic recovery. The label is attached to the panic log.
func Go(label string, fn func(), onPanic func(interface{})) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				attrs := []any{"panic", r, "stack", string(debug.Stack())}
				if label != "" {
					attrs = append(attrs, "routine", label)
				}
				slog.Error("Panic recovered", attrs...)
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}
