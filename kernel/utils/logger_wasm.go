//go:build js && wasm
// +build js,wasm

package utils

import "syscall/js"

// redirectLogToBridge sends log lines to the browser's JS console.
// Returns false when no console is reachable (worker scopes without one).
func (l *Logger) redirectLogToBridge(level LogLevel, logLine string) bool {
	console := js.Global().Get("console")
	if isValueNil(console) {
		return false
	}
	method := "log"
	switch level {
	case DEBUG:
		method = "debug"
	case INFO:
		method = "info"
	case WARN:
		method = "warn"
	case ERROR, FATAL:
		method = "error"
	}
	console.Call(method, logLine)
	return true
}

// isValueNil helper for js.Value
func isValueNil(v js.Value) bool {
	return v.Type() == js.TypeNull || v.Type() == js.TypeUndefined
}
