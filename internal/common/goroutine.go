package common

import (
	"fmt"
	"runtime/debug"

	"github.com/ternarybob/arbor"
)

// Recover turns a panic in the calling goroutine into an error stored in errp.
// The panic and its stack are logged; the process keeps running.
//
// Example:
//
//	func run() (err error) {
//	    defer common.Recover(logger, "watch:AAPL", &err)
//	    ...
//	}
func Recover(logger arbor.ILogger, name string, errp *error) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", name).
			Str("panic", fmt.Sprintf("%v", r)).
			Str("stack", string(debug.Stack())).
			Msg("Recovered from panic - continuing")
		if errp != nil {
			*errp = fmt.Errorf("panic in %s: %v", name, r)
		}
	}
}
