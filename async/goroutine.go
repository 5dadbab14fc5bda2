package async

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Go runs fn in a goroutine guarded by panic recovery.
func Go(log zerolog.Logger, name string, fn func()) {
	go func() {
		defer Recover(log, name, nil)
		fn()
	}()
}

// Recover logs panic details without crashing the process. onPanic, when
// set, receives the recovered value as an error.
func Recover(log zerolog.Logger, name string, onPanic func(error)) {
	r := recover()
	if r == nil {
		return
	}
	log.Error().
		Str("goroutine", name).
		Interface("panic", r).
		Bytes("stack", debug.Stack()).
		Msg("goroutine panic")
	if onPanic != nil {
		onPanic(fmt.Errorf("panic in %s: %v", name, r))
	}
}
