package async

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	Go(zerolog.Nop(), "boom", func() {
		defer close(done)
		panic("kaboom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}
}

func TestRecoverReportsPanic(t *testing.T) {
	var got error
	func() {
		defer Recover(zerolog.Nop(), "worker", func(err error) { got = err })
		panic("bad state")
	}()
	require.Error(t, got)
	assert.Contains(t, got.Error(), "worker")
	assert.Contains(t, got.Error(), "bad state")
}
