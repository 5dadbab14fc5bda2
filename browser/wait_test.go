package browser_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorts-pipeline/browser"
	"shorts-pipeline/browser/browsertest"
)

func TestPollStopsOnConditionOrDeadline(t *testing.T) {
	n := 0
	err := browser.Poll(context.Background(), time.Millisecond, func(context.Context) (bool, error) {
		n++
		return n == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err = browser.Poll(ctx, time.Millisecond, func(context.Context) (bool, error) { return false, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	boom := errors.New("boom")
	err = browser.Poll(context.Background(), time.Millisecond, func(context.Context) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestWaitURLPrefix(t *testing.T) {
	p := browsertest.New()
	p.SetURL("https://accounts.google.com/signin")
	go func() {
		time.Sleep(20 * time.Millisecond)
		p.SetURL("https://ai.invideo.io/workspace/1234/home")
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	u, err := browser.WaitURLPrefix(ctx, p, "https://ai.invideo.io/workspace/")
	require.NoError(t, err)
	assert.Equal(t, "https://ai.invideo.io/workspace/1234/home", u)
}

func TestIsXPath(t *testing.T) {
	assert.True(t, browser.IsXPath("//button[.//p[text()='Join with Google']]"))
	assert.True(t, browser.IsXPath("(//button)[2]"))
	assert.False(t, browser.IsXPath("input[type='email']"))
	assert.False(t, browser.IsXPath("#identifierNext button"))
}

func TestSettleHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, browser.Settle(ctx, time.Hour), context.Canceled)
	assert.NoError(t, browser.Settle(context.Background(), 0))
}
