package ssr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestLatch_ZeroExpectedIsSettled(t *testing.T) {
	l := newLatch(0)
	assert.True(t, isClosed(l.settled()))
	ok, at := l.state()
	assert.True(t, ok)
	assert.False(t, at.IsZero())
}

func TestLatch_CountsTerminationsAndSkips(t *testing.T) {
	l := newLatch(3)

	l.terminate()
	assert.False(t, isClosed(l.settled()))

	l.skip()
	assert.False(t, isClosed(l.settled()))

	l.terminate()
	assert.True(t, isClosed(l.settled()))

	// late signals never reopen or double-close
	l.terminate()
	l.skip()
	ok, _ := l.state()
	assert.True(t, ok)
}

func TestLatch_AllSkippedSettlesImmediately(t *testing.T) {
	l := newLatch(2)
	l.skip()
	l.skip()
	assert.True(t, isClosed(l.settled()))
}
