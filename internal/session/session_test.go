package session

import (
	"bufio"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteWaitsForRoom(t *testing.T) {
	const buffer, lines = 2, 100
	r := NewRegistry(buffer)
	pr, pw := io.Pipe()
	defer pr.Close()
	s := r.Register(pw)

	// The reader lags behind, so the queue fills long before all lines are written.
	got := make(chan []string, 1)
	go func() {
		var out []string
		sc := bufio.NewScanner(pr)
		for len(out) < lines && sc.Scan() {
			time.Sleep(time.Millisecond)
			out = append(out, sc.Text())
		}
		got <- out
	}()

	for i := 0; i < lines; i++ {
		require.NoError(t, s.Write(fmt.Sprintf("line %d", i)))
	}

	select {
	case out := <-got:
		require.Len(t, out, lines)
		for i, l := range out {
			assert.Equal(t, fmt.Sprintf("line %d", i), l)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reader did not receive every line")
	}
	r.Unregister(s.ID)
	waitDone(t, s)
}

func TestWriteAfterClose(t *testing.T) {
	r := NewRegistry(0)
	s := r.Register(io.Discard)
	r.Unregister(s.ID)

	assert.ErrorIs(t, s.Write("late"), ErrSessionClosed)
}

func TestWriteUnblocksOnClose(t *testing.T) {
	r := NewRegistry(1)
	pr, pw := io.Pipe()
	defer pr.Close()
	s := r.Register(pw)

	// One line is held by the pump in the pipe write, one fills the queue.
	require.NoError(t, s.Write("held"))
	require.Eventually(t, func() bool { return s.Send("queued") == nil }, 2*time.Second, 5*time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Write("blocked") }()

	select {
	case err := <-errCh:
		t.Fatalf("Write returned %v before the session closed", err)
	case <-time.After(50 * time.Millisecond):
	}

	r.Unregister(s.ID)
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Write stayed blocked after close")
	}

	pr.Close()
	waitDone(t, s)
}

func TestWriteUnblocksOnWriteError(t *testing.T) {
	r := NewRegistry(1)
	pr, pw := io.Pipe()
	s := r.Register(pw)
	defer r.Unregister(s.ID)

	require.NoError(t, s.Write("held"))
	require.Eventually(t, func() bool { return s.Send("queued") == nil }, 2*time.Second, 5*time.Millisecond)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Write("blocked") }()

	pr.Close()
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Write stayed blocked after the pump failed")
	}
	waitDone(t, s)
	assert.Error(t, s.Err())
}
