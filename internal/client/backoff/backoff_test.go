package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelay_DoublesPerAttempt(t *testing.T) {
	base := 2 * time.Second

	assert.Equal(t, 2*time.Second, Delay(0, base))
	assert.Equal(t, 4*time.Second, Delay(1, base))
	assert.Equal(t, 8*time.Second, Delay(2, base))
	assert.Equal(t, 2*time.Second, Delay(-1, base))
}

func TestPolicy_Do_SucceedsFirstTry(t *testing.T) {
	p := Policy{MaxRetries: 2, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_RetriesUpToCap(t *testing.T) {
	p := Policy{MaxRetries: 2, BaseDelay: time.Millisecond}

	calls := 0
	wantErr := errors.New("unreachable")
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	}, nil)

	assert.ErrorIs(t, err, wantErr)
	// One initial attempt plus two retries.
	assert.Equal(t, 3, calls)
}

func TestPolicy_Do_RecoversMidway(t *testing.T) {
	p := Policy{MaxRetries: 2, BaseDelay: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPolicy_Do_NonRetryableIsTerminal(t *testing.T) {
	p := Policy{MaxRetries: 5, BaseDelay: time.Millisecond}

	calls := 0
	wantErr := errors.New("bad request")
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	}, func(error) bool { return false })

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_ContextCancelAbortsWait(t *testing.T) {
	p := Policy{MaxRetries: 3, BaseDelay: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(context.Context) error {
			calls++
			return errors.New("unreachable")
		}, nil)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not honor cancellation")
	}
}
