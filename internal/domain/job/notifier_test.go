package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiqualifier/aiq-api/internal/domain/model"
)

type stubWaiter struct {
	calls chan model.JobType
	err   error
	sleep time.Duration
}

func (s *stubWaiter) WaitForNotification(ctx context.Context, jobType model.JobType) error {
	select {
	case s.calls <- jobType:
	default:
	}

	if s.sleep > 0 {
		timer := time.NewTimer(s.sleep)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if s.err != nil {
		return s.err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	return nil
}

func TestNewNotifierRequiresWaiter(t *testing.T) {
	notifier, err := NewNotifier(NotifierOptions{})
	require.ErrorIs(t, err, ErrWaiterRequired)
	assert.Nil(t, notifier)
}

func TestNotifier_SubscribeReceivesNotifications(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan model.JobType, 4),
	}
	notifier, err := NewNotifier(NotifierOptions{
		Waiter: waiter,
	})
	require.NoError(t, err)

	unsub, ch := notifier.Subscribe(model.JobTypeQualifyProspects)
	defer unsub()

	select {
	case <-waiter.calls:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected waiter to be invoked")
	}

	select {
	case <-ch:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected notification to be delivered")
	}
}

func TestNotifier_UnsubscribeClosesChannel(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan model.JobType, 1),
	}
	notifier, err := NewNotifier(NotifierOptions{
		Waiter: waiter,
	})
	require.NoError(t, err)

	unsub, ch := notifier.Subscribe(model.JobTypeRecommendation)

	select {
	case <-waiter.calls:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected waiter to be invoked")
	}

	unsub()

	deadline := time.After(200 * time.Millisecond)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("expected channel to be closed after unsubscribe")
		}
	}
}

func TestNotifier_WaiterErrorBacksOff(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan model.JobType, 8),
		err:   errors.New("listen failed"),
	}
	notifier, err := NewNotifier(NotifierOptions{
		Waiter:  waiter,
		Backoff: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	unsub, ch := notifier.Subscribe(model.JobTypeQualifyProspects)
	defer unsub()

	// The loop keeps calling the waiter and broadcasting despite errors.
	for i := 0; i < 2; i++ {
		select {
		case <-waiter.calls:
		case <-time.After(500 * time.Millisecond):
			t.Fatal("expected waiter to be retried after error")
		}
	}

	select {
	case <-ch:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected broadcast despite waiter error")
	}
}

func TestNotifier_StopAllClosesSubscriptions(t *testing.T) {
	waiter := &stubWaiter{
		calls: make(chan model.JobType, 4),
		sleep: time.Hour,
	}
	notifier, err := NewNotifier(NotifierOptions{
		Waiter: waiter,
	})
	require.NoError(t, err)

	_, ch1 := notifier.Subscribe(model.JobTypeQualifyProspects)
	_, ch2 := notifier.Subscribe(model.JobTypeRecommendation)

	notifier.StopAll()

	for _, ch := range []<-chan struct{}{ch1, ch2} {
		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(200 * time.Millisecond):
			t.Fatal("expected channel to be closed after StopAll")
		}
	}
}
