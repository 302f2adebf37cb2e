package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedSender returns errs in order, then succeeds.
type scriptedSender struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedSender) Name() string { return "fake" }

func (s *scriptedSender) Send(ctx context.Context, msg Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return "", err
	}
	return "msg-" + msg.To, nil
}

func newTestSubmitter(sender Sender, retries int) *Submitter {
	return NewSubmitter(sender, SubmitterOptions{
		MaxRetries:    retries,
		RetryInterval: time.Millisecond,
	}, zap.NewNop())
}

func TestSubmitter_Success(t *testing.T) {
	sender := &scriptedSender{}
	sub := newTestSubmitter(sender, 2)

	id, err := sub.Submit(context.Background(), Message{To: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "msg-a@example.com", id)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "fake", sub.Provider())
}

func TestSubmitter_RetriesTransientFailures(t *testing.T) {
	sender := &scriptedSender{errs: []error{errors.New("timeout"), errors.New("502")}}
	sub := newTestSubmitter(sender, 2)

	id, err := sub.Submit(context.Background(), Message{To: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "msg-a@example.com", id)
	assert.Equal(t, 3, sender.calls)
}

func TestSubmitter_GivesUpAfterMaxRetries(t *testing.T) {
	sender := &scriptedSender{errs: []error{
		errors.New("one"), errors.New("two"), errors.New("three"),
	}}
	sub := newTestSubmitter(sender, 1)

	_, err := sub.Submit(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, "two", err.Error())
	assert.Equal(t, 2, sender.calls)
}

func TestSubmitter_PermanentErrorNotRetried(t *testing.T) {
	sender := &scriptedSender{errs: []error{Permanent(errors.New("mailbox does not exist"))}}
	sub := newTestSubmitter(sender, 5)

	_, err := sub.Submit(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "mailbox does not exist")
	assert.Equal(t, 1, sender.calls)
}

func TestSubmitter_ZeroRetries(t *testing.T) {
	sender := &scriptedSender{errs: []error{errors.New("down")}}
	sub := newTestSubmitter(sender, 0)

	_, err := sub.Submit(context.Background(), Message{To: "a@example.com"})
	require.Error(t, err)
	assert.Equal(t, 1, sender.calls)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("plain")))
}
