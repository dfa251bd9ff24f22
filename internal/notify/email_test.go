package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

type fakeSender struct {
	sent []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, to []string, _ string, raw []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, strings.Join(to, ",")+"|"+string(raw))
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "x"}, nil
}

func TestComposeEmail(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	raw := string(ComposeEmail("a@x.io", "b@y.io", "Hello", []byte("line1\nline2"), at))

	assert.True(t, strings.HasPrefix(raw, "From: a@x.io\r\nTo: b@y.io\r\nSubject: Hello\r\n"))
	assert.Contains(t, raw, "Date: Sun, 01 Mar 2026 10:00:00 +0000\r\n")
	assert.Contains(t, raw, "\r\n\r\nline1\r\nline2\r\n")
}

func TestDirectChannel(t *testing.T) {
	s := &fakeSender{}
	ch := NewDirectChannel(s, "no-reply@x.io")

	status, err := ch.DeliverEmail(context.Background(), uuid.New(), "c@x.io", "S", []byte("body"))
	require.NoError(t, err)
	assert.Equal(t, models.DeliverySent, status)
	require.Len(t, s.sent, 1)
	assert.True(t, strings.HasPrefix(s.sent[0], "c@x.io|"))

	s.err = errors.New("421 try later")
	status, err = ch.DeliverEmail(context.Background(), uuid.New(), "c@x.io", "S", []byte("body"))
	assert.Error(t, err)
	assert.Equal(t, models.DeliveryFailed, status)
}

func TestQueueChannel(t *testing.T) {
	q := &fakeEnqueuer{}
	ch := NewQueueChannel(q, 5)
	id := uuid.New()

	status, err := ch.DeliverEmail(context.Background(), id, "c@x.io", "S", []byte("body"))
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryQueued, status)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TypeEmailDelivery, q.tasks[0].Type())

	var p EmailTaskPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	assert.Equal(t, id, p.NotificationID)
	assert.Equal(t, "body", p.Body)

	q.err = errors.New("redis down")
	status, err = ch.DeliverEmail(context.Background(), id, "c@x.io", "S", []byte("body"))
	assert.Error(t, err)
	assert.Equal(t, models.DeliveryFailed, status)
}

func TestEmailWorker_BadPayloadSkipsRetry(t *testing.T) {
	w := NewEmailWorker(nil, &fakeSender{}, "x@x.io", nopLog())
	err := w.HandleEmailDeliveryTask(context.Background(), asynq.NewTask(TypeEmailDelivery, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
