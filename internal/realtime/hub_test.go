package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aldoetobex/legal-bid-backend/pkg/models"
)

func recv(t *testing.T, s *Subscription) []byte {
	t.Helper()
	select {
	case b := <-s.C:
		return b
	case <-time.After(time.Second):
		t.Fatal("no message")
		return nil
	}
}

func TestHub_PublishToTopics(t *testing.T) {
	hub := NewHub(zap.NewNop())
	uid := uuid.New()

	lawyer := hub.Subscribe(UserTopic(uid), RoleTopic(models.RoleLawyer))
	defer lawyer.Close()
	client := hub.Subscribe(UserTopic(uuid.New()), RoleTopic(models.RoleClient))
	defer client.Close()

	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, RoleTopic(models.RoleLawyer), []byte("new case")))
	require.NoError(t, hub.Publish(ctx, UserTopic(uid), []byte("bid accepted")))

	assert.Equal(t, "new case", string(recv(t, lawyer)))
	assert.Equal(t, "bid accepted", string(recv(t, lawyer)))
	assert.Len(t, client.C, 0)
}

func TestHub_NoSubscribersIsNotAnError(t *testing.T) {
	hub := NewHub(zap.NewNop())
	assert.NoError(t, hub.Publish(context.Background(), "user:nobody", []byte("x")))
}

func TestHub_SlowSubscriberDrops(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := hub.Subscribe("t")
	defer s.Close()

	for i := 0; i < hub.buf+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), "t", []byte("x")))
	}
	assert.Len(t, s.C, hub.buf)
}

func TestSubscription_Close(t *testing.T) {
	hub := NewHub(zap.NewNop())
	s := hub.Subscribe("a", "b")
	assert.Equal(t, 1, hub.Subscribers("a"))

	s.Close()
	s.Close() // idempotent
	assert.Equal(t, 0, hub.Subscribers("a"))
	assert.Equal(t, 0, hub.Subscribers("b"))

	_, ok := <-s.C
	assert.False(t, ok)
}
