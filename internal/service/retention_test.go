package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chirino/chat-store/internal/content"
	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
)

func TestRetentionSweeper_DeletesExpiredInBatches(t *testing.T) {
	ctx, store := newTestStore(t)
	owner := model.UserOwner("retention-user")
	for i := 0; i < 4; i++ {
		conv, err := store.CreateConversation(ctx, owner, registrystore.NewConversation{})
		require.NoError(t, err)
		_, err = store.InsertUserMessage(ctx, conv.ID, registrystore.MessageInput{Content: content.Text("old")})
		require.NoError(t, err)
	}
	pinned, err := store.CreateConversation(ctx, owner, registrystore.NewConversation{Metadata: map[string]any{"pinned": true}})
	require.NoError(t, err)

	sweeper := NewRetentionSweeper(store, 1, time.Hour, 2)
	sweeper.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	result := sweeper.Sweep(ctx, 1)
	assert.EqualValues(t, 4, result.Conversations)
	assert.EqualValues(t, 4, result.Messages)
	assert.Equal(t, 2, result.Batches)

	page, err := store.ListConversationsIncludingDeleted(ctx, owner, registrystore.ListQuery{}, true)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, pinned.ID, page.Data[0].ID)

	again := sweeper.Sweep(ctx, 1)
	assert.Zero(t, again.Conversations)
}

func TestRetentionSweeper_KeepsRecentConversations(t *testing.T) {
	ctx, store := newTestStore(t)
	_, err := store.CreateConversation(ctx, model.UserOwner("recent"), registrystore.NewConversation{})
	require.NoError(t, err)

	result := NewRetentionSweeper(store, 30, time.Hour, 0).Sweep(ctx, 30)
	assert.Zero(t, result.Conversations)
}

type unavailableRetentionStore struct{ calls int }

func (s *unavailableRetentionStore) FindExpiredConversationIDs(context.Context, time.Time, int) ([]string, error) {
	s.calls++
	return nil, &registrystore.UnavailableError{Cause: errors.New("connection refused")}
}

func (s *unavailableRetentionStore) DeleteConversationsHard(context.Context, []string) (int64, int64, error) {
	s.calls++
	return 0, 0, nil
}

func TestRetentionSweeper_DegradesToZero(t *testing.T) {
	ctx := context.Background()

	store := &unavailableRetentionStore{}
	result := NewRetentionSweeper(store, 7, time.Hour, 10).Sweep(ctx, 7)
	assert.Equal(t, SweepResult{}, result)
	assert.Equal(t, 1, store.calls)

	assert.Equal(t, SweepResult{}, NewRetentionSweeper(nil, 7, time.Hour, 10).Sweep(ctx, 7))

	store.calls = 0
	assert.Equal(t, SweepResult{}, NewRetentionSweeper(store, 0, time.Hour, 10).Sweep(ctx, 0))
	assert.Zero(t, store.calls, "days <= 0 disables the sweep")
}

func TestRetentionSweeper_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewRetentionSweeper(&unavailableRetentionStore{}, 1, time.Millisecond, 1).Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
