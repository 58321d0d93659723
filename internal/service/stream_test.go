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
	guardlocal "github.com/chirino/chat-store/internal/plugin/streamguard/local"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
	"github.com/chirino/chat-store/internal/transcript"
)

func newStreamFixture(t *testing.T) (context.Context, registrystore.ChatStore, *StreamCoordinator, string) {
	t.Helper()
	ctx, store := newTestStore(t)
	conv, err := store.CreateConversation(ctx, model.UserOwner("stream-user"), registrystore.NewConversation{Title: "stream"})
	require.NoError(t, err)
	_, err = store.InsertUserMessage(ctx, conv.ID, registrystore.MessageInput{Content: content.Text("Hi")})
	require.NoError(t, err)
	return ctx, store, NewStreamCoordinator(store, guardlocal.New(), time.Minute), conv.ID
}

func TestStreamCoordinator_Lifecycle(t *testing.T) {
	ctx, store, coord, convID := newStreamFixture(t)

	stream, err := coord.Begin(ctx, convID, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusStreaming, stream.Draft().Status)
	assert.EqualValues(t, 2, stream.Draft().Seq)

	require.NoError(t, stream.Append(ctx, "Héllo"))
	calls, err := stream.RecordToolCalls(ctx, []registrystore.ToolCallInput{{ID: "call_1", ToolName: "search"}})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].TextOffset)
	assert.Equal(t, 5, *calls[0].TextOffset, "offsets count runes")

	_, err = stream.RecordToolOutputs(ctx, []registrystore.ToolOutputInput{{ToolCallID: "call_1", Output: "found"}})
	require.NoError(t, err)
	require.NoError(t, stream.Append(ctx, " there"))
	require.NoError(t, stream.Finalize(ctx, registrystore.Finalize{FinishReason: "stop"}))
	require.NoError(t, stream.Close(ctx), "close after finalize is a no-op")

	page, err := store.GetMessagesPage(ctx, convID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	msg := page.Data[1]
	assert.Equal(t, model.StatusFinal, msg.Status)
	assert.Equal(t, "Héllo there", msg.Content)

	nodes := transcript.ForMessage(&msg)
	require.Len(t, nodes, 3)
	assert.Equal(t, "Héllo", nodes[0].Text)
	assert.Equal(t, "call_1", nodes[1].Tool.Call.ID)
	assert.Len(t, nodes[1].Tool.Outputs, 1)
	assert.Equal(t, " there", nodes[2].Text)

	next, err := coord.Begin(ctx, convID, nil)
	require.NoError(t, err, "the conversation is released after finalize")
	require.NoError(t, next.Close(ctx))
}

func TestStreamCoordinator_OneStreamPerConversation(t *testing.T) {
	ctx, _, coord, convID := newStreamFixture(t)

	first, err := coord.Begin(ctx, convID, nil)
	require.NoError(t, err)

	_, err = coord.Begin(ctx, convID, nil)
	require.Error(t, err)
	var conflict *registrystore.ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, registrystore.CodeStreamInProgress, conflict.Code)

	require.NoError(t, first.Close(ctx))
	second, err := coord.Begin(ctx, convID, nil)
	require.NoError(t, err)
	require.NoError(t, second.Close(ctx))
}

func TestStreamCoordinator_CloseMarksDraftAsError(t *testing.T) {
	ctx, store, coord, convID := newStreamFixture(t)

	stream, err := coord.Begin(ctx, convID, nil)
	require.NoError(t, err)
	require.NoError(t, stream.Append(ctx, "partial"))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.NoError(t, stream.Close(cancelled), "close works after the client went away")

	msg, err := store.GetMessage(ctx, convID, stream.Draft().ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, msg.Status)
	assert.Equal(t, "partial", msg.Content)

	assert.ErrorIs(t, stream.Append(ctx, " more"), ErrStreamClosed)
	assert.ErrorIs(t, stream.Finalize(ctx, registrystore.Finalize{FinishReason: "stop"}), ErrStreamClosed)
}

func TestStreamCoordinator_CallIndexesContinueAcrossBatches(t *testing.T) {
	ctx, _, coord, convID := newStreamFixture(t)

	stream, err := coord.Begin(ctx, convID, nil)
	require.NoError(t, err)
	defer func() { _ = stream.Close(ctx) }()

	first, err := stream.RecordToolCalls(ctx, []registrystore.ToolCallInput{{ID: "a", ToolName: "x"}, {ID: "b", ToolName: "x"}})
	require.NoError(t, err)
	second, err := stream.RecordToolCalls(ctx, []registrystore.ToolCallInput{{ID: "c", ToolName: "x"}})
	require.NoError(t, err)
	assert.Equal(t, 0, first[0].CallIndex)
	assert.Equal(t, 1, first[1].CallIndex)
	assert.Equal(t, 2, second[0].CallIndex)
}

func TestStreamCoordinator_DraftOnMissingConversationReleasesGuard(t *testing.T) {
	ctx, store := newTestStore(t)
	guard := guardlocal.New()
	coord := NewStreamCoordinator(store, guard, time.Minute)

	_, err := coord.Begin(ctx, "missing", nil)
	require.True(t, registrystore.IsNotFound(err))

	ok, err := guard.Acquire(ctx, "missing", "someone", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
