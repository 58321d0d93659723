package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/chirino/chat-store/internal/model"
	registrystore "github.com/chirino/chat-store/internal/registry/store"
	"github.com/chirino/chat-store/internal/registry/streamguard"
	"github.com/chirino/chat-store/internal/transcript"
)

// ErrStreamClosed is returned when writing to a stream whose draft is no
// longer streaming.
var ErrStreamClosed = errors.New("stream is closed")

// StreamStore is the subset of the store a stream writes to.
type StreamStore interface {
	registrystore.MessageStore
	registrystore.ToolStore
}

// StreamCoordinator drives assistant drafts from creation to a terminal
// state, allowing at most one in-flight stream per conversation.
type StreamCoordinator struct {
	store StreamStore
	guard streamguard.Guard
	ttl   time.Duration
}

// NewStreamCoordinator creates a coordinator. ttl bounds how long a crashed
// producer keeps other streams out of a conversation.
func NewStreamCoordinator(store StreamStore, guard streamguard.Guard, ttl time.Duration) *StreamCoordinator {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StreamCoordinator{store: store, guard: guard, ttl: ttl}
}

// Stream is one in-flight assistant draft.
type Stream struct {
	c              *StreamCoordinator
	conversationID string
	holder         string
	draft          *model.Message

	mu        sync.Mutex
	offset    int
	nextIndex int
	done      bool
}

// Begin claims the conversation and creates a streaming assistant draft.
func (c *StreamCoordinator) Begin(ctx context.Context, conversationID string, clientMessageID *string) (*Stream, error) {
	holder := uuid.NewString()
	ok, err := c.guard.Acquire(ctx, conversationID, holder, c.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &registrystore.ConflictError{
			Message: "a response is already streaming for this conversation",
			Code:    registrystore.CodeStreamInProgress,
			Details: map[string]interface{}{"conversationId": conversationID},
		}
	}
	draft, err := c.store.CreateAssistantDraft(ctx, conversationID, clientMessageID)
	if err != nil {
		c.release(ctx, conversationID, holder)
		return nil, err
	}
	return &Stream{c: c, conversationID: conversationID, holder: holder, draft: draft}, nil
}

func (c *StreamCoordinator) release(ctx context.Context, conversationID, holder string) {
	if err := c.guard.Release(context.WithoutCancel(ctx), conversationID, holder); err != nil {
		log.Warn("Failed to release stream guard", "conversationId", conversationID, "err", err)
	}
}

// Draft returns the draft message as created.
func (s *Stream) Draft() *model.Message { return s.draft }

// Offset is the rune length of the text appended so far.
func (s *Stream) Offset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Append adds delta to the draft.
func (s *Stream) Append(ctx context.Context, delta string) error {
	if delta == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrStreamClosed
	}
	changed, err := s.c.store.AppendAssistantContent(ctx, s.draft.ID, delta)
	if err != nil {
		return err
	}
	if !changed {
		// Finalized or errored by someone else.
		s.finishLocked(ctx)
		return ErrStreamClosed
	}
	s.offset += transcript.RuneLen(delta)
	return nil
}

// RecordToolCalls attaches calls to the draft. Calls without an offset are
// stamped with the current text offset and call indexes continue across batches.
func (s *Stream) RecordToolCalls(ctx context.Context, calls []registrystore.ToolCallInput) ([]model.ToolCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, ErrStreamClosed
	}
	stamped := make([]registrystore.ToolCallInput, len(calls))
	for i, call := range calls {
		if call.TextOffset == nil {
			off := s.offset
			call.TextOffset = &off
		}
		if call.CallIndex == nil {
			idx := s.nextIndex + i
			call.CallIndex = &idx
		}
		stamped[i] = call
	}
	rows, err := s.c.store.InsertToolCalls(ctx, s.conversationID, s.draft.ID, stamped)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.CallIndex >= s.nextIndex {
			s.nextIndex = r.CallIndex + 1
		}
	}
	return rows, nil
}

// RecordToolOutputs attaches results to the draft.
func (s *Stream) RecordToolOutputs(ctx context.Context, outputs []registrystore.ToolOutputInput) ([]model.ToolOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil, ErrStreamClosed
	}
	return s.c.store.InsertToolOutputs(ctx, s.conversationID, s.draft.ID, outputs)
}

// Finalize moves the draft to final (or error when f.Error is set) and
// releases the conversation. It returns ErrStreamClosed when the draft had
// already left the streaming state.
func (s *Stream) Finalize(ctx context.Context, f registrystore.Finalize) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrStreamClosed
	}
	changed, err := s.c.store.FinalizeAssistantMessage(ctx, s.draft.ID, f)
	if err != nil {
		return err
	}
	s.finishLocked(ctx)
	if !changed {
		return ErrStreamClosed
	}
	return nil
}

// Fail marks the draft as errored and releases the conversation.
func (s *Stream) Fail(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	_, err := s.c.store.MarkAssistantError(context.WithoutCancel(ctx), s.draft.ID)
	s.finishLocked(ctx)
	return err
}

// Close marks a draft that never reached a terminal state as errored. It is
// safe to call after Finalize or Fail.
func (s *Stream) Close(ctx context.Context) error {
	return s.Fail(ctx)
}

func (s *Stream) finishLocked(ctx context.Context) {
	s.done = true
	s.c.release(ctx, s.conversationID, s.holder)
}
