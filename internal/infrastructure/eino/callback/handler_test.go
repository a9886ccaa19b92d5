package callback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-song-ai-api/internal/domain/service"
	"z-song-ai-api/pkg/logger"
)

type recordingRecorder struct {
	mu   sync.Mutex
	got  []service.LLMUsageInput
	done chan struct{}
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{done: make(chan struct{}, 8)}
}

func (r *recordingRecorder) Record(_ context.Context, in service.LLMUsageInput) error {
	r.mu.Lock()
	r.got = append(r.got, in)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *recordingRecorder) inputs() []service.LLMUsageInput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]service.LLMUsageInput(nil), r.got...)
}

func callContext() context.Context {
	ctx := service.WithWorkflowProvider(context.Background(), "song_generate", "primary")
	ctx = service.WithTier(ctx, "pro")
	ctx = logger.WithContext(ctx, logger.ClientIDKey, "web")
	return logger.WithContext(ctx, logger.GenerationIDKey, "gen-1")
}

func TestChatModelHandler_RecordsUsageOnEnd(t *testing.T) {
	rec := newRecordingRecorder()
	h := newChatModelCallbackHandler(rec)

	ctx := h.OnStart(callContext(), nil, &model.CallbackInput{Config: &model.Config{Model: "gpt"}})
	h.OnEnd(ctx, nil, &model.CallbackOutput{
		Config:     &model.Config{Model: "gpt"},
		TokenUsage: &model.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
	})

	got := rec.inputs()
	require.Len(t, got, 1)
	assert.Equal(t, "web", got[0].ClientID)
	assert.Equal(t, "gen-1", got[0].GenerationID)
	assert.Equal(t, "song_generate", got[0].Workflow)
	assert.Equal(t, "pro", got[0].Tier)
	assert.Equal(t, "primary", got[0].Provider)
	assert.Equal(t, "gpt", got[0].Model)
	assert.Equal(t, 10, got[0].PromptTokens)
	assert.Equal(t, 5, got[0].CompletionTokens)
}

func TestChatModelHandler_StreamUsesLastUsage(t *testing.T) {
	rec := newRecordingRecorder()
	h := newChatModelCallbackHandler(rec)

	ctx := h.OnStart(callContext(), nil, nil)
	stream := schema.StreamReaderFromArray([]*model.CallbackOutput{
		{Config: &model.Config{Model: "gpt"}},
		{TokenUsage: &model.TokenUsage{PromptTokens: 7, CompletionTokens: 3}},
	})
	h.OnEndWithStreamOutput(ctx, nil, stream)

	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("usage was not recorded")
	}
	got := rec.inputs()
	require.Len(t, got, 1)
	assert.Equal(t, "gpt", got[0].Model)
	assert.Equal(t, 7, got[0].PromptTokens)
	assert.Equal(t, 3, got[0].CompletionTokens)
}

func TestChatModelHandler_ErrorDoesNotRecord(t *testing.T) {
	rec := newRecordingRecorder()
	h := newChatModelCallbackHandler(rec)

	ctx := h.OnStart(callContext(), nil, nil)
	h.OnError(ctx, nil, errors.New("boom"))
	assert.Empty(t, rec.inputs())
}

func TestChatModelHandler_NoUsageNoRecord(t *testing.T) {
	rec := newRecordingRecorder()
	h := newChatModelCallbackHandler(rec)

	ctx := h.OnStart(callContext(), nil, nil)
	h.OnEnd(ctx, nil, &model.CallbackOutput{})
	assert.Empty(t, rec.inputs())
}
