package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel 按调用序号返回预设结果的 BaseChatModel
type fakeChatModel struct {
	mu    sync.Mutex
	calls int

	generate func(ctx context.Context, call int, msgs []*schema.Message) (*schema.Message, error)
	stream   func(ctx context.Context, call int, msgs []*schema.Message) ([]string, error)
}

func (m *fakeChatModel) next() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.calls
}

func (m *fakeChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	call := m.next()
	if m.generate == nil {
		return nil, fmt.Errorf("generate not supported")
	}
	return m.generate(ctx, call, input)
}

func (m *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	call := m.next()
	if m.stream == nil {
		return nil, fmt.Errorf("stream not supported")
	}
	chunks, err := m.stream(ctx, call, input)
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(chunks))
	for _, c := range chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type fakeFactory map[string]model.BaseChatModel

func (f fakeFactory) Get(_ context.Context, name string) (model.BaseChatModel, error) {
	m, ok := f[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	return m, nil
}

func replyJSON(content string) func(context.Context, int, []*schema.Message) (*schema.Message, error) {
	return func(context.Context, int, []*schema.Message) (*schema.Message, error) {
		return schema.AssistantMessage(content, nil), nil
	}
}

func alwaysFail(err error) func(context.Context, int, []*schema.Message) (*schema.Message, error) {
	return func(context.Context, int, []*schema.Message) (*schema.Message, error) {
		return nil, err
	}
}
