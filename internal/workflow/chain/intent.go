package chain

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"z-song-ai-api/internal/domain/entity"
	llmctx "z-song-ai-api/internal/domain/service"
	wfmodel "z-song-ai-api/internal/workflow/model"
	wfnode "z-song-ai-api/internal/workflow/node"
	workflowport "z-song-ai-api/internal/workflow/port"
	workflowprompt "z-song-ai-api/internal/workflow/prompt"
)

// IntentClassifier 一次快速调用，给请求打上基调、复杂度与是否需要检索
type IntentClassifier struct {
	factory workflowport.ChatModelFactory
	role    wfmodel.Role

	chainOnce sync.Once
	chain     compose.Runnable[*wfmodel.IntentInput, *entity.IntentProfile]
	chainErr  error
}

func NewIntentClassifier(factory workflowport.ChatModelFactory, role wfmodel.Role) *IntentClassifier {
	return &IntentClassifier{factory: factory, role: role}
}

// Classify 返回意图画像；失败时由调用方决定是否降级为 DefaultIntentProfile
func (c *IntentClassifier) Classify(ctx context.Context, in *wfmodel.IntentInput) (entity.IntentProfile, error) {
	if c == nil || c.factory == nil {
		return entity.DefaultIntentProfile(), fmt.Errorf("llm factory not configured")
	}
	if in == nil || strings.TrimSpace(in.Prompt) == "" {
		return entity.DefaultIntentProfile(), fmt.Errorf("prompt is required")
	}

	chain, err := c.getChain()
	if err != nil {
		return entity.DefaultIntentProfile(), err
	}
	out, err := chain.Invoke(ctx, in)
	if err != nil {
		return entity.DefaultIntentProfile(), err
	}
	return *out, nil
}

type intentChainState struct {
	In       *wfmodel.IntentInput
	Messages []*schema.Message
	OutMsg   *schema.Message
}

func (c *IntentClassifier) getChain() (compose.Runnable[*wfmodel.IntentInput, *entity.IntentProfile], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *IntentClassifier) buildChain(ctx context.Context) (compose.Runnable[*wfmodel.IntentInput, *entity.IntentProfile], error) {
	chain := compose.NewChain[*wfmodel.IntentInput, *entity.IntentProfile]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, in *wfmodel.IntentInput) (*intentChainState, error) {
			if in == nil {
				return nil, fmt.Errorf("input is nil")
			}
			return &intentChainState{In: in}, nil
		}),
		compose.WithNodeName("intent.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *intentChainState) (*intentChainState, error) {
			msgs, err := defaultPromptRegistry.Format(ctx, workflowprompt.PromptIntentV1, map[string]any{
				"prompt": strings.TrimSpace(st.In.Prompt),
			})
			if err != nil {
				return nil, err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("intent.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *intentChainState) (*intentChainState, error) {
			ctx = llmctx.WithWorkflowProvider(ctx, "song_intent", c.role.Provider)
			ctx, cancel := withTimeout(ctx, c.role.Timeout)
			defer cancel()

			chatModel, err := c.factory.Get(ctx, c.role.Provider)
			if err != nil {
				return nil, err
			}
			outMsg, err := generateStructured(ctx, chatModel, st.Messages, callSpec{
				Model:      c.role.Model,
				SchemaName: "intent_profile",
				Schema:     intentJSONSchema(),
			})
			if err != nil {
				return nil, wfnode.WrapLLMError(err)
			}
			st.OutMsg = outMsg
			return st, nil
		}),
		compose.WithNodeName("intent.llm"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *intentChainState) (*entity.IntentProfile, error) {
			resp, err := wfnode.AdaptMessage(st.OutMsg)
			if err != nil {
				return nil, err
			}
			return ParseIntentProfile(resp.Text)
		}),
		compose.WithNodeName("intent.parse"),
	)

	return chain.Compile(ctx)
}

// ParseIntentProfile 解析分类输出；未知枚举值按默认值归一
func ParseIntentProfile(text string) (*entity.IntentProfile, error) {
	fields, err := wfnode.StrictParseJSON(text)
	if err != nil {
		fields = wfnode.RepairJSON(text)
	}
	if _, ok := fields["tone"]; !ok {
		if _, ok := fields["complexity"]; !ok {
			return nil, fmt.Errorf("intent output has neither tone nor complexity")
		}
	}

	profile := &entity.IntentProfile{
		Tone:          entity.ParseTone(stringValue(fields["tone"])),
		Complexity:    entity.ParseComplexity(stringValue(fields["complexity"])),
		NeedsResearch: boolValue(fields["needs_research"]),
	}
	return profile, nil
}

func stringValue(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func boolValue(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	default:
		return false
	}
}
