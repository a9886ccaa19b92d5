package callback

import (
	"context"
	"errors"
	"io"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"z-song-ai-api/internal/domain/service"
	"z-song-ai-api/pkg/logger"
	"z-song-ai-api/pkg/metrics"
)

type startTimeKey struct{}

type callMeta struct {
	workflow string
	provider string
	tier     string
	model    string
}

func metaFromContext(ctx context.Context) callMeta {
	return callMeta{
		workflow: service.WorkflowFromContext(ctx),
		provider: service.ProviderFromContext(ctx),
		tier:     service.TierFromContext(ctx),
	}
}

func newChatModelCallbackHandler(usageRecorder service.LLMUsageRecorder) *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			ctx = context.WithValue(ctx, startTimeKey{}, time.Now())

			meta := metaFromContext(ctx)
			attrs := []attribute.KeyValue{
				attribute.String("eino.workflow", meta.workflow),
				attribute.String("llm.provider", meta.provider),
				attribute.String("llm.model", modelNameFromInput(input)),
			}
			if meta.tier != "" {
				attrs = append(attrs, attribute.String("llm.tier", meta.tier))
			}
			if info != nil {
				attrs = append(attrs,
					attribute.String("eino.node_name", info.Name),
					attribute.String("eino.type", info.Type),
				)
			}

			ctx, _ = otel.Tracer("eino").Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
			return ctx
		},

		OnEnd: func(ctx context.Context, _ *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			meta := metaFromContext(ctx)
			meta.model = modelNameFromOutput(output)
			var usage *model.TokenUsage
			if output != nil {
				usage = output.TokenUsage
			}
			finishCall(ctx, usageRecorder, meta, usage)
			return ctx
		},

		// 流式输出需要读完副本才能拿到 token 用量；副本必须关闭
		OnEndWithStreamOutput: func(ctx context.Context, _ *einocb.RunInfo, output *schema.StreamReader[*model.CallbackOutput]) context.Context {
			meta := metaFromContext(ctx)
			go func() {
				defer output.Close()
				var usage *model.TokenUsage
				for {
					chunk, err := output.Recv()
					if errors.Is(err, io.EOF) {
						break
					}
					if err != nil {
						failCall(ctx, meta, err)
						return
					}
					if chunk == nil {
						continue
					}
					if chunk.TokenUsage != nil {
						usage = chunk.TokenUsage
					}
					if m := modelNameFromOutput(chunk); m != "" {
						meta.model = m
					}
				}
				finishCall(ctx, usageRecorder, meta, usage)
			}()
			return ctx
		},

		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			meta := metaFromContext(ctx)
			if info != nil {
				meta.model = info.Type
			}
			failCall(ctx, meta, err)
			return ctx
		},
	}
}

func finishCall(ctx context.Context, usageRecorder service.LLMUsageRecorder, meta callMeta, usage *model.TokenUsage) {
	metrics.LLMCallTotal.WithLabelValues(meta.workflow, meta.provider, meta.model, "success").Inc()
	elapsed := elapsedSeconds(ctx)
	if elapsed > 0 {
		metrics.LLMCallDuration.WithLabelValues(meta.workflow, meta.provider, meta.model).Observe(elapsed)
	}

	if usage != nil {
		metrics.LLMTokensUsed.WithLabelValues(meta.workflow, meta.provider, meta.model, "prompt").Add(float64(usage.PromptTokens))
		metrics.LLMTokensUsed.WithLabelValues(meta.workflow, meta.provider, meta.model, "completion").Add(float64(usage.CompletionTokens))

		// 用量流水从 callbacks 中解耦到应用层（quota），这里仅做 best-effort 调用
		if usageRecorder != nil {
			clientID, _ := ctx.Value(logger.ClientIDKey).(string)
			generationID, _ := ctx.Value(logger.GenerationIDKey).(string)
			if err := usageRecorder.Record(context.WithoutCancel(ctx), service.LLMUsageInput{
				ClientID:         clientID,
				GenerationID:     generationID,
				Workflow:         meta.workflow,
				Tier:             meta.tier,
				Provider:         meta.provider,
				Model:            meta.model,
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				DurationMs:       int(elapsed * 1000),
			}); err != nil {
				logger.Warn(ctx, "failed to record llm usage", "error", err.Error())
			}
		}
	}

	span := trace.SpanFromContext(ctx)
	if usage != nil {
		span.SetAttributes(
			attribute.Int("llm.prompt_tokens", usage.PromptTokens),
			attribute.Int("llm.completion_tokens", usage.CompletionTokens),
		)
	}
	span.End()
}

func failCall(ctx context.Context, meta callMeta, err error) {
	metrics.LLMCallTotal.WithLabelValues(meta.workflow, meta.provider, meta.model, "error").Inc()
	if d := elapsedSeconds(ctx); d > 0 {
		metrics.LLMCallDuration.WithLabelValues(meta.workflow, meta.provider, meta.model).Observe(d)
	}

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}

func elapsedSeconds(ctx context.Context) float64 {
	v := ctx.Value(startTimeKey{})
	start, ok := v.(time.Time)
	if !ok || start.IsZero() {
		return 0
	}
	return time.Since(start).Seconds()
}

func modelNameFromInput(in *model.CallbackInput) string {
	if in == nil || in.Config == nil {
		return ""
	}
	return in.Config.Model
}

func modelNameFromOutput(out *model.CallbackOutput) string {
	if out == nil || out.Config == nil {
		return ""
	}
	return out.Config.Model
}
