package callback

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	cbtemplate "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"novel2video/internal/domain/service"
	"novel2video/pkg/logger"
	"novel2video/pkg/metrics"
)

type callStartKey struct{}

// callLabels 一次模型调用的指标维度
type callLabels struct {
	workflow string
	provider string
	model    string
}

func labelsFrom(ctx context.Context, model string) callLabels {
	return callLabels{
		workflow: service.WorkflowFromContext(ctx),
		provider: service.ProviderFromContext(ctx),
		model:    model,
	}
}

// modelObserver 在 ChatModel 调用前后打点，并把 token 用量交给 recorder
type modelObserver struct {
	recorder service.LLMUsageRecorder
	tracer   trace.Tracer
}

func newModelObserver(recorder service.LLMUsageRecorder) *modelObserver {
	return &modelObserver{recorder: recorder, tracer: otel.Tracer("eino")}
}

func (o *modelObserver) handler() *cbtemplate.ModelCallbackHandler {
	return &cbtemplate.ModelCallbackHandler{
		OnStart: o.onStart,
		OnEnd:   o.onEnd,
		OnError: o.onError,
	}
}

func (o *modelObserver) onStart(ctx context.Context, info *einocb.RunInfo, in *model.CallbackInput) context.Context {
	var modelName string
	var messages int
	if in != nil {
		messages = len(in.Messages)
		if in.Config != nil {
			modelName = in.Config.Model
		}
	}
	l := labelsFrom(ctx, modelName)
	attrs := []attribute.KeyValue{
		attribute.String("eino.workflow", l.workflow),
		attribute.String("llm.provider", l.provider),
		attribute.String("llm.model", l.model),
		attribute.Int("llm.messages", messages),
	}
	if info != nil {
		attrs = append(attrs, attribute.String("eino.node_name", info.Name))
	}

	ctx = context.WithValue(ctx, callStartKey{}, time.Now())
	ctx, _ = o.tracer.Start(ctx, "llm.generate", trace.WithAttributes(attrs...))
	return ctx
}

func (o *modelObserver) onEnd(ctx context.Context, _ *einocb.RunInfo, out *model.CallbackOutput) context.Context {
	var modelName string
	if out != nil && out.Config != nil {
		modelName = out.Config.Model
	}
	l := labelsFrom(ctx, modelName)
	elapsed := o.observe(ctx, l, "success")

	span := trace.SpanFromContext(ctx)
	defer span.End()
	if out == nil || out.TokenUsage == nil {
		return ctx
	}

	u := out.TokenUsage
	metrics.LLMTokensUsed.WithLabelValues(l.workflow, l.provider, l.model, "prompt").Add(float64(u.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(l.workflow, l.provider, l.model, "completion").Add(float64(u.CompletionTokens))
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", u.PromptTokens),
		attribute.Int("llm.completion_tokens", u.CompletionTokens),
	)

	if o.recorder != nil {
		runID, _ := ctx.Value(logger.RunIDKey).(string)
		err := o.recorder.Record(ctx, service.LLMUsageInput{
			RunID:            runID,
			Workflow:         l.workflow,
			Provider:         l.provider,
			Model:            l.model,
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			DurationMs:       int(elapsed.Milliseconds()),
		})
		if err != nil {
			logger.Warn(ctx, "record llm usage failed", "error", err)
		}
	}
	return ctx
}

func (o *modelObserver) onError(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
	var modelName string
	if info != nil {
		modelName = info.Type
	}
	o.observe(ctx, labelsFrom(ctx, modelName), "error")

	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
	return ctx
}

// observe 记录调用次数与耗时，返回本次耗时（无起始时间时为 0）
func (o *modelObserver) observe(ctx context.Context, l callLabels, status string) time.Duration {
	metrics.LLMCallTotal.WithLabelValues(l.workflow, l.provider, l.model, status).Inc()
	start, ok := ctx.Value(callStartKey{}).(time.Time)
	if !ok {
		return 0
	}
	elapsed := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(l.workflow, l.provider, l.model).Observe(elapsed.Seconds())
	return elapsed
}
