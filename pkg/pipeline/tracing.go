package pipeline

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const pipelineTracerName = "echomem.pipeline"

const (
	spanRemember       = "memory.remember"
	spanFlushSession   = "memory.flush_session"
	spanRecall         = "memory.recall"
	spanRecallProcess  = "memory.recall.process_query"
	spanRecallRetrieve = "memory.recall.retrieve"
	spanRecallRerank   = "memory.recall.rerank"
	spanRecallSelect   = "memory.recall.select"
)

func pipelineTracer() trace.Tracer {
	return otel.Tracer(pipelineTracerName)
}
