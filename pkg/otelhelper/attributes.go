package otelhelper

import (
	"github.com/dukex/consolidation/pkg/models"
	"go.opentelemetry.io/otel/attribute"
)

// RunAttributes identifies a run on its spans.
func RunAttributes(run *models.ExecutionRun) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CompanyIDKey, run.CompanyID),
		attribute.String(ProcessIDKey, run.ProcessID),
		attribute.String(RunIDKey, run.ID),
		attribute.String(RunModeKey, string(run.Mode)),
	}
}

// NodeAttributes identifies one dispatch.
func NodeAttributes(node *models.Node, wave int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(NodeIDKey, node.ID),
		attribute.String(NodeTypeKey, string(node.Type)),
		attribute.Int(WaveKey, wave),
	}
}
