package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-rag-api/internal/domain/entity"
)

func TestUsageCollector_Accumulates(t *testing.T) {
	ctx, c := WithUsageCollector(context.Background())
	assert.Nil(t, c.Usage())

	RecordUsage(ctx, &entity.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})
	RecordUsage(ctx, &entity.TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	RecordUsage(ctx, nil)

	u := c.Usage()
	require.NotNil(t, u)
	assert.Equal(t, entity.TokenUsage{PromptTokens: 11, CompletionTokens: 7, TotalTokens: 18}, *u)
}

func TestRecordUsage_WithoutCollector(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordUsage(context.Background(), &entity.TokenUsage{TotalTokens: 1})
	})
}

func TestWorkflowFromContext(t *testing.T) {
	assert.Equal(t, "unknown", WorkflowFromContext(context.Background()))
	assert.Equal(t, "eval", WorkflowFromContext(WithWorkflow(context.Background(), " eval ")))
}
