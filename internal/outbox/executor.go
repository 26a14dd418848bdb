package outbox

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vendaflow/sdr-platform/internal/crm"
	"github.com/vendaflow/sdr-platform/internal/model"
	"github.com/vendaflow/sdr-platform/internal/summarizer"
	"github.com/vendaflow/sdr-platform/pkg/logger"
)

// ExecResult is the outcome of one successful executor run.
type ExecResult struct {
	DealID int64
	Phone  string
}

// Executor performs the CRM write for one operation type.
type Executor interface {
	Execute(ctx context.Context, op *model.PendingOperation) (*ExecResult, error)
}

// CreateDealExecutor executes create_deal operations through the CRM deal
// syncer. When a payload carries a transcript but no conversation summary and
// a summarizer is configured, a summary is generated best-effort before the
// sync call.
type CreateDealExecutor struct {
	syncer    crm.DealSyncer
	summaries summarizer.Client
	logger    *logger.Logger
}

// NewCreateDealExecutor creates the create_deal executor. summaries may be
// nil.
func NewCreateDealExecutor(syncer crm.DealSyncer, summaries summarizer.Client, log *logger.Logger) *CreateDealExecutor {
	return &CreateDealExecutor{
		syncer:    syncer,
		summaries: summaries,
		logger:    log,
	}
}

// Execute syncs the deal described by the operation payload.
//
// A payload without a phone fails here and is consumed as an ordinary
// retryable failure upstream; structural payload errors are not
// distinguished from transient ones.
func (e *CreateDealExecutor) Execute(ctx context.Context, op *model.PendingOperation) (*ExecResult, error) {
	phone, _ := op.Payload["phone"].(string)
	if phone == "" {
		return nil, errors.New("payload missing phone")
	}

	leadData, _ := op.Payload["lead_data"].(map[string]any)
	orcamentoID := stringField(op.Payload, "orcamento_id")
	summary := stringField(op.Payload, "conversation_summary")
	forceCreate, _ := op.Payload["force_create"].(bool)

	if summary == "" && e.summaries != nil {
		if transcript := stringField(op.Payload, "transcript"); transcript != "" {
			generated, err := e.summaries.Summarize(ctx, transcript)
			if err != nil {
				e.logger.Warn("summary generation failed, syncing without one",
					zap.String("operation_id", op.ID),
					zap.Error(err),
				)
			} else {
				summary = generated
			}
		}
	}

	dealID, err := e.syncer.SyncDeal(ctx, &crm.DealSyncRequest{
		Phone:               phone,
		LeadData:            leadData,
		OrcamentoID:         orcamentoID,
		ConversationSummary: summary,
		ForceCreate:         forceCreate,
	})
	if err != nil {
		return nil, err
	}
	if dealID == 0 {
		return nil, nil
	}

	return &ExecResult{DealID: dealID, Phone: phone}, nil
}

// stringField tolerates numeric identifiers in free-form payloads.
func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	}
	return ""
}
