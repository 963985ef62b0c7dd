package lead

import (
	"context"
	"fmt"

	"lead-routing/internal/common/models"

	"go.uber.org/zap"
)

const sweepBatchSize = 500

type ItemResult struct {
	LeadID string          `json:"lead_id"`
	Result *TransferResult `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type BatchResult struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

type BatchService interface {
	// Resync reassigns every listed lead independently. One failure never stops the batch.
	Resync(ctx context.Context, caller models.Caller, leadIDs []string) *BatchResult
	// SweepUnassigned resyncs leads left unrouted or without an owner.
	SweepUnassigned(ctx context.Context, caller models.Caller) (*BatchResult, error)
}

type BatchServiceImpl struct {
	Engine TransferEngine
	Leads  LeadRepository
	Logger *zap.Logger
}

func NewBatchService(engine TransferEngine, leads LeadRepository, logger *zap.Logger) BatchService {
	return &BatchServiceImpl{
		Engine: engine,
		Leads:  leads,
		Logger: logger,
	}
}

func (s *BatchServiceImpl) Resync(ctx context.Context, caller models.Caller, leadIDs []string) *BatchResult {
	out := &BatchResult{Items: make([]ItemResult, 0, len(leadIDs))}
	for _, id := range leadIDs {
		item := s.resyncOne(ctx, caller, id)
		if item.Error != "" {
			out.Failed++
		} else {
			out.Succeeded++
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func (s *BatchServiceImpl) resyncOne(ctx context.Context, caller models.Caller, id string) (item ItemResult) {
	item.LeadID = id
	defer func() {
		if p := recover(); p != nil {
			item.Error = fmt.Sprintf("panic: %v", p)
			s.Logger.Error("resync panicked", zap.String("lead_id", id), zap.Any("panic", p))
		}
	}()

	res, err := s.Engine.Reassign(ctx, caller, id)
	item.Result = res
	if err != nil {
		item.Error = err.Error()
		s.Logger.Warn("resync failed", zap.String("lead_id", id), zap.Error(err))
	}
	return item
}

func (s *BatchServiceImpl) SweepUnassigned(ctx context.Context, caller models.Caller) (*BatchResult, error) {
	leads, err := s.Leads.FindNeedingRouting(ctx, sweepBatchSize)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(leads))
	for _, l := range leads {
		ids = append(ids, l.ID.Hex())
	}
	return s.Resync(ctx, caller, ids), nil
}
