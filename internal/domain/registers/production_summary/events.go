package production_summary

import (
	"context"
	"encoding/json"
	"fmt"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/id"
	"factorydesk/internal/core/types"
	"factorydesk/pkg/logger"
)

const (
	// AggregateType tags outbox events about summary rows.
	AggregateType = "daily_product_summary"

	// EventRefreshRequested asks the worker to recompute one row.
	EventRefreshRequested = "summary.refresh_requested"
)

// RefreshRequested is the payload of EventRefreshRequested.
type RefreshRequested struct {
	CompanyID id.ID     `json:"companyId"`
	ProductID id.ID     `json:"productId"`
	Date      types.Day `json:"date"`
}

// RefreshRequestedFor builds the event payload for key.
func RefreshRequestedFor(key Key) RefreshRequested {
	return RefreshRequested{CompanyID: key.CompanyID, ProductID: key.ProductID, Date: key.Date}
}

// Key returns the row the event refers to.
func (e RefreshRequested) Key() Key {
	return Key{CompanyID: e.CompanyID, ProductID: e.ProductID, Date: e.Date}
}

// HandleRefreshRequested recomputes the row named by an outbox payload.
// A new row for a product that no longer exists is dropped rather than
// retried.
func (s *Service) HandleRefreshRequested(ctx context.Context, payload []byte) error {
	var event RefreshRequested
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decode %s: %w", EventRefreshRequested, err)
	}

	_, err := s.Recompute(ctx, event.Key())
	if apperror.IsValidation(err) {
		logger.Warn(ctx, "summary refresh dropped", "key", event.Key().String(), "error", err)
		return nil
	}
	return err
}

// HandleRefreshCommitted drops the cached day of a refresh once the
// transaction that ran HandleRefreshRequested has committed.
func (s *Service) HandleRefreshCommitted(ctx context.Context, payload []byte) {
	var event RefreshRequested
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Warn(ctx, "summary refresh payload unreadable", "error", err)
		return
	}
	s.InvalidateDay(ctx, event.CompanyID, event.Date)
}
