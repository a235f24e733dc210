package costing

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
)

// IsBackdated reports whether a transaction dated candidateDate would land
// before already-recorded history for the product.
//
// A transaction is backdated when any existing lot is dated after the
// candidate date, or any consumed demand line is. Either way, inserting the
// new event changes what "the oldest available lot as of then" was, and
// every draw between candidateDate and now has to be redone.
func (s *Service) IsBackdated(ctx context.Context, productID id.ID, candidateDate time.Time) (bool, error) {
	if id.IsNil(productID) {
		return false, apperror.NewValidation("product is required").
			WithDetail("field", "productId")
	}

	maxLotDate, err := s.repo.MaxLotDate(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("max lot date: %w", err)
	}
	if maxLotDate != nil && maxLotDate.After(candidateDate) {
		return true, nil
	}

	maxConsumed, err := s.repo.MaxConsumedDemandDate(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("max consumed demand date: %w", err)
	}
	if maxConsumed != nil && maxConsumed.After(candidateDate) {
		return true, nil
	}

	return false, nil
}
