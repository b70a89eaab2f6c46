package services

import (
	"fmt"

	"panel-service/internal/models"
)

// Prices are fixed in minor currency units at creation time and never
// recomputed for the life of an operation.
const (
	priceRenewPerMonth = 1500
	priceCheck         = 100
	priceSignal        = 200

	maxRenewMonths = 120
)

// PriceFor returns the amount charged for an operation. duration is in
// months and only meaningful for RENEW; zero means one month.
func PriceFor(operationType string, duration int) (int64, error) {
	switch operationType {
	case models.OperationTypeRenew:
		if duration <= 0 {
			duration = 1
		}
		if duration > maxRenewMonths {
			return 0, fmt.Errorf("%w: duration %d exceeds %d months", ErrValidation, duration, maxRenewMonths)
		}
		return int64(duration) * priceRenewPerMonth, nil
	case models.OperationTypeCheck:
		return priceCheck, nil
	case models.OperationTypeSignalRefresh, models.OperationTypeSignalCheck:
		return priceSignal, nil
	default:
		return 0, fmt.Errorf("%w: unknown operation type %q", ErrValidation, operationType)
	}
}

// SplitDeduction deducts amount from the secondary credit pool first and
// the wallet for the remainder. The returned walletPortion is what the
// ledger entry records. ok is false when both pools together cannot
// cover the amount; nothing should be mutated in that case.
func SplitDeduction(balance, storeCredit, amount int64) (newBalance, newCredit, walletPortion int64, ok bool) {
	if balance+storeCredit < amount {
		return balance, storeCredit, 0, false
	}

	fromCredit := amount
	if fromCredit > storeCredit {
		fromCredit = storeCredit
	}
	walletPortion = amount - fromCredit

	return balance - walletPortion, storeCredit - fromCredit, walletPortion, true
}
