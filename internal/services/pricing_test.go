package services

import (
	"errors"
	"testing"

	"panel-service/internal/models"
)

func TestPriceFor(t *testing.T) {
	tests := []struct {
		name          string
		operationType string
		duration      int
		want          int64
		wantErr       bool
	}{
		{
			name:          "renew defaults to one month",
			operationType: models.OperationTypeRenew,
			duration:      0,
			want:          priceRenewPerMonth,
		},
		{
			name:          "renew scales with duration",
			operationType: models.OperationTypeRenew,
			duration:      12,
			want:          12 * priceRenewPerMonth,
		},
		{
			name:          "check is a flat fee",
			operationType: models.OperationTypeCheck,
			want:          priceCheck,
		},
		{
			name:          "signal refresh is a flat fee",
			operationType: models.OperationTypeSignalRefresh,
			want:          priceSignal,
		},
		{
			name:          "signal check is a flat fee",
			operationType: models.OperationTypeSignalCheck,
			want:          priceSignal,
		},
		{
			name:          "renew duration above the cap is a validation error",
			operationType: models.OperationTypeRenew,
			duration:      maxRenewMonths + 1,
			wantErr:       true,
		},
		{
			name:          "renew duration at the cap is accepted",
			operationType: models.OperationTypeRenew,
			duration:      maxRenewMonths,
			want:          maxRenewMonths * priceRenewPerMonth,
		},
		{
			name:          "unknown type is a validation error",
			operationType: "BONUS",
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriceFor(tt.operationType, tt.duration)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got amount %d", got)
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("amount: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSplitDeduction(t *testing.T) {
	tests := []struct {
		name              string
		balance           int64
		storeCredit       int64
		amount            int64
		wantBalance       int64
		wantCredit        int64
		wantWalletPortion int64
		wantOK            bool
	}{
		{
			name:              "wallet only",
			balance:           100,
			storeCredit:       0,
			amount:            20,
			wantBalance:       80,
			wantCredit:        0,
			wantWalletPortion: 20,
			wantOK:            true,
		},
		{
			name:              "store credit consumed first",
			balance:           100,
			storeCredit:       15,
			amount:            20,
			wantBalance:       95,
			wantCredit:        0,
			wantWalletPortion: 5,
			wantOK:            true,
		},
		{
			name:              "fully covered by store credit",
			balance:           100,
			storeCredit:       50,
			amount:            20,
			wantBalance:       100,
			wantCredit:        30,
			wantWalletPortion: 0,
			wantOK:            true,
		},
		{
			name:              "exact total across both pools",
			balance:           10,
			storeCredit:       10,
			amount:            20,
			wantBalance:       0,
			wantCredit:        0,
			wantWalletPortion: 10,
			wantOK:            true,
		},
		{
			name:              "insufficient leaves both pools untouched",
			balance:           10,
			storeCredit:       5,
			amount:            20,
			wantBalance:       10,
			wantCredit:        5,
			wantWalletPortion: 0,
			wantOK:            false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			newBalance, newCredit, walletPortion, ok := SplitDeduction(tt.balance, tt.storeCredit, tt.amount)
			if ok != tt.wantOK {
				t.Fatalf("ok: got %v, want %v", ok, tt.wantOK)
			}
			if newBalance != tt.wantBalance {
				t.Fatalf("balance: got %d, want %d", newBalance, tt.wantBalance)
			}
			if newCredit != tt.wantCredit {
				t.Fatalf("store credit: got %d, want %d", newCredit, tt.wantCredit)
			}
			if walletPortion != tt.wantWalletPortion {
				t.Fatalf("wallet portion: got %d, want %d", walletPortion, tt.wantWalletPortion)
			}
		})
	}
}
