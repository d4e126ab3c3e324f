package domain

import "testing"

func TestEscrowAccountBalanced(t *testing.T) {
	account := EscrowAccount{TotalAmount: 500000, HeldAmount: 300000, ReleasedAmount: 160000, RefundedAmount: 40000}
	if !account.Balanced() {
		t.Fatalf("expected balanced account: %+v", account)
	}
	account.ReleasedAmount += 1
	if account.Balanced() {
		t.Fatalf("expected imbalance detected: %+v", account)
	}
}

func TestDepositFees(t *testing.T) {
	schedule := FeeSchedule{PlatformFeeBps: 1000, ProcessingFeeBps: 290, ProcessingFeeFixed: 30, DisputeFee: 2500}

	fees := schedule.DepositFees(100000)
	if fees.PlatformFee != 10000 {
		t.Fatalf("platform fee = %d, want 10000", fees.PlatformFee)
	}
	if fees.ProcessingFee != 2930 {
		t.Fatalf("processing fee = %d, want 2930", fees.ProcessingFee)
	}
	if fees.Total() != 12930 {
		t.Fatalf("total fees = %d, want 12930", fees.Total())
	}

	// Sub-unit remainders truncate toward zero.
	small := schedule.DepositFees(99)
	if small.PlatformFee != 9 || small.ProcessingFee != 32 {
		t.Fatalf("unexpected small deposit fees: %+v", small)
	}
}
