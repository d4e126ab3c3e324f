package ports

import "context"

// PaymentGateway is the abstract charge/payout boundary. The ledger stores the
// returned reference on the transaction and never interprets gateway fields.
type PaymentGateway interface {
	ChargePayer(ctx context.Context, payerID string, amount int64, currency, method string) (string, error)
	PayOutToPayee(ctx context.Context, payeeID string, amount int64, currency, destination string) (string, error)
}

// SweepLock keeps concurrent worker replicas from running the same sweep.
type SweepLock interface {
	Acquire(ctx context.Context, key string, ttlSeconds int) (bool, error)
	Release(ctx context.Context, key string) error
}
