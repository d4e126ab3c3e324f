// Package gateway holds payment-boundary adapters. The real processor
// integration lives behind ports.PaymentGateway; this logging implementation
// stands in wherever no processor credentials are configured.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

type LoggingGateway struct {
	logger *slog.Logger
	seq    atomic.Int64
}

func NewLoggingGateway(logger *slog.Logger) *LoggingGateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingGateway{logger: logger}
}

func (g *LoggingGateway) ChargePayer(ctx context.Context, payerID string, amount int64, currency, method string) (string, error) {
	ref := fmt.Sprintf("sim-charge-%d", g.seq.Add(1))
	g.logger.InfoContext(ctx, "payer charged",
		"module", "gateway",
		"layer", "adapter",
		"operation", "charge_payer",
		"outcome", "success",
		"payer_id", payerID,
		"amount", amount,
		"currency", currency,
		"method", method,
		"reference", ref,
	)
	return ref, nil
}

func (g *LoggingGateway) PayOutToPayee(ctx context.Context, payeeID string, amount int64, currency, destination string) (string, error) {
	ref := fmt.Sprintf("sim-payout-%d", g.seq.Add(1))
	g.logger.InfoContext(ctx, "payee paid out",
		"module", "gateway",
		"layer", "adapter",
		"operation", "pay_out_to_payee",
		"outcome", "success",
		"payee_id", payeeID,
		"amount", amount,
		"currency", currency,
		"destination", destination,
		"reference", ref,
	)
	return ref, nil
}
