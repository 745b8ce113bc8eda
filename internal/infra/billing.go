package infra

import (
	"context"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/detox/internal/domain"
)

// CommandBilling implements domain.BillingGateway by launching an external
// purchase command, typically opening the store page in a browser.
type CommandBilling struct {
	runner  CommandRunner
	command []string
	logger  *zap.Logger
}

// NewCommandBilling creates the gateway. An empty command only logs.
func NewCommandBilling(runner CommandRunner, command []string, logger *zap.Logger) *CommandBilling {
	return &CommandBilling{runner: runner, command: command, logger: logger}
}

func (b *CommandBilling) RequestPurchaseFlow() {
	if len(b.command) == 0 {
		b.logger.Info("purchase flow requested; no purchase command configured")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), surfaceCommandTimeout)
	defer cancel()
	if err := b.runner.Run(ctx, b.command[0], b.command[1:]...); err != nil {
		b.logger.Warn("purchase command failed", zap.Error(err))
		return
	}
	b.logger.Info("purchase flow launched", zap.String("command", b.command[0]))
}

// Ensure CommandBilling implements domain.BillingGateway.
var _ domain.BillingGateway = (*CommandBilling)(nil)
