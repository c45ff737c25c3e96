// Package mail defines how outbound receipt messages leave the service.
package mail

import (
	"context"

	"github.com/TON618OFF/FactorioStore/internal/domain"
)

// Transport delivers one outbound message. Implementations must be safe for
// concurrent use.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *domain.OutboundMessage) error
}
