// internal/notify/handler.go
package notify

import (
	"context"
	"fmt"

	"github.com/ledgersnipe/xrpl-bot/internal/events"
)

// BindBus subscribes the dispatcher to the event bus so that trade and
// connection events become outbound notifications.
func BindBus(bus *events.Bus, d *Dispatcher) []*events.Subscription {
	subs := []*events.Subscription{
		bus.SubscribeFunc(events.TokenAcquired, func(_ context.Context, ev events.Event) error {
			e, ok := ev.(events.TokenAcquiredEvent)
			if !ok {
				return fmt.Errorf("unexpected event payload for %s", ev.Type())
			}
			d.Enqueue(NewMessage("acquired",
				fmt.Sprintf("Acquired %s %s for %s XRP",
					e.Units.String(), e.Currency, e.SpentXRP.String()),
				map[string]interface{}{
					"currency": e.Currency,
					"issuer":   e.Issuer,
					"units":    e.Units.String(),
					"spent":    e.SpentXRP.String(),
					"tx_hash":  e.TxHash,
				}))
			return nil
		}),

		bus.SubscribeFunc(events.TargetLiquidated, func(_ context.Context, ev events.Event) error {
			e, ok := ev.(events.TargetLiquidatedEvent)
			if !ok {
				return fmt.Errorf("unexpected event payload for %s", ev.Type())
			}
			d.Enqueue(NewMessage("liquidated",
				fmt.Sprintf("Target %sx hit on %s: sold %s for %s XRP (%s remaining)",
					e.Multiplier.String(), e.Currency, e.UnitsSold.String(),
					e.ProceedsXRP.String(), e.Remaining.String()),
				map[string]interface{}{
					"currency":   e.Currency,
					"issuer":     e.Issuer,
					"slot":       e.SlotIndex,
					"multiplier": e.Multiplier.String(),
					"units_sold": e.UnitsSold.String(),
					"proceeds":   e.ProceedsXRP.String(),
					"remaining":  e.Remaining.String(),
					"tx_hash":    e.TxHash,
				}))
			return nil
		}),

		bus.SubscribeFunc(events.IssuerMonitored, func(_ context.Context, ev events.Event) error {
			e, ok := ev.(events.IssuerMonitoredEvent)
			if !ok {
				return fmt.Errorf("unexpected event payload for %s", ev.Type())
			}
			d.Enqueue(NewMessage("monitored",
				fmt.Sprintf("Watching new issuer %s (%s)", e.Issuer, e.Currency),
				map[string]interface{}{
					"currency": e.Currency,
					"issuer":   e.Issuer,
				}))
			return nil
		}),

		bus.SubscribeFunc(events.ConnectionTerminal, func(ctx context.Context, ev events.Event) error {
			e, ok := ev.(events.ConnectionTerminalEvent)
			if !ok {
				return fmt.Errorf("unexpected event payload for %s", ev.Type())
			}
			// Shutdown follows right after this event and Close drops the
			// queue, so the fault report skips the paced worker entirely.
			return d.DeliverNow(ctx, NewMessage("connection_terminal",
				fmt.Sprintf("Ledger connection lost for good: %s", e.Reason),
				nil))
		}),
	}
	return subs
}
