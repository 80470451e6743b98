// internal/ledger/trader.go
package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Offer flags.
const (
	tfImmediateOrCancel = 0x00020000
	tfSell              = 0x00080000
	tfSetNoRipple       = 0x00020000
)

// Trader builds and submits the handful of transaction shapes the bot uses.
// Each submission that carries a ticket sets Sequence to zero, as the ledger
// requires when a TicketSequence is present.
type Trader struct {
	client  *Client
	account string
	logger  *zap.Logger
}

// NewTrader creates a trader submitting on behalf of account.
func NewTrader(client *Client, account string, logger *zap.Logger) *Trader {
	return &Trader{client: client, account: account, logger: logger.Named("trader")}
}

// CreateTrustLine establishes permission to hold the issuer's token.
func (t *Trader) CreateTrustLine(ctx context.Context, currency, issuer, limit string) error {
	tx := map[string]any{
		"TransactionType": "TrustSet",
		"Account":         t.account,
		"LimitAmount": map[string]string{
			"currency": currency,
			"issuer":   issuer,
			"value":    limit,
		},
		"Flags": tfSetNoRipple,
	}

	res, err := t.client.Submit(ctx, tx)
	if err != nil {
		return fmt.Errorf("trust set: %w", err)
	}
	if !res.Accepted {
		return fmt.Errorf("trust set rejected: %s", res.EngineResult)
	}

	t.logger.Info("🤝 Trust line established",
		zap.String("currency", currency),
		zap.String("issuer", issuer))
	return nil
}

// RemoveTrustLine revokes the grant by resetting its limit to zero. Safe to
// call when the line is already gone; the ledger simply reports tecNO_LINE.
func (t *Trader) RemoveTrustLine(ctx context.Context, currency, issuer string) error {
	tx := map[string]any{
		"TransactionType": "TrustSet",
		"Account":         t.account,
		"LimitAmount": map[string]string{
			"currency": currency,
			"issuer":   issuer,
			"value":    "0",
		},
	}

	res, err := t.client.Submit(ctx, tx)
	if err != nil {
		return fmt.Errorf("trust clear: %w", err)
	}
	if !res.Accepted && res.EngineResult != "tecNO_LINE" {
		return fmt.Errorf("trust clear rejected: %s", res.EngineResult)
	}

	t.logger.Info("Trust line revoked",
		zap.String("currency", currency),
		zap.String("issuer", issuer))
	return nil
}

// BuyTokens posts an immediate-or-cancel offer spending spendDrops of XRP for
// at least wantUnits of the token, consuming one reserved ticket.
func (t *Trader) BuyTokens(ctx context.Context, currency, issuer string, spendDrops int64, wantUnits decimal.Decimal, ticket uint32) (*SubmitResult, error) {
	// TakerGets is what this account gives up (XRP), TakerPays what it
	// wants back (the token).
	tx := map[string]any{
		"TransactionType": "OfferCreate",
		"Account":         t.account,
		"TakerGets":       strconv.FormatInt(spendDrops, 10),
		"TakerPays": map[string]string{
			"currency": currency,
			"issuer":   issuer,
			"value":    wantUnits.String(),
		},
		"Flags":          tfImmediateOrCancel,
		"Sequence":       0,
		"TicketSequence": ticket,
	}

	res, err := t.client.Submit(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("buy offer: %w", err)
	}
	return res, nil
}

// SellTokens posts an immediate-or-cancel offer selling units of the token
// for at least wantXRP, consuming one reserved ticket.
func (t *Trader) SellTokens(ctx context.Context, currency, issuer string, units, wantXRP decimal.Decimal, ticket uint32) (*SubmitResult, error) {
	wantDrops := wantXRP.Mul(decimal.NewFromInt(DropsPerXRP)).Truncate(0)

	tx := map[string]any{
		"TransactionType": "OfferCreate",
		"Account":         t.account,
		"TakerGets": map[string]string{
			"currency": currency,
			"issuer":   issuer,
			"value":    units.String(),
		},
		"TakerPays":      wantDrops.String(),
		"Flags":          tfImmediateOrCancel | tfSell,
		"Sequence":       0,
		"TicketSequence": ticket,
	}

	res, err := t.client.Submit(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sell offer: %w", err)
	}
	return res, nil
}

// CreateTickets reserves count new sequence tickets. This is a fee-costing
// operation on the account's main sequence, used only when the pool runs dry.
func (t *Trader) CreateTickets(ctx context.Context, count int) error {
	tx := map[string]any{
		"TransactionType": "TicketCreate",
		"Account":         t.account,
		"TicketCount":     count,
	}

	res, err := t.client.Submit(ctx, tx)
	if err != nil {
		return fmt.Errorf("ticket create: %w", err)
	}
	if !res.Accepted {
		return fmt.Errorf("ticket create rejected: %s", res.EngineResult)
	}

	t.logger.Info("🎫 Requested new tickets", zap.Int("count", count))
	return nil
}
