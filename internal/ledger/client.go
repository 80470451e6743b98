// internal/ledger/client.go
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Client wraps the request/response surface of the ledger network. Every
// call borrows the current session from the supervisor; nothing is cached
// across calls.
type Client struct {
	sup    *Supervisor
	logger *zap.Logger
}

// NewClient creates a ledger client on top of the supervisor.
func NewClient(sup *Supervisor, logger *zap.Logger) *Client {
	return &Client{sup: sup, logger: logger.Named("ledger")}
}

// AccountInfo fetches the account root for an address.
func (c *Client) AccountInfo(ctx context.Context, account string) (*AccountInfo, error) {
	raw, err := c.call(ctx, "account_info", map[string]any{
		"account":      account,
		"ledger_index": "validated",
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		AccountData AccountInfo `json:"account_data"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("account_info decode: %w", err)
	}
	return &result.AccountData, nil
}

// ServerInfo fetches basic state of the connected server.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	raw, err := c.call(ctx, "server_info", nil)
	if err != nil {
		return nil, err
	}

	var result struct {
		Info ServerInfo `json:"info"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("server_info decode: %w", err)
	}
	return &result.Info, nil
}

// TicketSequences lists the reserved-but-unused ticket sequence numbers an
// account holds, sorted ascending.
func (c *Client) TicketSequences(ctx context.Context, account string) ([]uint32, error) {
	raw, err := c.call(ctx, "account_objects", map[string]any{
		"account":      account,
		"type":         "ticket",
		"ledger_index": "validated",
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		AccountObjects []struct {
			TicketSequence uint32 `json:"TicketSequence"`
		} `json:"account_objects"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("account_objects decode: %w", err)
	}

	seqs := make([]uint32, 0, len(result.AccountObjects))
	for _, obj := range result.AccountObjects {
		seqs = append(seqs, obj.TicketSequence)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs, nil
}

// AccountLines lists the trust lines an account has established.
func (c *Client) AccountLines(ctx context.Context, account string) ([]TrustLine, error) {
	raw, err := c.call(ctx, "account_lines", map[string]any{
		"account":      account,
		"ledger_index": "validated",
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Lines []TrustLine `json:"lines"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("account_lines decode: %w", err)
	}
	return result.Lines, nil
}

// BookOffers fetches the order book selling the given token for XRP.
func (c *Client) BookOffers(ctx context.Context, currency, issuer string) ([]Offer, error) {
	raw, err := c.call(ctx, "book_offers", map[string]any{
		"taker_gets": map[string]string{"currency": currency, "issuer": issuer},
		"taker_pays": map[string]string{"currency": "XRP"},
		"limit":      10,
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		Offers []Offer `json:"offers"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("book_offers decode: %w", err)
	}
	return result.Offers, nil
}

// Submit hands a transaction to the signing/submission sink and decodes the
// engine verdict. Signing itself happens outside this process boundary.
func (c *Client) Submit(ctx context.Context, tx map[string]any) (*SubmitResult, error) {
	raw, err := c.call(ctx, "submit", map[string]any{
		"tx_json": tx,
	})
	if err != nil {
		return nil, err
	}

	var result struct {
		EngineResult string `json:"engine_result"`
		TxJSON       struct {
			Hash string `json:"hash"`
		} `json:"tx_json"`
		DeliveredAmount *Amount `json:"delivered_amount"`
		DeliveredUnits  *Amount `json:"delivered_units"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("submit decode: %w", err)
	}

	// Only tesSUCCESS counts as accepted. A terQUEUED verdict means the
	// transaction sits in the server queue and may never execute, so callers
	// must not book its outcome.
	res := &SubmitResult{
		EngineResult: result.EngineResult,
		Accepted:     result.EngineResult == "tesSUCCESS",
		Hash:         result.TxJSON.Hash,
	}
	if result.DeliveredAmount != nil && result.DeliveredAmount.Native {
		res.DeliveredXRP = result.DeliveredAmount.Value
	}
	if result.DeliveredUnits != nil && !result.DeliveredUnits.Native {
		res.DeliveredUnits = result.DeliveredUnits.Value
	}
	return res, nil
}

// call acquires the current session and runs one command on it.
func (c *Client) call(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	sess, err := c.sup.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return sess.Call(ctx, command, params)
}
