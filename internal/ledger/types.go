// internal/ledger/types.go
package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// DropsPerXRP is the number of drops in one unit of the native currency.
const DropsPerXRP = 1_000_000

var dropsPerXRP = decimal.NewFromInt(DropsPerXRP)

// Amount is a ledger amount: either native XRP (wire format: integer drops
// as a string) or an issued token (wire format: currency/issuer/value object).
// Value is always in whole units, never drops.
type Amount struct {
	Currency string
	Issuer   string
	Value    decimal.Decimal
	Native   bool
}

// XRPAmount builds a native amount from drops.
func XRPAmount(drops int64) Amount {
	return Amount{
		Currency: "XRP",
		Value:    decimal.NewFromInt(drops).Div(dropsPerXRP),
		Native:   true,
	}
}

// TokenAmount builds an issued-token amount.
func TokenAmount(currency, issuer string, value decimal.Decimal) Amount {
	return Amount{Currency: currency, Issuer: issuer, Value: value}
}

// Drops returns the native value in drops. Zero for issued tokens.
func (a Amount) Drops() int64 {
	if !a.Native {
		return 0
	}
	return a.Value.Mul(dropsPerXRP).IntPart()
}

func (a Amount) String() string {
	if a.Native {
		return a.Value.String() + " XRP"
	}
	return fmt.Sprintf("%s %s.%s", a.Value.String(), a.Currency, a.Issuer)
}

// UnmarshalJSON accepts both wire encodings.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var drops string
	if err := json.Unmarshal(data, &drops); err == nil {
		v, err := decimal.NewFromString(drops)
		if err != nil {
			return fmt.Errorf("invalid drops amount %q: %w", drops, err)
		}
		a.Currency = "XRP"
		a.Issuer = ""
		a.Value = v.Div(dropsPerXRP)
		a.Native = true
		return nil
	}

	var obj struct {
		Currency string `json:"currency"`
		Issuer   string `json:"issuer"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	v, err := decimal.NewFromString(obj.Value)
	if err != nil {
		return fmt.Errorf("invalid amount value %q: %w", obj.Value, err)
	}
	a.Currency = obj.Currency
	a.Issuer = obj.Issuer
	a.Value = v
	a.Native = false
	return nil
}

// MarshalJSON emits the wire encoding matching the amount kind.
func (a Amount) MarshalJSON() ([]byte, error) {
	if a.Native {
		return json.Marshal(a.Value.Mul(dropsPerXRP).Truncate(0).String())
	}
	return json.Marshal(map[string]string{
		"currency": a.Currency,
		"issuer":   a.Issuer,
		"value":    a.Value.String(),
	})
}

// Transaction is the subset of transaction fields the bot acts on.
type Transaction struct {
	Hash            string  `json:"hash"`
	TransactionType string  `json:"TransactionType"`
	Account         string  `json:"Account"`
	Destination     string  `json:"Destination,omitempty"`
	TakerGets       *Amount `json:"TakerGets,omitempty"`
	TakerPays       *Amount `json:"TakerPays,omitempty"`
	LimitAmount     *Amount `json:"LimitAmount,omitempty"`
	Sequence        uint32  `json:"Sequence,omitempty"`
	TicketSequence  uint32  `json:"TicketSequence,omitempty"`
}

// TxEvent is a single entry from the transaction stream.
type TxEvent struct {
	Type         string      `json:"type"`
	Validated    bool        `json:"validated"`
	EngineResult string      `json:"engine_result"`
	Transaction  Transaction `json:"transaction"`
}

// Offer is one order-book entry from a book_offers query.
type Offer struct {
	Account   string `json:"Account"`
	TakerGets Amount `json:"TakerGets"`
	TakerPays Amount `json:"TakerPays"`
	Quality   string `json:"quality,omitempty"`
}

// TrustLine is one entry from an account_lines query.
type TrustLine struct {
	Account  string `json:"account"`
	Currency string `json:"currency"`
	Balance  string `json:"balance"`
	Limit    string `json:"limit"`
}

// SubmitResult reports the outcome of a transaction submission.
type SubmitResult struct {
	EngineResult string
	Accepted     bool
	Hash         string

	// Delivered amounts when the submission sink reports them; zero otherwise.
	DeliveredXRP   decimal.Decimal
	DeliveredUnits decimal.Decimal
}

// AccountInfo is the subset of account_info the bot needs.
type AccountInfo struct {
	Account     string `json:"Account"`
	Sequence    uint32 `json:"Sequence"`
	Balance     string `json:"Balance"`
	TicketCount uint32 `json:"TicketCount"`
}

// ServerInfo is the subset of server_info the bot needs.
type ServerInfo struct {
	BuildVersion   string `json:"build_version"`
	ServerState    string `json:"server_state"`
	ValidatedSeq   uint32 `json:"validated_ledger_seq"`
	LoadFactor     int    `json:"load_factor"`
	CompleteLedger string `json:"complete_ledgers"`
}

// request is the wire frame for a command. The ID correlates the response.
type request struct {
	ID      int64          `json:"id"`
	Command string         `json:"command"`
	Params  map[string]any `json:"-"`
}

// MarshalJSON flattens the params into the frame alongside id and command.
func (r request) MarshalJSON() ([]byte, error) {
	frame := make(map[string]any, len(r.Params)+2)
	for k, v := range r.Params {
		frame[k] = v
	}
	frame["id"] = r.ID
	frame["command"] = r.Command
	return json.Marshal(frame)
}

// response is the wire frame for a command response or a stream message.
type response struct {
	ID           int64           `json:"id"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	ErrorCode    string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
	Result       json.RawMessage `json:"result"`
}
