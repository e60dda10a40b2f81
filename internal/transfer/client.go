// Package transfer implements the funds-transfer collaborator as an HTTP
// client for the signing daemon that actually talks to the chain. The ledger
// treats the daemon as opaque: it hands over sender credentials and
// (destination, amount, token) tuples and gets back a transaction reference
// or a failure.
package transfer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/osmowager/wagerbot/internal/domain"
)

const (
	// requestTimeout bounds every daemon call.
	requestTimeout = 30 * time.Second

	// maxAttempts bounds retries on transport-level failures. Business
	// failures (a well-formed response with success=false) are never
	// retried: the daemon has already decided.
	maxAttempts = 3

	// wireDigits is the fractional precision amounts are rendered to on the
	// wire. Sub-digit remainders round to the custodian.
	wireDigits = 6
)

// ClientConfig holds the daemon endpoint and the token-to-denom table.
type ClientConfig struct {
	BaseURL string

	// Denoms maps display token symbols to on-chain denominations. Tokens
	// missing from the table fall back to "u" + token.
	Denoms map[string]string
}

// Client is the HTTP domain.TransferService.
type Client struct {
	baseURL    string
	denoms     map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for the given daemon endpoint.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		denoms:  cfg.Denoms,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger.With(slog.String("component", "transfer")),
	}
}

// Denom returns the on-chain denomination for a display token symbol.
func (c *Client) Denom(token string) string {
	if d, ok := c.denoms[strings.ToLower(token)]; ok {
		return d
	}
	return "u" + strings.ToLower(token)
}

type sendRequest struct {
	SenderMnemonic   string `json:"sender_mnemonic"`
	RecipientAddress string `json:"recipient_address"`
	Amount           string `json:"amount"`
	Token            string `json:"token"`
	Memo             string `json:"memo"`
}

type wireRecipient struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Token   string `json:"token"`
}

type multisendRequest struct {
	SenderMnemonic string          `json:"sender_mnemonic"`
	Recipients     []wireRecipient `json:"recipients"`
	Memo           string          `json:"memo"`
}

type balanceRequest struct {
	Address string `json:"address"`
	Denom   string `json:"denom"`
}

type daemonResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	TxHash  string `json:"tx_hash"`
	Height  int64  `json:"height"`
	GasUsed string `json:"gas_used"`
	FeePaid string `json:"fee_paid"`

	FailedRecipients []struct {
		Address string `json:"address"`
		Error   string `json:"error"`
	} `json:"failed_recipients"`

	Balance *struct {
		Denom  string `json:"denom"`
		Amount string `json:"amount"`
	} `json:"balance"`
	Formatted string `json:"formatted"`
}

// Transfer moves amount of token from the credentialed account to a single
// destination. A returned error means no funds moved.
func (c *Client) Transfer(ctx context.Context, from domain.Credential, to string, amount decimal.Decimal, token, memo string) (domain.TransferResult, error) {
	req := sendRequest{
		SenderMnemonic:   string(from),
		RecipientAddress: to,
		Amount:           amount.StringFixed(wireDigits),
		Token:            strings.ToLower(token),
		Memo:             memo,
	}
	resp, err := c.post(ctx, "send", req)
	if err != nil {
		return domain.TransferResult{}, err
	}
	return domain.TransferResult{
		TxRef:   resp.TxHash,
		Height:  resp.Height,
		GasUsed: resp.GasUsed,
		FeePaid: resp.FeePaid,
	}, nil
}

// BatchTransfer moves funds to every recipient in one atomic multisend. The
// daemon may report per-recipient failures for a batch that still committed;
// those come back in BatchResult.Failed. A returned error means the batch as
// a whole did not commit and no funds moved.
func (c *Client) BatchTransfer(ctx context.Context, from domain.Credential, recipients []domain.Recipient, memo string) (domain.BatchResult, error) {
	if len(recipients) == 0 {
		return domain.BatchResult{}, domain.NewFault(domain.ErrValidation, "multisend with no recipients")
	}

	req := multisendRequest{
		SenderMnemonic: string(from),
		Memo:           memo,
	}
	for _, r := range recipients {
		req.Recipients = append(req.Recipients, wireRecipient{
			Address: r.Address,
			Amount:  r.Amount.StringFixed(wireDigits),
			Token:   strings.ToLower(r.Token),
		})
	}

	resp, err := c.post(ctx, "multisend", req)
	if err != nil {
		return domain.BatchResult{}, err
	}

	out := domain.BatchResult{TxRef: resp.TxHash, Height: resp.Height}
	for _, f := range resp.FailedRecipients {
		out.Failed = append(out.Failed, domain.RecipientFailure{
			Address: f.Address,
			Reason:  f.Error,
		})
	}
	return out, nil
}

// Balance returns the account balance for a token in display units. The
// daemon reports micro-units; conversion happens here so all amounts inside
// the ledger share one scale.
func (c *Client) Balance(ctx context.Context, address, token string) (domain.Balance, error) {
	resp, err := c.post(ctx, "balance", balanceRequest{
		Address: address,
		Denom:   c.Denom(token),
	})
	if err != nil {
		return domain.Balance{}, err
	}
	if resp.Balance == nil {
		return domain.Balance{}, domain.NewFault(domain.ErrTransferFailed, "balance response missing body")
	}

	micro, err := decimal.NewFromString(resp.Balance.Amount)
	if err != nil {
		return domain.Balance{}, domain.NewFault(domain.ErrTransferFailed, "unparseable balance amount %q", resp.Balance.Amount)
	}
	return domain.Balance{
		Denom:     resp.Balance.Denom,
		Amount:    micro.Shift(-6),
		Formatted: resp.Formatted,
	}, nil
}

// HealthCheck probes the daemon's health endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("transfer: build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transfer: health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.NewFault(domain.ErrTransferFailed, "health check status %d", resp.StatusCode)
	}
	return nil
}

// post sends a JSON request to the daemon, retrying transport-level failures
// (connection errors, 5xx) with exponential backoff. Responses the daemon
// produced itself are final: a success=false body is returned as an
// ErrTransferFailed fault without retry, since re-sending a transfer whose
// outcome the daemon already decided risks double-moving funds.
func (c *Client) post(ctx context.Context, endpoint string, payload any) (*daemonResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("transfer: marshal %s request: %w", endpoint, err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<attempt) * time.Second
			c.logger.WarnContext(ctx, "retrying transfer daemon request",
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", backoff),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("transfer: %s: %w", endpoint, ctx.Err())
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("transfer: build %s request: %w", endpoint, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("daemon status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, domain.NewFault(domain.ErrTransferFailed, "%s: daemon status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}

		var decoded daemonResponse
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return nil, domain.NewFault(domain.ErrTransferFailed, "%s: unparseable daemon response: %v", endpoint, err)
		}
		if !decoded.Success {
			reason := decoded.Error
			if reason == "" {
				reason = "unknown transaction error"
			}
			return nil, domain.NewFault(domain.ErrTransferFailed, "%s: %s", endpoint, reason)
		}
		return &decoded, nil
	}

	return nil, domain.NewFault(domain.ErrTransferFailed, "%s: daemon unreachable after %d attempts: %v", endpoint, maxAttempts, lastErr)
}

// Compile-time interface check.
var _ domain.TransferService = (*Client)(nil)
