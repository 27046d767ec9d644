package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/pnpbots/pnptv-payments/app/models"
	"github.com/pnpbots/pnptv-payments/internal/pkg/env"
)

const (
	defaultEpaycoLoginURL      = "https://apify.epayco.co/login"
	defaultEpaycoDetailURL     = "https://apify.epayco.co/transaction/detail"
	defaultEpaycoValidationURL = "https://secure.epayco.co/validation/v1/reference"

	// epaycoTokenLifetime is how long apify tokens stay valid; the cache
	// renews slightly earlier.
	epaycoTokenLifetime = 10 * time.Minute
)

var errEpaycoUnauthorized = errors.New("epayco: unauthorized")

// EpaycoStatusClient queries ePayco's authoritative transaction status. Two
// sources are used: the apify detail endpoint (primary, token auth) and the
// public validation endpoint (secondary). Recovery prefers whichever reports
// a terminal, non-pending state.
type EpaycoStatusClient struct {
	PublicKey  string
	PrivateKey string

	LoginURL      string
	DetailURL     string
	ValidationURL string

	HTTPClient *http.Client
	Tokens     *TokenCache
}

// NewEpaycoStatusClientFromEnv builds the client from EPAYCO_* settings.
func NewEpaycoStatusClientFromEnv() *EpaycoStatusClient {
	return &EpaycoStatusClient{
		PublicKey:     strings.TrimSpace(env.GetEnv("EPAYCO_PUBLIC_KEY", "")),
		PrivateKey:    strings.TrimSpace(env.GetEnv("EPAYCO_PRIVATE_KEY", "")),
		LoginURL:      strings.TrimSpace(env.GetEnv("EPAYCO_LOGIN_URL", defaultEpaycoLoginURL)),
		DetailURL:     strings.TrimSpace(env.GetEnv("EPAYCO_DETAIL_URL", defaultEpaycoDetailURL)),
		ValidationURL: strings.TrimSpace(env.GetEnv("EPAYCO_VALIDATION_URL", defaultEpaycoValidationURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		Tokens: NewTokenCache(),
	}
}

func (c *EpaycoStatusClient) Provider() string {
	return models.PaymentProviderEpayco
}

// CheckStatus queries both sources and merges the answers. A disagreement
// between sources is logged loudly but the terminal answer wins.
func (c *EpaycoStatusClient) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	primary, perr := c.detail(ctx, reference)
	secondary, serr := c.validation(ctx, reference)

	if perr != nil && serr != nil {
		return nil, fmt.Errorf("epayco status check failed: detail: %v; validation: %w", perr, serr)
	}
	if perr != nil {
		return secondary, nil
	}
	if serr != nil {
		return primary, nil
	}

	if primary.State != secondary.State {
		log.Warnf("[Recovery] epayco sources disagree for %s: detail=%s validation=%s",
			reference, primary.State, secondary.State)
	}
	if primary.State.IsTerminal() && primary.State != StatePending {
		return primary, nil
	}
	if secondary.State.IsTerminal() && secondary.State != StatePending {
		return secondary, nil
	}
	return primary, nil
}

// login exchanges the merchant keypair for a short-lived apify bearer token.
func (c *EpaycoStatusClient) login(ctx context.Context) (string, time.Time, error) {
	if c.PublicKey == "" || c.PrivateKey == "" {
		return "", time.Time{}, errors.New("EPAYCO_PUBLIC_KEY/EPAYCO_PRIVATE_KEY are not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.LoginURL, nil)
	if err != nil {
		return "", time.Time{}, err
	}
	req.SetBasicAuth(c.PublicKey, c.PrivateKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, fmt.Errorf("epayco login failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", time.Time{}, err
	}
	if strings.TrimSpace(out.Token) == "" {
		return "", time.Time{}, errors.New("epayco login returned empty token")
	}
	return out.Token, time.Now().Add(epaycoTokenLifetime), nil
}

// detail queries the apify transaction endpoint, refreshing the token once on
// a 401.
func (c *EpaycoStatusClient) detail(ctx context.Context, reference string) (*StatusResult, error) {
	result, err := c.detailOnce(ctx, reference)
	if errors.Is(err, errEpaycoUnauthorized) {
		c.Tokens.Invalidate()
		result, err = c.detailOnce(ctx, reference)
	}
	return result, err
}

func (c *EpaycoStatusClient) detailOnce(ctx context.Context, reference string) (*StatusResult, error) {
	token, err := c.Tokens.Get(ctx, c.login)
	if err != nil {
		return nil, err
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"filter": map[string]string{"referencePayco": reference},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.DetailURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, errEpaycoUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("epayco detail failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Data epaycoTxData `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("epayco detail response: %w", err)
	}
	return out.Data.statusResult("epayco:detail"), nil
}

// epaycoTxData is the transaction shape both status endpoints share.
type epaycoTxData struct {
	RefPayco      json.Number `json:"x_ref_payco"`
	TransactionID json.Number `json:"x_transaction_id"`
	StateText     string      `json:"x_transaction_state"`
	StateCode     json.Number `json:"x_cod_transaction_state"`
	Amount        json.Number `json:"x_amount"`
	Currency      string      `json:"x_currency_code"`
}

func (d epaycoTxData) statusResult(source string) *StatusResult {
	code := d.StateCode.String()
	return &StatusResult{
		State:         NormalizeState(code, d.StateText),
		RawStatus:     d.StateText,
		RawCode:       code,
		Amount:        d.Amount.String(),
		Currency:      d.Currency,
		Reference:     d.RefPayco.String(),
		TransactionID: d.TransactionID.String(),
		Source:        source,
	}
}

// validation queries the public reference validation endpoint.
func (c *EpaycoStatusClient) validation(ctx context.Context, reference string) (*StatusResult, error) {
	url := strings.TrimRight(c.ValidationURL, "/") + "/" + reference
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("epayco validation failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out struct {
		Data epaycoTxData `json:"data"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("epayco validation response: %w", err)
	}
	return out.Data.statusResult("epayco:validation"), nil
}
