package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pnpbots/pnptv-payments/app/models"
	"github.com/pnpbots/pnptv-payments/internal/pkg/env"
)

const defaultDaimoAPIBaseURL = "https://pay.daimo.com/api"

// DaimoStatusClient queries Daimo Pay's payment-by-id endpoint. The API uses
// a static key, so no token cache is involved; Daimo exposes a single
// authoritative source.
type DaimoStatusClient struct {
	APIKey     string
	APIBaseURL string
	HTTPClient *http.Client
}

// NewDaimoStatusClientFromEnv builds the client from DAIMO_* settings.
func NewDaimoStatusClientFromEnv() *DaimoStatusClient {
	return &DaimoStatusClient{
		APIKey:     strings.TrimSpace(env.GetEnv("DAIMO_API_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("DAIMO_API_BASE_URL", defaultDaimoAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *DaimoStatusClient) Provider() string {
	return models.PaymentProviderDaimo
}

func (c *DaimoStatusClient) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	url := fmt.Sprintf("%s/payments/%s", c.APIBaseURL, reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("daimo payment lookup failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var out DaimoPayment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("daimo payment response: %w", err)
	}

	result := &StatusResult{
		State:     NormalizeState("", out.Status),
		RawStatus: out.Status,
		Reference: out.ID,
		Source:    "daimo:payments",
	}
	if out.Source != nil {
		result.TransactionID = out.Source.TxHash
	}
	if out.Destination != nil {
		result.Amount = out.Destination.AmountUnits
		result.Currency = out.Destination.TokenSymbol
	}
	return result, nil
}
