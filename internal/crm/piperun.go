package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// PiperunClient is the Piperun CRM HTTP client.
type PiperunClient struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
}

// NewPiperunClient creates a Piperun client with the given base URL, API
// token and request timeout.
func NewPiperunClient(baseURL, apiToken string, timeout time.Duration) (*PiperunClient, error) {
	if apiToken == "" {
		return nil, errors.New("piperun API token is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PiperunClient{
		baseURL:    baseURL,
		apiToken:   apiToken,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type piperunDealResponse struct {
	Data struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

// SyncDeal creates or updates the deal for one conversation.
func (c *PiperunClient) SyncDeal(ctx context.Context, req *DealSyncRequest) (int64, error) {
	if req.Phone == "" {
		return 0, errors.New("phone is required")
	}

	body := map[string]any{
		"phone":        req.Phone,
		"lead_data":    req.LeadData,
		"force_create": req.ForceCreate,
	}
	if req.OrcamentoID != "" {
		body["orcamento_id"] = req.OrcamentoID
	}
	if req.ConversationSummary != "" {
		body["conversation_summary"] = req.ConversationSummary
	}

	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal deal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/deals/sync", bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Token", c.apiToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("piperun request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, &StatusError{Integration: "piperun", Endpoint: "/deals/sync", Code: resp.StatusCode}
	}

	var dealResp piperunDealResponse
	if err := json.NewDecoder(resp.Body).Decode(&dealResp); err != nil {
		return 0, fmt.Errorf("decode piperun response: %w", err)
	}
	if dealResp.Data.ID == 0 {
		return 0, errors.New("piperun response carried no deal id")
	}
	return dealResp.Data.ID, nil
}
