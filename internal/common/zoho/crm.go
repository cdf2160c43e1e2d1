package zoho

import (
	"context"
	"fmt"
	"strings"
	"time"

	httpclient "lead-funnel/internal/common/http"
)

const DefaultBaseURL = "https://www.zohoapis.com/crm/v3"

type CRMClient struct {
	oauthToken string
	baseURL    string
	httpClient *httpclient.Client
}

// Lead is the Zoho CRM Leads module record created for each new submission.
type Lead struct {
	Email       string `json:"Email"`
	FirstName   string `json:"First_Name,omitempty"`
	LastName    string `json:"Last_Name"`
	Phone       string `json:"Phone,omitempty"`
	State       string `json:"State,omitempty"`
	Source      string `json:"Lead_Source,omitempty"`
	Description string `json:"Description,omitempty"`
}

type createResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"data"`
}

func NewCRMClient(baseURL, oauthToken string, timeout time.Duration) *CRMClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CRMClient{
		oauthToken: oauthToken,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpclient.NewClient(timeout),
	}
}

// SplitName splits a full name into Zoho's first/last name fields. Last_Name
// is mandatory in Zoho, so a single token lands there.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return "", parts[0]
	}
	return strings.Join(parts[:len(parts)-1], " "), parts[len(parts)-1]
}

// CreateLead inserts lead and returns the Zoho record id.
func (c *CRMClient) CreateLead(ctx context.Context, lead *Lead) (string, error) {
	payload := map[string]interface{}{
		"data":    []Lead{*lead},
		"trigger": []string{"workflow"},
	}
	headers := map[string]string{"Authorization": "Zoho-oauthtoken " + c.oauthToken}

	var resp createResponse
	if err := c.httpClient.PostJSON(ctx, c.baseURL+"/Leads", headers, payload, &resp); err != nil {
		return "", fmt.Errorf("failed to create lead: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", fmt.Errorf("no data in response")
	}
	// DUPLICATE_DATA means an earlier delivery of the same event already landed.
	if resp.Data[0].Code == "DUPLICATE_DATA" {
		return resp.Data[0].Details.ID, nil
	}
	if resp.Data[0].Status != "success" {
		return "", fmt.Errorf("lead creation failed: %s", resp.Data[0].Message)
	}
	return resp.Data[0].Details.ID, nil
}
