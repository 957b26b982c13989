package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/adityash8/proofport/internal/domain"
)

// InsuranceClient issues travel insurance certificates. A certificate
// behaves like any other hold: it carries a policy number and can be
// voided while the order is alive.
type InsuranceClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewInsuranceClient(baseURL, apiKey string, client *http.Client) *InsuranceClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &InsuranceClient{baseURL: baseURL, apiKey: apiKey, http: client}
}

type policyRequest struct {
	Destination string `json:"destination"`
	StartDate   string `json:"start_date"`
	Travelers   int    `json:"travelers"`
}

type policyResponse struct {
	PolicyNumber string `json:"policy_number"`
}

func (c *InsuranceClient) RequestHold(ctx context.Context, trip domain.TripDetails) (string, error) {
	travelers := trip.Passengers
	if travelers < 1 {
		travelers = 1
	}
	req := policyRequest{
		Destination: trip.Destination,
		StartDate:   trip.TravelDate.Format("2006-01-02"),
		Travelers:   travelers,
	}

	var resp policyResponse
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/policies", c.headers(), req, &resp); err != nil {
		return "", fmt.Errorf("insurance certificate: %w", err)
	}
	if resp.PolicyNumber == "" {
		return "", fmt.Errorf("insurance certificate: empty policy number")
	}
	return resp.PolicyNumber, nil
}

func (c *InsuranceClient) CancelHold(ctx context.Context, confirmation string) error {
	endpoint := c.baseURL + "/policies/" + url.PathEscape(confirmation) + "/void"
	if err := doJSON(ctx, c.http, http.MethodPost, endpoint, c.headers(), nil, nil); err != nil {
		return fmt.Errorf("insurance void: %w", err)
	}
	return nil
}

func (c *InsuranceClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}
