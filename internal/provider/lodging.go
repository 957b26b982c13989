package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/adityash8/proofport/internal/domain"
)

// LodgingClient creates free-cancellation reservations against a
// booking aggregator API.
type LodgingClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewLodgingClient(baseURL, apiKey string, client *http.Client) *LodgingClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &LodgingClient{baseURL: baseURL, apiKey: apiKey, http: client}
}

type reservationRequest struct {
	Destination string `json:"destination"`
	CheckIn     string `json:"check_in"`
	Guests      int    `json:"guests"`
	FreeCancel  bool   `json:"free_cancellation"`
}

type reservationResponse struct {
	ConfirmationNumber string `json:"confirmation_number"`
}

func (c *LodgingClient) RequestHold(ctx context.Context, trip domain.TripDetails) (string, error) {
	guests := trip.Passengers
	if guests < 1 {
		guests = 1
	}
	req := reservationRequest{
		Destination: trip.Destination,
		CheckIn:     trip.TravelDate.Format("2006-01-02"),
		Guests:      guests,
		FreeCancel:  true,
	}

	var resp reservationResponse
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/reservations", c.headers(), req, &resp); err != nil {
		return "", fmt.Errorf("lodging hold: %w", err)
	}
	if resp.ConfirmationNumber == "" {
		return "", fmt.Errorf("lodging hold: empty confirmation number")
	}
	return resp.ConfirmationNumber, nil
}

func (c *LodgingClient) CancelHold(ctx context.Context, confirmation string) error {
	endpoint := c.baseURL + "/reservations/" + url.PathEscape(confirmation) + "/cancel"
	if err := doJSON(ctx, c.http, http.MethodPost, endpoint, c.headers(), nil, nil); err != nil {
		return fmt.Errorf("lodging cancel: %w", err)
	}
	return nil
}

func (c *LodgingClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}
