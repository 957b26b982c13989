package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/adityash8/proofport/internal/domain"
)

const duffelVersion = "v1"

// FlightClient requests airline holds from a Duffel-style API.
type FlightClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewFlightClient(baseURL, apiKey string, client *http.Client) *FlightClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &FlightClient{baseURL: baseURL, apiKey: apiKey, http: client}
}

type flightSlice struct {
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`
}

type flightPassenger struct {
	Type string `json:"type"`
}

type offerRequest struct {
	Slices     []flightSlice     `json:"slices"`
	Passengers []flightPassenger `json:"passengers"`
	CabinClass string            `json:"cabin_class"`
}

type offerResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (c *FlightClient) RequestHold(ctx context.Context, trip domain.TripDetails) (string, error) {
	passengers := trip.Passengers
	if passengers < 1 {
		passengers = 1
	}
	req := offerRequest{
		Slices: []flightSlice{{
			Origin:        trip.Origin,
			Destination:   trip.Destination,
			DepartureDate: trip.TravelDate.Format("2006-01-02"),
		}},
		Passengers: make([]flightPassenger, passengers),
		CabinClass: "economy",
	}
	for i := range req.Passengers {
		req.Passengers[i] = flightPassenger{Type: "adult"}
	}

	var resp offerResponse
	if err := doJSON(ctx, c.http, http.MethodPost, c.baseURL+"/air/offer_requests", c.headers(), req, &resp); err != nil {
		return "", fmt.Errorf("flight hold: %w", err)
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("flight hold: empty booking reference")
	}
	return resp.Data.ID, nil
}

func (c *FlightClient) CancelHold(ctx context.Context, confirmation string) error {
	endpoint := c.baseURL + "/air/orders/" + url.PathEscape(confirmation) + "/actions/cancel"
	if err := doJSON(ctx, c.http, http.MethodPost, endpoint, c.headers(), nil, nil); err != nil {
		return fmt.Errorf("flight cancel: %w", err)
	}
	return nil
}

func (c *FlightClient) headers() map[string]string {
	return map[string]string{
		"Authorization":  "Bearer " + c.apiKey,
		"Duffel-Version": duffelVersion,
	}
}
