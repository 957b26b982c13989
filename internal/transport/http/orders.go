package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/adityash8/proofport/internal/app"
	"github.com/adityash8/proofport/internal/domain"
	"github.com/adityash8/proofport/internal/risk"
)

// OrderSubmitter is the minimal interface needed by the submission endpoint.
type OrderSubmitter interface {
	SubmitOrder(ctx context.Context, in app.SubmitOrderInput) (app.SubmitOrderResult, error)
}

// OrderReader serves the read endpoints.
type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListActive(ctx context.Context) ([]domain.Order, error)
}

// OrderExtender is the minimal interface needed by the extension endpoint.
type OrderExtender interface {
	ExtendOrder(ctx context.Context, orderID string, addedDays int) (app.ExtendOrderResult, error)
}

// HandleOrders routes POST (submit) and GET (list active) on /orders.
func HandleOrders(submitter OrderSubmitter, reader OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleSubmitOrder(submitter, w, r)
		case http.MethodGet:
			handleListActive(reader, w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		}
	}
}

// HandleOrderByID routes GET /orders/{id} and POST /orders/{id}/extend.
func HandleOrderByID(reader OrderReader, extender OrderExtender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, action, ok := parseOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		switch {
		case action == "" && r.Method == http.MethodGet:
			handleGetOrder(reader, w, r, id)
		case action == "extend" && r.Method == http.MethodPost:
			handleExtendOrder(extender, w, r, id)
		case action == "" || action == "extend":
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	}
}

type tripRequest struct {
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	TravelDate  time.Time `json:"travel_date"`
	Passengers  int       `json:"passengers"`
	VisaType    string    `json:"visa_type"`
}

type deviceRequest struct {
	VisitorID  string  `json:"visitor_id"`
	Confidence float64 `json:"confidence"`
}

type submitOrderRequest struct {
	Owner   string         `json:"owner"`
	Bundle  []string       `json:"bundle"`
	Trip    tripRequest    `json:"trip"`
	TTLDays int            `json:"ttl_days"`
	Email   string         `json:"email"`
	Amount  float64        `json:"amount"`
	Country string         `json:"country"`
	IP      string         `json:"ip"`
	Device  *deviceRequest `json:"device"`
}

func handleSubmitOrder(svc OrderSubmitter, w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	in := app.SubmitOrderInput{
		Owner: req.Owner,
		Trip: domain.TripDetails{
			Origin:      req.Trip.Origin,
			Destination: req.Trip.Destination,
			TravelDate:  req.Trip.TravelDate,
			Passengers:  req.Trip.Passengers,
			VisaType:    req.Trip.VisaType,
		},
		TTLDays: req.TTLDays,
		Email:   req.Email,
		Amount:  req.Amount,
		Country: req.Country,
		IP:      req.IP,
	}
	for _, kind := range req.Bundle {
		in.Bundle = append(in.Bundle, domain.ProductKind(kind))
	}
	if req.Device != nil {
		in.Device = &risk.DeviceSignal{
			VisitorID:  req.Device.VisitorID,
			Confidence: req.Device.Confidence,
		}
	}

	res, err := svc.SubmitOrder(r.Context(), in)
	if err != nil {
		writeSubmitError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, orderResponseFrom(res.Order, res.FailedKinds))
}

func writeSubmitError(w http.ResponseWriter, err error) {
	var blocked *domain.RiskBlockedError
	if errors.As(err, &blocked) {
		writeErrorReasons(w, http.StatusUnprocessableEntity, codeRiskBlocked, err.Error(), blocked.Assessment.Reasons)
		return
	}
	var provider *domain.ProviderFailureError
	if errors.As(err, &provider) {
		writeErrorReasons(w, http.StatusBadGateway, codeProviderFailure, err.Error(), kindsToStrings(provider.Failed))
		return
	}

	switch {
	case errors.Is(err, domain.ErrOwnerRequired):
		writeError(w, http.StatusBadRequest, codeOwnerRequired, err.Error())
	case errors.Is(err, domain.ErrEmptyBundle):
		writeError(w, http.StatusBadRequest, codeEmptyBundle, err.Error())
	case errors.Is(err, domain.ErrUnknownProduct):
		writeError(w, http.StatusBadRequest, codeUnknownProduct, err.Error())
	case errors.Is(err, domain.ErrInvalidTTL):
		writeError(w, http.StatusBadRequest, codeInvalidTTL, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type extendOrderRequest struct {
	AddedDays int `json:"added_days"`
}

func handleExtendOrder(svc OrderExtender, w http.ResponseWriter, r *http.Request, id string) {
	var req extendOrderRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return
	}

	res, err := svc.ExtendOrder(r.Context(), id, req.AddedDays)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidExtension):
			writeError(w, http.StatusBadRequest, codeInvalidExtension, err.Error())
		case errors.Is(err, domain.ErrInvalidID):
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
		case errors.Is(err, domain.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
		case errors.Is(err, domain.ErrInvalidState):
			writeError(w, http.StatusConflict, codeOrderTerminal, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, orderResponseFrom(res.Order, res.FailedKinds))
}

func handleGetOrder(svc OrderReader, w http.ResponseWriter, r *http.Request, id string) {
	order, err := svc.GetOrder(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidID):
			writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
		case errors.Is(err, domain.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, orderResponseFrom(order, nil))
}

func handleListActive(svc OrderReader, w http.ResponseWriter, r *http.Request) {
	orders, err := svc.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	out := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderResponseFrom(order, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func parseOrderPath(path string) (id, action string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] != "orders" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		return parts[1], parts[2], true
	}
	return parts[1], "", true
}

type riskResponse struct {
	Score   float64  `json:"score"`
	Level   string   `json:"level"`
	Reasons []string `json:"reasons"`
	Blocked bool     `json:"blocked"`
}

type orderResponse struct {
	ID            string            `json:"id"`
	Owner         string            `json:"owner"`
	Bundle        []string          `json:"bundle"`
	Confirmations map[string]string `json:"confirmations"`
	FailedKinds   []string          `json:"failed_kinds,omitempty"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
	Risk          riskResponse      `json:"risk"`
	Trip          tripRequest       `json:"trip"`
	CancelReason  string            `json:"cancel_reason,omitempty"`
}

func orderResponseFrom(order domain.Order, failed []domain.ProductKind) orderResponse {
	confirmations := make(map[string]string, len(order.Confirmations))
	for kind, confirmation := range order.Confirmations {
		confirmations[string(kind)] = confirmation
	}
	return orderResponse{
		ID:            order.ID,
		Owner:         order.Owner,
		Bundle:        kindsToStrings(order.Bundle),
		Confirmations: confirmations,
		FailedKinds:   kindsToStrings(failed),
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt,
		ExpiresAt:     order.ExpiresAt,
		Risk: riskResponse{
			Score:   order.Risk.Score,
			Level:   string(order.Risk.Level),
			Reasons: order.Risk.Reasons,
			Blocked: order.Risk.Block,
		},
		Trip: tripRequest{
			Origin:      order.Trip.Origin,
			Destination: order.Trip.Destination,
			TravelDate:  order.Trip.TravelDate,
			Passengers:  order.Trip.Passengers,
			VisaType:    order.Trip.VisaType,
		},
		CancelReason: order.CancelReason,
	}
}

func kindsToStrings(kinds []domain.ProductKind) []string {
	if len(kinds) == 0 {
		return nil
	}
	out := make([]string, len(kinds))
	for i, kind := range kinds {
		out[i] = string(kind)
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
