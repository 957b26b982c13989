package http

import (
	"context"
	"net/http"

	"github.com/adityash8/proofport/internal/app"
)

// SweepRunner triggers one expiry sweep pass.
type SweepRunner interface {
	Run(ctx context.Context) (app.SweepReport, error)
}

type sweepFailureResponse struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

type sweepResponse struct {
	Cancelled int                    `json:"cancelled"`
	Warned    int                    `json:"warned"`
	Failures  []sweepFailureResponse `json:"failures,omitempty"`
}

// HandleRunSweep runs a sweep on demand. The periodic loop covers normal
// operation; this exists for operators and tests.
func HandleRunSweep(svc SweepRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		report, err := svc.Run(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}

		resp := sweepResponse{Cancelled: report.Cancelled, Warned: report.Warned}
		for _, f := range report.Failures {
			resp.Failures = append(resp.Failures, sweepFailureResponse{OrderID: f.OrderID, Error: f.Err.Error()})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
