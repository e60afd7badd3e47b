package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/horizon/internal/domain"
	"github.com/aristath/horizon/internal/run"
	"github.com/aristath/horizon/internal/snapshots"
)

// AllocationHandlers serves allocation snapshots and run triggers.
type AllocationHandlers struct {
	repo         *snapshots.Repository
	orchestrator *run.Orchestrator
	log          zerolog.Logger
}

// NewAllocationHandlers creates allocation handlers.
func NewAllocationHandlers(repo *snapshots.Repository, orchestrator *run.Orchestrator, log zerolog.Logger) *AllocationHandlers {
	return &AllocationHandlers{
		repo:         repo,
		orchestrator: orchestrator,
		log:          log.With().Str("handler", "allocations").Logger(),
	}
}

// allocationResponse is the wire shape of one allocation result.
type allocationResponse struct {
	RunID          string                 `json:"run_id"`
	AsOfDate       string                 `json:"as_of_date"`
	Weights        map[string]float64     `json:"weights"`
	ObjectiveValue float64                `json:"objective_value"`
	SolverStatus   string                 `json:"solver_status"`
	Forecasts      map[string]forecastDTO `json:"forecasts"`
	Dropped        []droppedDTO           `json:"dropped,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

type forecastDTO struct {
	CurrentPrice   float64 `json:"current_price"`
	PredictedPrice float64 `json:"predicted_price"`
	LowerBound     float64 `json:"lower_bound"`
	UpperBound     float64 `json:"upper_bound"`
	ExpectedReturn float64 `json:"expected_return"`
}

type droppedDTO struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

func toResponse(result *domain.AllocationResult) allocationResponse {
	resp := allocationResponse{
		RunID:          result.RunID,
		AsOfDate:       result.AsOfDate.Format(domain.DateFormat),
		Weights:        result.Weights,
		ObjectiveValue: result.ObjectiveValue,
		SolverStatus:   result.SolverStatus,
		Forecasts:      make(map[string]forecastDTO, len(result.Forecasts)),
		CreatedAt:      result.CreatedAt,
	}
	for symbol, fc := range result.Forecasts {
		resp.Forecasts[symbol] = forecastDTO{
			CurrentPrice:   fc.CurrentPrice,
			PredictedPrice: fc.Predicted,
			LowerBound:     fc.Lower,
			UpperBound:     fc.Upper,
			ExpectedReturn: fc.ExpectedReturn(),
		}
	}
	for _, d := range result.Dropped {
		resp.Dropped = append(resp.Dropped, droppedDTO{Symbol: d.Symbol, Reason: d.Reason})
	}
	return resp
}

// ReadRange handles GET /api/allocations?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *AllocationHandlers) ReadRange(w http.ResponseWriter, r *http.Request) {
	start, err := parseDateParam(r, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseDateParam(r, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.repo.ReadRange(r.Context(), start, end)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read allocation range")
		writeError(w, http.StatusInternalServerError, "failed to read allocations")
		return
	}

	responses := make([]allocationResponse, 0, len(results))
	for _, result := range results {
		responses = append(responses, toResponse(result))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Latest handles GET /api/allocations/latest
func (h *AllocationHandlers) Latest(w http.ResponseWriter, r *http.Request) {
	result, err := h.repo.Latest(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read latest allocation")
		writeError(w, http.StatusInternalServerError, "failed to read latest allocation")
		return
	}
	if result == nil {
		writeError(w, http.StatusNotFound, "no allocations yet")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(result))
}

// runRequest is the body of POST /api/runs.
type runRequest struct {
	AsOfDate string `json:"as_of_date"`
}

// TriggerRun handles POST /api/runs — runs the pipeline for one date.
func (h *AllocationHandlers) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	asOf, err := time.Parse(domain.DateFormat, req.AsOfDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "as_of_date must be YYYY-MM-DD")
		return
	}

	result, err := h.orchestrator.RunDate(r.Context(), asOf)
	if err != nil {
		h.log.Error().Err(err).Str("as_of", req.AsOfDate).Msg("Run failed")
		writeError(w, statusForRunError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toResponse(result))
}

// backfillRequest is the body of POST /api/backfill.
type backfillRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// TriggerBackfill handles POST /api/backfill — replays a date range.
func (h *AllocationHandlers) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	start, err := time.Parse(domain.DateFormat, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(domain.DateFormat, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end must not precede start")
		return
	}

	report, err := h.orchestrator.Backfill(r.Context(), start, end)
	if err != nil {
		h.log.Error().Err(err).Msg("Backfill aborted")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// statusForRunError maps the error taxonomy onto HTTP statuses: input-shaped
// failures get 422, infrastructure failures 500.
func statusForRunError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInsufficientUniverse),
		errors.Is(err, domain.ErrInsufficientWindow),
		errors.Is(err, domain.ErrInfeasible):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Helpers

func parseDateParam(r *http.Request, name string) (time.Time, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return time.Time{}, errors.New(name + " query parameter is required")
	}
	t, err := time.Parse(domain.DateFormat, value)
	if err != nil {
		return time.Time{}, errors.New(name + " must be YYYY-MM-DD")
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
