/*
handlers.go - HTTP API handlers for the fee processor

PURPOSE:
  Exposes the fee processor and its token ledger via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Processing:
    POST   /api/process                 Finalize the last elapsed period (X-Caller header)
    GET    /api/processor               Owner, wallets, last processed period
    GET    /api/periods/{idx}           Whether a period was finalized
    GET    /api/distributions           Finalization history
    GET    /api/preview                 What a process call would do now

  Calendar / schedule:
    GET    /api/clock?ts=               Period and cycle of a timestamp
    GET    /api/schedule/split?amount=  Split of a pool given in whole tokens

  Tokens (development ledger):
    GET    /api/tokens/supply
    GET    /api/tokens/balances/{address}
    POST   /api/tokens/transfers

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, out-of-range timestamps
  - 403: Process policy rejected the caller
  - 409: Insufficient balance
  - 500: Internal and ledger errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/fee-engine/factory"
	"github.com/warp/fee-engine/generic"
)

// CallerHeader identifies who triggers processing.
const CallerHeader = "X-Caller"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Processor  *generic.FeeProcessor
	Deployment *factory.Deployment
	Clock      generic.Clock
}

// NewHandler creates a handler over a deployed processor.
func NewHandler(proc *generic.FeeProcessor, dep *factory.Deployment, clock generic.Clock) *Handler {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &Handler{Processor: proc, Deployment: dep, Clock: clock}
}

// =============================================================================
// PROCESSING HANDLERS
// =============================================================================

// Process triggers finalization of the most recently elapsed period.
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	caller := generic.Address(r.Header.Get(CallerHeader))

	out, err := h.Processor.Process(r.Context(), caller)
	if err != nil {
		writeDomainError(w, "Failed to process fees", err)
		return
	}

	status := http.StatusOK
	if out.Status == generic.OutcomeFinalized {
		status = http.StatusCreated
	}
	writeJSON(w, status, toOutcomeDTO(h.Deployment, out))
}

// GetProcessor returns the processor's configuration and progress.
func (h *Handler) GetProcessor(w http.ResponseWriter, r *http.Request) {
	last, err := h.Processor.LastPeriodExecIdx(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load processor state", err)
		return
	}
	year, err := h.Processor.YearIdx()
	if err != nil {
		writeDomainError(w, "Failed to compute year", err)
		return
	}

	cfg := h.Processor.Config()
	writeJSON(w, http.StatusOK, ProcessorDTO{
		DeploymentID:      h.Deployment.ID,
		Calendar:          h.Processor.Calendar().Name,
		Owner:             string(h.Processor.Owner()),
		Processor:         string(cfg.Self),
		OperationsWallet:  string(cfg.OperationsWallet),
		RewardWallet:      string(cfg.RewardWallet),
		Policy:            string(cfg.Policy),
		GracePeriod:       cfg.GracePeriod,
		LastPeriodExecIdx: uint64(last),
		PeriodIdx:         uint64(h.Processor.PeriodIdx()),
		YearIdx:           uint64(year),
	})
}

// GetPeriod reports whether a period was finalized.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.ParseUint(chi.URLParam(r, "idx"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid period index", err)
		return
	}

	start, err := h.Processor.Calendar().PeriodStart(generic.PeriodIdx(idx))
	if err != nil {
		writeDomainError(w, "Period out of range", err)
		return
	}
	processed, err := h.Processor.WeekProcessed(r.Context(), generic.PeriodIdx(idx))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load processor state", err)
		return
	}

	writeJSON(w, http.StatusOK, PeriodDTO{Period: idx, Start: uint64(start), Processed: processed})
}

// ListDistributions returns every finalization, oldest first.
func (h *Handler) ListDistributions(w http.ResponseWriter, r *http.Request) {
	ds, err := h.Processor.Distributions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list distributions", err)
		return
	}

	dtos := make([]DistributionDTO, len(ds))
	for i, d := range ds {
		dtos[i] = toDistributionDTO(h.Deployment, d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPreview returns what a process call would do right now.
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	pv, err := h.Processor.Preview(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to preview", err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewDTO(h.Deployment, pv))
}

// =============================================================================
// CALENDAR & SCHEDULE HANDLERS
// =============================================================================

// GetClock maps a timestamp (default: now) onto the deployment's calendar.
func (h *Handler) GetClock(w http.ResponseWriter, r *http.Request) {
	ts := generic.Now(h.Clock)
	if raw := r.URL.Query().Get("ts"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid timestamp", err)
			return
		}
		ts = generic.Timestamp(v)
	}

	cal := h.Processor.Calendar()
	idx := cal.PeriodIdx(ts)
	start, err := cal.PeriodStart(idx)
	if err != nil {
		writeDomainError(w, "Timestamp out of range", err)
		return
	}
	cycle, err := cal.Cycle(ts)
	if err != nil {
		writeDomainError(w, "Timestamp out of range", err)
		return
	}

	writeJSON(w, http.StatusOK, ClockDTO{
		Timestamp:       uint64(ts),
		Time:            ts.Time().Format(time.RFC3339),
		PeriodIdx:       uint64(idx),
		PeriodStart:     uint64(start),
		ElapsedInPeriod: cal.ElapsedInPeriod(ts),
		Cycle:           uint64(cycle),
	})
}

// GetSplit applies the fee schedule to an amount in whole tokens.
func (h *Handler) GetSplit(w http.ResponseWriter, r *http.Request) {
	whole, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	scaled := h.Deployment.ToBaseUnits(whole)
	pool := generic.NewAmount(scaled.Value.Floor(), scaled.Unit)
	split, err := h.Processor.Config().Schedule.Split(pool)
	if err != nil {
		writeDomainError(w, "Failed to split amount", err)
		return
	}
	writeJSON(w, http.StatusOK, toSplitDTO(h.Deployment, pool, split))
}

// =============================================================================
// TOKEN HANDLERS
// =============================================================================

func (h *Handler) GetSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := h.Processor.Ledger().TotalSupply(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read supply", err)
		return
	}
	writeJSON(w, http.StatusOK, toAmountDTO(h.Deployment, supply))
}

func (h *Handler) GetTokenBalance(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	bal, err := h.Processor.Ledger().BalanceOf(r.Context(), generic.Address(addr))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{Address: addr, Balance: toAmountDTO(h.Deployment, bal)})
}

// CreateTransfer moves or mints whole tokens on the development ledger.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.To == "" {
		writeError(w, http.StatusBadRequest, "to is required", nil)
		return
	}
	whole, err := decimal.NewFromString(req.Amount)
	if err != nil || !whole.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be a positive number", err)
		return
	}
	amount := h.Deployment.ToBaseUnits(whole)
	if !amount.Value.Equal(amount.Value.Floor()) {
		writeError(w, http.StatusBadRequest, "amount has more precision than the token", nil)
		return
	}

	ledger := h.Processor.Ledger()
	if req.From == "" {
		minter, ok := ledger.(generic.MintableLedger)
		if !ok {
			writeError(w, http.StatusBadRequest, "ledger does not support minting", nil)
			return
		}
		err = minter.Mint(r.Context(), generic.Address(req.To), amount)
	} else {
		err = ledger.Transfer(r.Context(), generic.Address(req.From), generic.Address(req.To), amount)
	}
	if err != nil {
		writeDomainError(w, "Transfer failed", err)
		return
	}

	bal, err := ledger.BalanceOf(r.Context(), generic.Address(req.To))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read balance", err)
		return
	}
	writeJSON(w, http.StatusCreated, BalanceDTO{Address: req.To, Balance: toAmountDTO(h.Deployment, bal)})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsUnauthorized(err):
		return http.StatusForbidden
	case errors.Is(err, generic.ErrLedger):
		return http.StatusInternalServerError
	case errors.Is(err, generic.ErrInsufficientBalance):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
