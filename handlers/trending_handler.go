package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"challengesAPI/internal/types/trending"
)

type TrendingService interface {
	Run(ctx context.Context, now time.Time) (*trending.RunResponse, error)
	RunForWeek(ctx context.Context, week time.Time) (*trending.RunResponse, error)
	Eligibility(ctx context.Context, at time.Time) (*trending.EligibilityResponse, error)
}

type TrendingHandler struct {
	trendingService TrendingService
	logger          *slog.Logger
	now             func() time.Time
}

func NewTrendingHandler(trendingService TrendingService, logger *slog.Logger) *TrendingHandler {
	return &TrendingHandler{
		trendingService: trendingService,
		logger:          logger,
		now:             time.Now,
	}
}

// Eligibility reports whether trending challenges are due at ?at= (RFC3339),
// defaulting to the current time.
func (h *TrendingHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	at := h.now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'at' must be RFC3339")
			return
		}
		at = parsed
	}

	resp, err := h.trendingService.Eligibility(ctx, at)
	if err != nil {
		h.logger.Error("Failed to check trending eligibility", slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Failed to check trending eligibility")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// Run triggers the trending computation. With ?week=YYYY-MM-DD the window
// check is bypassed and that week is computed.
func (h *TrendingHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Minute)
	defer cancel()

	var (
		resp *trending.RunResponse
		err  error
	)
	if raw := r.URL.Query().Get("week"); raw != "" {
		week, perr := time.Parse(trending.WeekLayout, raw)
		if perr != nil {
			respondWithError(w, http.StatusBadRequest, "Query parameter 'week' must be YYYY-MM-DD")
			return
		}
		resp, err = h.trendingService.RunForWeek(ctx, week)
	} else {
		resp, err = h.trendingService.Run(ctx, h.now())
	}
	if err != nil {
		h.logger.Error("Failed to run trending challenges", slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Failed to run trending challenges")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}
