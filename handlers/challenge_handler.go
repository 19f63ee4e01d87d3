package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"challengesAPI/internal/types/challenge"
	"challengesAPI/internal/types/event"
	"challengesAPI/services"

	"github.com/gorilla/mux"
)

const maxListenBody = 1 << 20

type ChallengeService interface {
	RecordListens(ctx context.Context, req *event.ListenRequest) (int, error)
	GetUserChallenges(ctx context.Context, userID int64) (*challenge.UserChallengesResponse, error)
}

type ChallengeHandler struct {
	challengeService ChallengeService
	logger           *slog.Logger
}

func NewChallengeHandler(challengeService ChallengeService, logger *slog.Logger) *ChallengeHandler {
	return &ChallengeHandler{
		challengeService: challengeService,
		logger:           logger,
	}
}

func (h *ChallengeHandler) RecordListens(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	var req event.ListenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxListenBody)).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Listens) == 0 {
		respondWithError(w, http.StatusBadRequest, "At least one listen is required")
		return
	}

	n, err := h.challengeService.RecordListens(ctx, &req)
	if errors.Is(err, services.ErrInvalidListen) {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to record listens", slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Failed to record listens")
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]int{"accepted": n})
}

func (h *ChallengeHandler) GetUserChallenges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, err := strconv.ParseInt(mux.Vars(r)["userID"], 10, 64)
	if err != nil || userID <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	resp, err := h.challengeService.GetUserChallenges(ctx, userID)
	if err != nil {
		h.logger.Error("Failed to get user challenges",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()))
		respondWithError(w, http.StatusInternalServerError, "Failed to get user challenges")
		return
	}

	respondWithJSON(w, http.StatusOK, resp)
}
