package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
	httpinfra "voice-journal/internal/infra/http"
	"voice-journal/internal/usecase/journal"
	"voice-journal/internal/usecase/profile"
)

const (
	maxBodyBytes = 1 << 20

	codeInsufficientCredits = "insufficient-credits"
	codeInvalidInput        = "invalid-input"
	codeNotFound            = "not-found"
	codeUnauthorized        = "unauthorized"
	codeInternal            = "internal"
)

// JournalService операции с записями.
type JournalService interface {
	Create(ctx context.Context, userID, text, date string) (domain.CreateResult, error)
	Get(ctx context.Context, userID, entryID string) (domain.JournalEntry, error)
	GetByDate(ctx context.Context, userID, date string) (domain.JournalEntry, error)
	Credits(ctx context.Context, userID string) (int, error)
	HandleWebhook(ctx context.Context, payload journal.WebhookPayload) (journal.WebhookResult, error)
}

// NarrationService операции с озвучкой и недельными обзорами.
type NarrationService interface {
	GenerateWeekly(ctx context.Context, userID, endDate string) (domain.WeeklyResult, error)
	NarrateDay(ctx context.Context, userID, date string) (domain.NarrationResult, error)
	GetWeekly(ctx context.Context, userID, weekStart string) (domain.WeeklySummary, error)
	ListWeekly(ctx context.Context, userID string) ([]domain.WeeklySummary, error)
	Audio(ctx context.Context, userID, bucket, path string) ([]byte, string, error)
}

// ProfileService операции с профилем.
type ProfileService interface {
	Get(ctx context.Context, userID string) (domain.Profile, error)
	Update(ctx context.Context, userID string, upd profile.Update) (domain.Profile, error)
}

// Handler HTTP-обработчики API дневника.
type Handler struct {
	journal       JournalService
	narration     NarrationService
	profiles      ProfileService
	auth          *httpinfra.Authenticator
	webhookSecret string
	log           zerolog.Logger
}

// NewHandler создаёт обработчики. Пустой webhookSecret отключает проверку заголовка.
func NewHandler(journalSvc JournalService, narrationSvc NarrationService, profileSvc ProfileService, auth *httpinfra.Authenticator, webhookSecret string, log zerolog.Logger) *Handler {
	return &Handler{
		journal:       journalSvc,
		narration:     narrationSvc,
		profiles:      profileSvc,
		auth:          auth,
		webhookSecret: webhookSecret,
		log:           log.With().Str("component", "api").Logger(),
	}
}

// Mount регистрирует маршруты.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api/v1", func(protected chi.Router) {
		protected.Use(h.auth.Middleware)

		protected.Post("/journal", h.createJournal)
		protected.Get("/journal", h.getJournalByDate)
		protected.Post("/journal/tts", h.narrateDay)
		protected.Get("/journal/{id}", h.getJournal)
		protected.Get("/credits", h.getCredits)
		protected.Get("/profile", h.getProfile)
		protected.Put("/profile", h.updateProfile)
		protected.Post("/weekly", h.generateWeekly)
		protected.Get("/weekly", h.getWeekly)
		protected.Get("/audio/{bucket}/*", h.getAudio)
	})
	r.Post("/hooks/summarize", h.summarizeWebhook)
}

type createJournalRequest struct {
	Text string `json:"text"`
	Date string `json:"date"`
}

type creditsResponse struct {
	Credits int `json:"credits"`
}

type weeklyRequest struct {
	EndDate string `json:"end_date"`
}

type weeklyListResponse struct {
	Summaries []domain.WeeklySummary `json:"summaries"`
}

type narrateRequest struct {
	Date string `json:"date"`
}

func (h *Handler) createJournal(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)
	var req createJournalRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.journal.Create(r.Context(), userID, req.Text, req.Date)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) getJournalByDate(w http.ResponseWriter, r *http.Request) {
	entry, err := h.journal.GetByDate(r.Context(), mustUserID(r), r.URL.Query().Get("date"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	entry, err := h.journal.Get(r.Context(), mustUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) getCredits(w http.ResponseWriter, r *http.Request) {
	credits, err := h.journal.Credits(r.Context(), mustUserID(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, creditsResponse{Credits: credits})
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Get(r.Context(), mustUserID(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd profile.Update
	if !decode(w, r, &upd) {
		return
	}
	p, err := h.profiles.Update(r.Context(), mustUserID(r), upd)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) generateWeekly(w http.ResponseWriter, r *http.Request) {
	var req weeklyRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	res, err := h.narration.GenerateWeekly(r.Context(), mustUserID(r), req.EndDate)
	if err != nil {
		h.writeFunctionErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) getWeekly(w http.ResponseWriter, r *http.Request) {
	userID := mustUserID(r)
	if weekStart := r.URL.Query().Get("week_start_date"); weekStart != "" {
		summary, err := h.narration.GetWeekly(r.Context(), userID, weekStart)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		httpinfra.WriteJSON(w, http.StatusOK, summary)
		return
	}
	list, err := h.narration.ListWeekly(r.Context(), userID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []domain.WeeklySummary{}
	}
	httpinfra.WriteJSON(w, http.StatusOK, weeklyListResponse{Summaries: list})
}

func (h *Handler) narrateDay(w http.ResponseWriter, r *http.Request) {
	var req narrateRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Date) == "" {
		httpinfra.WriteJSON(w, http.StatusBadRequest, httpinfra.ErrorResponse{Error: "Missing required field: date", Code: codeInvalidInput})
		return
	}
	res, err := h.narration.NarrateDay(r.Context(), mustUserID(r), req.Date)
	if err != nil {
		h.writeFunctionErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) getAudio(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := h.narration.Audio(r.Context(), mustUserID(r), chi.URLParam(r, "bucket"), chi.URLParam(r, "*"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) summarizeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret != "" {
		got := r.Header.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			httpinfra.WriteJSON(w, http.StatusUnauthorized, httpinfra.ErrorResponse{Error: "Unauthorized"})
			return
		}
	}
	var payload journal.WebhookPayload
	if !decode(w, r, &payload) {
		return
	}
	res, err := h.journal.HandleWebhook(r.Context(), payload)
	if err != nil {
		h.writeFunctionErr(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, res)
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, out)
	}
	if err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, codeInvalidInput, errors.New("invalid request body"))
		return false
	}
	return true
}

func mustUserID(r *http.Request) string {
	userID, _ := httpinfra.UserID(r.Context())
	return userID
}

func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, codeUnauthorized
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusForbidden, codeInsufficientCredits
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	switch status {
	case http.StatusInternalServerError:
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("api: ошибка обработки")
		httpinfra.WriteError(w, status, code, errors.New("internal error"))
	case http.StatusForbidden:
		httpinfra.WriteError(w, status, code, errors.New("Insufficient credits"))
	default:
		httpinfra.WriteError(w, status, code, err)
	}
}

// writeFunctionErr отвечает в формате функций генерации: {status: error, error}.
func (h *Handler) writeFunctionErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("api: ошибка генерации")
	}
	httpinfra.WriteJSON(w, status, httpinfra.ErrorResponse{Status: string(domain.StatusError), Error: err.Error(), Code: code})
}
