package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
)

// TokenSource отдаёт bearer-токен текущего пользователя.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken возвращает один и тот же токен.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		if strings.TrimSpace(token) == "" {
			return "", domain.ErrUnauthenticated
		}
		return token, nil
	}
}

// Client ходит в API дневника от имени пользователя.
type Client struct {
	http *resty.Client
}

type createRequest struct {
	Text string `json:"text"`
	Date string `json:"date"`
}

type creditsResponse struct {
	Credits int `json:"credits"`
}

type weeklyRequest struct {
	EndDate string `json:"end_date,omitempty"`
}

type weeklyListResponse struct {
	Summaries []domain.WeeklySummary `json:"summaries"`
}

type narrateRequest struct {
	Date string `json:"date"`
}

type errorBody struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Code   string `json:"code"`
}

// New создаёт клиента API.
func New(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	c.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if tokens == nil {
			return domain.ErrUnauthenticated
		}
		token, err := tokens(req.Context())
		if err != nil {
			return fmt.Errorf("получение токена: %w", err)
		}
		req.SetAuthToken(token)
		return nil
	})
	return &Client{http: c}
}

// CreateJournalEntry отправляет транскрипт на запись и суммаризацию.
func (c *Client) CreateJournalEntry(ctx context.Context, text, date string) (domain.CreateResult, error) {
	var out domain.CreateResult
	if err := c.do(ctx, "create_journal", http.MethodPost, "/api/v1/journal", createRequest{Text: text, Date: date}, &out); err != nil {
		return domain.CreateResult{}, err
	}
	if out.EntryID == "" {
		return domain.CreateResult{}, errors.New("ответ без entry_id")
	}
	return out, nil
}

// GetJournalEntry читает состояние резюме по id.
func (c *Client) GetJournalEntry(ctx context.Context, entryID string) (domain.EntryStatus, error) {
	var out domain.EntryStatus
	err := c.doRequest(ctx, "get_journal", http.MethodGet, "/api/v1/journal/{id}", nil, &out, func(r *resty.Request) {
		r.SetPathParam("id", entryID)
	})
	return out, err
}

// GetJournalByDate читает запись за дату; отсутствие записи даёт domain.ErrNotFound.
func (c *Client) GetJournalByDate(ctx context.Context, date string) (domain.JournalEntry, error) {
	var out domain.JournalEntry
	err := c.doRequest(ctx, "get_journal_by_date", http.MethodGet, "/api/v1/journal", nil, &out, func(r *resty.Request) {
		r.SetQueryParam("date", date)
	})
	return out, err
}

// GetCredits возвращает остаток кредитов.
func (c *Client) GetCredits(ctx context.Context) (int, error) {
	var out creditsResponse
	if err := c.do(ctx, "get_credits", http.MethodGet, "/api/v1/credits", nil, &out); err != nil {
		return 0, err
	}
	return out.Credits, nil
}

// GenerateWeeklySummary запускает недельный обзор. Ошибки сервера и транспорта
// возвращаются как результат со status=error, а не как error.
func (c *Client) GenerateWeeklySummary(ctx context.Context, endDate string) domain.WeeklyResult {
	var out domain.WeeklyResult
	err := c.do(ctx, "generate_weekly", http.MethodPost, "/api/v1/weekly", weeklyRequest{EndDate: endDate}, &out)
	if err != nil {
		return domain.WeeklyResult{Status: domain.StatusError, Error: err.Error()}
	}
	return out
}

// GetWeeklySummary читает сохранённый обзор недели.
func (c *Client) GetWeeklySummary(ctx context.Context, weekStart string) (domain.WeeklySummary, error) {
	var out domain.WeeklySummary
	err := c.doRequest(ctx, "get_weekly", http.MethodGet, "/api/v1/weekly", nil, &out, func(r *resty.Request) {
		r.SetQueryParam("week_start_date", weekStart)
	})
	return out, err
}

// ListWeeklySummaries возвращает последние обзоры, новые первыми.
func (c *Client) ListWeeklySummaries(ctx context.Context) ([]domain.WeeklySummary, error) {
	var out weeklyListResponse
	if err := c.do(ctx, "list_weekly", http.MethodGet, "/api/v1/weekly", nil, &out); err != nil {
		return nil, err
	}
	return out.Summaries, nil
}

// NarrateDay озвучивает запись за дату.
func (c *Client) NarrateDay(ctx context.Context, date string) domain.NarrationResult {
	var out domain.NarrationResult
	if err := c.do(ctx, "narrate_day", http.MethodPost, "/api/v1/journal/tts", narrateRequest{Date: date}, &out); err != nil {
		return domain.NarrationResult{Status: domain.StatusError, Error: err.Error()}
	}
	return out
}

// DownloadAudio скачивает аудио по пути вида <bucket>/<object>.
func (c *Client) DownloadAudio(ctx context.Context, audioPath string) ([]byte, error) {
	start := time.Now()
	var err error
	defer func() { metrics.ObserveNetworkRequest("backend", "download_audio", "audio", start, err) }()

	resp, err := c.http.R().SetContext(ctx).Get("/api/v1/audio/" + strings.TrimLeft(audioPath, "/"))
	if err != nil {
		err = fmt.Errorf("запрос аудио: %w", err)
		return nil, err
	}
	if resp.IsError() {
		err = statusError(resp)
		return nil, err
	}
	return resp.Body(), nil
}

// GetProfile возвращает профиль пользователя.
func (c *Client) GetProfile(ctx context.Context) (domain.Profile, error) {
	var out domain.Profile
	err := c.do(ctx, "get_profile", http.MethodGet, "/api/v1/profile", nil, &out)
	return out, err
}

// UpdateProfile сохраняет часовой пояс и флаг уведомлений.
func (c *Client) UpdateProfile(ctx context.Context, profile domain.Profile) (domain.Profile, error) {
	var out domain.Profile
	err := c.do(ctx, "update_profile", http.MethodPut, "/api/v1/profile", profile, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	return c.doRequest(ctx, op, method, path, body, out, nil)
}

func (c *Client) doRequest(ctx context.Context, op, method, path string, body, out any, configure func(*resty.Request)) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveNetworkRequest("backend", op, path, start, err) }()

	req := c.http.R().SetContext(ctx).SetResult(out).SetError(&errorBody{})
	if body != nil {
		req.SetBody(body)
	}
	if configure != nil {
		configure(req)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %w", op, statusError(resp))
	}
	return nil
}

// statusError переводит HTTP-статус в доменную ошибку.
func statusError(resp *resty.Response) error {
	msg := strings.TrimSpace(resp.String())
	if body, ok := resp.Error().(*errorBody); ok && body.Error != "" {
		msg = body.Error
	}
	switch resp.StatusCode() {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", domain.ErrUnauthenticated, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientCredits, msg)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, msg)
	default:
		return fmt.Errorf("status %d: %s", resp.StatusCode(), msg)
	}
}
