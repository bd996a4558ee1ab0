package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voice-journal/internal/adapters/textsplit"
	"voice-journal/internal/domain"
	"voice-journal/internal/infra/metrics"
	"voice-journal/internal/usecase/capture"
	"voice-journal/internal/usecase/orchestrator"
)

// telegramNamespace пространство имён для id пользователей из Telegram.
var telegramNamespace = uuid.MustParse("6f1c9a52-3d0e-4b8f-9a41-2c7e5d8b1f03")

// UserIDFor возвращает постоянный id пользователя дневника для Telegram-аккаунта.
func UserIDFor(tgUserID int64) string {
	return uuid.NewSHA1(telegramNamespace, []byte("telegram:"+strconv.FormatInt(tgUserID, 10))).String()
}

// Journal клиентское ядро дневника одного пользователя.
type Journal interface {
	CreateJournal(ctx context.Context, text, date string) (orchestrator.Result, error)
	FetchJournal(ctx context.Context, date string) (*domain.Summary, error)
	RefreshCredits(ctx context.Context) (int, error)
	GenerateWeekly(ctx context.Context, endDate string) domain.WeeklyResult
}

// AudioSource скачивает аудио озвучки.
type AudioSource interface {
	DownloadAudio(ctx context.Context, audioPath string) ([]byte, error)
}

// Session всё, что нужно боту для одного пользователя.
type Session struct {
	Journal Journal
	Audio   AudioSource
}

// SessionFactory собирает сессию для Telegram-пользователя.
type SessionFactory func(tgUserID int64) (*Session, error)

// Sender отправляет сообщения в Telegram.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot      Sender
	log      zerolog.Logger
	sessions SessionFactory
	loc      *time.Location
	now      func() time.Time

	mu     sync.Mutex
	active map[int64]*Session
}

// NewHandler создаёт обработчик. loc задаёт, какой день считается сегодняшним.
func NewHandler(bot Sender, log zerolog.Logger, sessions SessionFactory, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		bot:      bot,
		log:      log.With().Str("component", "bot").Logger(),
		sessions: sessions,
		loc:      loc,
		now:      time.Now,
		active:   make(map[int64]*Session),
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	h.handleMessage(ctx, upd.Message)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.From == nil {
		h.reply(chatID, "Could not identify you. Please try again.")
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		h.reply(chatID, buildStartMessage())
		return
	case strings.HasPrefix(text, "/help"):
		h.reply(chatID, buildHelpMessage())
		return
	}

	session, err := h.session(msg.From.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("tg_user_id", msg.From.ID).Msg("не удалось создать сессию")
		h.reply(chatID, "Something went wrong. Please try again later.")
		return
	}

	switch {
	case strings.HasPrefix(text, "/today"):
		h.handleToday(ctx, chatID, session)
	case strings.HasPrefix(text, "/credits"):
		h.handleCredits(ctx, chatID, session)
	case strings.HasPrefix(text, "/weekly"):
		endDate := strings.TrimSpace(strings.TrimPrefix(text, "/weekly"))
		h.handleWeekly(ctx, chatID, session, endDate)
	case strings.HasPrefix(text, "/"):
		h.reply(chatID, "Unknown command. Use /help")
	default:
		h.handleEntry(ctx, chatID, session, text)
	}
}

func (h *Handler) handleEntry(ctx context.Context, chatID int64, session *Session, raw string) {
	text := capture.FormatTranscript(raw)
	if text == "" {
		h.reply(chatID, "Send me a few words about your day to journal it.")
		return
	}
	credits, err := session.Journal.RefreshCredits(ctx)
	if err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chatID).Msg("баланс кредитов не загружен")
	} else if credits <= 0 {
		h.reply(chatID, orchestrator.NoCreditsMessage)
		return
	}
	h.reply(chatID, "Saving your journal...")
	res, err := session.Journal.CreateJournal(ctx, text, h.today())
	switch {
	case errors.Is(err, orchestrator.ErrNoCredits), errors.Is(err, domain.ErrInsufficientCredits):
		h.reply(chatID, orchestrator.NoCreditsMessage)
		return
	case err != nil:
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("создание записи не удалось")
		h.reply(chatID, "Could not save your journal. Please try again.")
		return
	}
	reply := FormatSummary(res.Summary)
	if res.Outcome == orchestrator.OutcomeTimedOut {
		reply += "\n\nUse /today in a minute to see the finished summary."
	}
	h.reply(chatID, reply)
}

func (h *Handler) handleToday(ctx context.Context, chatID int64, session *Session) {
	summary, err := session.Journal.FetchJournal(ctx, h.today())
	if err != nil {
		h.log.Error().Err(err).Int64("chat_id", chatID).Msg("чтение записи не удалось")
		h.reply(chatID, "Could not load today's journal. Please try again.")
		return
	}
	if summary == nil {
		h.reply(chatID, "No summary for today yet. Send me a message to journal your day.")
		return
	}
	h.reply(chatID, FormatSummary(*summary))
}

func (h *Handler) handleCredits(ctx context.Context, chatID int64, session *Session) {
	credits, err := session.Journal.RefreshCredits(ctx)
	if err != nil {
		h.reply(chatID, "Could not load your credits. Please try again.")
		return
	}
	h.reply(chatID, fmt.Sprintf("Journal credits left: %d", credits))
}

func (h *Handler) handleWeekly(ctx context.Context, chatID int64, session *Session, endDate string) {
	if endDate != "" {
		if _, err := domain.ParseDate(endDate); err != nil {
			h.reply(chatID, "Use /weekly or /weekly YYYY-MM-DD")
			return
		}
	}
	h.reply(chatID, "Preparing your weekly reflection...")
	res := session.Journal.GenerateWeekly(ctx, endDate)
	switch res.Status {
	case domain.StatusEmpty:
		h.reply(chatID, res.Message)
		return
	case domain.StatusError:
		h.log.Error().Str("error", res.Error).Int64("chat_id", chatID).Msg("недельный обзор не построен")
		h.reply(chatID, "Could not build your weekly reflection. Please try again later.")
		return
	}
	h.reply(chatID, FormatWeekly(res))
	if res.AudioPath == "" || session.Audio == nil {
		return
	}
	audio, err := session.Audio.DownloadAudio(ctx, res.AudioPath)
	if err != nil {
		h.log.Error().Err(err).Str("audio_path", res.AudioPath).Msg("не удалось скачать аудио")
		return
	}
	h.sendAudio(chatID, audio, res.WeekStartDate)
}

func (h *Handler) session(tgUserID int64) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.active[tgUserID]; ok {
		return s, nil
	}
	s, err := h.sessions(tgUserID)
	if err != nil {
		return nil, err
	}
	h.active[tgUserID] = s
	return s, nil
}

func (h *Handler) today() string {
	return h.now().In(h.loc).Format(domain.DateLayout)
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range textsplit.SplitMessage(text) {
		if err := h.send(chatID, "send_message", tgbotapi.NewMessage(chatID, part)); err != nil {
			return
		}
	}
}

func (h *Handler) sendAudio(chatID int64, data []byte, weekStart string) {
	audio := tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{Name: "weekly-summary.mp3", Bytes: data})
	audio.Title = "Weekly reflection " + weekStart
	_ = h.send(chatID, "send_audio", audio)
}

func (h *Handler) send(chatID int64, op string, c tgbotapi.Chattable) error {
	start := time.Now()
	_, err := h.bot.Send(c)
	metrics.ObserveNetworkRequest("telegram_bot", op, strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		h.log.Error().Err(err).Str("op", op).Msg("не удалось отправить сообщение")
	}
	return err
}

// FormatSummary текст резюме дня для чата.
func FormatSummary(s domain.Summary) string {
	var b strings.Builder
	b.WriteString("📝 ")
	b.WriteString(s.DaySummary)
	if len(s.WhatWasDone) > 0 {
		b.WriteString("\n\nWhat you did:")
		for _, item := range s.WhatWasDone {
			b.WriteString("\n• ")
			b.WriteString(item)
		}
	}
	fmt.Fprintf(&b, "\n\nEnergy: %s\nMood: %s", s.EnergyLevel, s.EmotionalTone)
	if s.Reflection != "" {
		b.WriteString("\n\n💭 ")
		b.WriteString(s.Reflection)
	}
	return b.String()
}

// FormatWeekly текст недельного обзора для чата.
func FormatWeekly(res domain.WeeklyResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗓 Week %s to %s\n\n%s", res.WeekStartDate, res.WeekEndDate, res.SummaryText)
	if st := res.Stats; st != nil {
		fmt.Fprintf(&b, "\n\nDays journaled: %d", st.DaysJournaled)
		if st.AvgEnergyLevel != nil {
			fmt.Fprintf(&b, "\nAverage energy: %s", *st.AvgEnergyLevel)
		}
		if st.DominantMood != "" {
			fmt.Fprintf(&b, "\nDominant mood: %s", st.DominantMood)
		}
		if len(st.TopActivities) > 0 {
			fmt.Fprintf(&b, "\nTop activities: %s", strings.Join(st.TopActivities, ", "))
		}
		if st.KeyAchievement != "" {
			fmt.Fprintf(&b, "\nKey achievement: %s", st.KeyAchievement)
		}
	}
	return b.String()
}

func buildStartMessage() string {
	lines := []string{
		"👋 Welcome to your voice journal!",
		"",
		"Send me a message about your day and I will turn it into a short summary.",
		"You can journal once per credit. Use /credits to check your balance.",
		"",
		buildHelpMessage(),
	}
	return strings.Join(lines, "\n")
}

func buildHelpMessage() string {
	lines := []string{
		"📖 Commands:",
		"• any text — journal today",
		"• /today — show today's summary",
		"• /credits — show remaining credits",
		"• /weekly — weekly reflection with audio",
		"• /weekly 2024-03-10 — reflection for the week ending on a date",
	}
	return strings.Join(lines, "\n")
}
