package domain

import (
	"context"
	"time"
)

// SummarizeCause описывает источник задачи суммаризации.
type SummarizeCause string

const (
	// SummarizeCauseCreate: запись только что создана через API.
	SummarizeCauseCreate SummarizeCause = "create"
	// SummarizeCauseWebhook: задача пришла из вебхука базы.
	SummarizeCauseWebhook SummarizeCause = "webhook"
)

// SummarizeJob задача построения резюме для записи.
type SummarizeJob struct {
	ID          string         `json:"job_id,omitempty"`
	EntryID     string         `json:"entry_id"`
	UserID      string         `json:"user_id"`
	RequestedAt time.Time      `json:"requested_at"`
	Cause       SummarizeCause `json:"cause"`
	Attempt     int            `json:"attempt,omitempty"`
}

// SummarizeQueue описывает очередь задач суммаризации.
type SummarizeQueue interface {
	Enqueue(ctx context.Context, job SummarizeJob) error
	Receive(ctx context.Context) (SummarizeJob, AckFunc, error)
}

// AckFunc подтверждает успешную обработку или запрашивает повтор доставки задачи.
type AckFunc func(success bool) error
