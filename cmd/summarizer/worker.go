package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"voice-journal/internal/domain"
)

const maxDeliveryAttempts = 5

type jobProcessor interface {
	ProcessJob(ctx context.Context, job domain.SummarizeJob) error
}

type jobWorker struct {
	log     zerolog.Logger
	queue   domain.SummarizeQueue
	service jobProcessor
	pause   time.Duration
}

// Run читает задачи до отмены контекста.
func (w *jobWorker) Run(ctx context.Context) {
	pause := w.pause
	if pause <= 0 {
		pause = time.Second
	}
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("summarizer: ошибка чтения очереди")
			time.Sleep(pause)
			continue
		}

		attempt := job.Attempt + 1
		jobLog := w.log.With().
			Str("job_id", job.ID).
			Str("entry_id", job.EntryID).
			Str("user_id", job.UserID).
			Str("cause", string(job.Cause)).
			Int("attempt", attempt).
			Logger()

		if job.EntryID == "" {
			jobLog.Error().Msg("summarizer: задача без записи, подтверждаем и пропускаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("summarizer: не удалось подтвердить задачу")
			}
			continue
		}

		err = w.service.ProcessJob(ctx, job)
		if err != nil && attempt < maxDeliveryAttempts {
			jobLog.Warn().Err(err).Msg("summarizer: задача завершилась ошибкой, повторим позже")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("summarizer: не удалось вернуть задачу в очередь")
			}
			continue
		}
		if err != nil {
			jobLog.Error().Err(err).Msg("summarizer: достигнут предел попыток, задача отброшена")
		} else {
			jobLog.Info().Msg("summarizer: резюме готово")
		}
		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("summarizer: не удалось подтвердить задачу")
		}
	}
}
