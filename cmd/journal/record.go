package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voice-journal/internal/adapters/speech"
	"voice-journal/internal/domain"
	"voice-journal/internal/usecase/capture"
	"voice-journal/internal/usecase/orchestrator"
)

var errNothingRecorded = errors.New("nothing was recorded")

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Dictate today's entry (one phrase per line, Ctrl-D to finish)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().Format(domain.DateLayout)
			}
			if _, err := time.Parse(domain.DateLayout, date); err != nil {
				return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Listening... type your entry, finish with Ctrl-D.")
			raw, err := listen(cmd.Context(), cmd.InOrStdin(), ctx.log)
			if err != nil {
				return err
			}
			text := capture.FormatTranscript(raw)
			if text == "" {
				return errNothingRecorded
			}
			fmt.Fprintf(out, "\n%s\n\n", text)

			credits, err := ctx.journal.RefreshCredits(cmd.Context())
			if err != nil {
				ctx.log.Warn().Err(err).Msg("баланс кредитов не загружен")
			} else if credits <= 0 {
				return errors.New(orchestrator.NoCreditsMessage)
			}
			fmt.Fprintln(out, "Saving your journal...")
			res, err := ctx.journal.CreateJournal(cmd.Context(), text, date)
			if errors.Is(err, orchestrator.ErrNoCredits) || errors.Is(err, domain.ErrInsufficientCredits) {
				return errors.New(orchestrator.NoCreditsMessage)
			}
			if err != nil {
				return err
			}
			printSummary(out, res.Summary)
			if res.Outcome == orchestrator.OutcomeTimedOut {
				fmt.Fprintf(out, "\nStill working on it. Run `journal show %s` in a minute.\n", date)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Entry date (YYYY-MM-DD), defaults to today")
	return cmd
}

// listen ведёт сессию распознавания, пока не кончится ввод или контекст.
func listen(ctx context.Context, in io.Reader, log zerolog.Logger) (string, error) {
	input := newInputWatcher(in)
	rec := speech.NewRecognizer(&speech.ConsolePlatform{In: input}, log)
	defer rec.Close()
	session := capture.NewSession(rec)
	defer session.Close()

	final := make(chan struct{})
	var once sync.Once
	sub := rec.OnTranscript(func(ev speech.TranscriptEvent) {
		if ev.IsFinal {
			once.Do(func() { close(final) })
		}
	})
	defer sub.Unsubscribe()

	if err := session.Start(ctx); err != nil {
		return "", err
	}

	select {
	case <-final:
	case <-input.blankEOF:
	case <-ctx.Done():
	}
	text, err := session.Stop(context.Background())
	if err != nil {
		return "", err
	}
	if ue := session.State().Error; ue != nil {
		return "", ue
	}
	if ctx.Err() != nil && text == "" {
		return "", ctx.Err()
	}
	return text, nil
}

// inputWatcher сообщает о конце ввода, в котором не было ни одного непустого символа.
// Непустой ввод всегда завершается финальным результатом распознавателя.
type inputWatcher struct {
	r        io.Reader
	seen     bool
	once     sync.Once
	blankEOF chan struct{}
}

func newInputWatcher(r io.Reader) *inputWatcher {
	return &inputWatcher{r: r, blankEOF: make(chan struct{})}
}

func (w *inputWatcher) Read(p []byte) (int, error) {
	n, err := w.r.Read(p)
	if len(bytes.TrimSpace(p[:n])) > 0 {
		w.seen = true
	}
	if errors.Is(err, io.EOF) && !w.seen {
		w.once.Do(func() { close(w.blankEOF) })
	}
	return n, err
}
