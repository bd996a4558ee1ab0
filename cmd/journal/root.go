package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"voice-journal/internal/adapters/backend"
	"voice-journal/internal/domain"
	"voice-journal/internal/infra/config"
	"voice-journal/internal/infra/localcache"
	applog "voice-journal/internal/infra/log"
	"voice-journal/internal/usecase/orchestrator"
)

// journalService клиентское ядро дневника.
type journalService interface {
	CreateJournal(ctx context.Context, text, date string) (orchestrator.Result, error)
	FetchJournal(ctx context.Context, date string) (*domain.Summary, error)
	RefreshCredits(ctx context.Context) (int, error)
	GenerateWeekly(ctx context.Context, endDate string) domain.WeeklyResult
	Wait()
}

// remoteAudio операции API, которые идут мимо оркестратора.
type remoteAudio interface {
	NarrateDay(ctx context.Context, date string) domain.NarrationResult
	DownloadAudio(ctx context.Context, audioPath string) ([]byte, error)
}

type summaryCache interface {
	Clear(ctx context.Context) error
}

type commandContext struct {
	verbose bool

	once    sync.Once
	err     error
	log     zerolog.Logger
	journal journalService
	audio   remoteAudio
	cache   summaryCache
}

func newCommandContext() *commandContext {
	return &commandContext{log: zerolog.Nop()}
}

// ensure собирает клиента из окружения JOURNAL_*. Уже заданные зависимости не трогает.
func (c *commandContext) ensure() error {
	c.once.Do(func() {
		if c.journal != nil {
			return
		}
		c.err = c.build()
	})
	return c.err
}

func (c *commandContext) build() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.log = applog.NewConsoleLogger(os.Stderr, c.verbose)
	if cfg.Token == "" {
		c.log.Warn().Msg("JOURNAL_TOKEN не задан, запросы к API будут отклонены")
	}

	path := cfg.CacheFile
	if path == "" {
		if path, err = localcache.DefaultPath(); err != nil {
			return err
		}
	}
	client := backend.New(cfg.BackendURL, backend.StaticToken(cfg.Token), cfg.HTTPTimeout)
	cache := localcache.New(localcache.NewFileStore(path),
		localcache.WithTTL(cfg.CacheTTL),
		localcache.WithLogger(c.log),
	)

	c.audio = client
	c.cache = cache
	c.journal = orchestrator.NewService(client, cache,
		orchestrator.WithPolling(cfg.PollInterval, cfg.PollAttempts),
		orchestrator.WithLogger(c.log.With().Str("component", "orchestrator").Logger()),
	)
	return nil
}

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "journal",
		Short:         "Voice journal from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations["offline"] == "true" {
				return nil
			}
			return ctx.ensure()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.journal != nil {
				ctx.journal.Wait()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Verbose logging")

	rootCmd.AddCommand(newRecordCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newCreditsCommand(ctx))
	rootCmd.AddCommand(newWeeklyCommand(ctx))
	rootCmd.AddCommand(newNarrateCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}
