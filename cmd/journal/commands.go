package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"voice-journal/internal/adapters/bot"
	"voice-journal/internal/adapters/speech"
	"voice-journal/internal/domain"
	"voice-journal/internal/infra/config"
	httpinfra "voice-journal/internal/infra/http"
)

func printSummary(out io.Writer, s domain.Summary) {
	fmt.Fprintln(out, bot.FormatSummary(s))
}

// dateArg возвращает дату из аргумента или сегодняшнюю.
func dateArg(args []string) (string, error) {
	if len(args) == 0 {
		return time.Now().Format(domain.DateLayout), nil
	}
	if _, err := time.Parse(domain.DateLayout, args[0]); err != nil {
		return "", fmt.Errorf("invalid date %q, expected YYYY-MM-DD", args[0])
	}
	return args[0], nil
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show [date]",
		Short: "Show the summary for a date (today by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args)
			if err != nil {
				return err
			}
			summary, err := ctx.journal.FetchJournal(cmd.Context(), date)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if summary == nil {
				fmt.Fprintf(out, "No summary for %s yet.\n", date)
				return nil
			}
			printSummary(out, *summary)
			return nil
		},
	}
}

func newCreditsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "credits",
		Short: "Show remaining journal credits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			credits, err := ctx.journal.RefreshCredits(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Journal credits left: %d\n", credits)
			return nil
		},
	}
}

func newWeeklyCommand(ctx *commandContext) *cobra.Command {
	var (
		end     string
		outPath string
		speak   bool
	)
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Generate the weekly review ending on --end (today by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var dateArgs []string
			if end != "" {
				dateArgs = []string{end}
			}
			endDate, err := dateArg(dateArgs)
			if err != nil {
				return err
			}
			res := ctx.journal.GenerateWeekly(cmd.Context(), endDate)
			out := cmd.OutOrStdout()
			switch res.Status {
			case domain.StatusEmpty:
				fmt.Fprintln(out, res.Message)
				return nil
			case domain.StatusError:
				return errors.New(res.Error)
			}
			fmt.Fprintln(out, bot.FormatWeekly(res))
			return deliver(cmd, ctx, res.SummaryText, res.AudioPath, outPath, speak)
		},
	}
	cmd.Flags().StringVar(&end, "end", "", "Last day of the week (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Save the narration audio to a file")
	cmd.Flags().BoolVar(&speak, "speak", false, "Read the review aloud")
	return cmd
}

func newNarrateCommand(ctx *commandContext) *cobra.Command {
	var (
		outPath string
		speak   bool
	)
	cmd := &cobra.Command{
		Use:   "narrate [date]",
		Short: "Narrate the entry for a date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := dateArg(args)
			if err != nil {
				return err
			}
			res := ctx.audio.NarrateDay(cmd.Context(), date)
			if res.Status == domain.StatusError {
				return errors.New(res.Error)
			}
			if res.Status == domain.StatusEmpty {
				fmt.Fprintln(cmd.OutOrStdout(), res.Message)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.SummaryText)
			return deliver(cmd, ctx, res.SummaryText, res.AudioPath, outPath, speak)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Save the narration audio to a file")
	cmd.Flags().BoolVar(&speak, "speak", false, "Read the text aloud")
	return cmd
}

// deliver сохраняет аудио в файл и/или проговаривает текст.
func deliver(cmd *cobra.Command, ctx *commandContext, text, audioPath, outPath string, speak bool) error {
	out := cmd.OutOrStdout()
	if outPath != "" {
		if audioPath == "" {
			return errors.New("no audio was produced")
		}
		audio, err := ctx.audio.DownloadAudio(cmd.Context(), audioPath)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, audio, 0o644); err != nil {
			return fmt.Errorf("write audio: %w", err)
		}
		fmt.Fprintf(out, "Audio saved to %s (%d bytes)\n", outPath, len(audio))
	}
	if speak {
		speaker := speech.NewSpeaker(&speech.ConsolePlatform{Out: out}, ctx.log)
		defer speaker.Close()
		if _, err := speaker.Speak(cmd.Context(), text, speech.DefaultSpeakOptions); err != nil {
			return err
		}
	}
	return nil
}

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local summary cache",
	}
	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop all cached summaries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.cache.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache cleared.")
			return nil
		},
	})
	return cacheCmd
}

func newTokenCommand() *cobra.Command {
	var (
		userID     string
		telegramID int64
	)
	cmd := &cobra.Command{
		Use:         "token",
		Short:       "Mint a bearer token with the server's JWT_SECRET (development)",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			auth, err := httpinfra.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
			if err != nil {
				return err
			}
			switch {
			case userID != "":
			case telegramID != 0:
				userID = bot.UserIDFor(telegramID)
			default:
				userID = uuid.NewString()
			}
			token, err := auth.Issue(userID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "user_id: %s\n", userID)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to embed in the token")
	cmd.Flags().Int64Var(&telegramID, "telegram-id", 0, "Derive the user id from a Telegram user id")
	return cmd
}
