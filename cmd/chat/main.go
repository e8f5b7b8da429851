package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/placement-gpt/backend/internal/config"
	"github.com/zhouzirui/placement-gpt/backend/internal/desktop"
	"github.com/zhouzirui/placement-gpt/backend/internal/logging"
	"github.com/zhouzirui/placement-gpt/backend/internal/model/suggestion"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/chat"
	"github.com/zhouzirui/placement-gpt/backend/internal/service/reply"
)

type options struct {
	exportDir string
	plain     bool
	noClip    bool
	style     string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "placement-gpt-chat",
		Short:        "Chat with Placement GPT in the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, os.Stdin, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.exportDir, "export-dir", "", "directory for exported transcripts (default EXPORT_DIR)")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "print replies without markdown styling and ask confirmations inline")
	cmd.Flags().BoolVar(&opts.noClip, "no-clipboard", false, "do not write copied messages to the system clipboard")
	cmd.Flags().StringVar(&opts.style, "style", "dark", "glamour style for replies")

	return cmd
}

func run(ctx context.Context, opts *options, in *os.File, out io.Writer) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	// Logs go to stderr so they never interleave with the conversation.
	cfg.Log.Format = "console"
	logging.Setup(cfg.Log, os.Stderr)

	responder, err := reply.NewTemplateResponder(ctx, reply.DefaultAdvice())
	if err != nil {
		return err
	}

	interactive := isatty.IsTerminal(in.Fd()) && !opts.plain

	deps := chat.Dependencies{
		Responder:   responder,
		Suggestions: suggestion.NewMemoryStore(suggestion.Seed()),
		Delay:       chat.Delay{Base: cfg.Chat.ReplyDelay, Jitter: cfg.Chat.ReplyJitter},
		TimeLayout:  cfg.Chat.TimeLayout,
		Location:    cfg.Chat.Location,
	}
	if !opts.noClip {
		deps.Clipboard = desktop.NewSystemClipboard()
	}

	svc, err := chat.NewService(deps)
	if err != nil {
		return err
	}
	defer svc.Close()

	session, err := svc.CreateSession(ctx)
	if err != nil {
		return err
	}

	exportDir := opts.exportDir
	if exportDir == "" {
		exportDir = cfg.Export.Dir
	}

	consoleOpts := desktop.ConsoleOptions{
		Terminal:    desktop.NewTerminal(in, out),
		Downloader:  desktop.NewFileDownloader(afero.NewOsFs(), exportDir),
		Markdown:    interactive,
		Style:       opts.style,
		NoClipboard: opts.noClip,
	}
	if interactive {
		consoleOpts.Confirmer = desktop.PromptConfirmer{Accessible: os.Getenv("ACCESSIBLE") != ""}
	}

	log.Debug().Str("session_id", session.ID()).Bool("interactive", interactive).Msg("starting console")
	return desktop.NewConsole(session, consoleOpts).Run(ctx)
}
