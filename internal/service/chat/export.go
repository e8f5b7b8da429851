package chat

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/placement-gpt/backend/internal/model/chat"
)

const (
	// DefaultTimeLayout formats message times in exported transcripts.
	DefaultTimeLayout = "15:04:05"

	exportPrefix = "placement-gpt-chat-"
)

// ExportFileName returns the download name for a transcript exported at t.
func ExportFileName(t time.Time) string {
	return exportPrefix + t.Format(time.DateOnly) + ".txt"
}

// FormatLine renders one transcript record.
func FormatLine(msg chat.Message, layout string, loc *time.Location) string {
	ts := msg.CreatedAt
	if loc != nil {
		ts = ts.In(loc)
	}
	return fmt.Sprintf("[%s] %s: %s", ts.Format(layout), msg.Role.Label(), msg.Text)
}

// Export yields one transcript record per message in log order. Every
// iteration reads the log as it is at that moment.
func (s *Session) Export() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, msg := range s.Messages() {
			if !yield(FormatLine(msg, s.deps.TimeLayout, s.location())) {
				return
			}
		}
	}
}

// Transcript joins the export records with blank lines.
func (s *Session) Transcript() string {
	var b strings.Builder
	for line := range s.Export() {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(line)
	}
	return b.String()
}

// Download hands the transcript to the downloader and returns the file name used.
func (s *Session) Download(ctx context.Context, downloader Downloader) (string, error) {
	if downloader == nil {
		return "", errors.New("no downloader configured")
	}

	filename := ExportFileName(s.deps.Now().In(s.location()))
	payload := []byte(s.Transcript())
	if err := downloader.Save(ctx, filename, payload); err != nil {
		return "", errors.Wrapf(err, "save %s", filename)
	}

	log.Info().Str("session_id", s.id).Str("file", filename).Int("bytes", len(payload)).Msg("exported conversation")
	return filename, nil
}

func (s *Session) location() *time.Location {
	if s.deps.Location != nil {
		return s.deps.Location
	}
	return time.Local
}
