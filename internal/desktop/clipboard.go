package desktop

import (
	"context"

	"github.com/atotto/clipboard"
	"github.com/pkg/errors"
)

// ErrClipboardUnsupported is returned when the host has no clipboard utility.
var ErrClipboardUnsupported = errors.New("system clipboard is not available")

// SystemClipboard writes copied text to the operating system clipboard.
type SystemClipboard struct {
	write       func(string) error
	unsupported bool
}

// NewSystemClipboard returns a clipboard backed by the host's copy utility.
func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{
		write:       clipboard.WriteAll,
		unsupported: clipboard.Unsupported,
	}
}

// WriteText implements chat.Clipboard.
func (c *SystemClipboard) WriteText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.unsupported {
		return ErrClipboardUnsupported
	}
	if err := c.write(text); err != nil {
		return errors.Wrap(err, "error copying to clipboard")
	}
	return nil
}
