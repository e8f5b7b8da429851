package desktop

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/tcnksm/go-input"
)

// Terminal reads prompts and yes/no answers from a line-oriented stream.
type Terminal struct {
	ui  *input.UI
	in  *lineReader
	out io.Writer
}

// NewTerminal wraps r and w. Both ReadLine and Confirm share one reader.
func NewTerminal(r io.Reader, w io.Writer) *Terminal {
	in := &lineReader{r: r}
	return &Terminal{
		ui:  &input.UI{Writer: w, Reader: in},
		in:  in,
		out: w,
	}
}

// Writer returns the output stream.
func (t *Terminal) Writer() io.Writer {
	return t.out
}

// ReadLine asks query and returns the answer. It returns io.EOF once the
// input is exhausted.
func (t *Terminal) ReadLine(query string) (string, error) {
	answer, err := t.ui.Ask(query, &input.Options{HideOrder: true})
	if err != nil {
		return "", errors.Wrap(err, "failed to get user input")
	}
	if answer == "" && t.in.eof {
		return "", io.EOF
	}
	return answer, nil
}

// Confirm implements chat.Confirmer. Anything but y/yes declines.
func (t *Terminal) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	answer, err := t.ui.Ask(prompt+" [y/N]", &input.Options{
		Default:     "n",
		HideDefault: true,
		HideOrder:   true,
		Loop:        true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(strings.TrimSpace(answer)) {
			case "y", "yes", "n", "no", "":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to get user input")
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// lineReader hands out one byte per Read so a buffered reader on top never
// consumes past the current newline, and remembers when input ran out.
type lineReader struct {
	r   io.Reader
	eof bool
}

func (l *lineReader) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	n, err := l.r.Read(p)
	if errors.Is(err, io.EOF) {
		l.eof = true
	}
	return n, err
}
