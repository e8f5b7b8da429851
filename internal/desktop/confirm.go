package desktop

import (
	"context"
	"io"

	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"
)

// PromptConfirmer asks with an interactive huh form. It needs a terminal
// unless Accessible is set, in which case it reads a plain y/n line.
type PromptConfirmer struct {
	Accessible bool
	// Input and Output default to stdin and stdout.
	Input  io.Reader
	Output io.Writer
}

// Confirm implements chat.Confirmer.
func (p PromptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeCharm()).WithAccessible(p.Accessible)
	if p.Input != nil {
		form = form.WithInput(p.Input)
	}
	if p.Output != nil {
		form = form.WithOutput(p.Output)
	}

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, errors.Wrap(err, "confirmation prompt")
	}
	return ok, nil
}
