package reply

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTemplateResponderEchoesPrompt(t *testing.T) {
	ctx := context.Background()
	responder, err := NewTemplateResponder(ctx, nil)
	require.NoError(t, err)

	got, err := responder.Reply(ctx, "Explain Dynamic Programming concepts")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(got, `Based on your question about "Explain Dynamic Programming concepts"`))
	for i, item := range DefaultAdvice() {
		require.Contains(t, got, item.Title)
		require.Contains(t, got, string(rune('1'+i))+". **")
	}
}

func TestTemplateResponderIsDeterministic(t *testing.T) {
	ctx := context.Background()
	responder, err := NewTemplateResponder(ctx, nil)
	require.NoError(t, err)

	first, err := responder.Reply(ctx, "a")
	require.NoError(t, err)
	second, err := responder.Reply(ctx, "a")
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestTemplateResponderKeepsBracesInPrompt(t *testing.T) {
	ctx := context.Background()
	responder, err := NewTemplateResponder(ctx, []Advice{{Title: "Maps", Body: "Use {key: value} pairs."}})
	require.NoError(t, err)

	got, err := responder.Reply(ctx, "what is {x}?")
	require.NoError(t, err)

	require.Contains(t, got, `"what is {x}?"`)
	require.Contains(t, got, "1. **Maps**: Use {key: value} pairs.")
}
