package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Responder produces the assistant reply for a user prompt.
type Responder interface {
	Reply(ctx context.Context, prompt string) (string, error)
}

// Advice is one numbered entry of the templated study answer.
type Advice struct {
	Title string
	Body  string
}

// DefaultAdvice is the boilerplate study plan every reply carries.
func DefaultAdvice() []Advice {
	return []Advice{
		{Title: "Foundation Building", Body: "Start with the core concepts and build a strong theoretical understanding."},
		{Title: "Practical Application", Body: "Practice coding problems on platforms like LeetCode, HackerRank, and CodeForces."},
		{Title: "Pattern Recognition", Body: "Learn to identify common patterns that frequently appear in interviews."},
		{Title: "Time Complexity", Body: "Always analyze and optimize your solutions for better performance."},
	}
}

// TemplateResponder renders a deterministic answer through an eino chain: a
// chat template node followed by a scripted model lambda.
type TemplateResponder struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewTemplateResponder compiles the reply chain for the given advice list.
func NewTemplateResponder(ctx context.Context, advice []Advice) (*TemplateResponder, error) {
	if len(advice) == 0 {
		advice = DefaultAdvice()
	}

	chatTemplate := prompt.FromMessages(
		schema.FString,
		schema.AssistantMessage(buildTemplate(advice), nil),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(chatTemplate)
	chain.AppendLambda(compose.InvokableLambda(scriptedModel))

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "compile reply chain")
	}

	return &TemplateResponder{chain: runnable}, nil
}

// Reply renders the templated answer echoing prompt.
func (r *TemplateResponder) Reply(ctx context.Context, prompt string) (string, error) {
	msg, err := r.chain.Invoke(ctx, map[string]any{"query": prompt})
	if err != nil {
		return "", errors.Wrap(err, "run reply chain")
	}

	log.Debug().Int("length", len(msg.Content)).Msg("rendered templated reply")
	return msg.Content, nil
}

// scriptedModel stands in for a chat model: the rendered template already is
// the answer, so it returns the last formatted message as the assistant turn.
func scriptedModel(_ context.Context, msgs []*schema.Message) (*schema.Message, error) {
	if len(msgs) == 0 {
		return nil, errors.New("reply template produced no messages")
	}
	last := msgs[len(msgs)-1]
	return schema.AssistantMessage(last.Content, nil), nil
}

func buildTemplate(advice []Advice) string {
	var b strings.Builder
	b.WriteString("Based on your question about \"{query}\", here's a comprehensive answer:\n\n")
	b.WriteString("For mastering this topic, I recommend:\n\n")
	for i, item := range advice {
		b.WriteString(fmt.Sprintf("%d. **%s**: %s\n\n", i+1, escapeBraces(item.Title), escapeBraces(item.Body)))
	}
	b.WriteString("Would you like me to dive deeper into any specific aspect?")
	return b.String()
}

// escapeBraces keeps literal braces in advice text out of FString substitution.
func escapeBraces(s string) string {
	return strings.NewReplacer("{", "{{", "}", "}}").Replace(s)
}
