package assistant

import (
	"context"
	"fmt"
	"strings"
)

// NeedAdvisor classifies whether a question needs web evidence. It never
// returns an error; failures yield a no-search decision, and so does a
// search verdict without a query.
type NeedAdvisor struct {
	completer Completer
}

func NewNeedAdvisor(completer Completer) NeedAdvisor {
	return NeedAdvisor{completer: completer}
}

func (a NeedAdvisor) Assess(ctx context.Context, question, model string, dates DateContext) Decision {
	return judge(ctx, a.completer, model, buildNeedPrompt(question, dates)).normalize("")
}

// AdequacyAdvisor judges a draft answer. Failures count as adequate. An
// inadequate verdict without a query searches for the question itself.
type AdequacyAdvisor struct {
	completer Completer
}

func NewAdequacyAdvisor(completer Completer) AdequacyAdvisor {
	return AdequacyAdvisor{completer: completer}
}

func (a AdequacyAdvisor) Assess(ctx context.Context, question, draft, model string, dates DateContext) Decision {
	return judge(ctx, a.completer, model, buildAdequacyPrompt(question, draft, dates)).normalize(question)
}

func judge(ctx context.Context, completer Completer, model, prompt string) Decision {
	if completer == nil {
		return fallbackDecision("classifier unavailable")
	}
	raw, err := completer.Complete(ctx, model, []Turn{
		{Role: RoleSystem, Content: classifierSystemPrompt},
		{Role: RoleUser, Content: prompt},
	})
	if err != nil {
		return fallbackDecision(fmt.Sprintf("classifier request failed: %v", err))
	}
	decision, err := decodeDecision(raw)
	if err != nil {
		return fallbackDecision(err.Error())
	}
	return decision
}

func fallbackDecision(reason string) Decision {
	return Decision{NeedsSearch: false, Reasoning: strings.TrimSpace(reason)}
}
