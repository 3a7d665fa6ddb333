package assistant

import (
	"fmt"
	"strings"

	"searchchat/backend/internal/search"
)

const decisionSchema = `{"needsSearch": boolean, "searchQuery": string, "reasoning": string}`

func writeDateAnchor(b *strings.Builder, dates DateContext) {
	b.WriteString(fmt.Sprintf("Today is %s, %s. The current year is %d and the previous year was %d.\n",
		dates.DayOfWeek, dates.ISODate, dates.CurrentYear, dates.PreviousYear))
	b.WriteString("Interpret relative phrases such as \"today\", \"recent\", \"last week\" and \"this year\" against this date.\n")
}

func buildNeedPrompt(question string, dates DateContext) string {
	var b strings.Builder
	b.WriteString("Decide whether answering the question below requires a web search.\n")
	writeDateAnchor(&b, dates)
	b.WriteString("Search is needed for information beyond static training knowledge: current events, news, prices, schedules, scores, releases, weather or anything that changes over time.\n")
	b.WriteString("Search is not needed for timeless knowledge: math, established facts, definitions, history, how-to explanations or writing help.\n")
	b.WriteString("Respond with only a JSON object matching ")
	b.WriteString(decisionSchema)
	b.WriteString(". When needsSearch is true, searchQuery must be a concise web search query; otherwise it must be empty.\n")
	b.WriteString("\nQuestion:\n")
	b.WriteString(strings.TrimSpace(question))
	return strings.TrimSpace(b.String())
}

func buildAdequacyPrompt(question, draft string, dates DateContext) string {
	var b strings.Builder
	b.WriteString("Judge whether the draft answer below adequately answers the question without a web search.\n")
	writeDateAnchor(&b, dates)
	b.WriteString("The draft is adequate when it fully answers from general or timeless knowledge and does not hedge about missing current information.\n")
	b.WriteString("The draft is inadequate when it expresses uncertainty about how current it is, says it lacks recent or real-time data, or the question clearly needed current information the draft does not supply.\n")
	b.WriteString("Respond with only a JSON object matching ")
	b.WriteString(decisionSchema)
	b.WriteString(". Set needsSearch to true only when the draft is inadequate, and then give a concise searchQuery that would find the missing information.\n")
	b.WriteString("\nQuestion:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\nDraft answer:\n")
	b.WriteString(strings.TrimSpace(draft))
	return strings.TrimSpace(b.String())
}

const classifierSystemPrompt = "You are a strict classifier. Reply with a single JSON object and nothing else."

func buildAnswerSystemPrompt(dates DateContext, results []search.Result) string {
	var b strings.Builder
	b.WriteString("You are a helpful assistant.\n")
	writeDateAnchor(&b, dates)
	if len(results) == 0 {
		return strings.TrimSpace(b.String())
	}

	b.WriteString("\nWeb search results:\n")
	for i, result := range results {
		b.WriteString(fmt.Sprintf("[%d] %s\n", i+1, strings.TrimSpace(result.Title)))
		b.WriteString("URL: ")
		b.WriteString(strings.TrimSpace(result.Link))
		b.WriteString("\n")
		if snippet := strings.TrimSpace(result.Snippet); snippet != "" {
			b.WriteString(snippet)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Use these results to answer. Cite the sources you rely on as [n] using the numbers above, and say so when the results do not cover the question.")
	return strings.TrimSpace(b.String())
}
