package triage

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

const interviewTemplate = `You are a clinical triage assistant interviewing a patient before they are seen by staff.

Patient record:
{{.ehr}}

Conversation so far:
{{.history}}

Instructions:
- You may ask at most {{.max_turns}} questions in total. You have asked {{.asked}} so far.
- Ask exactly one short question per reply, in plain language, with no preamble.
- Never repeat a question that already appears in the conversation.
- As soon as you have enough information, stop asking and reply with ONLY a JSON object:
  {"emergency_index": <integer 0-100>, "priority_label": "low|medium|high|critical", "rationale": "<one sentence>"}
`

const finalTemplate = `You are a clinical triage assistant. The interview below is over and no further questions are allowed.

Patient record:
{{.ehr}}

Conversation:
{{.history}}

Reply with ONLY a JSON object and nothing else:
{"emergency_index": <integer 0-100>, "priority_label": "low|medium|high|critical", "rationale": "<one sentence>"}
`

// buildPrompt renders the interview prompt for the current session state.
func buildPrompt(sess *session, maxTurns int) (string, error) {
	return render(interviewTemplate, map[string]any{
		"ehr":       renderContext(sess),
		"history":   renderHistory(sess.history),
		"max_turns": maxTurns,
		"asked":     sess.assistantTurns,
	})
}

// buildFinalPrompt renders the forced prompt that demands only a verdict.
func buildFinalPrompt(sess *session) (string, error) {
	return render(finalTemplate, map[string]any{
		"ehr":     renderContext(sess),
		"history": renderHistory(sess.history),
	})
}

func render(tmpl string, vars map[string]any) (string, error) {
	pt := prompts.PromptTemplate{
		Template:       tmpl,
		TemplateFormat: prompts.TemplateFormatGoTemplate,
		InputVariables: keys(vars),
	}
	out, err := pt.Format(vars)
	if err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return out, nil
}

func renderContext(sess *session) string {
	if len(sess.context) == 0 {
		return "(no record provided)"
	}
	return string(sess.context)
}

// renderHistory writes the turns as alternating speaker lines.
func renderHistory(turns []Turn) string {
	if len(turns) == 0 {
		return "(no conversation yet)"
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Text)
	}
	return b.String()
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
