package dedup

import (
	"fmt"
	"os"
	"strings"
)

// judgePromptTemplate asks for a verdict token on the first line and a short
// reason after it. Contents are sanitized before interpolation.
const judgePromptTemplate = `You are comparing two memory entries from an AI agent's long-term memory.

Entry A:
%s

Entry B:
%s

Do these entries record the same fact or instruction?

Answer on the first line with exactly one of: DUPLICATE, DISTINCT, UNCERTAIN.
On the following line, give a one-sentence reason.`

// maxJudgeContent caps each side of the comparison, in runes.
const maxJudgeContent = 500

// FormatJudgePrompt builds the tier-3 prompt. Each content is truncated to
// 500 runes and format-sensitive characters are escaped before interpolation
// so memory content can't inject into the template.
func FormatJudgePrompt(a, b string) string {
	return fmt.Sprintf(judgePromptTemplate, sanitizeContent(a), sanitizeContent(b))
}

func sanitizeContent(s string) string {
	runes := []rune(s)
	if len(runes) > maxJudgeContent {
		s = string(runes[:maxJudgeContent]) + "..."
	}
	return strings.ReplaceAll(s, "%", "%%")
}

// ParseVerdict extracts a verdict from the judge's free-text response.
// The uppercased response is scanned for the literal tokens DUPLICATE,
// DISTINCT, UNCERTAIN in that priority order; first match wins. No match or
// empty input yields UNCERTAIN. Text after the first line is the reason.
func ParseVerdict(response string) (Verdict, string) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return VerdictUncertain, ""
	}

	var reason string
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		reason = strings.TrimSpace(trimmed[idx+1:])
	}

	upper := strings.ToUpper(trimmed)
	for _, v := range []Verdict{VerdictDuplicate, VerdictDistinct, VerdictUncertain} {
		if strings.Contains(upper, string(v)) {
			return v, reason
		}
	}
	return VerdictUncertain, reason
}

// CreateJudge builds a judge for the named provider. Known providers return
// a constructed client; "none" or an unrecognized name returns nil, which
// the cascade treats as tier 3 unavailable. API keys come from the
// environment (OPENAI_API_KEY, ANTHROPIC_API_KEY).
func CreateJudge(provider, model string) Judge {
	switch strings.ToLower(provider) {
	case "openai":
		return NewOpenAIJudge(os.Getenv("OPENAI_API_KEY"), model)
	case "anthropic":
		return NewAnthropicJudge(os.Getenv("ANTHROPIC_API_KEY"), model)
	default:
		return nil
	}
}
