package usecase

import (
	"strings"

	"dialogue-orchestrator/internal/domain/model"

	"github.com/tidwall/gjson"
)

const verdictUnknown = "unknown"

// ParseRuling splits evaluator output into commentary and a verdict. The
// evaluator is asked to finish with {"risk":..,"quality":..,"score":..}; the
// last JSON object in the text that carries any of those keys wins. Missing
// fields fall back to "unknown" and score 0.
func ParseRuling(text string) (commentary string, v model.Verdict) {
	commentary = strings.TrimSpace(text)
	v = model.Verdict{Risk: verdictUnknown, Quality: verdictUnknown}

	obj, start := lastVerdictObject(text)
	if obj == "" {
		return commentary, v
	}
	res := gjson.Parse(obj)
	if r := res.Get("risk"); r.Exists() && r.String() != "" {
		v.Risk = strings.ToLower(r.String())
	}
	if q := res.Get("quality"); q.Exists() && q.String() != "" {
		v.Quality = strings.ToLower(q.String())
	}
	if s := res.Get("score"); s.Exists() {
		v.Score = int(s.Int())
	}
	if c := strings.TrimSpace(text[:start]); c != "" {
		commentary = strings.TrimSpace(strings.TrimSuffix(c, "```json"))
	}
	return commentary, v
}

// lastVerdictObject scans backwards for a balanced {...} that gjson accepts
// and that has at least one verdict key.
func lastVerdictObject(text string) (string, int) {
	for end := strings.LastIndexByte(text, '}'); end >= 0; end = strings.LastIndexByte(text[:end], '}') {
		depth := 0
		for i := end; i >= 0; i-- {
			switch text[i] {
			case '}':
				depth++
			case '{':
				depth--
			}
			if depth == 0 {
				cand := text[i : end+1]
				if gjson.Valid(cand) {
					r := gjson.Parse(cand)
					if r.Get("risk").Exists() || r.Get("quality").Exists() || r.Get("score").Exists() {
						return cand, i
					}
				}
				break
			}
		}
	}
	return "", 0
}
