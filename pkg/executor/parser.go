package executor

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUnbalancedOutput is returned when the assistant's response has no
// balanced `[...]` block to decode (§7 ParseError).
var ErrUnbalancedOutput = fmt.Errorf("executor: no balanced JSON array found in model output")

// curlyQuoteReplacer normalizes the Unicode curly quotes models commonly emit
// around string values back to ASCII so gjson can parse them reliably (§4.F).
var curlyQuoteReplacer = strings.NewReplacer(
	"“", `"`, // left double quotation mark
	"”", `"`, // right double quotation mark
	"‘", `'`, // left single quotation mark
	"’", `'`, // right single quotation mark
)

// parseFullDecisionResponse implements the §4.F output-parsing algorithm:
// reasoning prose is everything before the first '[', the first balanced
// '[...]' block is the JSON payload, curly quotes are normalized before
// decoding, and the result is an ordered list of Decisions. Individual
// malformed array elements are skipped rather than failing the whole batch,
// so one bad element doesn't discard an otherwise-good cycle.
func parseFullDecisionResponse(raw string) (*FullDecision, error) {
	idx := strings.IndexByte(raw, '[')
	if idx < 0 {
		return &FullDecision{CoTTrace: strings.TrimSpace(raw)}, ErrUnbalancedOutput
	}
	reasoning := strings.TrimSpace(raw[:idx])

	block, err := extractBalancedArray(raw[idx:])
	if err != nil {
		return &FullDecision{CoTTrace: reasoning}, err
	}

	normalized := curlyQuoteReplacer.Replace(block)
	parsed := gjson.Parse(normalized)
	if !parsed.IsArray() {
		return &FullDecision{CoTTrace: reasoning}, fmt.Errorf("executor: decision payload is not a JSON array")
	}

	var decisions []Decision
	parsed.ForEach(func(_, elem gjson.Result) bool {
		if !elem.IsObject() {
			return true
		}
		decisions = append(decisions, Decision{
			Symbol:          strings.ToUpper(strings.TrimSpace(elem.Get("symbol").String())),
			Action:          Action(strings.ToLower(strings.TrimSpace(elem.Get("action").String()))),
			Leverage:        elem.Get("leverage").Float(),
			PositionSizeUSD: elem.Get("position_size_usd").Float(),
			StopLoss:        elem.Get("stop_loss").Float(),
			TakeProfit:      elem.Get("take_profit").Float(),
			Confidence:      elem.Get("confidence").Float(),
			RiskUSD:         elem.Get("risk_usd").Float(),
			Reasoning:       elem.Get("reasoning").String(),
		})
		return true
	})

	return &FullDecision{CoTTrace: reasoning, Decisions: decisions}, nil
}

// extractBalancedArray scans s (which must start with '[') for the first
// balanced bracket block, respecting string literals so brackets inside
// quoted values never confuse the depth count.
func extractBalancedArray(s string) (string, error) {
	depth := 0
	inString := false
	escaped := false

	for i, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}

		switch r {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[:i+1], nil
			}
		}
	}
	return "", ErrUnbalancedOutput
}
