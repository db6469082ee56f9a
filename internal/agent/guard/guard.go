// Package guard screens data that flows back to the model from the document
// store. Product names, notes and customer fields are free text and may
// carry injected instructions.
package guard

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/wasilibs/go-re2"
	"golang.org/x/text/unicode/norm"
)

// DefaultRiskThreshold is the score at which content is withheld entirely.
const DefaultRiskThreshold = 30

// Config configures a Validator.
type Config struct {
	RiskThreshold int
}

type pattern struct {
	re     *re2.Regexp
	kind   string
	weight int
}

// Паттерны проверяются на нормализованном тексте (NFKC, lower case)
var patterns = []pattern{
	{re2.MustCompile(`(?i)(system|assistant|user)\s*:\s*`), "role_manipulation", 20},
	{re2.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+(instructions?|rules?|prompts?)`), "role_manipulation", 30},
	{re2.MustCompile(`(?i)forget\s+(all\s+)?(previous|prior)\s+(instructions?|rules?|prompts?)`), "role_manipulation", 30},
	{re2.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+(assistant|system|ai|expert)`), "role_manipulation", 25},
	{re2.MustCompile(`(?i)new\s+instructions?\s*:`), "direct_injection", 25},
	{re2.MustCompile(`(?i)override\s+(previous|prior|default|system)\s+(instructions?|rules?)`), "direct_injection", 25},
	{re2.MustCompile(`[A-Za-z0-9+/]{200,}={0,2}`), "encoded_injection", 15},
	{re2.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}]`), "encoded_injection", 20},
	{re2.MustCompile(`<\|(?:system|assistant|user|im_start|im_end)[^|]*\|>`), "delimiter_attack", 25},
	{re2.MustCompile(`(?i)</?\s*(system|assistant|instructions?)\s*>`), "delimiter_attack", 25},
}

// Validator scores text against the injection patterns.
type Validator struct {
	threshold int
}

// NewValidator creates a Validator; zero threshold means DefaultRiskThreshold.
func NewValidator(cfg Config) *Validator {
	if cfg.RiskThreshold <= 0 {
		cfg.RiskThreshold = DefaultRiskThreshold
	}
	return &Validator{threshold: cfg.RiskThreshold}
}

// Verdict is the outcome of Validate.
type Verdict struct {
	Safe      bool
	Detected  []string
	RiskScore int
}

// Validate scores content. Any matched pattern makes it unsafe; reaching
// the threshold means it should not be forwarded at all.
func (v *Validator) Validate(content string) Verdict {
	res := Verdict{Safe: true}
	if content == "" {
		return res
	}

	normalized := normalize(content)
	for _, p := range patterns {
		// Raw text as well, zero-width characters do not survive normalize.
		if p.re.MatchString(normalized) || p.re.MatchString(content) {
			res.Safe = false
			res.Detected = append(res.Detected, p.kind)
			res.RiskScore += p.weight
		}
	}

	if float64(countControlChars(content))/float64(len(content)+1) > 0.1 {
		res.Safe = false
		res.Detected = append(res.Detected, "high_control_char_ratio")
		res.RiskScore += 25
	}
	return res
}

// Blocked reports whether the verdict reached the threshold.
func (v *Validator) Blocked(res Verdict) bool {
	return res.RiskScore >= v.threshold
}

// ToolOutput prepares a tool result for the model: clean output is wrapped
// in untrusted-data markers, suspicious fragments are redacted and output
// scoring above the threshold is withheld.
func (v *Validator) ToolOutput(output string) string {
	res := v.Validate(output)
	if res.Safe {
		return WrapExternal(output)
	}
	if v.Blocked(res) {
		return fmt.Sprintf("[WITHHELD - risk: %d, patterns: %v]", res.RiskScore, res.Detected)
	}
	return WrapExternal(Redact(output))
}

// Redact replaces every pattern match with [REDACTED].
func Redact(content string) string {
	out := content
	for _, p := range patterns {
		out = p.re.ReplaceAllString(out, "[REDACTED]")
	}
	return out
}

// WrapExternal brackets content with a random marker so the system prompt
// can tell the model which text is data.
func WrapExternal(content string) string {
	marker := "[DATA:" + uuid.New().String()[:8] + "]"
	return marker + "\n" + content + "\n" + marker
}

// IsWithheld reports whether s is a withheld tool output.
func IsWithheld(s string) bool {
	return strings.HasPrefix(s, "[WITHHELD")
}

func countControlChars(s string) int {
	count := 0
	for _, r := range s {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			count++
		}
	}
	return count
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range norm.NFKC.String(s) {
		if r >= 32 || r == '\n' || r == '\t' {
			b.WriteRune(r)
		}
	}
	return strings.ToLower(b.String())
}
