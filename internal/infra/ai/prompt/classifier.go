package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bryanwahyu/contractgate/internal/domain/ai"
	domain "github.com/bryanwahyu/contractgate/internal/domain/analyses"
)

// clauseSchema is the shape the classifier must return.
const clauseSchema = `{
  "type": "object",
  "required": ["safe", "risk"],
  "properties": {
    "safe": {"type": "array", "items": {"type": "string"}},
    "risk": {"type": "array", "items": {"type": "string"}}
  }
}`

var compiledClauseSchema = jsonschema.MustCompileString("clauses.json", clauseSchema)

var errNoJSONObject = errors.New("no JSON object in model output")

// GetClassifierSystemPrompt asks for JSON only, with the same injection guard.
func GetClassifierSystemPrompt() string {
	return "Você é assistente jurídico resumindo e classificando cláusulas.\n" +
		`Responda somente com um objeto JSON no formato {"safe": ["..."], "risk": ["..."]}, ` +
		"onde cada item é o resumo de uma cláusula em uma frase.\n\n" + injectionGuard
}

// GetClassifierUserPrompt wraps the clause block between the document markers.
func GetClassifierUserPrompt(clauses string) string {
	return fmt.Sprintf(
		"Separe as cláusulas em \"safe\" (seguras) e \"risk\" (riscos), resuma cada uma, e retorne apenas JSON.\n\n%s\n%s\n%s",
		documentStart, fenceText(clauses), documentEnd,
	)
}

// Classifier implements analyses.Classifier.
type Classifier struct {
	Client ai.Client
}

func NewClassifier(client ai.Client) *Classifier {
	return &Classifier{Client: client}
}

func (c *Classifier) Classify(ctx context.Context, clauses string) (domain.ClauseSummary, error) {
	raw, err := c.Client.Complete(ctx, GetClassifierSystemPrompt(), GetClassifierUserPrompt(clauses))
	if err != nil {
		return domain.ClauseSummary{}, err
	}
	return ParseClauseSummary(raw)
}

// ParseClauseSummary pulls the JSON object out of a model response. Text
// around the object and markdown code fences are tolerated.
func ParseClauseSummary(raw string) (domain.ClauseSummary, error) {
	candidate, ok := firstJSONObject(raw)
	if !ok {
		candidate = stripFences(raw)
	}
	var doc any
	if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
		if !ok {
			err = errNoJSONObject
		}
		return domain.ClauseSummary{}, &domain.ParseError{Raw: raw, Err: err}
	}

	doc = normalizeClauseItems(doc)
	if err := compiledClauseSchema.Validate(doc); err != nil {
		return domain.ClauseSummary{}, &domain.ParseError{Raw: raw, Err: fmt.Errorf("json does not match schema: %w", err)}
	}

	m := doc.(map[string]any)
	return domain.ClauseSummary{
		Safe: toStrings(m["safe"]),
		Risk: toStrings(m["risk"]),
	}, nil
}

// firstJSONObject returns the span from the first '{' to the last '}'.
func firstJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}

func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// normalizeClauseItems flattens object items ({"resumo": "...", "titulo": "..."})
// into one string, values joined in key order, so slightly off-format answers
// still validate. Anything else is left for the schema to reject.
func normalizeClauseItems(doc any) any {
	m, ok := doc.(map[string]any)
	if !ok {
		return doc
	}
	for _, key := range []string{"safe", "risk"} {
		arr, ok := m[key].([]any)
		if !ok {
			continue
		}
		for i, item := range arr {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			var parts []string
			for _, k := range keys {
				if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
					parts = append(parts, strings.TrimSpace(s))
				}
			}
			if len(parts) > 0 {
				arr[i] = strings.Join(parts, ": ")
			}
		}
	}
	return m
}

func toStrings(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, it := range arr {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
