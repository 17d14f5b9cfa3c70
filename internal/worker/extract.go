package worker

import "encoding/json"

// textKeys is the priority order for pulling display text out of an
// arbitrary document object.
var textKeys = []string{"content", "texte_propose", "text", "snippet", "doc_text"}

// ExtractDocumentText normalizes an arbitrary document into the text
// the cross-encoder scores. Strings pass through; objects yield the
// first non-empty well-known field; anything else is serialized whole
// so no document is silently dropped.
func ExtractDocumentText(doc any) string {
	switch v := doc.(type) {
	case string:
		return v
	case map[string]any:
		for _, key := range textKeys {
			if s, ok := v[key].(string); ok && s != "" {
				return s
			}
		}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(raw)
}
