package embed

import (
	"sort"
	"strconv"
	"strings"
)

// ExtractText builds the embeddable text of a document body. String and
// number fields are included, as are arrays of strings (joined by spaces).
// Fields starting with "$" or "_" and timestamp fields (suffix "At" or
// "_at") are skipped. Keys are visited in sorted order so the result is
// stable.
func ExtractText(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		if skipField(k) {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				parts = append(parts, s)
			}
		case float64:
			parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
		case int:
			parts = append(parts, strconv.Itoa(v))
		case int64:
			parts = append(parts, strconv.FormatInt(v, 10))
		case []any:
			var words []string
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					words = append(words, s)
				}
			}
			if len(words) > 0 {
				parts = append(parts, strings.Join(words, " "))
			}
		case []string:
			if len(v) > 0 {
				parts = append(parts, strings.Join(v, " "))
			}
		}
	}
	return strings.Join(parts, " ")
}

func skipField(k string) bool {
	if strings.HasPrefix(k, "$") || strings.HasPrefix(k, "_") {
		return true
	}
	return strings.HasSuffix(k, "At") || strings.HasSuffix(k, "_at")
}
