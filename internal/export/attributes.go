package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
)

// multiValueSeparator joins the values collected from a list field.
const multiValueSeparator = "|"

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// AttributeName turns a dotted field path into an attribute name.
func AttributeName(path string) string {
	return storage.NormalizeFieldName(strings.ReplaceAll(path, ".", "_"))
}

// Attributes resolves the selected field paths of rec. A path such as
// "country.name" descends into nested objects; lists contribute every
// element's value joined by "|". Empty values are omitted.
func Attributes(rec storage.RawRecord, paths []string) map[string]string {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		head, rest, _ := strings.Cut(p, ".")
		v, ok := rec.Fields.Get(storage.NormalizeFieldName(head))
		if !ok {
			continue
		}
		vals := resolve(decodeJSONText(v), rest)
		if len(vals) == 0 {
			continue
		}
		out[AttributeName(p)] = strings.Join(vals, multiValueSeparator)
	}
	return out
}

// decodeJSONText reverses the JSON text encoding backends apply to nested
// values.
func decodeJSONText(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	t := strings.TrimSpace(s)
	if t == "" || (t[0] != '{' && t[0] != '[') {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(t), &out); err != nil {
		return v
	}
	return out
}

func resolve(v any, path string) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, resolve(item, path)...)
		}
		return out
	case map[string]any:
		if path == "" {
			return scalar(val)
		}
		head, rest, _ := strings.Cut(path, ".")
		return resolve(val[head], rest)
	default:
		if path != "" {
			return nil
		}
		return scalar(val)
	}
}

func scalar(v any) []string {
	enc, err := storage.EncodeValue(v)
	if err != nil {
		return nil
	}
	s, ok := enc.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	return []string{s}
}

// WriteDoc writes one corpus document:
//
//	<doc id="..." k="v" ...>
//	content lines
//	</doc>
//
// Attributes are sorted by name and an "id" attribute is ignored.
func WriteDoc(w io.Writer, id string, attrs map[string]string, content []string) error {
	names := make([]string, 0, len(attrs))
	for k, v := range attrs {
		if k == "id" || k == "" || strings.TrimSpace(v) == "" {
			continue
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, `<doc id="%s"`, attrEscaper.Replace(id))
	for _, k := range names {
		fmt.Fprintf(&b, ` %s="%s"`, k, attrEscaper.Replace(attrs[k]))
	}
	b.WriteString(">\n")
	for _, line := range content {
		b.WriteString(line)
	}
	b.WriteString("</doc>\n")
	_, err := io.WriteString(w, b.String())
	return err
}
