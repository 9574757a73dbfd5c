package util

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var (
	tmplMu    sync.RWMutex
	tmplCache = map[string]*template.Template{}
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"truncate": func(n int, s string) string {
		r := []rune(s)
		if len(r) <= n {
			return s
		}
		return string(r[:n]) + "..."
	},
}

// RenderTemplate renders text with Go's text/template package. Parsed
// templates are cached by source text.
// This lives in internal to avoid committing to public API stability prematurely.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	tmplMu.RLock()
	tmpl, ok := tmplCache[text]
	tmplMu.RUnlock()
	if !ok {
		parsed, err := template.New("prompt").Funcs(funcs).Option("missingkey=zero").Parse(text)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		tmplMu.Lock()
		tmplCache[text] = parsed
		tmplMu.Unlock()
		tmpl = parsed
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// MustRender is RenderTemplate for templates known to be valid at compile time.
func MustRender(text string, data any) string {
	out, err := RenderTemplate(text, data)
	if err != nil {
		panic(err)
	}
	return out
}
