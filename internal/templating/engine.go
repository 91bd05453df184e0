// Package templating renders message templates with the Liquid template
// language. Rendering is pure: a template plus a variable map always yields
// the same string, and unresolved variables render as the empty string.
package templating

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/osteele/liquid"
)

// Engine renders Liquid templates with a parse cache. Safe for concurrent
// use.
type Engine struct {
	engine *liquid.Engine
	cache  sync.Map // cacheKey -> *liquid.Template
}

// NewEngine creates an engine with the outreach filters registered.
func NewEngine() *Engine {
	e := &Engine{engine: liquid.NewEngine()}
	e.registerFilters()
	return e
}

func (e *Engine) registerFilters() {
	// {{ first_name | default: "there" }}
	e.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
		if value == nil {
			return fallback
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return fallback
		}
		return value
	})

	e.engine.RegisterFilter("capitalize", func(s string) string {
		if s == "" {
			return s
		}
		r := []rune(strings.ToLower(s))
		r[0] = unicode.ToUpper(r[0])
		return string(r)
	})

	e.engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			r := []rune(w)
			r[0] = unicode.ToUpper(r[0])
			words[i] = string(r)
		}
		return strings.Join(words, " ")
	})

	// {{ company_name | truncate: 30 }}
	e.engine.RegisterFilter("truncate", truncate)
}

// truncate shortens s to length runes, ending in "..." when there is room.
// A negative length is treated as 0.
func truncate(s string, length int) string {
	if length < 0 {
		length = 0
	}
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	if length <= 3 {
		return string(r[:length])
	}
	return string(r[:length-3]) + "..."
}

// Validate reports whether tpl parses.
func (e *Engine) Validate(tpl string) error {
	if _, err := e.engine.ParseString(tpl); err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return nil
}

// Render renders tpl with vars. key identifies the template for caching and
// may be empty to skip the cache.
func (e *Engine) Render(key, tpl string, vars map[string]string) (string, error) {
	bindings := make(liquid.Bindings, len(vars))
	for k, v := range vars {
		bindings[k] = v
	}

	var (
		compiled *liquid.Template
		cacheKey = key + "\x00" + tpl
	)
	if key != "" {
		if cached, ok := e.cache.Load(cacheKey); ok {
			compiled = cached.(*liquid.Template)
		}
	}
	if compiled == nil {
		parsed, err := e.engine.ParseString(tpl)
		if err != nil {
			return "", fmt.Errorf("parse template %q: %w", key, err)
		}
		compiled = parsed
		if key != "" {
			e.cache.Store(cacheKey, compiled)
		}
	}

	out, err := compiled.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render template %q: %w", key, err)
	}
	return out, nil
}
