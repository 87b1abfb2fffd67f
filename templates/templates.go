// Package templates renders handlebars expressions inside case
// arguments and harness configuration values, with helpers for random
// and fake data so datasets can avoid hard-coded identifiers.
package templates

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

const (
	alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	numericChars      = "0123456789"
)

var registerOnce sync.Once

// RegisterHelpers installs the custom handlebars helpers. Safe to call
// more than once.
func RegisterHelpers() {
	registerOnce.Do(func() {
		raymond.RegisterHelper("uuid", func() string {
			return uuid.New().String()
		})

		raymond.RegisterHelper("randomValue", func(options *raymond.Options) string {
			length := 10
			if v := options.HashProp("length"); v != nil {
				length = toInt(v, 10)
			}

			chars := alphanumericChars
			if strings.EqualFold(options.HashStr("type"), "NUMERIC") {
				chars = numericChars
			}

			result := randomString(chars, length)
			if raymond.IsTrue(options.HashProp("uppercase")) {
				result = strings.ToUpper(result)
			}
			return result
		})

		raymond.RegisterHelper("randomInt", func(options *raymond.Options) string {
			lower := toInt(options.HashProp("lower"), 0)
			upper := toInt(options.HashProp("upper"), 100)
			if lower > upper {
				lower, upper = upper, lower
			}
			n, err := rand.Int(rand.Reader, big.NewInt(int64(upper-lower+1)))
			if err != nil {
				return "0"
			}
			return big.NewInt(n.Int64() + int64(lower)).String()
		})

		faker := gofakeit.New(0)
		raymond.RegisterHelper("fake", func(options *raymond.Options) string {
			switch strings.ToLower(options.HashStr("type")) {
			case "email":
				return faker.Email()
			case "name":
				return faker.Name()
			case "url":
				return faker.URL()
			case "city":
				return faker.City()
			case "word":
				return faker.Word()
			case "sentence":
				return faker.Sentence(6)
			default:
				return faker.Word()
			}
		})
	})
}

// RenderTemplate applies the variable context to a single templated
// string. On any template error the input is returned untouched, so a
// literal value containing braces never breaks a run.
func RenderTemplate(value string, vars map[string]string) string {
	if !strings.Contains(value, "{{") {
		return value
	}
	RegisterHelpers()

	tpl, err := raymond.Parse(value)
	if err != nil {
		return value
	}
	rendered, err := tpl.Exec(vars)
	if err != nil {
		return value
	}
	return rendered
}

// RenderArgs templates every string leaf of a case's argument map,
// recursing through nested maps and lists. The input is not mutated.
func RenderArgs(args map[string]any, vars map[string]string) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = renderValue(v, vars)
	}
	return out
}

func renderValue(v any, vars map[string]string) any {
	switch val := v.(type) {
	case string:
		return RenderTemplate(val, vars)
	case map[string]any:
		return RenderArgs(val, vars)
	case []any:
		out := make([]any, len(val))
		for i, el := range val {
			out[i] = renderValue(el, vars)
		}
		return out
	default:
		return v
	}
}

func randomString(chars string, length int) string {
	if length <= 0 {
		return ""
	}
	var sb strings.Builder
	max := big.NewInt(int64(len(chars)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return sb.String()
		}
		sb.WriteByte(chars[n.Int64()])
	}
	return sb.String()
}

func toInt(v any, fallback int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		out := fallback
		for _, r := range n {
			if r < '0' || r > '9' {
				return fallback
			}
		}
		if n != "" {
			out = 0
			for _, r := range n {
				out = out*10 + int(r-'0')
			}
		}
		return out
	default:
		return fallback
	}
}
