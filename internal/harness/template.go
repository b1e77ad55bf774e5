package harness

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"text/template"

	"github.com/google/uuid"

	"github.com/sergheinarushev/realworld-app/internal/fixture"
	"github.com/sergheinarushev/realworld-app/internal/money"
)

// templateData is the dot of every scenario template.
type templateData struct {
	Vars     map[string]any
	Captured map[string]any
	Fixture  *fixture.Snapshot
	User     fixture.User
}

func (d *templateData) funcs() template.FuncMap {
	return template.FuncMap{
		"uuid": uuid.NewString,
		"usd": func(v any) (string, error) {
			minor, err := toInt64(v)
			if err != nil {
				return "", fmt.Errorf("usd: %w", err)
			}
			return money.FormatUSD(minor), nil
		},
		"digits": func(n int) string {
			var b strings.Builder
			for range n {
				b.WriteByte(byte('0' + rand.IntN(10)))
			}
			return b.String()
		},
		"user": func(username string) (fixture.User, error) {
			return d.Fixture.UserByUsername(username)
		},
		"userByID": func(id string) (fixture.User, error) {
			return d.Fixture.UserByID(id)
		},
		"transaction": func(id string) (fixture.Transaction, error) {
			return d.Fixture.TransactionByID(id)
		},
	}
}

// render expands s. Strings without an action are returned unchanged.
func (d *templateData) render(s string) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}
	tmpl, err := template.New("").Option("missingkey=error").Funcs(d.funcs()).Parse(s)
	if err != nil {
		return "", fmt.Errorf("template %q: %w", s, err)
	}
	var buf strings.Builder
	if err := tmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("template %q: %w", s, err)
	}
	return buf.String(), nil
}

// renderValue expands every string inside v, recursing into maps and lists.
func (d *templateData) renderValue(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return d.render(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := d.renderValue(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := d.renderValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

func (d *templateData) renderMap(m map[string]any) (map[string]any, error) {
	if m == nil {
		return nil, nil
	}
	v, err := d.renderValue(m)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != float64(int64(n)) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int64(n), nil
	case json.Number:
		return n.Int64()
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("unsupported type %T", v)
}
