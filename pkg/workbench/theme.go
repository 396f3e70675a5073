package workbench

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// ThemeVarPrefix is prepended to every theme key to form the CSS custom property name.
const ThemeVarPrefix = "--host-"

// Theme maps variable names (without the prefix) to CSS values.
type Theme map[string]string

// DefaultTheme is a dark palette covering every variable the chat view reads.
func DefaultTheme() Theme {
	return Theme{
		"editor-background":          "#1e1e1e",
		"editor-foreground":          "#d4d4d4",
		"font-family":                "-apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif",
		"font-size":                  "13px",
		"button-background":          "#0e639c",
		"button-foreground":          "#ffffff",
		"button-hover-background":    "#1177bb",
		"input-background":           "#3c3c3c",
		"input-foreground":           "#cccccc",
		"input-border":               "#3c3c3c",
		"panel-border":               "#80808059",
		"focus-border":               "#007fd4",
		"description-foreground":     "#9d9d9d",
		"scrollbar-background":       "#79797966",
		"scrollbar-hover-background": "#646464b3",
	}
}

var (
	themeNameRE    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	themeBadValues = "{};<>\\"
)

// Merge returns a copy of t with the entries of overrides applied.
func (t Theme) Merge(overrides map[string]string) Theme {
	out := Theme{}
	for k, v := range t {
		out[k] = v
	}
	for k, v := range overrides {
		out[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

// CSS renders the theme as a :root block. Entries with invalid names or values that
// could escape the declaration are skipped.
func (t Theme) CSS() string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root {\n")
	for _, k := range keys {
		v := t[k]
		if !themeNameRE.MatchString(k) || v == "" || strings.ContainsAny(v, themeBadValues) {
			log.Warn().Str("component", "workbench").Str("key", k).Msg("skipping invalid theme entry")
			continue
		}
		b.WriteString("\t")
		b.WriteString(ThemeVarPrefix)
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString(";\n")
	}
	b.WriteString("}\n")
	return b.String()
}
