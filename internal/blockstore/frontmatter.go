package blockstore

import (
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var frontMatterPattern = regexp.MustCompile(`(?s)^---\n(.*?)\n---\n?`)

// parseFrontMatter splits a stored file's content into its front-matter and
// body. Missing or invalid front-matter yields a zero-value frontMatter and
// the entire content as body — a permissive reader, per spec §4.1.
func parseFrontMatter(content string) (frontMatter, string) {
	loc := frontMatterPattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return frontMatter{}, content
	}
	yamlBlock := content[loc[2]:loc[3]]
	body := content[loc[1]:]
	body = strings.TrimPrefix(body, "\n")

	var fm frontMatter
	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return frontMatter{}, content
	}
	return fm, body
}

// formatFrontMatter renders a file's stored form: YAML front-matter,
// delimiters, then body.
func formatFrontMatter(fm frontMatter, body string) (string, error) {
	encoded, err := yaml.Marshal(&fm)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(encoded)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String(), nil
}

// defaultTitle derives a display title from a label: underscores become
// spaces, then title-cased, e.g. "origin_story" -> "Origin Story".
func defaultTitle(label string) string {
	words := strings.Split(strings.ReplaceAll(label, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseISO(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
