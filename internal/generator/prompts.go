package generator

import (
	"context"
	"fmt"
	"strings"
)

const generateSystemPrompt = `You are an expert digital product creator specializing in high-converting product descriptions and templates.
Generate product templates in Markdown format that match the structure and style of successful digital products.
Focus on wealth, business, productivity, and entrepreneurship niches.
Create compelling sales copy that converts.`

const reviseSystemPrompt = `You are an expert at optimizing digital product templates for sales performance.`

// Example is the outline of an existing template shown to the model.
type Example struct {
	Title    string
	Sections []string
	Excerpt  string
}

// Outline extracts the title, the "## " section headings and the first
// excerptLen characters of a markdown template.
func Outline(content string, excerptLen int) Example {
	var ex Example
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		l := strings.TrimSpace(line)
		if ex.Title == "" && i < 10 && strings.HasPrefix(l, "# ") {
			ex.Title = strings.TrimSpace(strings.TrimPrefix(l, "# "))
		}
		if strings.HasPrefix(l, "## ") {
			ex.Sections = append(ex.Sections, strings.TrimSpace(strings.TrimPrefix(l, "## ")))
		}
	}
	ex.Excerpt = truncate(content, excerptLen)
	return ex
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// examples outlines up to two of the three most recent templates.
func (g *Generator) examples(ctx context.Context) ([]Example, error) {
	templates, err := g.store.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	var out []Example
	for _, t := range templates {
		if len(out) == 2 {
			break
		}
		out = append(out, Outline(t.Content, 500))
	}
	return out, nil
}

func buildGeneratePrompt(topic, productType string, minLength int, examples []Example) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a new digital product template for a %s product in the %q niche.\n\n", productType, topic)
	b.WriteString("Structure the template as a Markdown file with:\n")
	b.WriteString("1. Title/Name (starting with #)\n")
	b.WriteString("2. Sales Blurb section (## Sales Blurb) - persuasive marketing copy\n")
	b.WriteString("3. Content Structure/Outline section\n")
	b.WriteString("4. Detailed sections as needed\n\n")

	if len(examples) > 0 {
		b.WriteString("Here are examples of successful templates:\n\n")
		for i, ex := range examples {
			sections := ex.Sections
			if len(sections) > 5 {
				sections = sections[:5]
			}
			fmt.Fprintf(&b, "Example %d:\nTitle: %s\nKey Sections: %s\nSample content:\n%s\n\n",
				i+1, ex.Title, strings.Join(sections, ", "), ex.Excerpt)
		}
	}

	fmt.Fprintf(&b, "Create a complete, compelling template for a %s-themed product.\n", topic)
	b.WriteString("Make it engaging, persuasive, and ready to use.\n")
	fmt.Fprintf(&b, "Minimum %d characters. Include a sales blurb, structure outline, and detailed content sections.\n", minLength)
	return b.String()
}
