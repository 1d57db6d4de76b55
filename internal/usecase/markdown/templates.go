package markdown

import "fmt"

// Template selects the page layout Render produces.
type Template string

const (
	// TemplateDefault renders full front matter followed by the body.
	TemplateDefault Template = "default"

	// TemplateMinimal renders only the required front-matter keys and the
	// body, for themes that derive everything else themselves.
	TemplateMinimal Template = "minimal"

	// TemplateWithTOC is TemplateDefault plus a table of contents generated
	// from the body's second-level headings.
	TemplateWithTOC Template = "with-toc"
)

// ParseTemplate validates a template name from a queue message or config.
// The empty string selects the default.
func ParseTemplate(name string) (Template, error) {
	switch Template(name) {
	case "":
		return TemplateDefault, nil
	case TemplateDefault, TemplateMinimal, TemplateWithTOC:
		return Template(name), nil
	default:
		return "", fmt.Errorf("unknown markdown template %q", name)
	}
}
