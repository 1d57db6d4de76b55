// Package markdown turns article artifacts into the markdown documents the
// site builder consumes. Rendering is a pure function of the artifact and a
// template name; the service around it wires blob storage and the publish
// queue.
package markdown

import (
	"fmt"
	"strings"

	"contentmill/internal/domain/entity"
	"contentmill/internal/usecase/process"
)

// Render produces the complete markdown document for an artifact. An
// artifact without a body renders as front matter only.
func Render(a *entity.ArticleArtifact, tpl Template) (string, error) {
	if a == nil {
		return "", fmt.Errorf("nil artifact")
	}
	if err := a.Validate(); err != nil {
		return "", err
	}

	fm, err := FrontMatter(a, tpl)
	if err != nil {
		return "", err
	}

	body := strings.TrimSpace(a.Body())
	if body == "" {
		return fm, nil
	}

	var sb strings.Builder
	sb.WriteString(fm)
	sb.WriteString("\n")
	if tpl == TemplateWithTOC {
		if toc := tableOfContents(body); toc != "" {
			sb.WriteString(toc)
			sb.WriteString("\n")
		}
	}
	sb.WriteString(body)
	sb.WriteString("\n")
	return sb.String(), nil
}

// tableOfContents lists the body's second-level headings as anchor links.
// Lines inside code fences are skipped so shell comments do not become
// entries. Returns "" when the body has no headings.
func tableOfContents(body string) string {
	var entries []string
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		heading, ok := strings.CutPrefix(trimmed, "## ")
		if !ok {
			continue
		}
		heading = strings.TrimSpace(heading)
		anchor := process.GenerateSlug(heading)
		if heading == "" || anchor == "" {
			continue
		}
		entries = append(entries, fmt.Sprintf("- [%s](#%s)", heading, anchor))
	}
	if len(entries) == 0 {
		return ""
	}
	return "## Table of Contents\n\n" + strings.Join(entries, "\n") + "\n"
}
