package markdown

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"contentmill/internal/domain/entity"
)

// FrontMatter renders the artifact's YAML front matter delimited by "---"
// lines. Keys are emitted through yaml.Node in a fixed order, so re-rendering
// an unchanged artifact produces byte-identical output. The minimal template
// keeps only the keys every theme needs.
func FrontMatter(a *entity.ArticleArtifact, tpl Template) (string, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	putString(doc, "title", CleanTitle(a.Title))
	putString(doc, "url", strings.TrimSpace(a.SourceURL()))
	putString(doc, "source", a.SourceTag())
	putString(doc, "date", a.PublishedDate)

	if tpl != TemplateMinimal {
		if a.Author != "" {
			putString(doc, "author", a.Author)
		}
		if len(a.Tags) > 0 {
			putStrings(doc, "tags", a.Tags)
		}
		if a.Category != "" {
			putString(doc, "category", a.Category)
		}
		if a.HeroImage != "" {
			cover := &yaml.Node{Kind: yaml.MappingNode}
			putString(cover, "image", strings.TrimSpace(a.HeroImage))
			putString(cover, "alt", CleanTitle(a.ImageAlt))
			putString(cover, "caption", a.ImageCredit)
			putNode(doc, "cover", cover)
		}
	}

	var sb strings.Builder
	enc := yaml.NewEncoder(&sb)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encoding front matter: %w", err)
	}
	return "---\n" + sb.String() + "---\n", nil
}

func putString(m *yaml.Node, key, value string) {
	putNode(m, key, &yaml.Node{Kind: yaml.ScalarNode, Value: value})
}

func putStrings(m *yaml.Node, key string, values []string) {
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, v := range values {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: v})
	}
	putNode(m, key, seq)
}

func putNode(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		value,
	)
}
