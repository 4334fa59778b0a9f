package studio

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Snippet is a prompt fragment the UI appends to the user's prompt.
type Snippet struct {
	ID     string `yaml:"id" json:"id"`
	Label  string `yaml:"label" json:"label"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// SnippetCategory groups snippets under a heading.
type SnippetCategory struct {
	ID       string    `yaml:"id" json:"id"`
	Title    string    `yaml:"title" json:"title"`
	Snippets []Snippet `yaml:"snippets" json:"snippets"`
}

// Plan is a monthly token subscription on offer.
type Plan struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Price         string   `yaml:"price" json:"price"`
	MonthlyTokens int64    `yaml:"monthly_tokens" json:"monthly_tokens"`
	Popular       bool     `yaml:"popular" json:"popular"`
	Features      []string `yaml:"features" json:"features"`
}

// TokenPack is a one-time token purchase.
type TokenPack struct {
	ID      string `yaml:"id" json:"id"`
	Price   string `yaml:"price" json:"price"`
	Tokens  int64  `yaml:"tokens" json:"tokens"`
	OneTime bool   `yaml:"one_time" json:"one_time"`
}

// Catalog is the static content served to the studio UI.
type Catalog struct {
	SnippetCategories []SnippetCategory `yaml:"snippet_categories" json:"snippet_categories"`
	Plans             []Plan            `yaml:"plans" json:"plans"`
	TokenPacks        []TokenPack       `yaml:"token_packs" json:"token_packs"`
	Currency          string            `yaml:"currency" json:"currency"`
}

// LoadCatalog parses the catalog compiled into the binary.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog parses and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("studio: parse catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Snippet looks up a snippet by id.
func (c *Catalog) Snippet(id string) (Snippet, bool) {
	for _, cat := range c.SnippetCategories {
		for _, s := range cat.Snippets {
			if s.ID == id {
				return s, true
			}
		}
	}
	return Snippet{}, false
}

func (c *Catalog) validate() error {
	seen := make(map[string]bool)
	for _, cat := range c.SnippetCategories {
		if cat.Title == "" {
			return fmt.Errorf("studio: catalog category %q has no title", cat.ID)
		}
		for _, s := range cat.Snippets {
			if s.ID == "" || s.Prompt == "" {
				return fmt.Errorf("studio: catalog category %q has a snippet without id or prompt", cat.Title)
			}
			if seen[s.ID] {
				return fmt.Errorf("studio: duplicate snippet id %q", s.ID)
			}
			seen[s.ID] = true
		}
	}
	for _, p := range c.Plans {
		if p.ID == "" || p.MonthlyTokens <= 0 {
			return fmt.Errorf("studio: plan %q needs an id and a positive token amount", p.Name)
		}
	}
	for _, p := range c.TokenPacks {
		if p.Tokens <= 0 {
			return fmt.Errorf("studio: token pack %q needs a positive token amount", p.ID)
		}
	}
	return nil
}
