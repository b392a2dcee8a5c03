package ingest

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
)

type companiesFile struct {
	Companies []domain.Company `yaml:"companies"`
}

// LoadCompanies reads the monitored companies from a YAML file. A company
// without keywords is matched by its name.
func LoadCompanies(path string) ([]domain.Company, error) {
	raw, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("read companies file: %w", err)
	}

	var file companiesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode companies file: %w", err)
	}
	if len(file.Companies) == 0 {
		return nil, errors.New("companies file contains no companies")
	}

	seen := make(map[string]struct{}, len(file.Companies))
	out := make([]domain.Company, 0, len(file.Companies))
	for i, c := range file.Companies {
		c.ID = strings.ToLower(strings.TrimSpace(c.ID))
		c.Name = strings.TrimSpace(c.Name)
		if c.ID == "" || c.Name == "" {
			return nil, fmt.Errorf("companies[%d]: id and name are required", i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate company id %q", c.ID)
		}
		seen[c.ID] = struct{}{}

		var kws []string
		for _, k := range c.Keywords {
			if k = strings.TrimSpace(k); k != "" {
				kws = append(kws, k)
			}
		}
		if len(kws) == 0 {
			kws = []string{c.Name}
		}
		c.Keywords = kws
		out = append(out, c)
	}
	return out, nil
}

// matcher finds the companies an article mentions.
type matcher struct {
	companies []domain.Company
	keywords  [][]string
}

func newMatcher(companies []domain.Company) *matcher {
	m := &matcher{companies: companies, keywords: make([][]string, len(companies))}
	for i, c := range companies {
		for _, k := range c.Keywords {
			m.keywords[i] = append(m.keywords[i], strings.ToLower(k))
		}
	}
	return m
}

// Match returns the ids of companies whose keywords occur in the article
// title, description or keywords, in company order.
func (m *matcher) Match(a domain.Article) []string {
	haystack := strings.ToLower(strings.Join(append([]string{a.Title, a.Description}, a.Keywords...), "\n"))
	var ids []string
	for i, c := range m.companies {
		for _, k := range m.keywords[i] {
			if strings.Contains(haystack, k) {
				ids = append(ids, c.ID)
				break
			}
		}
	}
	return ids
}
