package providers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/pkg/httpclient"
)

// Supported provider types.
const (
	ProviderTypeGoogleNews = "google-news"
	ProviderTypeRSS        = "rss"
)

// HTTPClient is the outbound client fetchers use.
type HTTPClient = httpclient.Client

// Provider is one news source declared in the providers file.
type Provider struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	Type           string            `yaml:"type"`
	SourceURL      string            `yaml:"source_url"`
	UserAgent      string            `yaml:"user_agent"`
	Headers        map[string]string `yaml:"headers"`
	RequestDelayMs int               `yaml:"request_delay_ms"`
	Enabled        *bool             `yaml:"enabled"`
}

// RequestDelay is the pause between article requests to this provider.
func (p Provider) RequestDelay() time.Duration {
	if p.RequestDelayMs <= 0 {
		return 0
	}
	return time.Duration(p.RequestDelayMs) * time.Millisecond
}

// EnabledValue returns the enabled flag defaulting to true.
func (p Provider) EnabledValue() bool {
	return p.Enabled == nil || *p.Enabled
}

// Headers returns the request headers for a provider.
func Headers(p Provider) map[string]string {
	out := make(map[string]string, len(p.Headers)+1)
	for k, v := range p.Headers {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = strings.TrimSpace(v)
		}
	}
	if ua := strings.TrimSpace(p.UserAgent); ua != "" {
		out["User-Agent"] = ua
	}
	return out
}

// Fetcher retrieves article candidates from one kind of provider.
type Fetcher interface {
	ID() string
	Fetch(ctx context.Context, cfg Provider) ([]domain.Article, error)
}

// FetcherRegistry selects the fetcher for a provider.
type FetcherRegistry interface {
	FetcherFor(cfg Provider) (Fetcher, error)
}

type providersFile struct {
	Providers []Provider `yaml:"providers"`
}

// LoadProviders reads providers from a YAML file. ${VAR} references are
// expanded from the environment.
func LoadProviders(path string) ([]Provider, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("providers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &file); err != nil {
		return nil, fmt.Errorf("decode providers file: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, errors.New("providers file contains no providers")
	}

	seen := make(map[string]struct{}, len(file.Providers))
	out := make([]Provider, 0, len(file.Providers))
	for i, p := range file.Providers {
		p.ID = strings.ToLower(strings.TrimSpace(p.ID))
		p.Type = strings.ToLower(strings.TrimSpace(p.Type))
		p.SourceURL = strings.TrimSpace(p.SourceURL)
		if p.ID == "" {
			return nil, fmt.Errorf("providers[%d]: id is required", i)
		}
		if p.Type == "" {
			return nil, fmt.Errorf("provider %q: type is required", p.ID)
		}
		if p.SourceURL == "" {
			return nil, fmt.Errorf("provider %q: source_url is required", p.ID)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out, nil
}
