package publishers

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TypeQueue = "queue"
	TypeHTTP  = "http"

	QueueProviderAWSSQS = "aws-sqs"
	QueueProviderAWSSNS = "aws-sns"
	QueueProviderAzure  = "azure"
	QueueProviderGCP    = "gcp"

	httpDefaultMethod         = "POST"
	httpDefaultTimeoutSeconds = 5
)

type fileLayout struct {
	Publishers []Config `json:"publishers" yaml:"publishers"`
}

// Config declares one event sink.
type Config struct {
	ID      string       `json:"id" yaml:"id"`
	Type    string       `json:"type" yaml:"type"`
	Enabled *bool        `json:"enabled" yaml:"enabled"`
	Events  []string     `json:"events" yaml:"events"`
	Queue   *QueueConfig `json:"queue" yaml:"queue"`
	HTTP    *HTTPConfig  `json:"http" yaml:"http"`
}

// QueueConfig selects a cloud queue provider and its settings.
type QueueConfig struct {
	Provider string        `json:"provider" yaml:"provider"`
	SQS      *SQSConfig    `json:"sqs" yaml:"sqs"`
	SNS      *SNSConfig    `json:"sns" yaml:"sns"`
	GCP      *PubSubConfig `json:"gcp" yaml:"gcp"`
}

// AWSCredentials are optional static keys. When both are empty the default
// AWS credential chain is used.
type AWSCredentials struct {
	Region          string `json:"region" yaml:"region"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

type SQSConfig struct {
	QueueURL       string `json:"queue_url" yaml:"queue_url"`
	AWSCredentials `yaml:",inline"`
}

type SNSConfig struct {
	TopicARN       string `json:"topic_arn" yaml:"topic_arn"`
	AWSCredentials `yaml:",inline"`
}

type PubSubConfig struct {
	ProjectID       string `json:"project_id" yaml:"project_id"`
	Topic           string `json:"topic" yaml:"topic"`
	CredentialsFile string `json:"credentials_file" yaml:"credentials_file"`
}

// HTTPConfig posts events as JSON to a webhook.
type HTTPConfig struct {
	URL            string            `json:"url" yaml:"url"`
	Method         string            `json:"method" yaml:"method"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	TimeoutSeconds int               `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// EnabledValue returns the enabled flag defaulting to true.
func (c Config) EnabledValue() bool {
	return c.Enabled == nil || *c.Enabled
}

// Accepts reports whether the sink subscribes to the event type. An empty
// Events list subscribes to everything.
func (c Config) Accepts(eventType string) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, e := range c.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// LoadConfigs reads publisher definitions from a YAML or JSON file,
// expanding ${ENV} references first.
func LoadConfigs(path string) ([]Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}
	return ParseConfigs([]byte(os.ExpandEnv(string(raw))), filepath.Ext(path))
}

// ParseConfigs decodes, normalises and validates publisher definitions.
func ParseConfigs(data []byte, ext string) ([]Config, error) {
	var layout fileLayout
	var err error
	switch strings.ToLower(strings.TrimSpace(ext)) {
	case ".json":
		err = json.Unmarshal(data, &layout)
	case ".yaml", ".yml", "":
		err = yaml.Unmarshal(data, &layout)
	default:
		return nil, fmt.Errorf("publishers file extension %q not recognized (expected YAML or JSON)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("decode publishers: %w", err)
	}

	seen := make(map[string]struct{}, len(layout.Publishers))
	out := make([]Config, 0, len(layout.Publishers))
	for i, cfg := range layout.Publishers {
		cfg = normalize(cfg)
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate publisher id %q", cfg.ID)
		}
		seen[cfg.ID] = struct{}{}
		out = append(out, cfg)
	}
	return out, nil
}

// Enabled filters out disabled sinks.
func Enabled(cfgs []Config) []Config {
	out := make([]Config, 0, len(cfgs))
	for _, c := range cfgs {
		if c.EnabledValue() {
			out = append(out, c)
		}
	}
	return out
}

func normalize(cfg Config) Config {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	for i := range cfg.Events {
		cfg.Events[i] = strings.TrimSpace(cfg.Events[i])
	}

	if cfg.Queue != nil {
		q := *cfg.Queue
		q.Provider = strings.ToLower(strings.TrimSpace(q.Provider))
		if q.SQS != nil {
			s := *q.SQS
			s.QueueURL = strings.TrimSpace(s.QueueURL)
			s.AWSCredentials = trimAWS(s.AWSCredentials)
			q.SQS = &s
		}
		if q.SNS != nil {
			s := *q.SNS
			s.TopicARN = strings.TrimSpace(s.TopicARN)
			s.AWSCredentials = trimAWS(s.AWSCredentials)
			q.SNS = &s
		}
		if q.GCP != nil {
			g := *q.GCP
			g.ProjectID = strings.TrimSpace(g.ProjectID)
			g.Topic = strings.TrimSpace(g.Topic)
			g.CredentialsFile = strings.TrimSpace(g.CredentialsFile)
			q.GCP = &g
		}
		cfg.Queue = &q
	}

	if cfg.HTTP != nil {
		h := *cfg.HTTP
		h.URL = strings.TrimSpace(h.URL)
		h.Method = strings.ToUpper(strings.TrimSpace(h.Method))
		if h.Method == "" {
			h.Method = httpDefaultMethod
		}
		h.Headers = trimHeaders(h.Headers)
		if h.TimeoutSeconds <= 0 {
			h.TimeoutSeconds = httpDefaultTimeoutSeconds
		}
		cfg.HTTP = &h
	}
	return cfg
}

func trimAWS(c AWSCredentials) AWSCredentials {
	c.Region = strings.TrimSpace(c.Region)
	c.AccessKeyID = strings.TrimSpace(c.AccessKeyID)
	c.SecretAccessKey = strings.TrimSpace(c.SecretAccessKey)
	return c
}

func trimHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validate(cfg Config) error {
	if cfg.ID == "" {
		return errors.New("id is required")
	}
	switch cfg.Type {
	case "":
		return fmt.Errorf("type is required for publisher %q", cfg.ID)
	case TypeQueue:
		return validateQueue(cfg.ID, cfg.Queue)
	case TypeHTTP:
		if cfg.HTTP == nil || cfg.HTTP.URL == "" {
			return fmt.Errorf("http.url is required for publisher %q", cfg.ID)
		}
		if !strings.HasPrefix(cfg.HTTP.URL, "http://") && !strings.HasPrefix(cfg.HTTP.URL, "https://") {
			return fmt.Errorf("http.url must be absolute for publisher %q", cfg.ID)
		}
		return nil
	default:
		return fmt.Errorf("type %q not supported for publisher %q", cfg.Type, cfg.ID)
	}
}

func validateQueue(id string, q *QueueConfig) error {
	if q == nil {
		return fmt.Errorf("queue config required for publisher %q", id)
	}
	switch q.Provider {
	case QueueProviderAWSSQS:
		if q.SQS == nil || q.SQS.QueueURL == "" {
			return fmt.Errorf("queue.sqs.queue_url is required for publisher %q", id)
		}
		return validateAWS(id, "sqs", q.SQS.AWSCredentials)
	case QueueProviderAWSSNS:
		if q.SNS == nil || q.SNS.TopicARN == "" {
			return fmt.Errorf("queue.sns.topic_arn is required for publisher %q", id)
		}
		return validateAWS(id, "sns", q.SNS.AWSCredentials)
	case QueueProviderGCP:
		if q.GCP == nil || q.GCP.ProjectID == "" || q.GCP.Topic == "" {
			return fmt.Errorf("queue.gcp.project_id and queue.gcp.topic are required for publisher %q", id)
		}
		return nil
	case QueueProviderAzure:
		return fmt.Errorf("queue provider %q not implemented for publisher %q", q.Provider, id)
	default:
		return fmt.Errorf("queue provider %q not supported for publisher %q", q.Provider, id)
	}
}

func validateAWS(id, section string, c AWSCredentials) error {
	if c.Region == "" {
		return fmt.Errorf("queue.%s.region is required for publisher %q", section, id)
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("queue.%s needs both access_key_id and secret_access_key, or neither, for publisher %q", section, id)
	}
	return nil
}
