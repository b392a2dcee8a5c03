package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/pubsub"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adda-Baaj/khobor-desk/internal/domain"
	"github.com/Adda-Baaj/khobor-desk/internal/logger"
	"github.com/Adda-Baaj/khobor-desk/pkg/httpclient"
)

func sampleEvent() domain.StoryEvent {
	return domain.StoryEvent{Type: domain.EventStoryCreated, StoryID: 7, CompanyID: "acme", Title: "Acme"}
}

func TestLoadConfigs(t *testing.T) {
	t.Setenv("HOOK_TOKEN", "secret")
	dir := t.TempDir()
	path := filepath.Join(dir, "publishers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
publishers:
  - id: " hook "
    type: HTTP
    events: [story.created]
    http:
      url: https://hooks.example/in
      headers:
        Authorization: "Bearer ${HOOK_TOKEN}"
        "": dropped
  - id: sqs
    type: queue
    enabled: false
    queue:
      provider: AWS-SQS
      sqs:
        queue_url: https://sqs.example/q
        region: ap-south-1
`), 0o600))

	cfgs, err := LoadConfigs(path)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	hook := cfgs[0]
	assert.Equal(t, "hook", hook.ID)
	assert.Equal(t, TypeHTTP, hook.Type)
	assert.Equal(t, "POST", hook.HTTP.Method)
	assert.Equal(t, httpDefaultTimeoutSeconds, hook.HTTP.TimeoutSeconds)
	assert.Equal(t, map[string]string{"Authorization": "Bearer secret"}, hook.HTTP.Headers)
	assert.True(t, hook.Accepts(domain.EventStoryCreated))
	assert.False(t, hook.Accepts(domain.EventStoryDeleted))

	assert.Equal(t, QueueProviderAWSSQS, cfgs[1].Queue.Provider)
	assert.Equal(t, "ap-south-1", cfgs[1].Queue.SQS.Region)
	assert.Len(t, Enabled(cfgs), 1)
}

func TestParseConfigsJSON(t *testing.T) {
	cfgs, err := ParseConfigs([]byte(`{"publishers":[{"id":"ps","type":"queue","queue":{"provider":"gcp","gcp":{"project_id":"p","topic":"t"}}}]}`), ".json")
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "t", cfgs[0].Queue.GCP.Topic)
}

func TestParseConfigsRejects(t *testing.T) {
	cases := map[string]string{
		"missing id":    `publishers: [{type: http, http: {url: "https://x"}}]`,
		"unknown type":  `publishers: [{id: a, type: smtp}]`,
		"relative url":  `publishers: [{id: a, type: http, http: {url: "/hook"}}]`,
		"azure":         `publishers: [{id: a, type: queue, queue: {provider: azure}}]`,
		"half creds":    `publishers: [{id: a, type: queue, queue: {provider: aws-sns, sns: {topic_arn: arn, region: r, access_key_id: k}}}]`,
		"duplicate ids": `publishers: [{id: a, type: http, http: {url: "https://x"}}, {id: a, type: http, http: {url: "https://y"}}]`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfigs([]byte(doc), ".yaml")
			assert.Error(t, err)
		})
	}
}

func TestHTTPPublisher(t *testing.T) {
	var got domain.StoryEvent
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := Config{ID: "hook", Type: TypeHTTP, HTTP: &HTTPConfig{URL: srv.URL, Method: "PUT", Headers: map[string]string{"X-Token": "t"}}}
	pub := newHTTPPublisherWithClient(cfg, httpclient.NewRestyClient(0), nil)

	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	assert.Equal(t, int64(7), got.StoryID)
	assert.Equal(t, "t", headers.Get("X-Token"))
	assert.Equal(t, domain.EventStoryCreated, headers.Get("X-Event-Type"))
}

func TestHTTPPublisherStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := Config{ID: "hook", Type: TypeHTTP, HTTP: &HTTPConfig{URL: srv.URL, Method: "POST"}}
	err := newHTTPPublisherWithClient(cfg, httpclient.NewRestyClient(0), nil).Publish(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "bad token")
}

type fakeSQS struct {
	input *sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.input = in
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSSenderAttributes(t *testing.T) {
	client := &fakeSQS{}
	sender := &awsSQSSender{queueURL: "https://sqs.example/q", client: client, log: logger.NopLogger{}}

	require.NoError(t, sender.Send(context.Background(), sampleEvent()))
	require.NotNil(t, client.input)
	assert.Equal(t, "https://sqs.example/q", aws.ToString(client.input.QueueUrl))
	assert.Equal(t, domain.EventStoryCreated, aws.ToString(client.input.MessageAttributes["event_type"].StringValue))
	assert.Equal(t, "7", aws.ToString(client.input.MessageAttributes["story_id"].StringValue))
	assert.Contains(t, aws.ToString(client.input.MessageBody), `"story_id":7`)
}

type recordingPublisher struct {
	id   string
	err  error
	seen []string
}

func (r *recordingPublisher) ID() string   { return r.id }
func (r *recordingPublisher) Type() string { return "fake" }
func (r *recordingPublisher) Publish(_ context.Context, evt domain.StoryEvent) error {
	r.seen = append(r.seen, evt.Type)
	return r.err
}

func TestDispatcherFansOutAndJoinsErrors(t *testing.T) {
	ok := &recordingPublisher{id: "ok"}
	bad := &recordingPublisher{id: "bad", err: errors.New("boom")}
	only := &recordingPublisher{id: "deleted-only"}
	pubs := map[string]*recordingPublisher{"ok": ok, "bad": bad, "deleted-only": only}

	reg := NewRegistry(map[string]Builder{
		"fake": func(_ context.Context, cfg Config, _ Logger) (Publisher, error) {
			return pubs[cfg.ID], nil
		},
	})
	off := false
	cfgs := []Config{
		{ID: "ok", Type: "fake"},
		{ID: "bad", Type: "fake"},
		{ID: "deleted-only", Type: "fake", Events: []string{domain.EventStoryDeleted}},
		{ID: "disabled", Type: "fake", Enabled: &off},
	}

	d, err := NewDispatcher(context.Background(), reg, cfgs, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())

	err = d.PublishEvent(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher bad: boom")
	assert.Equal(t, []string{domain.EventStoryCreated}, ok.seen)
	assert.Equal(t, []string{domain.EventStoryCreated}, bad.seen)
	assert.Empty(t, only.seen)
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := DefaultRegistry().Build(context.Background(), Config{ID: "x", Type: "smtp"}, nil)
	assert.Error(t, err)
}

func TestNilDispatcher(t *testing.T) {
	var d *Dispatcher
	assert.NoError(t, d.PublishEvent(context.Background(), sampleEvent()))
	assert.Zero(t, d.Len())
	assert.NoError(t, d.Close())
}

type closingPublisher struct {
	recordingPublisher
	closeErr error
	closed   int
}

func (c *closingPublisher) Close() error {
	c.closed++
	return c.closeErr
}

func TestDispatcherCloseReleasesPublishers(t *testing.T) {
	a := &closingPublisher{recordingPublisher: recordingPublisher{id: "a"}}
	b := &closingPublisher{recordingPublisher: recordingPublisher{id: "b"}, closeErr: errors.New("stuck")}
	plain := &recordingPublisher{id: "plain"}
	pubs := map[string]Publisher{"a": a, "b": b, "plain": plain}

	reg := NewRegistry(map[string]Builder{
		"fake": func(_ context.Context, cfg Config, _ Logger) (Publisher, error) {
			return pubs[cfg.ID], nil
		},
	})
	d, err := NewDispatcher(context.Background(), reg, []Config{
		{ID: "a", Type: "fake"}, {ID: "plain", Type: "fake"}, {ID: "b", Type: "fake"},
	}, nil)
	require.NoError(t, err)

	err = d.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publisher b: stuck")
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestNewDispatcherClosesBuiltPublishersOnError(t *testing.T) {
	a := &closingPublisher{recordingPublisher: recordingPublisher{id: "a"}}
	reg := NewRegistry(map[string]Builder{
		"fake": func(_ context.Context, cfg Config, _ Logger) (Publisher, error) {
			if cfg.ID == "a" {
				return a, nil
			}
			return nil, errors.New("no credentials")
		},
	})
	_, err := NewDispatcher(context.Background(), reg, []Config{{ID: "a", Type: "fake"}, {ID: "b", Type: "fake"}}, nil)
	require.Error(t, err)
	assert.Equal(t, 1, a.closed)
}

type stubTopic struct {
	stopped bool
}

func (s *stubTopic) Publish(context.Context, *pubsub.Message) *pubsub.PublishResult { return nil }
func (s *stubTopic) Stop()                                                         { s.stopped = true }

func TestQueuePublisherCloseStopsPubSubTopic(t *testing.T) {
	topic := &stubTopic{}
	p := &queuePublisher{id: "q", provider: QueueProviderGCP, sender: &gcpPubSubSender{topic: topic, log: logger.NopLogger{}}}

	require.NoError(t, p.Close())
	assert.True(t, topic.stopped)

	sqsOnly := &queuePublisher{id: "s", provider: QueueProviderAWSSQS, sender: &awsSQSSender{log: logger.NopLogger{}}}
	assert.NoError(t, sqsOnly.Close())
}

// pubsub.Topic must keep satisfying the sender seam.
var _ pubsubTopic = (*pubsub.Topic)(nil)
