package natsreport_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/RobertWHurst/wsns"
	"github.com/RobertWHurst/wsns/report/natsreport"
	"github.com/RobertWHurst/wsns/wsnstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message{subject: subject, data: data})
	return p.err
}

func (p *fakePublisher) published() []message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message{}, p.messages...)
}

func TestReporterSubjects(t *testing.T) {
	tests := []struct {
		name     string
		subject  string
		err      error
		expected string
	}{
		{name: "server error", err: errors.New("boom"), expected: "wsns.errors.5xx"},
		{name: "client error", err: wsns.NewException("no", 403, "E_FORBIDDEN"), expected: "wsns.errors.4xx"},
		{name: "other", err: wsns.NewException("moved", 302, ""), expected: "wsns.errors.other"},
		{name: "custom subject", subject: "chat.errors", err: errors.New("boom"), expected: "chat.errors.5xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &fakePublisher{}
			reporter := natsreport.New(publisher, tt.subject, "node-1")

			require.NoError(t, reporter.Report(tt.err, nil))

			messages := publisher.published()
			require.Len(t, messages, 1)
			assert.Equal(t, tt.expected, messages[0].subject)
		})
	}
}

func TestReporterPayload(t *testing.T) {
	publisher := &fakePublisher{}

	server := wsns.NewServer(wsns.Config{Env: wsns.Test})
	server.AddReporter(natsreport.New(publisher, "", "node-1"))
	server.Namespace("/chat/:room").On("explode", func(ctx *wsns.Context, args ...any) (any, error) {
		return nil, wsns.NewException("Database unavailable", 503, "E_DB_DOWN")
	})

	transport := wsnstest.NewTransport()
	require.NoError(t, server.Attach(transport))

	socket, err := transport.Connect("/chat/general", nil)
	require.NoError(t, err)
	socket.Receive("explode")
	server.Exceptions().Wait()

	messages := publisher.published()
	require.Len(t, messages, 1)
	assert.Equal(t, "wsns.errors.5xx", messages[0].subject)

	report := &natsreport.Report{}
	require.NoError(t, json.Unmarshal(messages[0].data, report))
	assert.Equal(t, "node-1", report.Server)
	assert.Equal(t, "/chat/general", report.Namespace)
	assert.Equal(t, "/chat/:room", report.Pattern)
	assert.Equal(t, socket.ID(), report.SocketID)
	assert.Equal(t, map[string]string{"room": "general"}, report.Params)
	assert.Equal(t, "Exception", report.Name)
	assert.Equal(t, 503, report.Status)
	assert.Equal(t, "E_DB_DOWN", report.Code)
	assert.False(t, report.Time.IsZero())
}

func TestReporterPublishError(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("nats: connection closed")}
	reporter := natsreport.New(publisher, "", "")

	assert.EqualError(t, reporter.Report(errors.New("boom"), nil), "nats: connection closed")
}
