// Package natsreport publishes the errors reported by a wsns server to NATS,
// so they can be collected by a service shared by many server instances.
package natsreport

import (
	"strings"
	"time"

	"github.com/RobertWHurst/wsns"
	jsoniter "github.com/json-iterator/go"
	"github.com/nats-io/nats.go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultSubject is the subject reports are published on.
const DefaultSubject = "wsns.errors"

// Publisher publishes raw messages. It is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = &nats.Conn{}

// Report is the message published for each reported error.
type Report struct {
	Time      time.Time         `json:"time"`
	Server    string            `json:"server,omitempty"`
	Namespace string            `json:"namespace,omitempty"`
	Pattern   string            `json:"pattern,omitempty"`
	SocketID  string            `json:"socketId,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Name      string            `json:"name"`
	Message   string            `json:"message"`
	Status    int               `json:"status"`
	Code      string            `json:"code,omitempty"`
	Stack     string            `json:"stack,omitempty"`
}

// Reporter is a wsns.Reporter publishing reports.
type Reporter struct {
	publisher Publisher
	subject   string
	server    string
}

var _ wsns.Reporter = &Reporter{}

// New creates a reporter publishing on subject, or DefaultSubject when
// subject is empty. server identifies the instance in the reports.
func New(publisher Publisher, subject string, server string) *Reporter {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Reporter{
		publisher: publisher,
		subject:   subject,
		server:    server,
	}
}

// Report implements wsns.Reporter.
func (r *Reporter) Report(err error, ctx *wsns.Context) error {
	report := &Report{
		Time:    time.Now(),
		Server:  r.server,
		Name:    wsns.NameOf(err),
		Message: err.Error(),
		Status:  wsns.StatusOf(err),
		Code:    wsns.CodeOf(err),
		Stack:   wsns.StackOf(err),
	}
	if ctx != nil {
		report.Namespace = ctx.Namespace()
		report.Pattern = ctx.Pattern()
		report.SocketID = ctx.SocketID()
		report.Params = ctx.Params()
	}

	data, marshalErr := json.Marshal(report)
	if marshalErr != nil {
		return marshalErr
	}
	return r.publisher.Publish(r.subjectFor(report), data)
}

// subjectFor appends the status class, so consumers may subscribe to
// "wsns.errors.5xx" only.
func (r *Reporter) subjectFor(report *Report) string {
	class := "other"
	switch {
	case report.Status >= 500:
		class = "5xx"
	case report.Status >= 400:
		class = "4xx"
	}
	return r.subject + "." + class
}

// Subscribe calls handler for every report published under subject. The
// returned function unsubscribes.
func Subscribe(conn *nats.Conn, subject string, handler func(report *Report)) (func() error, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if !strings.HasSuffix(subject, ".>") {
		subject += ".>"
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		report := &Report{}
		if err := json.Unmarshal(msg.Data, report); err != nil {
			return
		}
		handler(report)
	})
	if err != nil {
		return nil, err
	}
	return sub.Unsubscribe, nil
}
