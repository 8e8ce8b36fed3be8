package notify

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

const DefaultSubject = "jobs.complete"

type NATSSink struct {
	conn    *nats.Conn
	subject string
}

func NewNATSSink(url, subject string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subject == "" {
		subject = DefaultSubject
	}
	nc, err := nats.Connect(url, nats.Name("purrctl"))
	if err != nil {
		return nil, err
	}
	return &NATSSink{conn: nc, subject: subject}, nil
}

func (n *NATSSink) Publish(_ context.Context, c job.Completion) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return err
	}
	return n.conn.Flush()
}

func (n *NATSSink) Close() error {
	return n.conn.Drain()
}
