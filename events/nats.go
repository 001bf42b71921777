package events

import (
	"encoding/json"
	"fmt"
	"time"

	"imuabridge/metrics"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// conn is the part of *nats.Conn the forwarder uses
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSForwarder republishes bus values for services outside this process
type NATSForwarder struct {
	conn    conn
	subject string
}

func NewNATSForwarder(url, subject string) (*NATSForwarder, error) {
	nc, err := nats.Connect(url,
		nats.Name("imuabridge"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	return &NATSForwarder{conn: nc, subject: subject}, nil
}

// Publish sends v as JSON on <subject>.<suffix>, or on <subject> when suffix is empty
func (f *NATSForwarder) Publish(suffix string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cannot marshal NATS payload: %w", err)
	}
	subject := f.subject
	if suffix != "" {
		subject += "." + suffix
	}
	return f.conn.Publish(subject, data)
}

// Attach forwards every value published on bus until the returned function is called
func Attach[T any](bus *Bus[T], f *NATSForwarder, suffix func(T) string) func() {
	return bus.Subscribe(func(v T) {
		if err := f.Publish(suffix(v), v); err != nil {
			log.Printf("Error forwarding event to NATS: %s", err.Error())
		}
	})
}

func (f *NATSForwarder) Close() {
	if f.conn != nil {
		f.conn.Drain()
	}
}
