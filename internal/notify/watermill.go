package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	logx "cronbot/pkg/logx"
)

const metaJobID = "job_id"

// Watermill publishes each firing as a JSON FiringEvent on Topic.
type Watermill struct {
	Pub   message.Publisher
	Topic string
}

func (w Watermill) Notify(ctx context.Context, msg string, extra map[string]any) error {
	info, _ := JobFrom(ctx)
	payload, err := json.Marshal(FiringEvent{JobInfo: info, Message: msg, Extra: extra})
	if err != nil {
		return fmt.Errorf("encode firing: %w", err)
	}
	m := message.NewMessageWithContext(ctx, watermill.NewUUID(), payload)
	m.Metadata.Set(metaJobID, info.ID)
	return w.Pub.Publish(w.Topic, m)
}

// NewGoChannel returns the in-process pub/sub used for the firing topic.
func NewGoChannel(log logx.Logger, buffer int64) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: buffer,
		PreserveContext:     true,
	}, NewWatermillLogger(log))
}

// Relay hands every firing received on msgs to next until msgs is closed.
// Every message is acked: delivery retries belong to next.
func Relay(ctx context.Context, msgs <-chan *message.Message, next Notifier, log logx.Logger) error {
	for m := range msgs {
		ev, err := decodeFiring(m.Payload)
		if err != nil {
			log.Warn("malformed firing dropped", logx.String("uuid", m.UUID), logx.Err(err))
			m.Ack()
			continue
		}
		nctx := WithJob(ctx, ev.JobInfo)
		if err := next.Notify(nctx, ev.Message, ev.Extra); err != nil {
			log.Warn("relay notify failed", logx.String("job_id", ev.ID), logx.Err(err))
		}
		m.Ack()
	}
	return ctx.Err()
}

func decodeFiring(b []byte) (FiringEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	// Chat ids must survive the round trip exactly.
	dec.UseNumber()
	var ev FiringEvent
	err := dec.Decode(&ev)
	return ev, err
}

// watermillLogger routes watermill's logs through logx.
type watermillLogger struct{ log logx.Logger }

// NewWatermillLogger adapts log to watermill.LoggerAdapter.
func NewWatermillLogger(log logx.Logger) watermill.LoggerAdapter {
	return watermillLogger{log: log.With(logx.String("comp", "watermill"))}
}

func fieldsOf(f watermill.LogFields) []logx.Field {
	out := make([]logx.Field, 0, len(f))
	for k, v := range f {
		out = append(out, logx.Any(k, v))
	}
	return out
}

func (l watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.Error(msg, append(fieldsOf(fields), logx.Err(err))...)
}
func (l watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.Info(msg, fieldsOf(fields)...)
}
func (l watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.Debug(msg, fieldsOf(fields)...)
}
func (l watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.log.Trace(msg, fieldsOf(fields)...)
}
func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{log: l.log.With(fieldsOf(fields)...)}
}
