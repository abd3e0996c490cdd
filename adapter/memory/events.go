package memory

import (
	"context"

	"github.com/flumeworks/flume/events"
)

// PublishEvent delivers an event to every subscriber of the channel, in
// subscription order. Publishes on one channel are delivered in call
// order. A subscriber whose buffer is full loses the event rather than
// blocking the publisher.
func (m *Memory) PublishEvent(_ context.Context, channel string, evt events.JobEvent) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	if m.closed {
		return nil
	}
	for _, s := range m.subs[channel] {
		select {
		case s.ch <- evt:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving events published to the named
// channel from this point on, and a cancel function releasing the
// subscription. The returned channel is closed on cancel and on adapter
// Close.
func (m *Memory) Subscribe(_ context.Context, channel string) (<-chan events.JobEvent, func(), error) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	s := &subscriber{id: m.nextSub, ch: make(chan events.JobEvent, subscriberBuffer)}
	m.nextSub++
	m.subs[channel] = append(m.subs[channel], s)

	cancel := func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()

		subs := m.subs[channel]
		for i, cur := range subs {
			if cur.id == s.id {
				m.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(cur.ch)
				return
			}
		}
	}

	return s.ch, cancel, nil
}
