//go:build nng
// +build nng

package shard

import (
	"encoding/json"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/sub"

	_ "go.nanomsg.org/mangos/v3/transport/all"
)

// RingBroadcaster publishes MembershipEvents over a mangos pub socket so
// every cluster member's Engine stays in sync without a central
// coordinator, mirroring the teacher's nng_transport.go pub/sub pattern.
type RingBroadcaster struct {
	sock mangos.Socket
}

// NewRingBroadcaster binds a pub socket at addr.
func NewRingBroadcaster(addr string) (*RingBroadcaster, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.Listen(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return &RingBroadcaster{sock: sock}, nil
}

// Publish marshals ev as JSON and broadcasts it to all subscribers.
func (b *RingBroadcaster) Publish(ev MembershipEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.sock.Send(data)
}

// Close releases the underlying socket.
func (b *RingBroadcaster) Close() error {
	return b.sock.Close()
}

// RingSubscriber receives MembershipEvents and applies them to an Engine.
type RingSubscriber struct {
	sock mangos.Socket
	eng  *Engine
}

// NewRingSubscriber dials addr and subscribes to every topic.
func NewRingSubscriber(addr string, eng *Engine) (*RingSubscriber, error) {
	sock, err := sub.NewSocket()
	if err != nil {
		return nil, err
	}
	if err := sock.SetOption(mangos.OptionSubscribe, []byte("")); err != nil {
		sock.Close()
		return nil, err
	}
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, err
	}
	return &RingSubscriber{sock: sock, eng: eng}, nil
}

// Run blocks, applying incoming membership events until Recv fails (the
// socket was closed).
func (s *RingSubscriber) Run() error {
	for {
		data, err := s.sock.Recv()
		if err != nil {
			return err
		}
		var ev MembershipEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Joined {
			s.eng.ring.AddNode(ev.NodeID)
		} else {
			s.eng.ring.RemoveNode(ev.NodeID)
		}
		s.eng.rebalance()
	}
}

// Close releases the underlying socket.
func (s *RingSubscriber) Close() error {
	return s.sock.Close()
}
