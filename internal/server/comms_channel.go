package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/native-bridge/pkg/commsutil"
	"github.com/morezero/native-bridge/pkg/dispatcher"
)

const commsLogPrefix = "server:comms_channel"

// CommsChannel carries request frames from <prefix>.request and publishes responses to <prefix>.response.
// One correlator serves the subscription for its whole lifetime.
type CommsChannel struct {
	s         *Server
	sub       *comms.Subscription
	c         *dispatcher.Correlator
	closeOnce sync.Once
}

// ServeComms subscribes to the request subject for the configured prefix.
func (s *Server) ServeComms(ctx context.Context, nc *comms.Conn) (*CommsChannel, error) {
	reqSubject := commsutil.BuildRequestSubject(s.cfg.SubjectPrefix)
	respSubject := commsutil.BuildResponseSubject(s.cfg.SubjectPrefix)

	c := s.openChannel("comms:"+reqSubject, dispatcher.SinkFunc(func(resp *dispatcher.Response) error {
		data, err := commsutil.EncodePayload(resp)
		if err != nil {
			return err
		}
		return nc.Publish(respSubject, data)
	}))

	sub, err := nc.Subscribe(reqSubject, func(msg *comms.Msg) {
		s.disp.HandleFrame(ctx, msg.Data, c)
	})
	if err != nil {
		s.closeChannel(c)
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", commsLogPrefix, reqSubject, err)
	}
	if err := nc.Flush(); err != nil {
		slog.Warn(fmt.Sprintf("%s - flush after subscribe: %v", commsLogPrefix, err))
	}

	slog.Info(fmt.Sprintf("%s - Subscribed to %s, responding on %s", commsLogPrefix, reqSubject, respSubject))
	return &CommsChannel{s: s, sub: sub, c: c}, nil
}

// Correlator returns the channel's correlator.
func (ch *CommsChannel) Correlator() *dispatcher.Correlator {
	return ch.c
}

// Close unsubscribes and abandons pending requests. It is safe to call more than once.
func (ch *CommsChannel) Close() {
	ch.closeOnce.Do(func() {
		if err := ch.sub.Unsubscribe(); err != nil && !errors.Is(err, comms.ErrConnectionClosed) && !errors.Is(err, comms.ErrBadSubscription) {
			slog.Warn(fmt.Sprintf("%s - unsubscribe: %v", commsLogPrefix, err))
		}
		ch.s.closeChannel(ch.c)
	})
}
