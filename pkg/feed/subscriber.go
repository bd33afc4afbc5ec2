// Package feed consumes the Darwin Push Port STOMP feed: durable
// subscription, per-frame acknowledgement and frame inflation.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/rs/zerolog"

	"github.com/ironswallow/ironswallow/pkg/log"
	"github.com/ironswallow/ironswallow/pkg/metrics"
)

// maxAttempts bounds connection attempts within one session before the
// subscriber gives up.
const maxAttempts = 30

// sessionSpacing is the minimum gap between consecutive broker
// sessions.
const sessionSpacing = 10 * time.Second

// Handler processes one inflated frame body. Returning a permanent
// error acknowledges the frame anyway; any other error ends the
// session so the broker redelivers.
type Handler func(ctx context.Context, body []byte, sequence string) error

// Permanent wraps an error whose frame can never succeed and should be
// acknowledged rather than redelivered.
func Permanent(err error) error {
	return permanentError{err}
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err marks its frame unprocessable.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Config carries the broker coordinates of a subscriber.
type Config struct {
	Hostname    string
	Username    string
	Password    string
	ClientID    string
	Destination string
	Identifier  string
	Heartbeat   time.Duration
}

// Subscriber maintains a STOMP session against the Push Port broker,
// inflating each frame and handing it to the handler. Frames are
// acknowledged individually, after the handler returns.
type Subscriber struct {
	cfg     Config
	handler Handler
	logger  zerolog.Logger

	// Indirection for tests; NewSubscriber wires the real broker.
	dial  func() (*stomp.Conn, error)
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSubscriber builds a subscriber; Run starts it.
func NewSubscriber(cfg Config, handler Handler) *Subscriber {
	s := &Subscriber{
		cfg:     cfg,
		handler: handler,
		logger:  log.WithComponent("feed"),
		sleep:   sleepCtx,
	}
	s.dial = func() (*stomp.Conn, error) {
		return stomp.Dial("tcp", cfg.Hostname,
			stomp.ConnOpt.Login(cfg.Username, cfg.Password),
			stomp.ConnOpt.Header("client-id", cfg.ClientID),
			stomp.ConnOpt.HeartBeat(cfg.Heartbeat, cfg.Heartbeat),
		)
	}
	return s
}

// Run consumes sessions until the context is cancelled. A broker
// outage that outlasts a full attempt cycle holds the subscription
// down and starts a fresh cycle; it never takes the process with it.
func (s *Subscriber) Run(ctx context.Context) error {
	var lastSession time.Time
	for {
		if wait := sessionSpacing - time.Since(lastSession); !lastSession.IsZero() && wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				return nil
			}
		}
		lastSession = time.Now()

		conn, sub, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error().Err(err).Msg("connection attempts exhausted, holding session down")
			continue
		}

		again := s.consume(ctx, conn, sub)
		if !again {
			return nil
		}
	}
}

// connect establishes a session, backing off between attempts.
func (s *Subscriber) connect(ctx context.Context) (*stomp.Conn, *stomp.Subscription, error) {
	for n := 1; n <= maxAttempts; n++ {
		s.logger.Info().Int("attempt", n).Str("hostname", s.cfg.Hostname).Msg("connecting")

		conn, err := s.dial()
		if err == nil {
			sub, subErr := conn.Subscribe(s.cfg.Destination, stomp.AckClientIndividual,
				stomp.SubscribeOpt.Header("activemq.subscriptionName", s.cfg.Identifier),
			)
			if subErr == nil {
				s.logger.Info().Str("destination", s.cfg.Destination).Msg("connected")
				metrics.ReconnectsTotal.Inc()
				return conn, sub, nil
			}
			conn.Disconnect()
			err = subErr
		}

		backoff := connectBackoff(n)
		s.logger.Error().Err(err).Dur("backoff", backoff).Msg("connection failed")
		if sleepErr := s.sleep(ctx, backoff); sleepErr != nil {
			return nil, nil, sleepErr
		}
	}
	return nil, nil, fmt.Errorf("connection attempts exhausted after %d tries", maxAttempts)
}

// consume processes the session until it drops. Returns false when the
// subscriber should stop for good.
func (s *Subscriber) consume(ctx context.Context, conn *stomp.Conn, sub *stomp.Subscription) bool {
	defer conn.Disconnect()

	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			return false

		case msg, ok := <-sub.C:
			if !ok {
				s.logger.Error().Msg("subscription closed, reconnecting")
				return true
			}
			if msg.Err != nil {
				s.logger.Error().Err(msg.Err).Msg("session error, reconnecting")
				return true
			}
			if !s.frame(ctx, conn, msg) {
				return true
			}
		}
	}
}

// frame handles one message. Returns false when the session should be
// torn down so the broker redelivers the unacknowledged frame.
func (s *Subscriber) frame(ctx context.Context, conn *stomp.Conn, msg *stomp.Message) bool {
	started := time.Now()
	sequence := msg.Header.Get("SequenceNumber")

	body, err := Decompress(msg.Body)
	if err == nil {
		err = s.handler(ctx, body, sequence)
	} else {
		err = Permanent(err)
	}
	metrics.FrameDuration.Observe(time.Since(started).Seconds())

	switch {
	case err == nil:
		metrics.FramesTotal.WithLabelValues("ok").Inc()
	case IsPermanent(err):
		// The frame will never parse; redelivery would loop forever.
		s.logger.Error().Err(err).Str("sequence", sequence).Msg("discarding unprocessable frame")
		metrics.FramesTotal.WithLabelValues("discarded").Inc()
	default:
		s.logger.Error().Err(err).Str("sequence", sequence).Msg("frame processing failed, reconnecting for redelivery")
		metrics.FramesTotal.WithLabelValues("failed").Inc()
		return false
	}

	if ackErr := conn.Ack(msg); ackErr != nil {
		s.logger.Error().Err(ackErr).Msg("ack failed, reconnecting")
		return false
	}
	return true
}

// connectBackoff grows quadratically, clamped to [10s, 600s].
func connectBackoff(n int) time.Duration {
	seconds := n * n
	if seconds < 10 {
		seconds = 10
	}
	if seconds > 600 {
		seconds = 600
	}
	return time.Duration(seconds) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
