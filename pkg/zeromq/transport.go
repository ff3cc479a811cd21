package zeromq

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pebbe/zmq4"

	"github.com/open-teleop/pilot/pkg/channel"
	"github.com/open-teleop/pilot/pkg/wire"
)

// transport is a channel.Transport over a connected PUB/SUB socket pair.
type transport struct {
	ctx *zmq4.Context
	pub *zmq4.Socket
	sub *zmq4.Socket

	sendMu sync.Mutex
	recvMu sync.Mutex
	closed atomic.Bool
	once   sync.Once
}

// Dial returns a channel.Dialer that connects a PUB socket to
// publishEndpoint (a bound SUB) and a SUB socket to subscribeEndpoint (a
// bound PUB). ZeroMQ connects in the background, so dialing only fails on
// socket setup errors.
func Dial(publishEndpoint, subscribeEndpoint string) channel.Dialer {
	return func(ctx context.Context) (channel.Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return newTransport(publishEndpoint, subscribeEndpoint)
	}
}

func newTransport(publishEndpoint, subscribeEndpoint string) (t *transport, err error) {
	zctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}
	t = &transport{ctx: zctx}
	defer func() {
		if err != nil {
			t.closeSockets()
		}
	}()

	if t.pub, err = zctx.NewSocket(zmq4.PUB); err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}
	if err = t.pub.SetLinger(0); err != nil {
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err = t.pub.Connect(publishEndpoint); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", publishEndpoint, err)
	}

	if t.sub, err = zctx.NewSocket(zmq4.SUB); err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if err = t.sub.SetLinger(0); err != nil {
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err = t.sub.SetRcvtimeo(pollInterval); err != nil {
		return nil, fmt.Errorf("failed to set receive timeout: %w", err)
	}
	if err = t.sub.SetSubscribe(""); err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if err = t.sub.Connect(subscribeEndpoint); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", subscribeEndpoint, err)
	}
	return t, nil
}

func (t *transport) Send(env channel.Envelope) error {
	topic, frame, err := encodeMessage(env, wire.ContentTypeJSONCommand, time.Now())
	if err != nil {
		return err
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	if t.closed.Load() {
		return channel.ErrClosed
	}
	_, err = t.pub.SendMessage(topic, frame)
	return err
}

// Receive blocks until an envelope arrives or the transport is closed.
func (t *transport) Receive() (channel.Envelope, error) {
	for {
		env, retry, err := t.receiveOnce()
		if !retry {
			return env, err
		}
	}
}

func (t *transport) receiveOnce() (channel.Envelope, bool, error) {
	t.recvMu.Lock()
	defer t.recvMu.Unlock()
	if t.closed.Load() {
		return channel.Envelope{}, false, channel.ErrClosed
	}

	parts, err := t.sub.RecvMessageBytes(0)
	if err != nil {
		if zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN) {
			return channel.Envelope{}, true, nil
		}
		return channel.Envelope{}, false, err
	}
	env, _, err := decodeMessage(parts)
	return env, false, err
}

// Close stops Receive within one poll interval and releases the sockets.
func (t *transport) Close() error {
	t.once.Do(func() {
		t.closed.Store(true)
		t.sendMu.Lock()
		t.recvMu.Lock()
		t.closeSockets()
		t.recvMu.Unlock()
		t.sendMu.Unlock()
	})
	return nil
}

func (t *transport) closeSockets() {
	if t.pub != nil {
		t.pub.Close()
	}
	if t.sub != nil {
		t.sub.Close()
	}
	t.ctx.Term()
}
