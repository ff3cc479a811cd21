package zeromq

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pebbe/zmq4"

	customlog "github.com/open-teleop/pilot/pkg/log"
)

const pollInterval = 100 * time.Millisecond

// Listener receives device messages on a bound SUB socket and dispatches
// the envelopes they carry.
type Listener struct {
	socket     *zmq4.Socket
	poller     *zmq4.Poller
	dispatcher *MessageDispatcher
	logger     customlog.Logger

	running  atomic.Bool
	started  atomic.Bool
	wg       sync.WaitGroup
	received atomic.Uint64
}

// NewListener binds a SUB socket subscribed to every topic.
func NewListener(ctx *zmq4.Context, address string, dispatcher *MessageDispatcher, logger customlog.Logger) (*Listener, error) {
	socket, err := ctx.NewSocket(zmq4.SUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create SUB socket: %w", err)
	}
	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}
	if err := socket.SetSubscribe(""); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	poller := zmq4.NewPoller()
	poller.Add(socket, zmq4.POLLIN)

	logger.Infof("Listener initialized on %s", address)
	return &Listener{
		socket:     socket,
		poller:     poller,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// Start launches the receive loop.
func (l *Listener) Start() {
	if !l.started.CompareAndSwap(false, true) {
		return
	}
	l.running.Store(true)
	l.wg.Add(1)
	go l.receiveLoop()
}

// Stop ends the receive loop and closes the socket.
func (l *Listener) Stop() {
	l.running.Store(false)
	l.wg.Wait()
	if l.socket != nil {
		l.socket.Close()
		l.socket = nil
	}
}

// Received returns the number of envelopes dispatched so far.
func (l *Listener) Received() uint64 {
	return l.received.Load()
}

// receiveLoop owns the socket until Stop; zmq sockets are not thread safe.
func (l *Listener) receiveLoop() {
	defer l.wg.Done()
	l.logger.Debugf("Listener started")

	for l.running.Load() {
		sockets, err := l.poller.Poll(pollInterval)
		if err != nil {
			if l.running.Load() {
				l.logger.Warnf("Error polling socket: %v", err)
			}
			continue
		}
		if len(sockets) == 0 {
			continue
		}

		parts, err := l.socket.RecvMessageBytes(0)
		if err != nil {
			if l.running.Load() {
				l.logger.Warnf("Error receiving message: %v", err)
			}
			continue
		}

		env, frame, err := decodeMessage(parts)
		if err != nil {
			l.logger.Warnf("Dropping device message: %v", err)
			continue
		}
		l.logger.Debugf("Received %s from device (%d bytes, ts=%d)", env.Type, len(frame.Payload), frame.TimestampNs)

		if err := l.dispatcher.Dispatch(env); err != nil {
			l.logger.Warnf("Unhandled device message: %v", err)
			continue
		}
		l.received.Add(1)
	}
}
