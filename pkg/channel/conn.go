package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	customlog "github.com/open-teleop/pilot/pkg/log"
)

// State is the connection lifecycle: Connecting -> Open -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Transport moves envelopes over one established connection.
// Send is only called from a single goroutine, as is Receive.
type Transport interface {
	Send(env Envelope) error
	Receive() (Envelope, error)
	Close() error
}

// Dialer establishes a Transport.
type Dialer func(ctx context.Context) (Transport, error)

type pending struct {
	env     Envelope
	receipt *Receipt
}

// Conn is a messaging channel over a Transport. Publishes issued before the
// transport is open are queued and written in issuance order once it is.
type Conn struct {
	dial              Dialer
	logger            customlog.Logger
	reconnectInterval time.Duration

	mu         sync.Mutex
	state      State
	queue      []pending
	transport  Transport
	handler    Handler
	subscribed chan struct{}
	ready      chan struct{}
	done       chan struct{}
	wake       chan struct{}
	wg         sync.WaitGroup
	readWG     sync.WaitGroup
	started    bool
	cancel     context.CancelFunc
}

// NewConn creates a channel in the Connecting state. Call Start to dial.
func NewConn(dial Dialer, logger customlog.Logger, reconnectInterval time.Duration) *Conn {
	if reconnectInterval <= 0 {
		reconnectInterval = time.Second
	}
	return &Conn{
		dial:              dial,
		logger:            logger,
		reconnectInterval: reconnectInterval,
		state:             StateConnecting,
		subscribed:        make(chan struct{}),
		ready:             make(chan struct{}),
		done:              make(chan struct{}),
		wake:              make(chan struct{}, 1),
	}
}

// Start dials in the background, retrying every reconnect interval until a
// transport opens, ctx ends or the channel is closed.
func (c *Conn) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.connectLoop(ctx)
}

// State returns the current lifecycle state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready is closed when the channel first reaches Open.
func (c *Conn) Ready() <-chan struct{} { return c.ready }

// Done is closed when the channel reaches Closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Publish queues env for writing. It never blocks; the receipt completes
// once env has been written or the channel closed.
func (c *Conn) Publish(env Envelope) *Receipt {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return failedReceipt(ErrClosed)
	}
	r := newReceipt()
	c.queue = append(c.queue, pending{env: env, receipt: r})
	c.mu.Unlock()

	c.notify()
	return r
}

// Subscribe registers the single inbound handler. Envelopes are delivered
// in arrival order from one goroutine. The handler may call Close.
func (c *Conn) Subscribe(handler Handler) error {
	if handler == nil {
		return errors.New("nil handler")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		return ErrAlreadySubscribed
	}
	c.handler = handler
	close(c.subscribed)
	return nil
}

// Close moves the channel to Closed, failing anything still queued. It
// waits for the dial and write goroutines but not for the inbound handler,
// so it is safe to call from that handler. Use Wait to also wait for the
// handler to return.
func (c *Conn) Close() error {
	err := c.shutdown(nil)
	c.wg.Wait()
	return err
}

// Wait blocks until every goroutine of a closed channel, the inbound
// handler included, has returned. It must not be called from the handler.
func (c *Conn) Wait() {
	<-c.done
	c.wg.Wait()
	c.readWG.Wait()
}

func (c *Conn) shutdown(cause error) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	queued := c.queue
	c.queue = nil
	transport := c.transport
	cancel := c.cancel
	close(c.done)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if cause != nil {
		c.logger.Warnf("Channel closed: %v", cause)
	} else {
		c.logger.Infof("Channel closed")
	}

	for _, p := range queued {
		p.receipt.resolve(ErrClosed)
	}
	if transport != nil {
		return transport.Close()
	}
	return nil
}

func (c *Conn) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) connectLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		transport, err := c.dial(ctx)
		if err == nil {
			c.mu.Lock()
			if c.state == StateClosed {
				c.mu.Unlock()
				transport.Close()
				return
			}
			c.transport = transport
			c.state = StateOpen
			close(c.ready)
			c.mu.Unlock()

			c.logger.Infof("Channel open")
			c.wg.Add(1)
			c.readWG.Add(1)
			go c.readLoop(transport)
			go c.writeLoop(transport)
			return
		}

		c.logger.Warnf("Channel dial failed, retrying in %v: %v", c.reconnectInterval, err)
		select {
		case <-time.After(c.reconnectInterval):
		case <-ctx.Done():
			c.shutdown(ctx.Err())
			return
		case <-c.done:
			return
		}
	}
}

func (c *Conn) writeLoop(transport Transport) {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		if len(c.queue) == 0 {
			c.mu.Unlock()
			select {
			case <-c.wake:
				continue
			case <-c.done:
				return
			}
		}
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()

		err := transport.Send(next.env)
		next.receipt.resolve(err)
		if err != nil {
			c.shutdown(fmt.Errorf("send %s: %w", next.env.Type, err))
			return
		}
	}
}

func (c *Conn) readLoop(transport Transport) {
	defer c.readWG.Done()

	select {
	case <-c.subscribed:
	case <-c.done:
		return
	}
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	for {
		env, err := transport.Receive()
		if err != nil {
			if errors.Is(err, ErrMalformedEnvelope) {
				c.logger.Warnf("Dropping inbound message: %v", err)
				continue
			}
			select {
			case <-c.done:
			default:
				c.shutdown(fmt.Errorf("receive: %w", err))
			}
			return
		}
		handler(env)
	}
}
