package destination

import (
	"context"
	"errors"
	"sync"

	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
)

// ErrNotReady is returned by DestinationStream.Poll when no update is
// buffered and the stream has not terminated.
var ErrNotReady = errors.New("destination stream not ready")

// Client opens Destination subscriptions. The reason tag is
// informational; defined values are "connect" and "reconnect".
type Client interface {
	Resolve(ctx context.Context, authority Authority, reason string) (DestinationStream, error)
}

// DestinationStream is a non-blocking view over one server-streaming
// subscription. Poll returns the next buffered update, ErrNotReady when
// the stream is open but idle, io.EOF on clean end-of-stream, or the
// stream's terminal error.
type DestinationStream interface {
	Poll() (*pb.Update, error)
	Close()
}

// remoteStream is a two-state handle over a subscription: either an
// in-flight stream, or a sentinel asking the supervisor to open a new
// one. It is inert data; destinationSet drives all transitions.
type remoteState uint8

const (
	stateConnectedOrConnecting remoteState = iota
	stateNeedsReconnect
)

type remoteStream struct {
	state  remoteState
	stream DestinationStream
}

func connectedOrConnecting(stream DestinationStream) *remoteStream {
	return &remoteStream{state: stateConnectedOrConnecting, stream: stream}
}

func needsReconnect() *remoteStream {
	return &remoteStream{state: stateNeedsReconnect}
}

// streamQueueCapacity bounds the pump's buffer. A full buffer blocks
// the pump goroutine against the stream; nothing is dropped.
const streamQueueCapacity = 128

// updateRx adapts a blocking gRPC receive loop to the cooperative poll
// model: a pump goroutine buffers received updates so Poll never blocks.
type updateRx struct {
	updates chan *pb.Update
	errs    chan error
	stop    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

func newUpdateRx(stream pb.Destination_GetClient, cancel context.CancelFunc) *updateRx {
	rx := &updateRx{
		updates: make(chan *pb.Update, streamQueueCapacity),
		errs:    make(chan error, 1),
		stop:    make(chan struct{}),
		cancel:  cancel,
	}
	go rx.pump(stream)
	return rx
}

func (rx *updateRx) pump(stream pb.Destination_GetClient) {
	for {
		update, err := stream.Recv()
		if err != nil {
			rx.errs <- err
			return
		}
		select {
		case rx.updates <- update:
		case <-rx.stop:
			return
		}
	}
}

// Poll implements DestinationStream. Buffered updates are drained before
// a terminal error is surfaced, preserving arrival order.
func (rx *updateRx) Poll() (*pb.Update, error) {
	select {
	case update := <-rx.updates:
		return update, nil
	default:
	}
	select {
	case update := <-rx.updates:
		return update, nil
	case err := <-rx.errs:
		// The pump enqueues the terminal error after its last update, but
		// an update may have raced in between the two selects above.
		select {
		case update := <-rx.updates:
			rx.errs <- err
			return update, nil
		default:
			return nil, err
		}
	default:
		return nil, ErrNotReady
	}
}

// Close cancels the subscription and releases the pump goroutine.
func (rx *updateRx) Close() {
	rx.once.Do(func() {
		close(rx.stop)
		if rx.cancel != nil {
			rx.cancel()
		}
	})
}
