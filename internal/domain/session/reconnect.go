package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Backoff configures reconnect delays.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

// DefaultBackoff returns the reconnect schedule used by the daemon.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2,
	}
}

func (b Backoff) next(d time.Duration) time.Duration {
	factor := b.Factor
	if factor < 1 {
		factor = 1
	}
	n := time.Duration(float64(d) * factor)
	if b.Max > 0 && n > b.Max {
		n = b.Max
	}
	return n
}

// Connector is a session that can be (re)connected.
type Connector interface {
	Connect(ctx context.Context) error
	Lost() <-chan struct{}
}

// KeepConnected connects c and reconnects it whenever it is lost, waiting
// with exponential backoff between failed attempts. It returns when ctx is
// done or the session has been released.
func KeepConnected(ctx context.Context, c Connector, b Backoff) error {
	if b.Initial <= 0 {
		b = DefaultBackoff()
	}
	delay := b.Initial

	for {
		err := c.Connect(ctx)
		if errors.Is(err, ErrReleased) {
			return err
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Dur("retry_in", delay).Msg("Transport unavailable")

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay = b.next(delay)
			continue
		}

		delay = b.Initial
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Lost():
			log.Info().Msg("Reconnecting to transport")
		}
	}
}
