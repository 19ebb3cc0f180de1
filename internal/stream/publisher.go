package stream

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Frames returns a channel of JPEG-encoded frames for an active stream at
// the configured feed cadence, independent of the worker's sampling cadence.
// Each emitted frame is the most recent cached frame, compressed at send
// time. Nothing is emitted until the first frame has been decoded. The
// channel closes when the task disappears or the context is cancelled.
func (s *Supervisor) Frames(ctx context.Context, url string) (<-chan []byte, error) {
	if _, ok := s.get(url); !ok {
		return nil, ErrNotFound
	}

	ch := make(chan []byte)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(s.feedInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			task, ok := s.get(url)
			if !ok {
				return
			}

			data, ok, err := task.EncodeLatest()
			if err != nil {
				log.WithFields(log.Fields{
					"component": "stream",
					"source":    url,
				}).Warnf("Failed to encode feed frame: %v", err)
				continue
			}
			if !ok {
				// No frame decoded yet; withhold output rather than
				// emitting empty chunks.
				continue
			}

			select {
			case <-ctx.Done():
				return
			case ch <- data:
			}
		}
	}()

	return ch, nil
}
