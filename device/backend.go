package device

import (
	"context"
	"time"
)

// Transport is a request/response link to one BMS. Implementations return ErrTimeout
// when no chunk arrives in time and wrap ErrTransportFailure when the link is lost.
type Transport interface {
  Write(ctx context.Context, b []byte) error
  // ReadChunk returns the bytes of a single read, which may be a fragment of a frame.
  ReadChunk(ctx context.Context, timeout time.Duration) ([]byte, error)
  Close() error
}
