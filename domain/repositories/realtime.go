package repositories

import (
	"context"

	"github.com/satriahrh/kundli/server/domain/realtime"
)

// RealtimeDialer opens upstream realtime sessions
type RealtimeDialer interface {
	Dial(ctx context.Context) (RealtimeConn, error)
}

// RealtimeConn is one duplex upstream session. Read is called from a single
// goroutine; Send may be called concurrently with Read.
type RealtimeConn interface {
	Send(ctx context.Context, event any) error
	Read(ctx context.Context) (realtime.ServerEvent, error)
	Close() error
}
