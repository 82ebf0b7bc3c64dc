package fanout

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATS fans out over a NATS subject per collection so several daemons sharing
// one backend observe each other's writes. A daemon also receives its own
// notifications, so it needs no local fan-out alongside.
type NATS struct {
	conn   *nats.Conn
	prefix string
	logger *zap.Logger
}

// DialNATS connects to the NATS server at url. Subjects are "<prefix>.<collection>.changed".
func DialNATS(url, prefix string, logger *zap.Logger) (*NATS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "chitchat"
	}
	nc, err := nats.Connect(url,
		nats.Name("chitchatd"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATS{conn: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the change subject for a collection.
func Subject(prefix, collection string) string {
	return strings.TrimSuffix(prefix, ".") + "." + collection + ".changed"
}

// Notify implements Notifier.
func (n *NATS) Notify(collection string) error {
	if err := n.conn.Publish(Subject(n.prefix, collection), nil); err != nil {
		return fmt.Errorf("publish %s change: %w", collection, err)
	}
	return nil
}

// Watch implements Notifier. NATS invokes fn serially per subscription.
func (n *NATS) Watch(collection string, fn func()) (func(), error) {
	sub, err := n.conn.Subscribe(Subject(n.prefix, collection), func(_ *nats.Msg) {
		fn()
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s changes: %w", collection, err)
	}
	// The subscription must be registered server-side before the caller's
	// first read, or a write in between goes unseen.
	if err := n.conn.FlushTimeout(5 * time.Second); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("subscribe %s changes: %w", collection, err)
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed && err != nats.ErrBadSubscription {
			n.logger.Warn("nats unsubscribe failed", zap.String("collection", collection), zap.Error(err))
		}
	}, nil
}

// Close drains pending notifications and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
