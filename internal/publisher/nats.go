// Package publisher pushes classified route boards to NATS.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"subwaywatch/internal/transit"
)

// Metrics receives publish observations.
type Metrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// RouteStatusMessage is the payload published per route after each update.
type RouteStatusMessage struct {
	RouteID   string               `json:"routeId"`
	FetchedAt time.Time            `json:"fetchedAt"`
	At        time.Time            `json:"at"`
	Counts    map[string]int       `json:"counts"`
	Statuses  []transit.TripStatus `json:"statuses"`
}

// NATSPublisher publishes one message per route on <prefix>.<route>.
type NATSPublisher struct {
	conn       Conn
	prefix     string
	classifier *transit.Classifier
	metrics    Metrics
	logger     *slog.Logger
}

// Connect dials NATS and returns a publisher.
func Connect(url, prefix string, classifier *transit.Classifier, m Metrics, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("subwaywatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl(), "prefix", prefix)
	return New(nc, prefix, classifier, m, logger), nil
}

// New wraps an existing connection.
func New(conn Conn, prefix string, classifier *transit.Classifier, m Metrics, logger *slog.Logger) *NATSPublisher {
	return &NATSPublisher{conn: conn, prefix: prefix, classifier: classifier, metrics: m, logger: logger}
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn != nil {
		p.conn.Drain()
		p.conn.Close()
	}
}

// PublishSchedule classifies every route in schedule at the current time
// and publishes one message per route, in route order.
// It matches realtime.UpdateFunc.
func (p *NATSPublisher) PublishSchedule(ctx context.Context, schedule transit.Schedule, fetchedAt time.Time) {
	now := time.Now()
	routes := make([]string, 0, len(schedule))
	for r := range schedule {
		routes = append(routes, r)
	}
	sort.Strings(routes)

	failed := 0
	for _, route := range routes {
		if ctx.Err() != nil {
			return
		}
		msg := p.message(route, schedule[route], fetchedAt, now)
		if err := p.Publish(msg); err != nil {
			failed++
			p.logger.Warn("nats publish failed", "route", route, "error", err)
		}
	}
	p.logger.Debug("route statuses published", "routes", len(routes), "failed", failed)
}

func (p *NATSPublisher) message(route string, fd transit.FeedData, fetchedAt, now time.Time) RouteStatusMessage {
	statuses := p.classifier.ClassifyAll(fd, now)
	counts := make(map[string]int)
	for k, n := range transit.CountByKind(statuses) {
		counts[k.String()] = n
	}
	return RouteStatusMessage{
		RouteID:   route,
		FetchedAt: fetchedAt,
		At:        now,
		Counts:    counts,
		Statuses:  statuses,
	}
}

// Publish sends msg on the route's subject.
func (p *NATSPublisher) Publish(msg RouteStatusMessage) error {
	subject := p.Subject(msg.RouteID)
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	start := time.Now()
	err = p.conn.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

// Subject returns the subject a route is published on.
func (p *NATSPublisher) Subject(routeID string) string {
	if p.prefix == "" {
		return subjectToken(routeID)
	}
	return p.prefix + "." + subjectToken(routeID)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS tokens cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
