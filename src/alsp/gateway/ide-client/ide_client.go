// Package ideclient sends outbound notifications to the hosting editor.
package ideclient

import (
	"context"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Level classifies a user-facing notification.
type Level int

// Notification levels.
const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

// Sink receives notifications on behalf of the editor UI. Detail carries
// optional diagnostic text (e.g. a raw response body) that the editor may
// hide behind an expander.
type Sink func(level Level, message string, detail string)

// Gateway is used to send outbound notifications to the IDE.
// Until the editor registers a sink, notifications fall through to the
// daemon log so nothing is silently dropped.
type Gateway interface {
	// RegisterSink installs the editor's notification sink. Calling it again
	// replaces the previous sink.
	RegisterSink(sink Sink)

	Info(ctx context.Context, message string, detail string)
	Warn(ctx context.Context, message string, detail string)
	Error(ctx context.Context, message string, detail string)
}

type gateway struct {
	mu     sync.Mutex
	sink   Sink
	logger *zap.SugaredLogger
}

// New returns a Gateway for sending IDE notifications.
func New(logger *zap.SugaredLogger) Gateway {
	return &gateway{
		logger: logger.With("component", "ide-client"),
	}
}

func (g *gateway) RegisterSink(sink Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sink = sink
}

func (g *gateway) Info(ctx context.Context, message string, detail string) {
	g.notify(LevelInfo, message, detail)
}

func (g *gateway) Warn(ctx context.Context, message string, detail string) {
	g.notify(LevelWarn, message, detail)
}

func (g *gateway) Error(ctx context.Context, message string, detail string) {
	g.notify(LevelError, message, detail)
}

func (g *gateway) notify(level Level, message string, detail string) {
	g.mu.Lock()
	sink := g.sink
	g.mu.Unlock()

	if sink != nil {
		sink(level, message, detail)
		return
	}

	switch level {
	case LevelError:
		g.logger.Errorw(message, "detail", detail)
	case LevelWarn:
		g.logger.Warnw(message, "detail", detail)
	default:
		g.logger.Infow(message, "detail", detail)
	}
}
