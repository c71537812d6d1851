package bus

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type EventType string

const (
	EventAgentConnected    EventType = "agentConnected"
	EventAgentDisconnected EventType = "agentDisconnected"
	EventAnalysisComplete  EventType = "analysisComplete"
	EventCoalitionJoined   EventType = "coalitionJoined"
)

// SessionEvent is a lifecycle notification from the messaging layer about
// one connected agent session.
type SessionEvent struct {
	Type      EventType      `json:"type"`
	SessionID string         `json:"sessionId"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type EventHandler func(event SessionEvent)

// SessionBus delivers session lifecycle events over a bounded channel to a
// single dispatch loop. Handlers run synchronously in subscription order on
// that loop, so everything mutated from handlers keeps a single writer.
type SessionBus struct {
	mu        sync.RWMutex
	handlers  map[EventType][]EventHandler
	logger    *logrus.Logger
	eventChan chan SessionEvent
	stopChan  chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

const eventBufferSize = 256

func NewSessionBus(logger *logrus.Logger) *SessionBus {
	if logger == nil {
		logger = logrus.New()
	}

	sb := &SessionBus{
		handlers:  make(map[EventType][]EventHandler),
		logger:    logger,
		eventChan: make(chan SessionEvent, eventBufferSize),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}

	go sb.processEvents()

	return sb
}

func (sb *SessionBus) Subscribe(eventType EventType, handler EventHandler) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	sb.handlers[eventType] = append(sb.handlers[eventType], handler)
	sb.logger.Debugf("Handler subscribed to session event type: %s", eventType)
}

func (sb *SessionBus) SubscribeAll(handler EventHandler) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for _, eventType := range []EventType{
		EventAgentConnected,
		EventAgentDisconnected,
		EventAnalysisComplete,
		EventCoalitionJoined,
	} {
		sb.handlers[eventType] = append(sb.handlers[eventType], handler)
	}

	sb.logger.Debug("Handler subscribed to all session event types")
}

// Publish enqueues an event without blocking. Events are dropped with a
// warning when the channel is full; the registry backs best-effort
// discovery, so losing a lifecycle tick is preferable to stalling the
// messaging layer.
func (sb *SessionBus) Publish(event SessionEvent) {
	select {
	case sb.eventChan <- event:
		sb.logger.Debugf("Session event published: %s (%s)", event.Type, event.SessionID)
	default:
		sb.logger.Warnf("Session event channel full, dropping event: %s (%s)", event.Type, event.SessionID)
	}
}

func (sb *SessionBus) processEvents() {
	defer close(sb.done)
	for {
		select {
		case event := <-sb.eventChan:
			sb.handleEvent(event)
		case <-sb.stopChan:
			// Drain what is already queued so Stop has deterministic
			// delivery semantics in tests.
			for {
				select {
				case event := <-sb.eventChan:
					sb.handleEvent(event)
				default:
					sb.logger.Info("Session bus stopped")
					return
				}
			}
		}
	}
}

func (sb *SessionBus) handleEvent(event SessionEvent) {
	sb.mu.RLock()
	handlers := sb.handlers[event.Type]
	sb.mu.RUnlock()

	for _, handler := range handlers {
		func(h EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					sb.logger.Errorf("Panic in session event handler for %s: %v", event.Type, r)
				}
			}()
			h(event)
		}(handler)
	}
}

// Stop shuts down the dispatch loop after draining queued events.
func (sb *SessionBus) Stop() {
	sb.stopOnce.Do(func() {
		close(sb.stopChan)
	})
	<-sb.done
}
