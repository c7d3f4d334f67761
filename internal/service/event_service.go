package service

import (
	"context"
	"sync"
	"time"

	"topup-storefront/internal/core/domain"
	"topup-storefront/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// eventWriteTimeout bounds a single background insert.
const eventWriteTimeout = 5 * time.Second

// EventService implements ports.EventRecorder. Events are written in the
// background; a failed write is logged and dropped.
type EventService struct {
	repo ports.EventRepository
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// NewEventService creates a new event recorder.
// If repo is nil, events are only written to the logger.
func NewEventService(repo ports.EventRepository, log zerolog.Logger) *EventService {
	return &EventService{repo: repo, log: log}
}

// Record stores event asynchronously (fire-and-forget).
func (s *EventService) Record(ctx context.Context, event *domain.TransactionEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	l := s.log.Info()
	if event.Kind == domain.EventAuthFailure {
		l = s.log.Warn()
	}
	if event.TransactionID != nil {
		l = l.Str("transaction_id", event.TransactionID.String())
	}
	l.Str("kind", string(event.Kind)).Msg("transaction event")

	if s.repo == nil {
		return
	}

	// The request context is usually gone by the time the insert runs.
	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		wctx, cancel := context.WithTimeout(bg, eventWriteTimeout)
		defer cancel()
		if err := s.repo.Create(wctx, event); err != nil {
			s.log.Warn().Err(err).Str("kind", string(event.Kind)).Msg("failed to persist transaction event")
		}
	}()
}

// Wait blocks until all pending writes have finished.
func (s *EventService) Wait() {
	s.wg.Wait()
}

// statusPtr is a small helper for event fields.
func statusPtr(s domain.TransactionStatus) *domain.TransactionStatus {
	return &s
}
