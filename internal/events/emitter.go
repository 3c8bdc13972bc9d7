// Package events публикует уведомления об успешных переходах состояния хранилищ.
// Публикация происходит после фиксации изменений и не влияет на результат операции.
package events

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"

	"github.com/maynagashev/tokenvault/models"
)

// Emitter публикует события. Ошибки публикации только логируются.
type Emitter interface {
	Emit(ctx context.Context, event models.Event)
}

// LogEmitter пишет события в структурированный лог вместе с бинарной кодировкой.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter создает эмиттер поверх logger. nil - логгер по умолчанию.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit пишет событие в лог.
func (e *LogEmitter) Emit(ctx context.Context, event models.Event) {
	attrs := []any{
		"id", event.ID,
		"owner", event.Owner,
		"asset", event.Asset,
		"data", base64.StdEncoding.EncodeToString(event.EncodeBinary()),
	}
	if event.HasAmount() {
		attrs = append(attrs, "amount", event.Amount)
	}
	e.logger.InfoContext(ctx, "[Events] "+string(event.Name), attrs...)
}

// Recorder накапливает события в памяти в порядке публикации.
type Recorder struct {
	mu     sync.Mutex
	events []models.Event
}

// NewRecorder создает пустой накопитель.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit добавляет событие.
func (r *Recorder) Emit(_ context.Context, event models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events возвращает копию накопленных событий.
func (r *Recorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Multi рассылает событие всем эмиттерам по очереди.
type Multi []Emitter

// Emit публикует событие во все эмиттеры.
func (m Multi) Emit(ctx context.Context, event models.Event) {
	for _, e := range m {
		e.Emit(ctx, event)
	}
}

// Discard отбрасывает события.
type Discard struct{}

// Emit ничего не делает.
func (Discard) Emit(context.Context, models.Event) {}
