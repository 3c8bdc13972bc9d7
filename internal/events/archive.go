package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/maynagashev/tokenvault/internal/storage"
	"github.com/maynagashev/tokenvault/models"
)

const archivePrefix = "events"

// putTimeout ограничивает сохранение одного события.
const putTimeout = 5 * time.Second

// Archive сохраняет события в объектное хранилище и отдает историю хранилища.
type Archive struct {
	store storage.ObjectStore
}

// NewArchive создает архив поверх store.
func NewArchive(store storage.ObjectStore) *Archive {
	return &Archive{store: store}
}

// ObjectKey возвращает ключ объекта события:
// events/<owner>/<asset>/<emitted-unix-nanos>-<id>.json.
func ObjectKey(event models.Event) string {
	name := fmt.Sprintf("%020d-%s.json", event.EmittedAt.UnixNano(), event.ID)
	return path.Join(vaultPrefix(event.Owner, event.Asset), name)
}

func vaultPrefix(owner, asset models.Pubkey) string {
	return path.Join(archivePrefix, owner.String(), asset.String()) + "/"
}

// Emit сохраняет событие. Ошибка сохранения только логируется.
// Отмена контекста запроса не прерывает сохранение.
func (a *Archive) Emit(ctx context.Context, event models.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), putTimeout)
	defer cancel()

	data, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(ctx, "[Archive] Ошибка сериализации события", "id", event.ID, "error", err)
		return
	}
	key := ObjectKey(event)
	if err = a.store.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		slog.ErrorContext(ctx, "[Archive] Не удалось сохранить событие", "key", key, "error", err)
		return
	}
	slog.DebugContext(ctx, "[Archive] Событие сохранено", "key", key)
}

// History возвращает все сохраненные события хранилища (owner, asset) по времени публикации.
func (a *Archive) History(ctx context.Context, owner, asset models.Pubkey) ([]models.Event, error) {
	keys, err := a.store.ListObjects(ctx, vaultPrefix(owner, asset))
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка событий: %w", err)
	}

	history := make([]models.Event, 0, len(keys))
	for _, key := range keys {
		event, loadErr := a.load(ctx, key)
		if loadErr != nil {
			return nil, loadErr
		}
		history = append(history, *event)
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].EmittedAt.Before(history[j].EmittedAt)
	})
	return history, nil
}

func (a *Archive) load(ctx context.Context, key string) (*models.Event, error) {
	rc, err := a.store.GetObject(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения события %s: %w", key, err)
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			slog.WarnContext(ctx, "[Archive] Ошибка закрытия объекта", "key", key, "error", closeErr)
		}
	}()

	var event models.Event
	if err = json.NewDecoder(rc).Decode(&event); err != nil {
		return nil, fmt.Errorf("ошибка декодирования события %s: %w", key, err)
	}
	return &event, nil
}
