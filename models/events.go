package models

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

// EventName - имя события хранилища.
type EventName string

// Имена событий (совпадают с именами в логах программы).
const (
	EventInitialize EventName = "InitializeEvent"
	EventDeposit    EventName = "DepositEvent"
	EventWithdraw   EventName = "WithdrawEvent"
	EventClose      EventName = "CloseEvent"
)

// Event - уведомление об успешном переходе состояния хранилища.
// Amount заполняется только для Deposit/Withdraw.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Name      EventName `json:"name"`
	Owner     Pubkey    `json:"owner"`
	Asset     Pubkey    `json:"asset"`
	Amount    uint64    `json:"amount,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// NewInitializeEvent создает событие инициализации.
func NewInitializeEvent(owner, asset Pubkey) Event {
	return newEvent(EventInitialize, owner, asset, 0)
}

// NewDepositEvent создает событие пополнения.
func NewDepositEvent(owner, asset Pubkey, amount uint64) Event {
	return newEvent(EventDeposit, owner, asset, amount)
}

// NewWithdrawEvent создает событие вывода.
func NewWithdrawEvent(owner, asset Pubkey, amount uint64) Event {
	return newEvent(EventWithdraw, owner, asset, amount)
}

// NewCloseEvent создает событие закрытия.
func NewCloseEvent(owner, asset Pubkey) Event {
	return newEvent(EventClose, owner, asset, 0)
}

func newEvent(name EventName, owner, asset Pubkey, amount uint64) Event {
	return Event{
		ID:        uuid.New(),
		Name:      name,
		Owner:     owner,
		Asset:     asset,
		Amount:    amount,
		EmittedAt: time.Now().UTC(),
	}
}

// HasAmount сообщает, несет ли событие сумму.
func (e Event) HasAmount() bool {
	return e.Name == EventDeposit || e.Name == EventWithdraw
}

// EncodeBinary кодирует событие в формате логов программы:
// sha256("event:<Name>")[:8] || owner || asset [|| amount LE].
func (e Event) EncodeBinary() []byte {
	size := DiscriminatorSize + 2*PubkeyLength
	if e.HasAmount() {
		size += 8
	}
	buf := make([]byte, size)
	disc := EventDiscriminator(e.Name)
	copy(buf, disc[:])
	copy(buf[DiscriminatorSize:], e.Owner[:])
	copy(buf[DiscriminatorSize+PubkeyLength:], e.Asset[:])
	if e.HasAmount() {
		binary.LittleEndian.PutUint64(buf[DiscriminatorSize+2*PubkeyLength:], e.Amount)
	}
	return buf
}

// EventDiscriminator вычисляет 8-байтовый префикс события.
func EventDiscriminator(name EventName) [DiscriminatorSize]byte {
	sum := sha256.Sum256([]byte("event:" + string(name)))
	var d [DiscriminatorSize]byte
	copy(d[:], sum[:DiscriminatorSize])
	return d
}
