// Package connectivity сообщает о появлении и пропадании сети.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rajivgeraev/flippy-swipe/internal/logger"
)

// Event это смена состояния сети
type Event int

const (
	Offline Event = iota
	Online
)

func (e Event) String() string {
	if e == Online {
		return "online"
	}
	return "offline"
}

// Signal отдает текущее состояние сети и рассылает его изменения
type Signal interface {
	Online() bool
	// Subscribe возвращает канал событий и функцию отписки
	Subscribe() (<-chan Event, func())
}

// hub хранит состояние и рассылает события подписчикам. Медленный
// подписчик теряет события, а не блокирует рассылку.
type hub struct {
	mu     sync.Mutex
	online bool
	subs   map[chan Event]struct{}
}

func newHub(online bool) *hub {
	return &hub{online: online, subs: make(map[chan Event]struct{})}
}

func (h *hub) Online() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.online
}

func (h *hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 4)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

// set меняет состояние и сообщает, было ли это переходом
func (h *hub) set(online bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.online == online {
		return false
	}
	h.online = online

	ev := Offline
	if online {
		ev = Online
	}
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return true
}

// Manual это сигнал, которым управляют вручную: в тестах и когда
// состояние сети сообщает клиент
type Manual struct {
	*hub
}

// NewManual создает сигнал с начальным состоянием online
func NewManual(online bool) *Manual {
	return &Manual{hub: newHub(online)}
}

// Set устанавливает состояние. Событие рассылается только при переходе.
func (m *Manual) Set(online bool) {
	m.set(online)
}

// Monitor опрашивает удаленное хранилище и рассылает переходы между
// состояниями сети
type Monitor struct {
	*hub
	probe    func(ctx context.Context) error
	interval time.Duration
	log      *zap.Logger
}

// NewMonitor создает монитор. Если interval <= 0, используется 10 секунд.
// Начальное состояние считается online до первой проверки.
func NewMonitor(probe func(ctx context.Context) error, interval time.Duration, log *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		hub:      newHub(true),
		probe:    probe,
		interval: interval,
		log:      logger.OrNop(log).Named("connectivity"),
	}
}

// Check выполняет одну проверку и возвращает новое состояние
func (m *Monitor) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	err := m.probe(probeCtx)
	if ctx.Err() != nil {
		return m.Online()
	}

	online := err == nil
	if m.set(online) {
		if online {
			m.log.Info("сеть восстановлена")
		} else {
			m.log.Warn("сеть недоступна", zap.Error(err))
		}
	}
	return online
}

// Run проверяет сеть с интервалом до отмены ctx
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Check(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

var (
	_ Signal = (*Manual)(nil)
	_ Signal = (*Monitor)(nil)
)
