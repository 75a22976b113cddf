package quiz

import (
	"fmt"
	"sync"
	"time"
)

// DefaultPollInterval — период пересчета оставшегося времени для отображения.
const DefaultPollInterval = 100 * time.Millisecond

// Countdown — таймер обратного отсчета, устойчивый к дрейфу.
//
// Оставшееся время вычисляется от якорной метки времени, а не подсчетом
// тиков: якорь — момент, когда оставшееся время было равно полной
// длительности. Поэтому пропущенные или задержанные тики не влияют на
// результат, частота опроса нужна только для своевременного срабатывания
// onExpire.
type Countdown struct {
	mu sync.Mutex

	duration  time.Duration
	remaining time.Duration
	anchor    time.Time
	running   bool
	expired   bool

	// generation увеличивается при каждом Start, Pause, Reset и Stop:
	// опрос со старым поколением ничего не делает.
	generation uint64
	stop       chan struct{}

	onExpire     func()
	clock        func() time.Time
	pollInterval time.Duration
}

// CountdownOption настраивает Countdown.
type CountdownOption func(*Countdown)

// WithCountdownClock подменяет источник текущего времени.
func WithCountdownClock(clock func() time.Time) CountdownOption {
	return func(c *Countdown) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCountdownPollInterval задает период опроса.
func WithCountdownPollInterval(interval time.Duration) CountdownOption {
	return func(c *Countdown) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewCountdown создаёт остановленный таймер на durationSeconds секунд.
// onExpire вызывается ровно один раз, когда время доходит до нуля.
func NewCountdown(durationSeconds int, onExpire func(), opts ...CountdownOption) *Countdown {
	d := time.Duration(durationSeconds) * time.Second
	if d < 0 {
		d = 0
	}

	c := &Countdown{
		duration:     d,
		remaining:    d,
		onExpire:     onExpire,
		clock:        time.Now,
		pollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start запускает или продолжает отсчет от текущего оставшегося времени.
// onExpire никогда не вызывается из Start: даже нулевая длительность
// истекает на первом опросе.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	c.anchor = c.clock().Add(-(c.duration - c.remaining))
	c.running = true
	c.generation++
	c.stop = make(chan struct{})

	go c.pollLoop(c.generation, c.stop)
}

// Pause замораживает оставшееся время.
func (c *Countdown) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.remaining = c.computeLocked()
	c.haltLocked()
}

// Reset возвращает полную длительность и останавливает таймер.
func (c *Countdown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.haltLocked()
	c.remaining = c.duration
	c.expired = false
}

// SetRemaining задает оставшееся время остановленного таймера, например при
// восстановлении из снимка. Значение ограничивается диапазоном [0, duration].
func (c *Countdown) SetRemaining(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return
	}

	r := time.Duration(seconds) * time.Second
	if r < 0 {
		r = 0
	}
	if r > c.duration {
		r = c.duration
	}

	c.remaining = r
	c.expired = false
}

// Stop останавливает фоновый опрос без изменения оставшегося времени.
func (c *Countdown) Stop() {
	c.Pause()
}

// Remaining возвращает точное оставшееся время.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return c.computeLocked()
	}

	return c.remaining
}

// RemainingSeconds возвращает оставшиеся секунды: duration − floor(elapsed).
func (c *Countdown) RemainingSeconds() int {
	return ceilSeconds(c.Remaining())
}

// Duration возвращает полную длительность в секундах.
func (c *Countdown) Duration() int {
	return int(c.duration / time.Second)
}

// IsRunning сообщает, идет ли отсчет.
func (c *Countdown) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running && c.computeLocked() <= 0 {
		return false
	}

	return c.running
}

// Poll пересчитывает оставшееся время и, если оно истекло, останавливает
// таймер и вызывает onExpire.
func (c *Countdown) Poll() {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	c.poll(gen)
}

func (c *Countdown) poll(gen uint64) bool {
	c.mu.Lock()

	if gen != c.generation || !c.running {
		c.mu.Unlock()
		return false
	}

	c.remaining = c.computeLocked()
	if c.remaining > 0 {
		c.mu.Unlock()
		return true
	}

	c.haltLocked()

	fire := !c.expired
	c.expired = true
	onExpire := c.onExpire

	c.mu.Unlock()

	if fire && onExpire != nil {
		onExpire()
	}

	return false
}

func (c *Countdown) pollLoop(gen uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if !c.poll(gen) {
			return
		}
	}
}

func (c *Countdown) computeLocked() time.Duration {
	r := c.duration - c.clock().Sub(c.anchor)
	if r < 0 {
		return 0
	}

	return r
}

func (c *Countdown) haltLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}

	c.running = false
	c.generation++
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}

	return s
}

// FormatClock форматирует секунды как мм:сс.
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}

	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
