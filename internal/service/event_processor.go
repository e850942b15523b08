package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SergeiKhy/rentcard-share/internal/models"
	"github.com/SergeiKhy/rentcard-share/internal/repository"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxRetries           = 3    // Максимальное количество попыток записи
	maxReplayAttempts    = 10   // После стольких неудачных повторов событие отбрасывается
	replayBatchSize      = 500
	eventWriteTimeout    = 5 * time.Second
)

// ProcessorConfig параметры worker pool
type ProcessorConfig struct {
	Workers    int
	BufferSize int
}

// EventProcessor асинхронная запись событий аналитики с использованием Worker Pool.
// Событие, которое не удалось записать, паркуется в outbox и позже повторяется через ReplayOutbox.
type EventProcessor interface {
	EventSink
	Start()
	Stop()
	ReplayOutbox(ctx context.Context) (int, error)
	GetChannelStats() ChannelStats
}

// eventProcessor реализация процессора событий
type eventProcessor struct {
	recorder    EventRecorder
	outbox      repository.OutboxRepository
	logger      *zap.Logger
	events      chan *models.Event // Канал для событий
	workerCount int                // Количество воркеров
	wg          sync.WaitGroup     // WaitGroup для ожидания завершения воркеров
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewEventProcessor создаёт новый экземпляр процессора событий. outbox может быть nil:
// тогда неудачные события только логируются.
func NewEventProcessor(
	recorder EventRecorder,
	outbox repository.OutboxRepository,
	logger *zap.Logger,
	cfg ProcessorConfig,
) EventProcessor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultChannelBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &eventProcessor{
		recorder:    recorder,
		outbox:      outbox,
		logger:      orNop(logger),
		events:      make(chan *models.Event, cfg.BufferSize),
		workerCount: cfg.Workers,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start запускает worker pool
func (p *eventProcessor) Start() {
	p.logger.Info("Запуск воркеров процессора событий", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop останавливает worker pool и паркует необработанные события в outbox
func (p *eventProcessor) Stop() {
	p.logger.Info("Остановка процессора событий...")
	p.cancel()
	p.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
	defer cancel()

	parked := 0
	for {
		select {
		case event := <-p.events:
			p.park(ctx, event)
			parked++
		default:
			p.logger.Info("Процессор событий остановлен", zap.Int("parked", parked))
			return
		}
	}
}

// worker обрабатывает события из канала
func (p *eventProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер событий запущен", zap.Int("id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Воркер событий остановлен", zap.Int("id", id))
			return

		case event, ok := <-p.events:
			if !ok {
				return
			}
			p.process(event)
		}
	}
}

// process записывает одно событие с retry логикой
func (p *eventProcessor) process(event *models.Event) {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = p.record(p.ctx, event); err == nil {
			return
		}
		// Некорректное событие повторять бессмысленно
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
			p.logger.Warn("Событие отброшено", zap.String("kind", string(event.Kind)), zap.Error(err))
			return
		}
		if i < maxRetries-1 {
			p.logger.Debug("Повторная попытка записи события",
				zap.String("kind", string(event.Kind)),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			select {
			case <-p.ctx.Done():
			case <-time.After(time.Duration(i+1) * 100 * time.Millisecond):
			}
		}
	}

	p.logger.Error("Не удалось записать событие после всех попыток",
		zap.String("kind", string(event.Kind)),
		zap.Error(err),
	)
	ctx, cancel := context.WithTimeout(context.Background(), eventWriteTimeout)
	defer cancel()
	p.park(ctx, event)
}

func (p *eventProcessor) record(ctx context.Context, event *models.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()

	switch {
	case event.Kind == models.EventClick && event.Click != nil:
		_, err := p.recorder.RecordShortlinkClick(ctx, event.Click)
		return err
	case event.Kind == models.EventView && event.View != nil:
		_, err := p.recorder.RecordRentcardView(ctx, event.View)
		return err
	}
	return ErrValidation
}

// park откладывает событие в outbox; при ошибке событие теряется
func (p *eventProcessor) park(ctx context.Context, event *models.Event) {
	if p.outbox == nil {
		p.logger.Warn("Outbox не настроен, событие потеряно", zap.String("kind", string(event.Kind)))
		return
	}
	if err := p.outbox.Push(ctx, event); err != nil {
		p.logger.Error("Не удалось отложить событие в outbox, событие потеряно",
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
	}
}

// SubmitClick отправляет клик в worker pool (неблокирующая операция)
func (p *eventProcessor) SubmitClick(ctx context.Context, event *models.ClickEvent) {
	p.submit(ctx, models.NewClickEvent(event))
}

// SubmitView отправляет просмотр в worker pool (неблокирующая операция)
func (p *eventProcessor) SubmitView(ctx context.Context, event *models.ViewEvent) {
	p.submit(ctx, models.NewViewEvent(event))
}

func (p *eventProcessor) submit(ctx context.Context, event *models.Event) {
	select {
	case p.events <- event:
	default:
		// Канал заполнен: не блокируем запрос, откладываем событие
		p.logger.Warn("Буфер канала событий заполнен, событие отложено в outbox",
			zap.String("kind", string(event.Kind)),
		)
		p.park(context.WithoutCancel(ctx), event)
	}
}

// ReplayOutbox повторяет отложенные события. Возвращает число успешно записанных.
func (p *eventProcessor) ReplayOutbox(ctx context.Context) (int, error) {
	if p.outbox == nil {
		return 0, nil
	}

	replayed := 0
	var failed []*models.Event
	for i := 0; i < replayBatchSize; i++ {
		event, err := p.outbox.Pop(ctx)
		if errors.Is(err, repository.ErrOutboxEmpty) {
			break
		}
		if errors.Is(err, repository.ErrOutboxCorrupt) {
			p.logger.Error("Повреждённое событие в outbox отброшено", zap.Error(err))
			continue
		}
		if err != nil {
			p.requeue(ctx, failed)
			return replayed, err
		}

		if err := p.record(ctx, event); err != nil {
			if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
				p.logger.Warn("Отложенное событие отброшено", zap.String("kind", string(event.Kind)), zap.Error(err))
				continue
			}
			event.Attempts++
			if event.Attempts >= maxReplayAttempts {
				p.logger.Error("Отложенное событие отброшено после повторов",
					zap.String("kind", string(event.Kind)),
					zap.Int("attempts", event.Attempts),
					zap.Error(err),
				)
				continue
			}
			failed = append(failed, event)
			continue
		}
		replayed++
	}

	p.requeue(ctx, failed)
	if replayed > 0 || len(failed) > 0 {
		p.logger.Info("Outbox replay finished", zap.Int("replayed", replayed), zap.Int("requeued", len(failed)))
	}
	return replayed, nil
}

// requeue возвращает неудачные события в конец outbox после прохода
func (p *eventProcessor) requeue(ctx context.Context, events []*models.Event) {
	for _, event := range events {
		p.park(ctx, event)
	}
}

// GetChannelStats возвращает статистику канала для мониторинга
func (p *eventProcessor) GetChannelStats() ChannelStats {
	return ChannelStats{
		BufferSize:  cap(p.events),
		BufferUsed:  len(p.events),
		WorkerCount: p.workerCount,
	}
}

// ChannelStats статистика канала worker pool
type ChannelStats struct {
	BufferSize  int `json:"buffer_size"`  // Общая ёмкость канала
	BufferUsed  int `json:"buffer_used"`  // Текущее использование
	WorkerCount int `json:"worker_count"` // Количество воркеров
}
