package saga

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Стадии саги, указываемые в orders.failed.
const (
	StageInventoryCheck    = "inventory_check"
	StageStockReservation  = "stock_reservation"
	StagePaymentProcessing = "payment_processing"
	StageCompletion        = "completion"
	StageTimeout           = "timeout"
)

// defaultRetention — окно, в течение которого финализированная сага
// остаётся в store до удаления sweep'ом.
const defaultRetention = 60 * time.Second

// Orchestrator ведёт сагу fulfillment: подписывается на события склада и
// платежей, двигает состояние саги и заказа в связке и публикует
// исходящие интеграционные события. Вся работа над одной сагой
// сериализуется через per-key lock хранилища саг.
type Orchestrator struct {
	orders    domain.OrderRepository
	sagas     domain.SagaStore
	bus       domain.EventBus
	logger    *log.Entry
	metrics   *metrics.SagaMetrics
	timeline  domain.TimelineRepository
	retention time.Duration
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(orders domain.OrderRepository, sagas domain.SagaStore, bus domain.EventBus, logger *log.Entry) *Orchestrator {
	o := newOrchestrator(orders, sagas, bus, logger)
	o.metrics = metrics.NewSagaMetrics()
	return o
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(orders domain.OrderRepository, sagas domain.SagaStore, bus domain.EventBus, logger *log.Entry) *Orchestrator {
	return newOrchestrator(orders, sagas, bus, logger)
}

func newOrchestrator(orders domain.OrderRepository, sagas domain.SagaStore, bus domain.EventBus, logger *log.Entry) *Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "saga")
	}
	return &Orchestrator{
		orders:    orders,
		sagas:     sagas,
		bus:       bus,
		logger:    logger,
		retention: defaultRetention,
	}
}

// SetRetention переопределяет retention-окно финализированных саг.
func (o *Orchestrator) SetRetention(retention time.Duration) {
	if retention > 0 {
		o.retention = retention
	}
}

// SetTimeline подключает хранилище хронологии доменных событий.
func (o *Orchestrator) SetTimeline(timeline domain.TimelineRepository) {
	o.timeline = timeline
}

// Subscribe регистрирует обработчики входящих топиков на шине.
func (o *Orchestrator) Subscribe(bus domain.EventBus) error {
	subscriptions := map[string]domain.EventHandler{
		messaging.TopicInventoryReserved:   o.HandleInventoryReserved,
		messaging.TopicInventoryOutOfStock: o.HandleInventoryOutOfStock,
		messaging.TopicPaymentSucceeded:    o.HandlePaymentSucceeded,
		messaging.TopicPaymentFailed:       o.HandlePaymentFailed,
	}
	for topic, handler := range subscriptions {
		if err := bus.Subscribe(topic, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

// StartOrderSaga создаёт заказ и сагу и публикует orders.created.
// Ошибки валидации возвращаются вызывающему синхронно; ошибки
// персистентности и публикации на этом этапе не ретраятся, а сразу
// уходят в failure handling стадии inventory_check.
func (o *Orchestrator) StartOrderSaga(ctx context.Context, orderID, customerID string, items []domain.OrderItem) error {
	order, err := domain.NewOrder(orderID, customerID, items)
	if err != nil {
		return err
	}

	sagaID := domain.SagaIDForOrder(orderID)
	return o.sagas.WithLock(sagaID, func() error {
		// Любая существующая запись, включая терминальную, блокирует
		// повторный старт: заказ уже прошёл через сагу, и повторное
		// создание провалилось бы на ErrOrderExists с публикацией
		// orders.failed по завершённому заказу.
		if _, err := o.sagas.Get(sagaID); err == nil {
			return domain.ErrSagaExists
		}

		saga := domain.NewSagaRecord(orderID, customerID)
		if err := o.sagas.Put(saga); err != nil {
			return fmt.Errorf("put saga record: %w", err)
		}
		if o.metrics != nil {
			o.metrics.RecordSagaStarted()
		}

		if err := o.orders.Create(*order); err != nil {
			o.logger.WithError(err).WithField("order_id", orderID).Error("failed to persist new order")
			o.failLocked(ctx, &saga, StageInventoryCheck, fmt.Sprintf("persist order: %v", err))
			return nil
		}
		o.drainDomainEvents(order)

		created := messaging.NewOrderCreated(orderID, customerID, toEventItems(order.Items), orderAmount(*order))
		if err := o.publish(ctx, messaging.TopicOrderCreated, orderID, created); err != nil {
			o.failLocked(ctx, &saga, StageInventoryCheck, fmt.Sprintf("publish orders.created: %v", err))
			return nil
		}

		o.logger.WithFields(log.Fields{
			"saga_id":  saga.ID,
			"order_id": orderID,
		}).Info("saga started")
		return nil
	})
}

// HandleInventoryReserved обрабатывает inventory.reserved: фиксирует
// резерв, двигает заказ и сагу и запрашивает оплату на текущую сумму.
func (o *Orchestrator) HandleInventoryReserved(ctx context.Context, payload []byte) error {
	event, err := messaging.DecodeInventoryReserved(payload)
	if err != nil {
		return err
	}

	sagaID := domain.SagaIDForOrder(event.OrderID)
	return o.sagas.WithLock(sagaID, func() error {
		saga, ok := o.lookupSaga(sagaID, messaging.TopicInventoryReserved)
		if !ok {
			return nil
		}
		if saga.Status != domain.SagaStatusStarted {
			o.skipEvent(saga, messaging.TopicInventoryReserved)
			return nil
		}

		saga.ReservationID = event.ReservationID
		saga.Status = domain.SagaStatusInventoryReserved
		if err := o.sagas.Put(saga); err != nil {
			return fmt.Errorf("put saga record: %w", err)
		}

		order, err := o.persistOrder(event.OrderID, func(order *domain.Order) error {
			return order.ReserveInventory()
		})
		if err != nil {
			o.failLocked(ctx, &saga, StageStockReservation, fmt.Sprintf("persist reservation: %v", err))
			return nil
		}

		request := messaging.NewPaymentProcessRequest(order.ID, saga.CustomerID, orderAmount(order))
		if err := o.publish(ctx, messaging.TopicPaymentProcessRequest, order.ID, request); err != nil {
			o.failLocked(ctx, &saga, StagePaymentProcessing, fmt.Sprintf("publish payments.process_request: %v", err))
			return nil
		}

		saga.Status = domain.SagaStatusPaymentProcessing
		if err := o.sagas.Put(saga); err != nil {
			return fmt.Errorf("put saga record: %w", err)
		}

		o.logger.WithFields(log.Fields{
			"saga_id":        saga.ID,
			"order_id":       order.ID,
			"reservation_id": saga.ReservationID,
		}).Info("inventory reserved, payment requested")
		return nil
	})
}

// HandleInventoryOutOfStock обрабатывает inventory.out_of_stock:
// сага проваливается на стадии stock_reservation с причиной,
// перечисляющей каждую недоступную позицию.
func (o *Orchestrator) HandleInventoryOutOfStock(ctx context.Context, payload []byte) error {
	event, err := messaging.DecodeInventoryOutOfStock(payload)
	if err != nil {
		return err
	}

	reason := outOfStockReason(event.UnavailableItems)
	sagaID := domain.SagaIDForOrder(event.OrderID)
	return o.sagas.WithLock(sagaID, func() error {
		saga, ok := o.lookupSaga(sagaID, messaging.TopicInventoryOutOfStock)
		if !ok {
			return nil
		}
		o.failLocked(ctx, &saga, StageStockReservation, reason)
		return nil
	})
}

// outOfStockReason собирает причину провала из недоступных позиций.
func outOfStockReason(items []messaging.UnavailableItem) string {
	if len(items) == 0 {
		return "out of stock"
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("product %s: requested %d, available %d",
			item.ProductID, item.RequestedQty, item.AvailableQty))
	}
	return "out of stock: " + strings.Join(parts, "; ")
}

// HandlePaymentSucceeded обрабатывает payments.succeeded: фиксирует
// платёж, завершает заказ, публикует orders.confirmed и финализирует сагу.
func (o *Orchestrator) HandlePaymentSucceeded(ctx context.Context, payload []byte) error {
	event, err := messaging.DecodePaymentSucceeded(payload)
	if err != nil {
		return err
	}

	sagaID := domain.SagaIDForOrder(event.OrderID)
	return o.sagas.WithLock(sagaID, func() error {
		saga, ok := o.lookupSaga(sagaID, messaging.TopicPaymentSucceeded)
		if !ok {
			return nil
		}
		if saga.Status != domain.SagaStatusPaymentProcessing {
			o.skipEvent(saga, messaging.TopicPaymentSucceeded)
			return nil
		}

		saga.PaymentID = event.PaymentID
		saga.Status = domain.SagaStatusPaymentSucceeded
		if err := o.sagas.Put(saga); err != nil {
			return fmt.Errorf("put saga record: %w", err)
		}

		order, err := o.persistOrder(event.OrderID, func(order *domain.Order) error {
			if err := order.ConfirmPayment(); err != nil {
				return err
			}
			return order.Complete()
		})
		if err != nil {
			o.failLocked(ctx, &saga, StageCompletion, fmt.Sprintf("persist completion: %v", err))
			return nil
		}

		confirmed := messaging.NewOrderConfirmed(order.ID, saga.CustomerID, saga.PaymentID, event.Amount, toEventItems(order.Items))
		if err := o.publish(ctx, messaging.TopicOrderConfirmed, order.ID, confirmed); err != nil {
			o.failLocked(ctx, &saga, StageCompletion, fmt.Sprintf("publish orders.confirmed: %v", err))
			return nil
		}

		o.finalizeSaga(&saga, domain.SagaStatusCompleted)
		if err := o.sagas.Put(saga); err != nil {
			return fmt.Errorf("put saga record: %w", err)
		}
		if o.metrics != nil {
			o.metrics.RecordSagaCompleted()
			o.metrics.RecordSagaDuration(time.Since(saga.StartedAt))
		}

		o.logger.WithFields(log.Fields{
			"saga_id":    saga.ID,
			"order_id":   order.ID,
			"payment_id": saga.PaymentID,
		}).Info("saga completed")
		return nil
	})
}

// HandlePaymentFailed обрабатывает payments.failed: запускает компенсацию
// с причиной, присланной провайдером.
func (o *Orchestrator) HandlePaymentFailed(ctx context.Context, payload []byte) error {
	event, err := messaging.DecodePaymentFailed(payload)
	if err != nil {
		return err
	}

	sagaID := domain.SagaIDForOrder(event.OrderID)
	return o.sagas.WithLock(sagaID, func() error {
		saga, ok := o.lookupSaga(sagaID, messaging.TopicPaymentFailed)
		if !ok {
			return nil
		}
		reason := event.Reason
		if reason == "" {
			reason = "payment failed"
		}
		o.compensateLocked(ctx, &saga, reason)
		return nil
	})
}

// HandleSagaFailure — точка входа failure handling для внешних
// вызывающих (timeout sweep). Берёт per-key lock самостоятельно.
func (o *Orchestrator) HandleSagaFailure(ctx context.Context, sagaID, stage, reason string) error {
	return o.sagas.WithLock(sagaID, func() error {
		saga, err := o.sagas.Get(sagaID)
		if err != nil {
			// Провал всегда должен иметь цель; отсутствие саги — ошибка, а не warning.
			o.logger.WithError(err).WithFields(log.Fields{
				"saga_id": sagaID,
				"stage":   stage,
			}).Error("saga not found for failure handling")
			return nil
		}
		o.failLocked(ctx, &saga, stage, reason)
		return nil
	})
}

// failLocked переводит сагу в failed, персистит провал заказа и публикует
// orders.failed. Если резерв существовал, немедленно запускает компенсацию:
// проваленная сага с резервом никогда не остаётся просто failed.
// Вызывается строго под lock'ом саги.
func (o *Orchestrator) failLocked(ctx context.Context, saga *domain.SagaRecord, stage, reason string) {
	if saga.Status.IsTerminal() || saga.Status == domain.SagaStatusFailed || saga.Status == domain.SagaStatusCompensating {
		o.logger.WithFields(log.Fields{
			"saga_id": saga.ID,
			"status":  saga.Status,
			"stage":   stage,
		}).Debug("saga already finalized, skipping failure handling")
		return
	}

	o.finalizeSaga(saga, domain.SagaStatusFailed)
	saga.Error = reason
	if err := o.sagas.Put(*saga); err != nil {
		o.logger.WithError(err).WithField("saga_id", saga.ID).Error("failed to persist saga failure")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordSagaFailed(stage)
	}

	if _, err := o.persistOrder(saga.OrderID, func(order *domain.Order) error {
		return order.MarkAsFailed(reason)
	}); err != nil {
		o.logger.WithError(err).WithField("order_id", saga.OrderID).Error("failed to persist order failure")
	}

	compensationRequired := saga.ReservationID != ""
	failed := messaging.NewOrderFailed(saga.OrderID, saga.CustomerID, reason, stage, compensationRequired)
	if err := o.publish(ctx, messaging.TopicOrderFailed, saga.OrderID, failed); err != nil {
		o.logger.WithError(err).WithField("saga_id", saga.ID).Error("failed to publish orders.failed")
	}

	o.logger.WithFields(log.Fields{
		"saga_id":               saga.ID,
		"order_id":              saga.OrderID,
		"stage":                 stage,
		"reason":                reason,
		"compensation_required": compensationRequired,
	}).Warn("saga failed")

	if compensationRequired {
		o.compensateLocked(ctx, saga, reason)
	}
}

// compensateLocked выполняет откат: снимает резерв склада (если был),
// отменяет заказ и публикует orders.cancelled. При любой ошибке сага
// остаётся в compensating с записанной ошибкой; повторные попытки
// выполняет timeout sweep. Вызывается строго под lock'ом саги.
func (o *Orchestrator) compensateLocked(ctx context.Context, saga *domain.SagaRecord, reason string) {
	if saga.Status.IsTerminal() {
		o.logger.WithFields(log.Fields{
			"saga_id": saga.ID,
			"status":  saga.Status,
		}).Debug("saga already finalized, skipping compensation")
		return
	}

	saga.Status = domain.SagaStatusCompensating
	saga.CompensationReason = reason
	saga.CompensationAttempts++
	if err := o.sagas.Put(*saga); err != nil {
		o.logger.WithError(err).WithField("saga_id", saga.ID).Error("failed to persist compensating saga")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordCompensationStarted()
	}

	if err := o.runCompensation(ctx, saga, reason); err != nil {
		saga.Error = err.Error()
		if putErr := o.sagas.Put(*saga); putErr != nil {
			o.logger.WithError(putErr).WithField("saga_id", saga.ID).Error("failed to record compensation error")
		}
		o.logger.WithError(err).WithFields(log.Fields{
			"saga_id":  saga.ID,
			"order_id": saga.OrderID,
			"attempt":  saga.CompensationAttempts,
		}).Error("compensation failed, saga left compensating")
		return
	}

	o.finalizeSaga(saga, domain.SagaStatusCompensated)
	if err := o.sagas.Put(*saga); err != nil {
		o.logger.WithError(err).WithField("saga_id", saga.ID).Error("failed to persist compensated saga")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordSagaCompensated()
	}

	o.logger.WithFields(log.Fields{
		"saga_id":  saga.ID,
		"order_id": saga.OrderID,
		"reason":   reason,
	}).Info("saga compensated")
}

// runCompensation выполняет шаги отката в фиксированном порядке:
// release резерва публикуется раньше orders.cancelled.
func (o *Orchestrator) runCompensation(ctx context.Context, saga *domain.SagaRecord, reason string) error {
	if saga.ReservationID != "" {
		release := messaging.NewInventoryReleaseRequest(saga.OrderID, saga.ReservationID, reason)
		if err := o.publish(ctx, messaging.TopicInventoryReleaseRequest, saga.OrderID, release); err != nil {
			return fmt.Errorf("publish inventory.release_request: %w", err)
		}
	}

	if _, err := o.persistOrder(saga.OrderID, func(order *domain.Order) error {
		return order.Cancel(reason)
	}); err != nil {
		// Заказ мог быть финализирован раньше (например, failed в failure
		// handling); повторная отмена терминального заказа — no-op.
		if !errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("cancel order: %w", err)
		}
		o.logger.WithField("order_id", saga.OrderID).Debug("order already finalized, cancel skipped")
	}

	cancelled := messaging.NewOrderCancelled(saga.OrderID, reason)
	if err := o.publish(ctx, messaging.TopicOrderCancelled, saga.OrderID, cancelled); err != nil {
		return fmt.Errorf("publish orders.cancelled: %w", err)
	}
	return nil
}

// RetryCompensation повторяет откат саги, застрявшей в compensating.
// Вызывается timeout sweep'ом; частоту повторов задаёт его интервал.
func (o *Orchestrator) RetryCompensation(ctx context.Context, sagaID string) error {
	return o.sagas.WithLock(sagaID, func() error {
		saga, err := o.sagas.Get(sagaID)
		if err != nil {
			return nil
		}
		if saga.Status != domain.SagaStatusCompensating {
			return nil
		}

		saga.CompensationAttempts++
		if err := o.sagas.Put(saga); err != nil {
			return fmt.Errorf("put saga record: %w", err)
		}

		if err := o.runCompensation(ctx, &saga, saga.CompensationReason); err != nil {
			saga.Error = err.Error()
			if putErr := o.sagas.Put(saga); putErr != nil {
				o.logger.WithError(putErr).WithField("saga_id", saga.ID).Error("failed to record compensation error")
			}
			o.logger.WithError(err).WithFields(log.Fields{
				"saga_id": saga.ID,
				"attempt": saga.CompensationAttempts,
			}).Warn("compensation retry failed")
			return nil
		}

		o.finalizeSaga(&saga, domain.SagaStatusCompensated)
		if err := o.sagas.Put(saga); err != nil {
			return fmt.Errorf("put saga record: %w", err)
		}
		if o.metrics != nil {
			o.metrics.RecordSagaCompensated()
		}
		o.logger.WithFields(log.Fields{
			"saga_id": saga.ID,
			"attempt": saga.CompensationAttempts,
		}).Info("compensation retry succeeded")
		return nil
	})
}

// finalizeSaga проставляет статус, completed_at и retention-метку.
func (o *Orchestrator) finalizeSaga(saga *domain.SagaRecord, status domain.SagaStatus) {
	now := time.Now().UTC()
	saga.Status = status
	saga.CompletedAt = &now
	expires := now.Add(o.retention)
	saga.ExpiresAt = &expires
}

// lookupSaga возвращает сагу либо false, если обрабатывать нечего.
// Отсутствующая или терминальная сага — штатная ситуация при доставке
// at-least-once: событие могло прийти после финализации.
func (o *Orchestrator) lookupSaga(sagaID, topic string) (domain.SagaRecord, bool) {
	saga, err := o.sagas.Get(sagaID)
	if err != nil {
		o.logger.WithFields(log.Fields{
			"saga_id": sagaID,
			"topic":   topic,
		}).Warn("saga not found, event skipped")
		return domain.SagaRecord{}, false
	}
	if saga.Status.IsTerminal() {
		o.logger.WithFields(log.Fields{
			"saga_id": sagaID,
			"status":  saga.Status,
			"topic":   topic,
		}).Debug("saga already finalized, event skipped")
		return domain.SagaRecord{}, false
	}
	return saga, true
}

// skipEvent логирует событие, пришедшее в неожиданном статусе саги.
func (o *Orchestrator) skipEvent(saga domain.SagaRecord, topic string) {
	o.logger.WithFields(log.Fields{
		"saga_id": saga.ID,
		"status":  saga.Status,
		"topic":   topic,
	}).Warn("event skipped: saga in unexpected status")
}

// persistOrder загружает заказ, применяет мутацию агрегата и сохраняет
// результат с retry на version conflict. Доменные события агрегата
// дренируются после каждой мутации.
func (o *Orchestrator) persistOrder(orderID string, mutate func(*domain.Order) error) (domain.Order, error) {
	const maxRetries = 3
	const baseDelay = 10 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		order, err := o.orders.Get(orderID)
		if err != nil {
			return domain.Order{}, err
		}

		if err := mutate(&order); err != nil {
			return domain.Order{}, err
		}

		if err := o.orders.Save(order); err != nil {
			if domain.IsVersionConflict(err) {
				lastErr = err
				o.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt + 1,
				}).Warn("version conflict detected, retrying")
				time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
				continue
			}
			return domain.Order{}, err
		}

		o.drainDomainEvents(&order)
		return order, nil
	}
	return domain.Order{}, lastErr
}

// drainDomainEvents вычитывает накопленные события агрегата ровно один раз.
func (o *Orchestrator) drainDomainEvents(order *domain.Order) {
	for _, event := range order.DrainEvents() {
		if o.metrics != nil {
			o.metrics.RecordDomainEvent()
		}
		if o.timeline != nil {
			// Хронология вспомогательная: сбой записи не должен ронять обработчик.
			if err := o.timeline.Append(event); err != nil {
				o.logger.WithError(err).WithFields(log.Fields{
					"order_id": event.OrderID,
					"event":    event.Type,
				}).Warn("failed to append timeline event")
			}
		}
		o.logger.WithFields(log.Fields{
			"order_id": event.OrderID,
			"event":    event.Type,
			"from":     event.From,
			"to":       event.To,
		}).Debug("domain event drained")
	}
}

// publish сериализует событие и отправляет его в шину.
func (o *Orchestrator) publish(ctx context.Context, topic, key string, event interface{}) error {
	payload, err := messaging.Encode(event)
	if err != nil {
		return err
	}
	if err := o.bus.Publish(ctx, topic, key, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	if o.metrics != nil {
		o.metrics.RecordEventPublished(topic)
	}
	return nil
}

// orderAmount собирает денежную сумму заказа для интеграционных событий.
func orderAmount(order domain.Order) messaging.Amount {
	return messaging.Amount{ValueMinor: order.AmountMinor, Currency: order.Currency}
}

// toEventItems конвертирует позиции агрегата в представление для событий.
func toEventItems(items []domain.OrderItem) []messaging.Item {
	result := make([]messaging.Item, 0, len(items))
	for _, item := range items {
		result = append(result, messaging.Item{
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			Currency:   item.Currency,
		})
	}
	return result
}
