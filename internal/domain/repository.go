package domain

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrOrderExists, если ID занят.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(order Order) error
}

// TimelineRepository хранит хронологию доменных событий по заказам.
type TimelineRepository interface {
	// Append добавляет событие в хронологию заказа.
	Append(event Event) error
	// List возвращает события заказа в порядке возникновения.
	List(orderID string) ([]Event, error)
}

// SagaStore описывает реестр саг в полёте. Все мутации одной саги
// обязаны выполняться под WithLock этой саги; саги с разными ID
// обрабатываются полностью параллельно.
type SagaStore interface {
	// Get возвращает сагу или ErrSagaNotFound, если её нет.
	Get(sagaID string) (SagaRecord, error)
	// Put создаёт или перезаписывает запись саги.
	Put(saga SagaRecord) error
	// Delete удаляет сагу из реестра. Удаление отсутствующей саги — не ошибка.
	Delete(sagaID string) error
	// ListActive возвращает снимок всех саг в реестре для timeout sweep.
	ListActive() ([]SagaRecord, error)
	// WithLock сериализует работу над одной сагой по её ключу.
	WithLock(sagaID string, fn func() error) error
}
