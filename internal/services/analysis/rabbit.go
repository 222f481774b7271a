package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/zdravscan/internal/lib/rabbitmq"
)

// ErrMalformedTask возвращается для сообщения, которое не удалось разобрать.
var ErrMalformedTask = errors.New("malformed analysis task")

// RabbitDispatcher публикует задачи в очередь анализа RabbitMQ.
// Канал amqp не безопасен для конкурентной публикации, поэтому публикация сериализуется.
type RabbitDispatcher struct {
	mu sync.Mutex
	ch *amqp.Channel
}

// NewRabbitDispatcher создаёт RabbitDispatcher поверх открытого канала.
func NewRabbitDispatcher(ch *amqp.Channel) *RabbitDispatcher {
	return &RabbitDispatcher{ch: ch}
}

// Dispatch публикует задачу с ключом маршрутизации очереди анализа.
func (d *RabbitDispatcher) Dispatch(ctx context.Context, task Task) error {
	const op = "analysis.RabbitDispatcher.Dispatch"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	err := rabbitmq.Publish(d.ch, rabbitmq.Message{
		Exchange:   rabbitmq.AnalysisExchange,
		RoutingKey: rabbitmq.AnalysisRoutingKey,
		ID:         task.JobID,
		Payload:    task,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MessageHandler возвращает обработчик сообщений очереди анализа.
// Сообщение возвращается в очередь только если задачу не удалось прочитать из хранилища.
// Остальные ошибки подтверждаются и логируются потребителем.
func MessageHandler(p Processor) rabbitmq.Handler {
	return func(ctx context.Context, body []byte) error {
		const op = "analysis.MessageHandler"
		var task Task
		if err := json.Unmarshal(body, &task); err != nil {
			return fmt.Errorf("%s: %w: %w", op, ErrMalformedTask, err)
		}
		if task.JobID == "" {
			return fmt.Errorf("%s: %w: empty job_id", op, ErrMalformedTask)
		}

		err := p.Process(ctx, task)
		if errors.Is(err, ErrTransient) {
			return fmt.Errorf("%s: %w: %w", op, rabbitmq.ErrRequeue, err)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
}
