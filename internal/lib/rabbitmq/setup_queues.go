package rabbitmq

// Имена exchange, очереди и ключа маршрутизации для задач анализа.
const (
	AnalysisExchange   = "analysis"
	AnalysisQueue      = "analysis.scan"
	AnalysisRoutingKey = "scan"
)

// QueueConfig описывает очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// Topology описывает exchange и привязанные к нему очереди.
type Topology struct {
	Exchange string
	Queues   []QueueConfig
}

// AnalysisTopology возвращает топологию очереди задач анализа.
func AnalysisTopology() Topology {
	return Topology{
		Exchange: AnalysisExchange,
		Queues: []QueueConfig{
			{QueueName: AnalysisQueue, RoutingKey: AnalysisRoutingKey},
		},
	}
}
