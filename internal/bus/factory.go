package bus

import (
	"github.com/docuchat/rag-server/internal/config"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
)

// NewBus creates an event bus from configuration. An empty type defaults to
// the in-memory bus.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryBus(log), nil

	case "kafka":
		brokers := ParseKafkaBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, errors.New(errors.CodeValidation, "kafka bus requires at least one broker")
		}
		group := cfg.KafkaGroup
		if group == "" {
			group = "rag-server"
		}
		return NewKafkaBus(KafkaConfig{
			Brokers:       brokers,
			ConsumerGroup: group,
		}, log)

	default:
		return nil, errors.New(errors.CodeValidation, "unknown bus type: "+cfg.Type)
	}
}
