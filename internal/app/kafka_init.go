package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// initKafkaProducer возвращает nil, если брокеры не заданы или недоступны.
// Без producer outbox выключен: события заказов не записываются.
func initKafkaProducer(brokers string, logger *log.Entry) *kafka.Producer {
	list := kafka.ParseBrokers(brokers)
	if len(list) == 0 {
		return nil
	}

	producer, err := kafka.NewProducer(list, logger.WithField("layer", "kafka"))
	if err != nil {
		logger.WithError(err).WithField("brokers", list).Warn("kafka is unavailable, order events are disabled")
		return nil
	}
	logger.WithField("brokers", list).Info("kafka producer initialized")
	return producer
}

func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
