package app

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func TestInitKafkaProducer_DisabledWithoutBrokers(t *testing.T) {
	logger, hook := test.NewNullLogger()

	for _, brokers := range []string{"", " , "} {
		require.Nil(t, initKafkaProducer(brokers, log.NewEntry(logger)), "brokers %q", brokers)
	}
	require.Empty(t, hook.AllEntries())
}

func TestInitKafkaProducer_UnreachableBrokersDisableEvents(t *testing.T) {
	logger, hook := test.NewNullLogger()

	require.Nil(t, initKafkaProducer("invalid-broker.invalid:9999", log.NewEntry(logger)))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	require.Equal(t, log.WarnLevel, entry.Level)
	require.Equal(t, "kafka is unavailable, order events are disabled", entry.Message)
}

func TestCloseKafkaProducer_Nil(t *testing.T) {
	require.NotPanics(t, func() { closeKafkaProducer(nil, log.WithField("test", "kafka")) })
}
