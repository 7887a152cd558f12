package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrentstore/internal/config"
	"torrentstore/notify"
)

func mockedDriver(t *testing.T) (*driver, *mocks.AsyncProducer) {
	mp := mocks.NewAsyncProducer(t, nil)
	d := &driver{newProducer: func([]string, *sarama.Config) (sarama.AsyncProducer, error) { return mp, nil }}
	require.NoError(t, d.Configure(config.Notifications{Driver: "kafka", Brokers: []string{"k1:9092"}, Topic: "images", RequiredAcks: 1}))
	return d, mp
}

func TestDriver_PublishKeysByImage(t *testing.T) {
	d, mp := mockedDriver(t)

	seen := make(chan *sarama.ProducerMessage, 1)
	mp.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		seen <- msg
		return nil
	})

	ev := notify.Event{Type: notify.EventDownloadEnd, ImageID: "img-1", VDIs: []string{"vdi-a"}}
	require.NoError(t, d.Publish(context.Background(), ev))

	msg := <-seen
	assert.Equal(t, "images", msg.Topic)
	key, err := msg.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "img-1", string(key))

	val, err := msg.Value.Encode()
	require.NoError(t, err)
	var got notify.Event
	require.NoError(t, json.Unmarshal(val, &got))
	assert.Equal(t, []string{"vdi-a"}, got.VDIs)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "Close must be idempotent")
}

func TestDriver_ConfigureRequiresBrokersAndTopic(t *testing.T) {
	assert.Error(t, (&driver{}).Configure(config.Notifications{Topic: "images"}))
	assert.Error(t, (&driver{}).Configure(config.Notifications{Brokers: []string{"k1:9092"}}))
}
