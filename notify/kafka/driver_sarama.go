package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"torrentstore/internal/config"
	"torrentstore/internal/logging"
	"torrentstore/notify"
)

type producerFactory func(brokers []string, sc *sarama.Config) (sarama.AsyncProducer, error)

type driver struct {
	cfg         config.Notifications
	newProducer producerFactory

	p         sarama.AsyncProducer
	drained   sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

func (d *driver) Configure(cfg config.Notifications) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("kafka-notify: no brokers configured")
	}
	if cfg.Topic == "" {
		return errors.New("kafka-notify: no topic configured")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.RequiredAcks)
	sc.Producer.Return.Errors = true

	newProducer := d.newProducer
	if newProducer == nil {
		newProducer = sarama.NewAsyncProducer
	}
	p, err := newProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("kafka-notify: %w", err)
	}
	d.p = p

	d.drained.Add(1)
	go func() {
		defer d.drained.Done()
		for perr := range p.Errors() {
			logging.L().Warn("kafka-notify: delivery failed", "topic", perr.Msg.Topic, "err", perr.Err)
		}
	}()
	return nil
}

func (d *driver) Publish(ctx context.Context, ev notify.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic: d.cfg.Topic,
		Key:   sarama.StringEncoder(ev.ImageID),
		Value: sarama.ByteEncoder(b),
	}
	select {
	case d.p.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *driver) Close() error {
	d.closeOnce.Do(func() {
		if d.p == nil {
			return
		}
		d.closeErr = d.p.Close()
		d.drained.Wait()
	})
	return d.closeErr
}

func init() { notify.Register("kafka", func() notify.Adapter { return &driver{} }) }
