package pubsub

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/webitel/im-context-relay/config"
)

const (
	DriverMemory = "memory"
	DriverAMQP   = "amqp"
)

// PublisherProvider builds the in-process bus and the optional broker exporter.
type PublisherProvider struct {
	cfg    config.BusConfig
	logger watermill.LoggerAdapter
}

func NewPublisherProvider(cfg *config.Config, logger watermill.LoggerAdapter) *PublisherProvider {
	return &PublisherProvider{cfg: cfg.Bus, logger: logger}
}

// Bus returns the gochannel pub/sub shared by the dispatcher and the bus handler.
func (pp *PublisherProvider) Bus(bufferSize int) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(bufferSize),
	}, pp.logger)
}

// Exporters returns the broker publishers enabled by bus.driver.
func (pp *PublisherProvider) Exporters() ([]message.Publisher, error) {
	switch pp.cfg.Driver {
	case DriverAMQP:
		pub, err := pp.BuildAMQP()
		if err != nil {
			return nil, err
		}
		return []message.Publisher{pub}, nil
	default:
		return nil, nil
	}
}

func (pp *PublisherProvider) BuildAMQP() (message.Publisher, error) {
	pub, err := amqp.NewPublisher(amqp.NewDurablePubSubConfig(pp.cfg.AMQPURI, nil), pp.logger)
	if err != nil {
		return nil, fmt.Errorf("amqp publisher: %w", err)
	}
	return pub, nil
}
