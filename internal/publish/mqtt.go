// Package publish broadcasts every fresh reading to an MQTT topic as a
// retained JSON message, so dashboards and home-automation clients get the
// current value on subscribe.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/albapepper/almaty-air/internal/airquality"
)

const publishTimeout = 5 * time.Second

// Message is the JSON payload published for each reading.
type Message struct {
	Location      string              `json:"location"`
	AQI           int                 `json:"aqi"`
	Band          string              `json:"band"`
	MainPollutant string              `json:"main_pollutant"`
	Weather       *airquality.Weather `json:"weather,omitempty"`
	CapturedAt    time.Time           `json:"captured_at"`
}

// NewMessage builds the payload for a reading.
func NewMessage(location string, r *airquality.Reading) Message {
	return Message{
		Location:      location,
		AQI:           r.AQI,
		Band:          r.Band().String(),
		MainPollutant: r.MainPollutant,
		Weather:       r.Weather,
		CapturedAt:    r.CapturedAt,
	}
}

// tokenPublisher is the subset of mqtt.Client used here.
type tokenPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher sends readings to one topic.
type Publisher struct {
	client   tokenPublisher
	topic    string
	location string
	logger   *slog.Logger
	disc     func()
}

// Connect dials the broker and returns a publisher. The client reconnects on
// its own after the first successful connect.
func Connect(ctx context.Context, brokerURL, clientID, topic, location string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{topic: topic, location: location, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("MQTT connected", "broker", brokerURL)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()

	const poll = 200 * time.Millisecond
	for !token.WaitTimeout(poll) {
		select {
		case <-ctx.Done():
			client.Disconnect(0)
			return nil, ctx.Err()
		default:
		}
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	p.client = client
	p.disc = func() { client.Disconnect(250) }
	return p, nil
}

// Publish sends one reading as a retained QoS 1 message.
func (p *Publisher) Publish(ctx context.Context, r *airquality.Reading) error {
	payload, err := json.Marshal(NewMessage(p.location, r))
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	token := p.client.Publish(p.topic, 1, true, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// ObserveReading publishes every fresh reading. Failures are logged only.
func (p *Publisher) ObserveReading(ctx context.Context, r *airquality.Reading) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, r); err != nil {
		p.logger.Warn("Failed to publish reading", "topic", p.topic, "error", err)
		return
	}
	p.logger.Debug("Published reading", "topic", p.topic, "aqi", r.AQI)
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.disc != nil {
		p.disc()
	}
}
