// Package mqttingest bridges wearable gateways publishing over MQTT into the
// sync service.
package mqttingest

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options configures the broker connection.
type Options struct {
	BrokerURL string
	ClientID  string
}

// Client is a connected paho client.
type Client struct {
	raw mqtt.Client
}

// Dial connects to the broker, retrying in the background until it is reachable.
func Dial(opts Options) (*Client, error) {
	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetCleanSession(false)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetConnectRetryInterval(2 * time.Second)
	c := mqtt.NewClient(o)

	token := c.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &Client{raw: c}, nil
}

// Subscribe registers handler for topic and waits for the broker to confirm.
func (c *Client) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	token := c.raw.Subscribe(topic, qos, handler)
	token.Wait()
	return token.Error()
}

// Close disconnects, allowing in-flight work a short grace period.
func (c *Client) Close() {
	c.raw.Disconnect(250)
}
