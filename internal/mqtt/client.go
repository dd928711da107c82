package mqtt

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/ponytojas/go-cr310-ingest/config"
	"github.com/ponytojas/go-cr310-ingest/internal/models"
)

// Ingester stores one raw reading.
type Ingester interface {
	Ingest(ctx context.Context, payload map[string]any) (*models.IngestResult, error)
}

// Result is published on the result topic after every message.
type Result struct {
	Success   bool     `json:"success"`
	Equipo    string   `json:"equipo,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Code      string   `json:"code,omitempty"`
	Error     string   `json:"error,omitempty"`
	Details   any      `json:"details,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Client handles MQTT connection and message processing
type Client struct {
	client   mqtt.Client
	ingester Ingester
	config   *config.Config
	logger   *zap.Logger
	baseCtx  context.Context
}

// NewClient creates a new MQTT client
func NewClient(cfg *config.Config, ingester Ingester, logger *zap.Logger) (*Client, error) {
	if ingester == nil {
		return nil, errors.New("mqtt client needs an ingester")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "mqtt"))

	opts := mqtt.NewClientOptions()
	brokerURL := cfg.GetMQTTBrokerURL()
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.MQTT.ClientID)
	if cfg.MQTT.Timeout > 0 {
		opts.SetConnectTimeout(cfg.MQTT.Timeout)
	}

	// Configure TLS if using SSL or secure websockets
	if strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "wss://") {
		logger.Info("Configuring TLS for secure connection", zap.String("broker", brokerURL))
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("Connection lost", zap.Error(err))
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info("Attempting to reconnect to MQTT broker")
	})

	return &Client{
		client:   mqtt.NewClient(opts),
		ingester: ingester,
		config:   cfg,
		logger:   logger,
		baseCtx:  context.Background(),
	}, nil
}

// Connect connects to the MQTT broker
func (c *Client) Connect() error {
	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	c.logger.Info("Connected to MQTT broker", zap.String("broker", c.config.GetMQTTBrokerURL()))
	return nil
}

// Subscribe subscribes to the configured topic. Messages are ingested under
// ctx; once it is cancelled they fail as unavailable.
func (c *Client) Subscribe(ctx context.Context) error {
	c.baseCtx = ctx

	token := c.client.Subscribe(c.config.MQTT.Topic, c.config.MQTT.QoS, c.handleMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", c.config.MQTT.Topic, token.Error())
	}
	c.logger.Info("Subscribed to topic", zap.String("topic", c.config.MQTT.Topic))
	return nil
}

// Disconnect disconnects from the MQTT broker
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.logger.Info("Disconnected from MQTT broker")
}

func (c *Client) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	c.logger.Debug("Received message",
		zap.String("topic", msg.Topic()),
		zap.Int("bytes", len(msg.Payload())))

	res := c.processMessage(msg.Payload())
	if c.config.MQTT.ResultTopic != "" {
		c.publishResult(res)
	}
}

// processMessage decodes one message and hands it to the ingester.
func (c *Client) processMessage(payload []byte) Result {
	raw, err := decodeObject(payload)
	if err != nil {
		c.logger.Warn("Error decoding message", zap.Error(err))
		return Result{Code: "invalid_json", Error: err.Error()}
	}

	ctx := c.baseCtx
	if c.config.MQTT.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.MQTT.Timeout)
		defer cancel()
	}

	equipo, _ := raw[models.FieldEquipmentID].(string)
	timestamp, _ := raw[models.FieldTimestamp].(string)

	stored, err := c.ingester.Ingest(ctx, raw)
	if err != nil {
		res := Result{Equipo: equipo, Timestamp: timestamp}
		var ce models.ClientError
		if errors.As(err, &ce) {
			res.Code = ce.Code()
			res.Error = err.Error()
			res.Details = ce.Details()
		} else {
			res.Code = "unavailable"
			res.Error = "reading could not be stored"
		}
		return res
	}

	return Result{
		Success:   true,
		Equipo:    stored.Reading.EquipmentID,
		Timestamp: stored.Reading.Timestamp,
		Warnings:  stored.Warnings,
	}
}

func (c *Client) publishResult(res Result) {
	body, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("Error encoding result", zap.Error(err))
		return
	}
	token := c.client.Publish(c.config.MQTT.ResultTopic, c.config.MQTT.QoS, false, body)
	go func() {
		if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
			c.logger.Warn("Failed to publish result",
				zap.String("topic", c.config.MQTT.ResultTopic),
				zap.Error(token.Error()))
		}
	}()
}

// decodeObject requires a single JSON object and keeps numbers as
// json.Number so integers are not widened before validation.
func decodeObject(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("message is not a JSON object: %w", err)
	}
	if raw == nil {
		return nil, errors.New("message is not a JSON object: null")
	}
	if dec.More() {
		return nil, errors.New("message has trailing data after the JSON object")
	}
	return raw, nil
}
