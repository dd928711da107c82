package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "cr310_readings", cfg.Timescale.TableName)
	assert.Equal(t, 30.0, cfg.Ingest.ConsistencyThreshold)
	assert.Equal(t, "advisory", cfg.Ingest.ConsistencyPolicy)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, 5*time.Second, cfg.Mongo.Timeout)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoadConfigFileAndEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	data := `
server:
  port: 9090
  slow_request: 250ms
storage:
  driver: mongo
mongo:
  database: field_station
ingest:
  consistency_policy: blocking
  consistency_threshold: 25
mqtt:
  enabled: true
  topic: stations/+/cr310
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(data), 0o600))

	t.Setenv("SERVER_PORT", "9191")
	t.Setenv("MONGODB_COLLECTION", "readings_v2")
	t.Setenv("MQTT_BROKER_URL", "mqtt.example.org")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Server.SlowRequest)
	assert.Equal(t, DriverMongo, cfg.Storage.Driver)
	assert.Equal(t, "field_station", cfg.Mongo.Database)
	assert.Equal(t, "readings_v2", cfg.Mongo.Collection)
	assert.Equal(t, "blocking", cfg.Ingest.ConsistencyPolicy)
	assert.Equal(t, 25.0, cfg.Ingest.ConsistencyThreshold)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "stations/+/cr310", cfg.MQTT.Topic)
	assert.Equal(t, "tcp://mqtt.example.org:1883", cfg.GetMQTTBrokerURL())
}

func TestLoadConfigRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [port"), 0o600))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":     func(c *Config) { c.Storage.Driver = "sqlite" },
		"bad table name":     func(c *Config) { c.Timescale.TableName = "readings; DROP TABLE x" },
		"unknown policy":     func(c *Config) { c.Ingest.ConsistencyPolicy = "strict" },
		"zero threshold":     func(c *Config) { c.Ingest.ConsistencyThreshold = 0 },
		"bad port":           func(c *Config) { c.Server.Port = 70000 },
		"mqtt without topic": func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Topic = "" },
		"bad qos":            func(c *Config) { c.MQTT.QoS = 3 },
		"mongo without uri":  func(c *Config) { c.Storage.Driver = DriverMongo; c.Mongo.URI = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := GetDefaultConfig()
	cfg.Storage.Driver = DriverMemory
	assert.NoError(t, cfg.Validate())
}

func TestGetMQTTBrokerURL(t *testing.T) {
	cases := map[string]string{
		"tcp://broker":          "tcp://broker:1883",
		"ssl://broker:8883":     "ssl://broker:8883",
		"ws://broker":           "ws://broker:1883",
		"http://broker":         "tcp://broker:1883",
		"https://broker":        "ssl://broker:1883",
		"https://broker:8883":   "ssl://broker:8883",
		"broker.local":          "tcp://broker.local:1883",
		"wss://broker:443/mqtt": "wss://broker:443/mqtt",
	}
	for in, want := range cases {
		cfg := GetDefaultConfig()
		cfg.MQTT.Broker = in
		assert.Equal(t, want, cfg.GetMQTTBrokerURL(), in)
	}
}

func TestGetDBConnString(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=datalogger_db sslmode=disable",
		cfg.GetDBConnString())
	assert.Equal(t, "0.0.0.0:8000", cfg.GetServerAddr())
}
