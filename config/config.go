package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Timescale TimescaleConfig `mapstructure:"timescale"`
	Mongo     MongoConfig     `mapstructure:"mongo"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP listener configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	SlowRequest     time.Duration `mapstructure:"slow_request"`
	Mode            string        `mapstructure:"mode"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// TimescaleConfig holds Timescale specific configuration
type TimescaleConfig struct {
	TableName  string `mapstructure:"table_name"`
	Hypertable bool   `mapstructure:"hypertable"`
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string        `mapstructure:"uri"`
	Database   string        `mapstructure:"database"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// MQTTConfig holds MQTT connection configuration
type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Broker      string        `mapstructure:"broker"`
	Port        int           `mapstructure:"port"`
	ClientID    string        `mapstructure:"client_id"`
	Topic       string        `mapstructure:"topic"`
	ResultTopic string        `mapstructure:"result_topic"`
	QoS         byte          `mapstructure:"qos"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// IngestConfig holds reading normalization settings
type IngestConfig struct {
	ConsistencyThreshold float64 `mapstructure:"consistency_threshold"`
	ConsistencyPolicy    string  `mapstructure:"consistency_policy"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Service string `mapstructure:"service"`
}

// envBindings maps every configuration key to its environment variable.
var envBindings = map[string]string{
	"server.host":             "SERVER_HOST",
	"server.port":             "SERVER_PORT",
	"server.shutdown_timeout": "SERVER_SHUTDOWN_TIMEOUT",
	"server.slow_request":     "SERVER_SLOW_REQUEST",
	"server.mode":             "SERVER_MODE",

	"storage.driver": "STORAGE_DRIVER",

	"database.host":      "DATABASE_HOST",
	"database.port":      "DATABASE_PORT",
	"database.user":      "DATABASE_USER",
	"database.password":  "DATABASE_PASSWORD",
	"database.dbname":    "DATABASE_DBNAME",
	"database.sslmode":   "DATABASE_SSLMODE",
	"database.max_conns": "DATABASE_MAX_CONNS",
	"database.max_idle":  "DATABASE_MAX_IDLE",

	"timescale.table_name": "TIMESCALE_TABLE_NAME",
	"timescale.hypertable": "TIMESCALE_HYPERTABLE",

	"mongo.uri":        "MONGODB_URL",
	"mongo.database":   "MONGODB_DATABASE",
	"mongo.collection": "MONGODB_COLLECTION",
	"mongo.timeout":    "MONGODB_TIMEOUT",

	"mqtt.enabled":      "MQTT_ENABLED",
	"mqtt.broker":       "MQTT_BROKER",
	"mqtt.port":         "MQTT_PORT",
	"mqtt.client_id":    "MQTT_CLIENT_ID",
	"mqtt.topic":        "MQTT_TOPIC",
	"mqtt.result_topic": "MQTT_RESULT_TOPIC",
	"mqtt.qos":          "MQTT_QOS",
	"mqtt.username":     "MQTT_USERNAME",
	"mqtt.password":     "MQTT_PASSWORD",
	"mqtt.timeout":      "MQTT_TIMEOUT",

	"ingest.consistency_threshold": "INGEST_CONSISTENCY_THRESHOLD",
	"ingest.consistency_policy":    "INGEST_CONSISTENCY_POLICY",

	"log.level":   "LOG_LEVEL",
	"log.format":  "LOG_FORMAT",
	"log.service": "LOG_SERVICE",
}

// LoadConfig loads configuration from file and/or environment variables.
// A missing config file is not an error; a malformed one is.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values first (lowest precedence)
	setDefaults(v, GetDefaultConfig())

	// Try to load from config file (medium precedence)
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Environment variables (highest precedence)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Keep backward compatibility with MQTT_BROKER_URL
	_ = v.BindEnv("mqtt.broker", "MQTT_BROKER", "MQTT_BROKER_URL")
	for key, env := range envBindings {
		if key == "mqtt.broker" {
			continue
		}
		_ = v.BindEnv(key, env)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.slow_request", d.Server.SlowRequest)
	v.SetDefault("server.mode", d.Server.Mode)

	v.SetDefault("storage.driver", d.Storage.Driver)

	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.dbname", d.Database.DBName)
	v.SetDefault("database.sslmode", d.Database.SSLMode)
	v.SetDefault("database.max_conns", d.Database.MaxConns)
	v.SetDefault("database.max_idle", d.Database.MaxIdle)

	v.SetDefault("timescale.table_name", d.Timescale.TableName)
	v.SetDefault("timescale.hypertable", d.Timescale.Hypertable)

	v.SetDefault("mongo.uri", d.Mongo.URI)
	v.SetDefault("mongo.database", d.Mongo.Database)
	v.SetDefault("mongo.collection", d.Mongo.Collection)
	v.SetDefault("mongo.timeout", d.Mongo.Timeout)

	v.SetDefault("mqtt.enabled", d.MQTT.Enabled)
	v.SetDefault("mqtt.broker", d.MQTT.Broker)
	v.SetDefault("mqtt.port", d.MQTT.Port)
	v.SetDefault("mqtt.client_id", d.MQTT.ClientID)
	v.SetDefault("mqtt.topic", d.MQTT.Topic)
	v.SetDefault("mqtt.result_topic", d.MQTT.ResultTopic)
	v.SetDefault("mqtt.qos", d.MQTT.QoS)
	v.SetDefault("mqtt.username", d.MQTT.Username)
	v.SetDefault("mqtt.password", d.MQTT.Password)
	v.SetDefault("mqtt.timeout", d.MQTT.Timeout)

	v.SetDefault("ingest.consistency_threshold", d.Ingest.ConsistencyThreshold)
	v.SetDefault("ingest.consistency_policy", d.Ingest.ConsistencyPolicy)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.service", d.Log.Service)
}

// GetDefaultConfig returns default configuration
func GetDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 5 * time.Second,
			SlowRequest:     time.Second,
			Mode:            "release",
		},
		Storage: StorageConfig{
			Driver: DriverPostgres,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "datalogger_db",
			SSLMode:  "disable",
			MaxConns: 10,
			MaxIdle:  5,
		},
		Timescale: TimescaleConfig{
			TableName:  "cr310_readings",
			Hypertable: false,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "datalogger_db",
			Collection: "cr310_readings",
			Timeout:    5 * time.Second,
		},
		MQTT: MQTTConfig{
			Enabled:  false,
			Broker:   "tcp://localhost",
			Port:     1883,
			ClientID: "cr310-ingest",
			Topic:    "datalogger/cr310/+/readings",
			QoS:      1,
			Timeout:  5 * time.Second,
		},
		Ingest: IngestConfig{
			ConsistencyThreshold: 30,
			ConsistencyPolicy:    "advisory",
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "json",
			Service: "cr310-ingest",
		},
	}
}

// Validate rejects configurations the service cannot run with
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if !identifierPattern.MatchString(c.Timescale.TableName) {
			return fmt.Errorf("timescale.table_name %q is not a valid identifier", c.Timescale.TableName)
		}
	case DriverMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return errors.New("mongo.uri, mongo.database and mongo.collection are required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q (want postgres, mongo or memory)", c.Storage.Driver)
	}

	switch strings.ToLower(c.Ingest.ConsistencyPolicy) {
	case "", "advisory", "blocking":
	default:
		return fmt.Errorf("unknown ingest.consistency_policy %q", c.Ingest.ConsistencyPolicy)
	}
	if c.Ingest.ConsistencyThreshold <= 0 {
		return errors.New("ingest.consistency_threshold must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.MQTT.Enabled && c.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required when mqtt is enabled")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS)
	}
	return nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// GetServerAddr returns the HTTP listen address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetMQTTBrokerURL returns the MQTT broker URL
func (c *Config) GetMQTTBrokerURL() string {
	brokerURL := c.MQTT.Broker

	// If the URL already has a protocol, use it as is
	for _, scheme := range []string{"tcp://", "ssl://", "ws://", "wss://"} {
		if strings.HasPrefix(brokerURL, scheme) {
			// If there's no port in the URL, add the default port
			if !strings.Contains(strings.TrimPrefix(brokerURL, scheme), ":") {
				brokerURL = fmt.Sprintf("%s:%d", brokerURL, c.MQTT.Port)
			}
			return brokerURL
		}
	}

	// Handle http:// and https:// protocols by converting to mqtt protocols
	if host, ok := strings.CutPrefix(brokerURL, "http://"); ok {
		if !strings.Contains(host, ":") {
			host = fmt.Sprintf("%s:%d", host, c.MQTT.Port)
		}
		return fmt.Sprintf("tcp://%s", host)
	}

	if host, ok := strings.CutPrefix(brokerURL, "https://"); ok {
		if !strings.Contains(host, ":") {
			host = fmt.Sprintf("%s:%d", host, c.MQTT.Port)
		}
		return fmt.Sprintf("ssl://%s", host)
	}

	// If no protocol is specified, use tcp:// with the configured port
	return fmt.Sprintf("tcp://%s:%d", brokerURL, c.MQTT.Port)
}
