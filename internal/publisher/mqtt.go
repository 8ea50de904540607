package publisher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jgoulah/waterscraper/internal/config"
	"github.com/jgoulah/waterscraper/pkg/models"
)

// Publisher sends consumption readings to Home Assistant and/or MQTT
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	haConfig    config.HAConfig
	http        *resty.Client
	logger      *zap.Logger
}

// New creates a new publisher (supports both MQTT and HA HTTP API)
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !mqttCfg.Enabled && !haCfg.Enabled {
		return nil, fmt.Errorf("neither Home Assistant nor MQTT is enabled in config")
	}

	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
		if haCfg.EntityID == "" {
			return nil, fmt.Errorf("Home Assistant entity_id is required when enabled")
		}
	}

	client := resty.New().
		SetBaseURL(haCfg.URL).
		SetAuthToken(haCfg.Token).
		SetTimeout(10 * time.Second)

	p := &Publisher{
		topicPrefix: mqttCfg.GetTopicPrefix(),
		haConfig:    haCfg,
		http:        client,
		logger:      logger,
	}

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		// Unique per run so an overlapping cron invocation doesn't kick this one off the broker
		opts.SetClientID("waterscraper-" + uuid.NewString()[:8])
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		p.client = mqtt.NewClient(opts)
		if token := p.client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
		}
		logger.Debug("connected to MQTT broker", zap.String("broker", mqttCfg.Broker))
	}

	return p, nil
}

// HAPayload matches the Home Assistant backfill service call data
type HAPayload struct {
	EntityID    string `json:"entity_id"`
	State       string `json:"state"`
	LastChanged string `json:"last_changed"`
	LastUpdated string `json:"last_updated"`
}

// MQTTPayload is the message published per day
type MQTTPayload struct {
	Date   string `json:"date"`
	Liters int    `json:"liters"`
}

// Publish sends a day's consumption to every enabled sink
func (p *Publisher) Publish(reading models.Consumption) error {
	if p.haConfig.Enabled {
		if err := p.publishHA(reading); err != nil {
			return fmt.Errorf("publishing to Home Assistant: %w", err)
		}
	}
	if p.client != nil {
		if err := p.publishMQTT(reading); err != nil {
			return fmt.Errorf("publishing to MQTT: %w", err)
		}
	}
	return nil
}

func (p *Publisher) publishHA(reading models.Consumption) error {
	timestamp := reading.Date.Format(time.RFC3339)
	payload := HAPayload{
		EntityID:    p.haConfig.EntityID,
		State:       strconv.Itoa(reading.Liters),
		LastChanged: timestamp,
		LastUpdated: timestamp,
	}

	_, err := p.postHA("/api/appdaemon/backfill_state", payload)
	return err
}

func (p *Publisher) publishMQTT(reading models.Consumption) error {
	body, err := json.Marshal(MQTTPayload{Date: reading.Key(), Liters: reading.Liters})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	topic := fmt.Sprintf("%s/daily_consumption", p.topicPrefix)
	token := p.client.Publish(topic, 1, false, body)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	return token.Error()
}

// Statistics is the Home Assistant statistics compilation summary
type Statistics struct {
	Inserted   int `json:"inserted"`
	Updated    int `json:"updated"`
	TotalHours int `json:"total_hours"`
}

// GenerateStatistics asks Home Assistant to compile statistics from the
// backfilled states
func (p *Publisher) GenerateStatistics() (*Statistics, error) {
	if !p.haConfig.Enabled {
		return nil, fmt.Errorf("Home Assistant is not enabled in config")
	}

	respBody, err := p.postHA("/api/appdaemon/generate_statistics", map[string]string{"entity_id": p.haConfig.EntityID})
	if err != nil {
		return nil, err
	}

	var stats Statistics
	if err := json.Unmarshal(respBody, &stats); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	return &stats, nil
}

func (p *Publisher) postHA(path string, payload any) ([]byte, error) {
	resp, err := p.http.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(path)
	if err != nil {
		return nil, fmt.Errorf("request error: %w", err)
	}

	p.logger.Debug("home assistant call",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("elapsed", resp.Time()),
	)

	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode(), string(resp.Body()))
	}

	return resp.Body(), nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
