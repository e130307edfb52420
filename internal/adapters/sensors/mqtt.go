package sensors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/okian/posecap/internal/domain/model"
	"github.com/okian/posecap/pkg/logger"
	"github.com/okian/posecap/pkg/metrics"
)

// Default MQTT settings.
const (
	DefaultBroker           = "tcp://localhost:1883"
	DefaultClientID         = "posecap"
	DefaultTopicHeadPose    = "posecap/head_pose"
	DefaultTopicOrientation = "posecap/orientation"

	disconnectQuiesceMs = 250
	connectTimeout      = 10 * time.Second
)

// ErrConnect is returned when the broker cannot be reached.
var ErrConnect = errors.New("mqtt connect failed")

// HeadPosePayload is the JSON body on the head-pose topic.
type HeadPosePayload struct {
	Pitch    float64 `json:"pitch"`
	Yaw      float64 `json:"yaw"`
	Roll     float64 `json:"roll"`
	CenterX  float64 `json:"center_x"`
	CenterY  float64 `json:"center_y"`
	Tracking string  `json:"tracking,omitempty"`
}

// OrientationPayload is the JSON body on the orientation topic.
type OrientationPayload struct {
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
	Yaw   float64 `json:"yaw"`
	Tilt  float64 `json:"tilt"`
}

// MQTTConfig names the broker and topics shared by source and publisher.
type MQTTConfig struct {
	Broker           string
	ClientID         string
	TopicHeadPose    string
	TopicOrientation string
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}
	if c.TopicHeadPose == "" {
		c.TopicHeadPose = DefaultTopicHeadPose
	}
	if c.TopicOrientation == "" {
		c.TopicOrientation = DefaultTopicOrientation
	}
	return c
}

// MQTTSource subscribes to the sensor topics and publishes into Readings.
type MQTTSource struct {
	cfg      MQTTConfig
	readings *Readings
	logger   logger.Logger

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTSource creates a source; Start connects.
func NewMQTTSource(cfg MQTTConfig, readings *Readings, log logger.Logger) *MQTTSource {
	if log == nil {
		log = logger.Nop()
	}
	return &MQTTSource{cfg: cfg.withDefaults(), readings: readings, logger: log}
}

// Start connects to the broker and subscribes to both topics.
func (s *MQTTSource) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.Broker).
		SetClientID(s.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnect, s.cfg.Broker, token.Error())
	}

	subs := map[string]mqtt.MessageHandler{
		s.cfg.TopicHeadPose: func(_ mqtt.Client, msg mqtt.Message) {
			if err := s.handleHeadPose(msg.Payload()); err != nil {
				s.logger.Warn(ctx, "bad head pose payload", logger.Error(err))
			}
		},
		s.cfg.TopicOrientation: func(_ mqtt.Client, msg mqtt.Message) {
			if err := s.handleOrientation(msg.Payload()); err != nil {
				s.logger.Warn(ctx, "bad orientation payload", logger.Error(err))
			}
		},
	}
	for topic, handler := range subs {
		token := client.Subscribe(topic, 0, handler)
		token.Wait()
		if token.Error() != nil {
			client.Disconnect(disconnectQuiesceMs)
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		s.logger.Info(ctx, "subscribed", logger.String("topic", topic))
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.logger.Info(ctx, "connected to MQTT broker", logger.String("broker", s.cfg.Broker))
	return nil
}

// Stop disconnects from the broker.
func (s *MQTTSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Disconnect(disconnectQuiesceMs)
		s.client = nil
	}
	return nil
}

func (s *MQTTSource) handleHeadPose(payload []byte) error {
	var p HeadPosePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		metrics.RecordSensorError(SensorHeadPose)
		return fmt.Errorf("decode head pose: %w", err)
	}
	tracking := model.TrackingState(p.Tracking)
	switch tracking {
	case "":
		tracking = model.TrackingNormal
	case model.TrackingNormal, model.TrackingLimited, model.TrackingLost:
	default:
		metrics.RecordSensorError(SensorHeadPose)
		return fmt.Errorf("decode head pose: unknown tracking state %q", p.Tracking)
	}
	s.readings.PublishHeadPose(model.HeadPoseSample{
		Pitch:         p.Pitch,
		Yaw:           p.Yaw,
		Roll:          p.Roll,
		CenterOffset:  model.Vec2{X: p.CenterX, Y: p.CenterY},
		TrackingState: tracking,
	})
	return nil
}

func (s *MQTTSource) handleOrientation(payload []byte) error {
	var p OrientationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		metrics.RecordSensorError(SensorOrientation)
		return fmt.Errorf("decode orientation: %w", err)
	}
	s.readings.PublishOrientation(model.DeviceOrientationSample{
		Pitch: p.Pitch,
		Roll:  p.Roll,
		Yaw:   p.Yaw,
		Tilt:  p.Tilt,
	})
	return nil
}

// MQTTPublisher sends sensor samples to the broker, for simulators and
// bridges that feed a remote posecap.
type MQTTPublisher struct {
	cfg    MQTTConfig
	client mqtt.Client
}

// DialPublisher connects a publisher.
func DialPublisher(cfg MQTTConfig) (*MQTTPublisher, error) {
	cfg = cfg.withDefaults()
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID + "-publisher").
		SetConnectTimeout(connectTimeout)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, cfg.Broker, token.Error())
	}
	return &MQTTPublisher{cfg: cfg, client: client}, nil
}

// PublishHeadPose sends a head pose, or a lost marker when s is nil.
func (p *MQTTPublisher) PublishHeadPose(s *model.HeadPoseSample) error {
	body := HeadPosePayload{Tracking: string(model.TrackingLost)}
	if s != nil {
		body = HeadPosePayload{
			Pitch:    s.Pitch,
			Yaw:      s.Yaw,
			Roll:     s.Roll,
			CenterX:  s.CenterOffset.X,
			CenterY:  s.CenterOffset.Y,
			Tracking: string(s.TrackingState),
		}
	}
	return p.publish(p.cfg.TopicHeadPose, body)
}

// PublishOrientation sends a device orientation.
func (p *MQTTPublisher) PublishOrientation(s model.DeviceOrientationSample) error {
	return p.publish(p.cfg.TopicOrientation, OrientationPayload{Pitch: s.Pitch, Roll: s.Roll, Yaw: s.Yaw, Tilt: s.Tilt})
}

func (p *MQTTPublisher) publish(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects the publisher.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(disconnectQuiesceMs)
}
