// Package mqtt connects the dispatch service to the hero fleet over an MQTT
// broker using Eclipse Paho.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	// ListenResponses subscribes to hero accept/decline messages.
	ListenResponses bool            `json:"listen_responses"`
	UseTLS          bool            `json:"use_tls"`
	ClientCert      string          `json:"client_cert"`
	ClientKey       string          `json:"client_key"`
	CABundle        string          `json:"ca_bundle"`
	AuthMethod      string          `json:"auth_method"`
	QoS             map[string]byte `json:"qos"`
	LWTTopic        string          `json:"lwt_topic"`
	LWTPayload      string          `json:"lwt_payload"`
	LWTQoS          byte            `json:"lwt_qos"`
	LWTRetain       bool            `json:"lwt_retain"`
	MaxRetries      int             `json:"max_retries"`
	BackoffMS       int             `json:"backoff_ms"`
	TLSConfig       *tls.Config     `json:"-"`
	// ConnectTimeoutMS bounds the initial connect and each subscribe.
	ConnectTimeoutMS int `json:"connect_timeout_ms"`
	// PublishTimeoutMS bounds a whole Publish call, retries included.
	PublishTimeoutMS int `json:"publish_timeout_ms"`
}

// SetDefaults fills the retry policy and a unique client id.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "otw-dispatch-" + uuid.NewString()
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = coremqtt.DefaultPrefix
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
	if c.ConnectTimeoutMS <= 0 {
		c.ConnectTimeoutMS = 5000
	}
	if c.PublishTimeoutMS <= 0 {
		c.PublishTimeoutMS = 2000
	}
}

// ErrTimeout is returned when the broker does not acknowledge an operation
// in time.
var ErrTimeout = errors.New("mqtt: broker did not respond in time")

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt: broker is required")
	}
	for kind, q := range c.QoS {
		if q > 2 {
			return fmt.Errorf("mqtt: qos %d for %s out of range", q, kind)
		}
	}
	return nil
}

// Topics returns the hero topic layout for this connection.
func (c Config) Topics() coremqtt.Topics { return coremqtt.Topics{Prefix: c.TopicPrefix} }

// pahoClient is the part of paho.Client used here; tests replace it.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

type subscription struct {
	qos byte
	h   coremqtt.Handler
}

// PahoClient implements core/mqtt.Client.
type PahoClient struct {
	cli        pahoClient
	qos        map[string]byte
	log        logger.Logger
	maxRetries int
	backoff    time.Duration
	connectTO  time.Duration
	publishTO  time.Duration

	mu   sync.Mutex
	subs map[string]subscription
}

// NewPahoClient connects to the broker. Subscriptions registered later are
// replayed on every reconnect.
func NewPahoClient(cfg Config, log logger.Logger) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	log = logger.OrNop(log)
	pc := &PahoClient{
		qos:        cfg.QoS,
		log:        log,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		connectTO:  time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
		publishTO:  time.Duration(cfg.PublishTimeoutMS) * time.Millisecond,
		subs:       make(map[string]subscription),
	}
	opts.OnConnect = func(paho.Client) {
		log.Infof("MQTT connected to %s", cfg.Broker)
		pc.resubscribe()
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	pc.cli = c
	token := c.Connect()
	if !token.WaitTimeout(pc.connectTO) {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.ConnectTimeoutMS > 0 {
		opts.SetConnectTimeout(time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond)
	}
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s has no certificates", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 1
}

// waitToken waits for token to complete, giving up when ctx ends or d
// elapses. A token that has already completed always wins.
func waitToken(ctx context.Context, token paho.Token, d time.Duration) error {
	select {
	case <-token.Done():
		return token.Error()
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}

// Publish sends payload, retrying with exponential backoff. The whole call,
// retries included, is bounded by the publish timeout so a broker outage
// cannot stall the caller. The final failure is reported to the monitor.
func (p *PahoClient) Publish(ctx context.Context, topic, kind string, payload []byte) error {
	qos := p.qosFor(kind)
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, p.publishTO)
	defer cancel()
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, false, payload)
		publishErr = waitToken(ctx, token, p.publishTO)
		if publishErr != nil && parent.Err() != nil {
			return parent.Err()
		}
		if errors.Is(publishErr, context.DeadlineExceeded) {
			publishErr = ErrTimeout
		}
		if publishErr == nil {
			p.log.Debugf("published %s (%d bytes)", topic, len(payload))
			return nil
		}
		p.log.Warnf("publish %s attempt %d failed: %v", topic, attempt+1, publishErr)
		if attempt == p.maxRetries {
			break
		}
		if errors.Is(publishErr, ErrTimeout) {
			break
		}
		select {
		case <-parent.Done():
			return parent.Err()
		case <-ctx.Done():
			publishErr = ErrTimeout
		case <-time.After(p.backoff * time.Duration(1<<attempt)):
			continue
		}
		break
	}
	err := fmt.Errorf("%w: %s: %w", coremqtt.ErrPublishFailed, topic, publishErr)
	monitoring.CaptureException(err, map[string]string{"module": "mqtt", "topic": topic, "kind": kind})
	return err
}

// Subscribe registers h on topic and subscribes immediately when connected.
func (p *PahoClient) Subscribe(topic, kind string, h coremqtt.Handler) error {
	sub := subscription{qos: p.qosFor(kind), h: h}
	p.mu.Lock()
	p.subs[topic] = sub
	p.mu.Unlock()
	if !p.cli.IsConnected() {
		return nil
	}
	return p.subscribe(topic, sub)
}

func (p *PahoClient) subscribe(topic string, sub subscription) error {
	cb := func(_ paho.Client, msg paho.Message) { sub.h(msg.Topic(), msg.Payload()) }
	token := p.cli.Subscribe(topic, sub.qos, cb)
	if !token.WaitTimeout(p.connectTO) {
		return fmt.Errorf("subscribe %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (p *PahoClient) resubscribe() {
	if p.cli == nil {
		return
	}
	p.mu.Lock()
	subs := make(map[string]subscription, len(p.subs))
	for k, v := range p.subs {
		subs[k] = v
	}
	p.mu.Unlock()
	for topic, sub := range subs {
		if err := p.subscribe(topic, sub); err != nil {
			p.log.Errorf("%v", err)
		}
	}
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
