// Package transport provides an asynchronous alternative to the HTTP
// reference transport: protocol round messages (already encoded by
// psi/wire.go) travel as opaque payloads over Kafka topics, keyed by
// session ID so a single partition always carries one session's rounds in
// order. Adapted from the teacher's kafka package, which moved avro-encoded
// token requests the same way; here the payload is the PSI wire format
// rather than avro, so the topic layout collapses to one topic per round.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/psiproto/ddh-psi-sum/utils"
)

// sensible defaults (used when environment variables are unset)
const (
	DefaultMinBytes  = 1
	DefaultMaxBytes  = 10e6
	DefaultMaxWaitMs = 1000
)

// Config configures the Kafka reader/writer pair a session's round
// messages travel over.
type Config struct {
	Brokers           []string `json:"brokers"`
	MinBytes          int      `json:"min_bytes"`
	MaxBytes          int      `json:"max_bytes"`
	MaxWaitMs         int      `json:"max_wait_ms"`
	ServerCertificate string   `json:"server_certificate"`
}

// ParseConfig parses Kafka configuration from environment variables,
// falling back to sensible defaults for anything but the broker list.
func ParseConfig() (Config, error) {
	b, set := os.LookupEnv("KAFKA_BROKERS")
	if !set || b == "" {
		return Config{}, fmt.Errorf("KAFKA_BROKERS not set")
	}
	brokers := strings.Split(b, ",")

	min, set := os.LookupEnv("KAFKA_MIN_BYTES")
	minBytes, err := strconv.Atoi(min)
	if !set || err != nil {
		minBytes = DefaultMinBytes
	}
	max, set := os.LookupEnv("KAFKA_MAX_BYTES")
	maxBytes, err := strconv.Atoi(max)
	if !set || err != nil {
		maxBytes = DefaultMaxBytes
	}
	maxW, set := os.LookupEnv("KAFKA_MAX_WAIT_MS")
	maxWaitMs, err := strconv.Atoi(maxW)
	if !set || err != nil {
		maxWaitMs = DefaultMaxWaitMs
	}

	return Config{
		Brokers:           brokers,
		MinBytes:          minBytes,
		MaxBytes:          maxBytes,
		MaxWaitMs:         maxWaitMs,
		ServerCertificate: os.Getenv("KAFKA_SSL_CERTIFICATE"),
	}, nil
}

// GenerateSSLConfig builds a tls.Config from a JSON blob of
// {"certificate", "key"}, the same composite-secret shape the teacher's
// ECS deployment injects as a single environment variable.
func GenerateSSLConfig(certString string) (*tls.Config, error) {
	if certString == "" {
		return nil, nil
	}
	type certConfigs struct {
		Certificate string `json:"certificate"`
		Key         string `json:"key"`
	}
	var cc certConfigs
	if err := json.Unmarshal([]byte(certString), &cc); err != nil {
		return nil, err
	}

	block, _ := pem.Decode([]byte(cc.Certificate))
	if block == nil {
		return nil, fmt.Errorf("kafka SSL certificate is not valid PEM")
	}
	cert, err := tls.X509KeyPair([]byte(cc.Certificate), []byte(cc.Key))
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM([]byte(cc.Certificate)) {
		return nil, fmt.Errorf("failed to add kafka certificate to pool")
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool}, nil
}

// TryConnection attempts to reach at least one of brokers, returning nil as
// soon as one succeeds.
func TryConnection(dialer *kafka.Dialer, brokers []string) error {
	var errs []string
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, b := range brokers {
		if _, err := dialer.DialContext(ctx, "tcp", b); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		return nil
	}
	return fmt.Errorf("could not reach any kafka broker: %s", strings.Join(errs, "; "))
}

// RoundTopic names the topic a given round's messages travel over.
func RoundTopic(env string, round int) string {
	return fmt.Sprintf("psi.round%d.v1.%s", round, env)
}

// Producer publishes round payloads keyed by session ID, preserving
// per-session ordering within a partition.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer builds a producer against conf's brokers.
func NewProducer(conf Config) (*Producer, error) {
	tlsConf, err := GenerateSSLConfig(conf.ServerCertificate)
	if err != nil {
		return nil, err
	}
	return &Producer{writer: &kafka.Writer{
		Addr:      kafka.TCP(conf.Brokers...),
		Balancer:  &kafka.Hash{},
		Transport: &kafka.Transport{TLS: tlsConf},
	}}, nil
}

// Publish sends payload for sessionID to topic.
func (p *Producer) Publish(ctx context.Context, topic, sessionID string, payload []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(sessionID),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error { return p.writer.Close() }

// Handler processes one round message for a session.
type Handler func(ctx context.Context, sessionID string, payload []byte) error

// Consumer reads round payloads from a topic and dispatches them to a
// Handler, retrying transient read failures up to a fixed limit — the same
// failureCount/failureLimit loop the teacher's StartConsumers runs.
type Consumer struct {
	reader *kafka.Reader
	logger *zerolog.Logger
}

// NewConsumer builds a reader for topic under consumerGroup.
func NewConsumer(conf Config, topic, consumerGroup string, logger *zerolog.Logger) (*Consumer, error) {
	tlsConf, err := GenerateSSLConfig(conf.ServerCertificate)
	if err != nil {
		return nil, err
	}
	dialer := &kafka.Dialer{
		Timeout:   time.Duration(conf.MaxWaitMs) * time.Millisecond,
		DualStack: true,
		TLS:       tlsConf,
	}
	if err := TryConnection(dialer, conf.Brokers); err != nil {
		return nil, err
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Dialer:      dialer,
		Brokers:     conf.Brokers,
		GroupTopics: []string{topic},
		GroupID:     consumerGroup,
		MinBytes:    conf.MinBytes,
		MaxBytes:    conf.MaxBytes,
		MaxWait:     time.Duration(conf.MaxWaitMs) * time.Millisecond,
	})
	return &Consumer{reader: reader, logger: logger}, nil
}

// Run reads messages until ctx is canceled or the failure limit is
// exceeded, dispatching each to handle.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	const failureLimit = 10
	failures := 0
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			c.logger.Error().Err(err).Msg("kafka read failed")
			failures++
			if failures > failureLimit {
				return err
			}
			continue
		}
		failures = 0
		if err := handle(ctx, string(msg.Key), msg.Value); err != nil {
			procErr := utils.ProcessingErrorFromErrorWithMessage(err, "round handler failed", msg, c.logger)
			c.logger.Error().Err(procErr).Str("session_id", string(msg.Key)).Bool("temporary", procErr.Temporary).Msg("round handler failed")
			if procErr.Temporary {
				time.Sleep(procErr.Backoff)
			}
		}
	}
}

// Close closes the underlying reader.
func (c *Consumer) Close() error { return c.reader.Close() }
