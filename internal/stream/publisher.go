package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/calderahq/tradewind-backend/internal/events"
	"github.com/calderahq/tradewind-backend/pkg/config"
	pkgerrors "github.com/calderahq/tradewind-backend/pkg/errors"
	"github.com/calderahq/tradewind-backend/pkg/logger"
)

// amountKeys are the payload fields carrying base-unit amounts. The publisher
// mirrors each as "<key>Display", a decimal string shifted by the asset's
// configured decimals, so human-facing subscribers need no unit math.
var amountKeys = map[string]struct{}{
	"amount":       {},
	"price":        {},
	"oldPrice":     {},
	"newPrice":     {},
	"totalSupply":  {},
	"sellerAmount": {},
	"platformFee":  {},
}

type publishCmdable interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// Publisher is the events.Sink that forwards every envelope to a Redis
// pub/sub channel for external indexers. Publishing is retried with
// exponential backoff; a delivery that still fails surfaces to the bus.
type Publisher struct {
	client      publishCmdable
	channel     string
	decimals    int32
	maxAttempts uint64
	backoff     time.Duration
	logg        *logger.Logger
}

// NewPublisher wires a stream publisher. assetDecimals controls display
// rendering only; raw base-unit amounts always pass through unchanged.
func NewPublisher(client publishCmdable, cfg config.StreamConfig, assetDecimals int32, logg *logger.Logger) (*Publisher, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "redis client required")
	}
	if cfg.Channel == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "stream channel required")
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	return &Publisher{
		client:      client,
		channel:     cfg.Channel,
		decimals:    assetDecimals,
		maxAttempts: cfg.MaxAttempts,
		backoff:     backoff,
		logg:        logg,
	}, nil
}

func (p *Publisher) Name() string { return "stream" }

func (p *Publisher) Deliver(ctx context.Context, env events.Envelope) error {
	message, err := p.render(env)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rendering stream message")
	}

	b := retry.WithMaxRetries(p.maxAttempts, retry.NewExponential(p.backoff))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		if err := p.client.Publish(ctx, p.channel, message).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "publishing to stream")
	}
	if p.logg != nil {
		p.logg.Info(p.logg.WithFields(ctx, map[string]any{
			"channel":    p.channel,
			"event_type": string(env.Type),
			"event_id":   env.EventID,
		}), "event published to stream")
	}
	return nil
}

// render decorates the payload with display amounts and re-wraps the
// envelope. json.Number decoding keeps large uint64 amounts exact.
func (p *Publisher) render(env events.Envelope) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(env.Payload))
	decoder.UseNumber()
	payload := map[string]any{}
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}

	for key := range amountKeys {
		number, ok := payload[key].(json.Number)
		if !ok {
			continue
		}
		value, err := strconv.ParseUint(number.String(), 10, 64)
		if err != nil {
			continue
		}
		payload[key+"Display"] = p.display(value)
	}

	return json.Marshal(map[string]any{
		"eventId":    env.EventID,
		"eventType":  env.Type,
		"version":    env.Version,
		"occurredAt": env.OccurredAt,
		"payload":    payload,
	})
}

func (p *Publisher) display(baseUnits uint64) string {
	value := new(big.Int).SetUint64(baseUnits)
	return decimal.NewFromBigInt(value, -p.decimals).String()
}
