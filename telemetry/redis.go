package telemetry

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisEmitter keeps the latest value of every field in a hash per meter and measurement,
// and announces each update on a channel per meter.
type RedisEmitter struct {
	client *redis.Client
	prefix string
}

func NewRedisEmitter(addr, prefix string) *RedisEmitter {
	return &RedisEmitter{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (e *RedisEmitter) Key(p Point) string {
	return e.prefix + ":" + p.Meter + ":" + p.Measurement
}

func (e *RedisEmitter) Channel(p Point) string {
	return e.prefix + ":" + p.Meter
}

func (e *RedisEmitter) Emit(ctx context.Context, p Point) error {
	values := make(map[string]interface{}, len(p.Fields))

	for _, f := range p.Fields {
		values[f.Key] = formatValue(f)
	}

	pipe := e.client.TxPipeline()
	pipe.HSet(ctx, e.Key(p), values)
	pipe.Publish(ctx, e.Channel(p), p.Measurement)

	_, err := pipe.Exec(ctx)

	return err
}

func (e *RedisEmitter) Close() error {
	return e.client.Close()
}
