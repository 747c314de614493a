package redis

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"credreg/internal/platform/config"
)

// Client is the go-redis connection behind the role directory and the
// token revocation list.
type Client struct {
	*redis.Client
}

// New connects using cfg. An empty URL yields nil, nil so the registry can
// fall back to the static role directory.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	applyOverrides(opts, cfg)

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// applyOverrides lets non-zero config values win over the URL's query options.
func applyOverrides(opts *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RegisterMetrics exports pool statistics, read at scrape time, on reg.
func (c *Client) RegisterMetrics(reg prometheus.Registerer) error {
	return reg.Register(newPoolCollector(c.Client))
}

type poolCollector struct {
	pool     interface{ PoolStats() *redis.PoolStats }
	hits     *prometheus.Desc
	misses   *prometheus.Desc
	timeouts *prometheus.Desc
	total    *prometheus.Desc
	idle     *prometheus.Desc
}

func newPoolCollector(pool interface{ PoolStats() *redis.PoolStats }) *poolCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("credreg_redis_pool_"+name, help, nil, nil)
	}
	return &poolCollector{
		pool:     pool,
		hits:     desc("hits_total", "Connections found idle in the pool"),
		misses:   desc("misses_total", "Connections that had to be dialed"),
		timeouts: desc("timeouts_total", "Waits for a pooled connection that timed out"),
		total:    desc("total_conns", "Connections currently held by the pool"),
		idle:     desc("idle_conns", "Idle connections currently held by the pool"),
	}
}

func (p *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{p.hits, p.misses, p.timeouts, p.total, p.idle} {
		ch <- d
	}
}

func (p *poolCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.pool.PoolStats()
	ch <- prometheus.MustNewConstMetric(p.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(p.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(p.timeouts, prometheus.CounterValue, float64(s.Timeouts))
	ch <- prometheus.MustNewConstMetric(p.total, prometheus.GaugeValue, float64(s.TotalConns))
	ch <- prometheus.MustNewConstMetric(p.idle, prometheus.GaugeValue, float64(s.IdleConns))
}
