package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"shorts-site/jobs"
)

const progressTTL = time.Hour

var ErrMiss = errors.New("cache miss")

// ProgressCache mirrors job progress into redis so progress reads skip the
// database. A nil *ProgressCache is disabled: writes are dropped and every
// read misses.
type ProgressCache struct {
	client *redis.Client
	log    *logrus.Entry
}

func New(ctx context.Context, addr string, db int, log *logrus.Entry) (*ProgressCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewWithClient(client, log), nil
}

func NewWithClient(client *redis.Client, log *logrus.Entry) *ProgressCache {
	return &ProgressCache{client: client, log: log}
}

func key(jobID string) string {
	return "job_progress:" + jobID
}

type entry struct {
	Status   jobs.Status   `json:"status"`
	Progress jobs.Progress `json:"progress"`
}

func (c *ProgressCache) Set(ctx context.Context, jobID string, status jobs.Status, p jobs.Progress) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(entry{Status: status, Progress: p})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(jobID), data, progressTTL).Err()
}

// Get returns ErrMiss when nothing is cached for jobID.
func (c *ProgressCache) Get(ctx context.Context, jobID string) (jobs.Status, jobs.Progress, error) {
	if c == nil {
		return "", jobs.Progress{}, ErrMiss
	}
	data, err := c.client.Get(ctx, key(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", jobs.Progress{}, ErrMiss
	}
	if err != nil {
		return "", jobs.Progress{}, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.log.Warnln("dropping unreadable progress entry for", jobID, err)
		c.client.Del(ctx, key(jobID))
		return "", jobs.Progress{}, ErrMiss
	}
	return e.Status, e.Progress, nil
}

func (c *ProgressCache) Delete(ctx context.Context, jobID string) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, key(jobID)).Err()
}

func (c *ProgressCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
