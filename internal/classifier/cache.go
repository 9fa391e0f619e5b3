package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RemoteCache is a shared label store, typically Redis, consulted after the
// in-process cache misses.
type RemoteCache interface {
	GetLabel(ctx context.Context, key string) (string, bool, error)
	SetLabel(ctx context.Context, key, label string) error
}

// LabelCache remembers model answers so later runs over the same column
// skip the model call. Remote errors are logged and otherwise ignored.
type LabelCache struct {
	local  *lru.Cache[string, string]
	remote RemoteCache
	logger *slog.Logger
}

func NewLabelCache(size int, remote RemoteCache, logger *slog.Logger) (*LabelCache, error) {
	if size <= 0 {
		size = 4096
	}
	local, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LabelCache{local: local, remote: remote, logger: logger}, nil
}

func (c *LabelCache) Get(ctx context.Context, key string) (string, bool) {
	if label, ok := c.local.Get(key); ok {
		return label, true
	}
	if c.remote == nil {
		return "", false
	}
	label, ok, err := c.remote.GetLabel(ctx, key)
	if err != nil {
		c.logger.Warn("classification cache read failed", "error", err)
		return "", false
	}
	if ok {
		c.local.Add(key, label)
	}
	return label, ok
}

func (c *LabelCache) Set(ctx context.Context, key, label string) {
	c.local.Add(key, label)
	if c.remote == nil {
		return
	}
	if err := c.remote.SetLabel(ctx, key, label); err != nil {
		c.logger.Warn("classification cache write failed", "error", err)
	}
}

// cacheKey identifies a model question. Any change to the column, its
// samples, the candidate set or the taxonomy version produces a new key.
func cacheKey(version string, req Request) string {
	h := sha256.New()
	write := func(s string) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	write(version)
	write(strings.ToLower(req.Column))
	write(strings.ToLower(req.Table))
	write(string(req.TruthType))
	for _, s := range req.Samples {
		write(s)
	}
	write("|")
	for _, c := range req.Candidates {
		write(c.ID)
	}
	return hex.EncodeToString(h.Sum(nil))
}
