// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go provides a Valkey-backed cache of assembled hierarchy trees.
// Tree reads are the hottest storefront path; every structural write
// clears the whole cache since a single move can change any subtree.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"taxonomy/internal/models"
)

const (
	// treeKeyPrefix is the Valkey key prefix for cached trees.
	treeKeyPrefix = "tree:"

	// forestKey caches the tree of every root.
	forestKey = "_all"

	// DefaultTreeTTL is how long an assembled tree stays cached.
	DefaultTreeTTL = 5 * time.Minute
)

// TreeCache manages tree caching in Valkey.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache creates a new tree cache backed by the given Valkey client.
func NewTreeCache(client *redis.Client, ttl time.Duration) *TreeCache {
	if ttl == 0 {
		ttl = DefaultTreeTTL
	}
	return &TreeCache{client: client, ttl: ttl}
}

// TreeKey returns the cache key for the tree rooted at rootID, or for the
// whole forest when rootID is nil.
func TreeKey(rootID *string) string {
	if rootID == nil {
		return forestKey
	}
	return *rootID
}

// Get retrieves a cached tree. Errors are logged and reported as a miss.
func (tc *TreeCache) Get(ctx context.Context, key string) ([]*models.TreeNode, bool) {
	val, err := tc.client.Get(ctx, treeKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.Warn("tree cache get error", "key", key, "error", err)
		return nil, false
	}

	var tree []*models.TreeNode
	if err := json.Unmarshal(val, &tree); err != nil {
		slog.Warn("tree cache decode error", "key", key, "error", err)
		return nil, false
	}
	slog.Debug("tree cache hit", "key", key)
	return tree, true
}

// Set stores a tree with the configured TTL.
func (tc *TreeCache) Set(ctx context.Context, key string, tree []*models.TreeNode) {
	val, err := json.Marshal(tree)
	if err != nil {
		slog.Warn("tree cache encode error", "key", key, "error", err)
		return
	}
	if err := tc.client.Set(ctx, treeKeyPrefix+key, val, tc.ttl).Err(); err != nil {
		slog.Warn("tree cache set error", "key", key, "error", err)
	}
}

// InvalidateAll removes all cached trees by scanning for the prefix.
func (tc *TreeCache) InvalidateAll(ctx context.Context) {
	var cursor uint64
	var deleted int
	for {
		keys, nextCursor, err := tc.client.Scan(ctx, cursor, treeKeyPrefix+"*", 100).Result()
		if err != nil {
			slog.Warn("tree cache scan error", "error", err)
			return
		}
		if len(keys) > 0 {
			if err := tc.client.Del(ctx, keys...).Err(); err != nil {
				slog.Warn("tree cache bulk delete error", "error", err)
			}
			deleted += len(keys)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	if deleted > 0 {
		slog.Debug("tree cache cleared", "deleted", deleted)
	}
}
