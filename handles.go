package autotool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// InitFunc constructs the client handle for an owner.
type InitFunc func(ctx context.Context, member MemberHandle, auth map[string]any) (any, error)

// HandleCache holds constructed client handles keyed by owner and auth
// configuration. Concurrent requests for the same key share one
// initialization; failed initializations are not cached.
type HandleCache struct {
	init    InitFunc
	group   singleflight.Group
	mu      sync.Mutex
	handles map[string]any
	closed  bool
	inits   atomic.Int64
}

// NewHandleCache returns an empty cache that builds handles with init.
func NewHandleCache(init InitFunc) *HandleCache {
	return &HandleCache{init: init, handles: make(map[string]any)}
}

// HandleKey derives the cache key from owner and a digest of auth. Map keys
// are marshaled in sorted order, so equal configurations give equal keys.
func HandleKey(owner string, auth map[string]any) string {
	if len(auth) == 0 {
		return owner
	}
	data, err := json.Marshal(auth)
	if err != nil {
		return owner + "#unhashable"
	}
	sum := sha256.Sum256(data)
	return owner + "#" + hex.EncodeToString(sum[:8])
}

// Get returns the handle for member's owner, initializing it on first use.
// Initialization runs detached from ctx so that one caller giving up does not
// fail the others waiting on the same key; ctx only bounds this caller's wait.
func (c *HandleCache) Get(ctx context.Context, member MemberHandle, auth map[string]any) (any, error) {
	key := HandleKey(member.Owner, auth)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	if h, ok := c.handles[key]; ok {
		c.mu.Unlock()
		return h, nil
	}
	c.mu.Unlock()

	initCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (h any, err error) {
		c.mu.Lock()
		if cached, ok := c.handles[key]; ok {
			c.mu.Unlock()
			return cached, nil
		}
		c.mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				h, err = nil, &panicError{p: r}
			}
		}()
		c.inits.Add(1)
		h, err = c.init(initCtx, member, auth)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			closeHandle(h)
			return nil, ErrShutdown
		}
		c.handles[key] = h
		return h, nil
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Inits returns how many initializations have been attempted.
func (c *HandleCache) Inits() int64 { return c.inits.Load() }

// Len returns the number of cached handles.
func (c *HandleCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Close drops every handle, closing those that implement io.Closer, and
// rejects further Gets with ErrShutdown.
func (c *HandleCache) Close() error {
	c.mu.Lock()
	handles := c.handles
	c.handles = make(map[string]any)
	c.closed = true
	c.mu.Unlock()
	var errs []error
	for _, h := range handles {
		errs = append(errs, closeHandle(h))
	}
	return errors.Join(errs...)
}

func closeHandle(h any) error {
	if cl, ok := h.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}
