// Package syncx 提供可在 context 链上重入的互斥锁
package syncx

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotOwner 释放未持有的锁
var ErrNotOwner = errors.New("syncx: unlock of lock not held by caller")

// ownerKey 每把锁独立的 context 键
type ownerKey struct {
	l *ReentrantLock
}

// ReentrantLock 可重入锁
//
// 持有者身份通过 Lock 返回的 context 传递：使用该 context（或其派生 context）
// 再次调用 Lock 只会增加重入深度，不会阻塞自身。只有最外层 Unlock 才真正释放锁。
type ReentrantLock struct {
	sem chan struct{}

	mu    sync.Mutex
	owner uuid.UUID
	depth int
}

// NewReentrantLock 创建可重入锁
func NewReentrantLock() *ReentrantLock {
	return &ReentrantLock{sem: make(chan struct{}, 1)}
}

// Lock 获取锁，返回携带持有者标识的 context
// 等待期间 ctx 被取消时返回 ctx.Err()
func (l *ReentrantLock) Lock(ctx context.Context) (context.Context, error) {
	if token, ok := ctx.Value(ownerKey{l}).(uuid.UUID); ok {
		l.mu.Lock()
		if l.depth > 0 && l.owner == token {
			l.depth++
			l.mu.Unlock()
			return ctx, nil
		}
		l.mu.Unlock()
	}

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx, ctx.Err()
	}

	token := uuid.New()
	l.mu.Lock()
	l.owner = token
	l.depth = 1
	l.mu.Unlock()

	return context.WithValue(ctx, ownerKey{l}, token), nil
}

// Unlock 释放一层重入，深度归零时释放底层锁
func (l *ReentrantLock) Unlock(ctx context.Context) error {
	token, ok := ctx.Value(ownerKey{l}).(uuid.UUID)
	if !ok {
		return ErrNotOwner
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 || l.owner != token {
		return ErrNotOwner
	}

	l.depth--
	if l.depth == 0 {
		l.owner = uuid.Nil
		<-l.sem
	}
	return nil
}

// Do 在持有锁期间执行 fn
func (l *ReentrantLock) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	lctx, err := l.Lock(ctx)
	if err != nil {
		return err
	}
	defer l.Unlock(lctx) //nolint:errcheck

	return fn(lctx)
}

// Depth 当前重入深度
func (l *ReentrantLock) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depth
}

// Locked 是否被持有
func (l *ReentrantLock) Locked() bool {
	return l.Depth() > 0
}
