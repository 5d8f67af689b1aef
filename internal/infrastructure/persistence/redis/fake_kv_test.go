package redis

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// fakeKV is an in-memory KV with the same miss and NX semantics as Redis.
type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration

	// delErr fails every Del and CompareAndDelete call.
	delErr error
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (f *fakeKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return f.delErr
	}
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeKV) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeKV) CompareAndDelete(_ context.Context, key, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return false, f.delErr
	}
	if f.data[key] != value {
		return false, nil
	}
	delete(f.data, key)
	return true, nil
}

func (f *fakeKV) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(0)
	if v, ok := f.data[key]; ok {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, errors.New("value is not an integer")
		}
		n = parsed
	}
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return n, nil
}

func (f *fakeKV) SetIfEqual(_ context.Context, guardKey, guardValue, key, value string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.data[guardKey]
	if !ok {
		current = "0"
	}
	if current != guardValue {
		return false, nil
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return true, nil
}
