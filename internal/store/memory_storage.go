package store

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/spf13/cast"
)

// MemoryStorage is a process-local Storage used in tests and single-instance
// deployments. Records follow the same hash-field model as RedisStorage, with
// struct fields mapped through their `redis` tags. Expired records are purged
// lazily on access.
type MemoryStorage struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
}

type memoryRecord struct {
	fields    map[string]any
	expiresAt time.Time
}

func (r *memoryRecord) expired(now time.Time) bool {
	return !r.expiresAt.IsZero() && r.expiresAt.Before(now)
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*memoryRecord)}
}

// getRecord returns the live record for key, purging it first when expired.
// Callers must hold mu.
func (s *MemoryStorage) getRecord(key string) *memoryRecord {
	rec, ok := s.records[key]
	if !ok {
		return nil
	}
	if rec.expired(time.Now()) {
		delete(s.records, key)
		return nil
	}
	return rec
}

func (s *MemoryStorage) ensureRecord(key string) *memoryRecord {
	rec := s.getRecord(key)
	if rec == nil {
		rec = &memoryRecord{fields: make(map[string]any)}
		s.records[key] = rec
	}
	return rec
}

func (s *MemoryStorage) Get(ctx context.Context, key string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getRecord(key)
	if rec == nil || len(rec.fields) == 0 {
		return ErrNotFound
	}
	return scanFields(rec.fields, val)
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	fields, err := structFields(val)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &memoryRecord{fields: fields}
	if expiresIn > 0 {
		rec.expiresAt = time.Now().Add(expiresIn)
	}
	s.records[key] = rec
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getRecord(key) == nil {
		return ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec := s.getRecord(key); rec != nil {
		rec.expiresAt = expiresAt
	}
	return nil
}

func (s *MemoryStorage) SetAttr(ctx context.Context, key string, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureRecord(key).fields[field] = val
	return nil
}

func (s *MemoryStorage) GetAttr(ctx context.Context, key, field string, val any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.getRecord(key)
	if rec == nil {
		return ErrNotFound
	}
	raw, ok := rec.fields[field]
	if !ok {
		return ErrNotFound
	}
	return assignValue(reflect.ValueOf(val).Elem(), raw)
}

func (s *MemoryStorage) IncrAttr(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.ensureRecord(key)
	next := cast.ToInt64(rec.fields[field]) + delta
	rec.fields[field] = next
	return next, nil
}

func structFields(val any) (map[string]any, error) {
	rv := reflect.Indirect(reflect.ValueOf(val))
	fields := make(map[string]any)
	if rv.Kind() != reflect.Struct {
		return nil, ErrNotFound
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("redis")
		if tag == "" || tag == "-" {
			continue
		}
		fields[tag] = rv.Field(i).Interface()
	}
	return fields, nil
}

func scanFields(fields map[string]any, val any) error {
	rv := reflect.ValueOf(val).Elem()
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		tag := rt.Field(i).Tag.Get("redis")
		if tag == "" || tag == "-" {
			continue
		}
		raw, ok := fields[tag]
		if !ok {
			continue
		}
		if err := assignValue(rv.Field(i), raw); err != nil {
			return err
		}
	}
	return nil
}

func assignValue(dst reflect.Value, raw any) error {
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(cast.ToString(raw))
	case reflect.Bool:
		dst.SetBool(cast.ToBool(raw))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(cast.ToInt64(raw))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetUint(cast.ToUint64(raw))
	case reflect.Float32, reflect.Float64:
		dst.SetFloat(cast.ToFloat64(raw))
	case reflect.Struct:
		if dst.Type() == reflect.TypeOf(time.Time{}) {
			dst.Set(reflect.ValueOf(cast.ToTime(raw)))
		}
	}
	return nil
}
