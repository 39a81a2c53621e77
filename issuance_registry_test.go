// Issuance registry tests

package main

import (
	"encoding/json"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// Mock issuance registry, for testing
type MockIssuanceRegistry struct {
	// Mutex for the struct
	mu *sync.Mutex

	// Internal registry
	records []IssuanceRecord
}

func NewMockIssuanceRegistry() *MockIssuanceRegistry {
	return &MockIssuanceRegistry{
		mu:      &sync.Mutex{},
		records: make([]IssuanceRecord, 0),
	}
}

func (r *MockIssuanceRegistry) RecordIssuance(record IssuanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, record)

	return nil
}

func (r *MockIssuanceRegistry) Records() []IssuanceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make([]IssuanceRecord, len(r.records))
	copy(res, r.records)

	return res
}

func newTestRedisRegistry(t *testing.T) (*RedisIssuanceRegistry, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()

	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}

	port, err := strconv.Atoi(mr.Port())

	if err != nil {
		t.Fatal(err)
	}

	registry := NewRedisIssuanceRegistry(RedisIssuanceRegistryConfig{
		Host:      mr.Host(),
		Port:      port,
		KeyPrefix: "issued:",
	})

	t.Cleanup(func() {
		registry.Close()
		mr.Close()
	})

	return registry, mr
}

func TestRedisIssuanceRegistry(t *testing.T) {
	registry, mr := newTestRedisRegistry(t)

	now := time.Unix(1700000000, 0)
	registry.now = func() time.Time { return now }

	record := IssuanceRecord{
		ChannelName: "lesson-42",
		Uid:         100007,
		Role:        ROLE_PUBLISHER,
		IssuedAt:    now.Unix(),
		ExpireTime:  uint32(now.Unix()) + 3600,
	}

	err := registry.RecordIssuance(record)

	if err != nil {
		t.Fatal(err)
	}

	value, err := mr.Get("issued:lesson-42:100007")

	if err != nil {
		t.Fatal(err)
	}

	var stored IssuanceRecord

	err = json.Unmarshal([]byte(value), &stored)

	if err != nil {
		t.Fatal(err)
	}

	if stored != record {
		t.Errorf("Stored record does not match. Expected %v, but found %v", record, stored)
	}

	ttl := mr.TTL("issued:lesson-42:100007")

	if ttl != time.Hour {
		t.Errorf("Expected TTL of 1 hour, but found %v", ttl)
	}
}

func TestRedisIssuanceRegistryExpired(t *testing.T) {
	registry, mr := newTestRedisRegistry(t)

	now := time.Unix(1700000000, 0)
	registry.now = func() time.Time { return now }

	err := registry.RecordIssuance(IssuanceRecord{
		ChannelName: "old",
		Uid:         1,
		Role:        ROLE_SUBSCRIBER,
		IssuedAt:    now.Unix() - 7200,
		ExpireTime:  uint32(now.Unix()) - 3600,
	})

	if err != nil {
		t.Fatal(err)
	}

	if mr.Exists("issued:old:1") {
		t.Errorf("Expired issuance should not be stored")
	}
}
