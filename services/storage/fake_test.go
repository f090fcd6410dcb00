package storage

import (
	"context"
	"errors"
	"maps"
	"sync"
)

var errFakeNotFound = errors.New("fake: not found")

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]Object
	puts    []Object
	stats   int
	statErr error
	putErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string]Object{}}
}

func (s *fakeStore) Stat(_ context.Context, bucket, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats++
	if s.statErr != nil {
		return nil, s.statErr
	}
	obj, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, errFakeNotFound
	}
	return maps.Clone(obj.Metadata), nil
}

func (s *fakeStore) Put(_ context.Context, obj Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[obj.Bucket+"/"+obj.Key] = obj
	s.puts = append(s.puts, obj)
	return nil
}

func (s *fakeStore) IsNotFound(err error) bool {
	return errors.Is(err, errFakeNotFound)
}

func (s *fakeStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}
