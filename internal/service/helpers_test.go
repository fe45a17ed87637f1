package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/qs3c/homework_helper/internal/pkg/email"
)

// recordingSender 记录发送的邮件，err 非空时返回该错误
type recordingSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) messages() []email.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]email.Message(nil), s.sent...)
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// fakeStore 内存对象存储
type fakeStore struct {
	mu      sync.Mutex
	seq     int
	objects map[string][]byte
	deleted []string
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) put(prefix string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.seq++
	url := fmt.Sprintf("https://cdn.example.com/%s/%d", prefix, f.seq)
	f.objects[url] = data
	return url, nil
}

func (f *fakeStore) UploadAvatar(_ context.Context, userID int64, data []byte, _ string) (string, error) {
	return f.put(fmt.Sprintf("avatars/%d", userID), data)
}

func (f *fakeStore) UploadChatImage(_ context.Context, userID, sessionID int64, data []byte, _ string) (string, error) {
	return f.put(fmt.Sprintf("homework/%d/%d", userID, sessionID), data)
}

func (f *fakeStore) DeleteByURL(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, url)
	f.deleted = append(f.deleted, url)
	return nil
}
