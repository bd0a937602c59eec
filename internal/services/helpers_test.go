package services

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/sitesnap/internal/database/dbtest"
	"github.com/example/sitesnap/internal/models"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (d *recordingDispatcher) Send(_ context.Context, msg Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return d.err
}

func (d *recordingDispatcher) last(t *testing.T) Message {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.sent)
	return d.sent[len(d.sent)-1]
}

type stubVerifier struct {
	identity *OAuthIdentity
	err      error
}

func (v stubVerifier) Verify(context.Context, string) (*OAuthIdentity, error) {
	return v.identity, v.err
}

type memoryLimiter struct {
	max   int
	fails map[string]int
}

func newMemoryLimiter(max int) *memoryLimiter {
	return &memoryLimiter{max: max, fails: map[string]int{}}
}

func (l *memoryLimiter) Blocked(_ context.Context, key string) (bool, error) {
	return l.fails[key] >= l.max, nil
}

func (l *memoryLimiter) Fail(_ context.Context, key string) error {
	l.fails[key]++
	return nil
}

func (l *memoryLimiter) Reset(_ context.Context, key string) error {
	delete(l.fails, key)
	return nil
}

type stubMedia struct {
	mu      sync.Mutex
	deleted []string
	failOn  map[string]error
}

func (m *stubMedia) Upload(_ context.Context, r io.Reader, name string) (models.UploadedFile, error) {
	_, _ = io.Copy(io.Discard, r)
	return models.UploadedFile{URL: "https://res.cloudinary.com/demo/image/upload/v1/site-snap/" + name, PublicID: "site-snap/" + strings.TrimSuffix(name, ".png")}, nil
}

func (m *stubMedia) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failOn[ref]; ok {
		return err
	}
	m.deleted = append(m.deleted, ref)
	return nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func newIdentity(t *testing.T, db *gorm.DB, d Dispatcher, v OAuthVerifier, l AttemptLimiter, c *clock) *IdentityService {
	t.Helper()
	svc, err := NewIdentityService(IdentityParams{
		DB:         db,
		Dispatcher: d,
		Verifier:   v,
		Attempts:   l,
		JWTSecret:  "test-secret",
		TokenTTL:   time.Hour,
		OTPTTL:     10 * time.Minute,
		Now:        c.Now,
	})
	require.NoError(t, err)
	return svc
}

func openDB(t *testing.T) *gorm.DB {
	return dbtest.Open(t)
}
