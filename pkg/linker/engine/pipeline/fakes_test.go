package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tigerroll/imagelink/pkg/linker/adapter/storage"
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
	repository "github.com/tigerroll/imagelink/pkg/linker/core/domain/repository"
	"github.com/tigerroll/imagelink/pkg/linker/listener/notification"
	"github.com/tigerroll/imagelink/pkg/linker/support/util/exception"
)

// fakeStorage is an in-memory bucket listed in name order.
type fakeStorage struct {
	mu      sync.Mutex
	objects []model.StorageObject
	calls   int
	listErr error
	uploads map[string][]byte
}

func newFakeStorage(names ...string) *fakeStorage {
	f := &fakeStorage{uploads: map[string][]byte{}}
	for _, n := range names {
		f.objects = append(f.objects, model.StorageObject{Name: n, Size: 1, Updated: time.Unix(0, 0).UTC()})
	}
	sort.Slice(f.objects, func(i, j int) bool { return f.objects[i].Name < f.objects[j].Name })
	return f
}

func (f *fakeStorage) ListPage(_ context.Context, _ string, prefix string, offset, limit int) ([]model.StorageObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	var matching []model.StorageObject
	for _, o := range f.objects {
		if strings.HasPrefix(o.Name, prefix) {
			matching = append(matching, o)
		}
	}
	if offset >= len(matching) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matching) {
		end = len(matching)
	}
	return append([]model.StorageObject(nil), matching[offset:end]...), nil
}

func (f *fakeStorage) PublicURL(bucket, objectName string) string {
	return "https://cdn.example.com/" + bucket + "/" + objectName
}

func (f *fakeStorage) Upload(_ context.Context, bucket, objectName string, data io.Reader, _ string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return err
	}
	f.mu.Lock()
	f.uploads[bucket+"/"+objectName] = buf.Bytes()
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) Name() string { return "images" }
func (f *fakeStorage) Type() string { return "fake" }
func (f *fakeStorage) Close() error { return nil }

func (f *fakeStorage) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResolver map[string]storage.StorageConnection

func (r fakeResolver) ResolveStorageConnection(_ context.Context, name string) (storage.StorageConnection, error) {
	c, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage %q", name)
	}
	return c, nil
}

// memSessionRepo mirrors the version check of the SQL repository.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.ScanSession
	updates  int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: map[string]*model.ScanSession{}}
}

func (r *memSessionRepo) SaveSession(_ context.Context, s *model.ScanSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *memSessionRepo) UpdateSession(_ context.Context, s *model.ScanSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.sessions[s.ID]
	if !ok {
		return repository.ErrSessionNotFound
	}
	if stored.Version != s.Version {
		return exception.NewOptimisticLockingFailureException("memSessionRepo", "version conflict", nil)
	}
	s.Version++
	r.sessions[s.ID] = s.Clone()
	r.updates++
	return nil
}

func (r *memSessionRepo) FindSessionByID(_ context.Context, id string) (*model.ScanSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (r *memSessionRepo) MarkSessionError(_ context.Context, id, message string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return false, repository.ErrSessionNotFound
	}
	if s.Status.IsFinished() {
		return false, nil
	}
	now := time.Now().UTC()
	s.Status = model.SessionError
	s.Errors = append(s.Errors, message)
	s.CompletedAt = &now
	s.Version++
	return true, nil
}

func (r *memSessionRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// memImageRepo stores links and candidates in maps. failFor makes every write for the
// listed product ids fail.
type memImageRepo struct {
	mu         sync.Mutex
	links      []*model.ImageLink
	candidates []*model.ImageCandidate
	failFor    map[string]error
}

func newMemImageRepo() *memImageRepo {
	return &memImageRepo{failFor: map[string]error{}}
}

func (r *memImageRepo) HasActiveImage(_ context.Context, productID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.ProductID == productID && l.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (r *memImageRepo) SaveImageLink(_ context.Context, link *model.ImageLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[link.ProductID]; err != nil {
		return err
	}
	r.links = append(r.links, link)
	return nil
}

func (r *memImageRepo) SaveImageCandidate(_ context.Context, c *model.ImageCandidate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failFor[c.ProductID]; err != nil {
		return false, err
	}
	for _, existing := range r.candidates {
		if existing.ProductID == c.ProductID && existing.ImageURL == c.ImageURL {
			return false, nil
		}
	}
	r.candidates = append(r.candidates, c)
	return true, nil
}

func (r *memImageRepo) FindPendingCandidates(_ context.Context, minConfidence int) ([]*model.ImageCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ImageCandidate
	for _, c := range r.candidates {
		if c.Status == model.CandidatePending && c.MatchConfidence >= minConfidence {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MatchConfidence > out[j].MatchConfidence })
	return out, nil
}

func (r *memImageRepo) PromoteCandidate(_ context.Context, c *model.ImageCandidate, link *model.ImageLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.candidates {
		if stored.ID != c.ID {
			continue
		}
		if stored.Status != model.CandidatePending {
			return exception.NewOptimisticLockingFailureException("memImageRepo", "not pending", nil)
		}
		stored.Status = model.CandidatePromoted
		c.Status = model.CandidatePromoted
		r.links = append(r.links, link)
		return nil
	}
	return fmt.Errorf("candidate %s not found", c.ID)
}

func (r *memImageRepo) RejectCandidate(_ context.Context, c *model.ImageCandidate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.candidates {
		if stored.ID != c.ID {
			continue
		}
		if stored.Status != model.CandidatePending {
			return exception.NewOptimisticLockingFailureException("memImageRepo", "not pending", nil)
		}
		stored.Status = model.CandidateRejected
		c.Status = model.CandidateRejected
		return nil
	}
	return fmt.Errorf("candidate %s not found", c.ID)
}

// memCatalog is a fixed catalog.
type memCatalog struct {
	products   []model.Product
	withImages []string
	err        error
}

func (c *memCatalog) FindActiveProductsWithSKU(context.Context) ([]model.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.products, nil
}

func (c *memCatalog) FindProductIDsWithActiveImage(context.Context) ([]string, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.withImages, nil
}

// recordingNotifier keeps every event.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notification.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e notification.Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []notification.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Event(nil), n.events...)
}

func product(id, sku string) model.Product {
	return model.Product{ID: id, SKU: &sku, Name: "Product " + id, IsActive: true}
}

var (
	_ storage.StorageConnection    = (*fakeStorage)(nil)
	_ repository.SessionRepository = (*memSessionRepo)(nil)
	_ repository.ImageRepository   = (*memImageRepo)(nil)
	_ repository.CatalogReader     = (*memCatalog)(nil)
)
