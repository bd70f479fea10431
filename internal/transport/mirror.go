package transport

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/vfs"
	"golang.org/x/sync/errgroup"
)

const transferWorkers = 8

var objectPrefixes = []string{string(objstore.KindFiles) + "/", string(objstore.KindIndexes) + "/"}

// Mirror keeps the local mirror and a Bucket in step. Objects are copied
// when missing on the other side; refs are overwritten.
type Mirror struct {
	name   string
	local  *vfs.FS
	bucket Bucket

	mu sync.Mutex
	// remote ref bytes as of the last pull, keyed by ref path; nil means
	// the ref did not exist
	pulled map[string][]byte
}

func NewMirror(name string, local *vfs.FS, bucket Bucket) *Mirror {
	return &Mirror{
		name:   name,
		local:  local,
		bucket: bucket,
		pulled: make(map[string][]byte),
	}
}

func (m *Mirror) Name() string {
	return m.name
}

func (m *Mirror) RemoteIndexExists(ctx context.Context) (bool, error) {
	keys, err := m.bucket.List(ctx, objectPrefixes[1])
	if err != nil {
		return false, wrap("list indexes", err)
	}
	return len(keys) > 0, nil
}

func (m *Mirror) CloneAll(ctx context.Context) error {
	return m.pull(ctx, func(string) bool { return true })
}

func (m *Mirror) PullLatest(ctx context.Context, branch string) error {
	if err := objstore.ValidBranch(branch); err != nil {
		return err
	}
	want := objstore.RefPath(branch)
	if err := m.pull(ctx, func(key string) bool { return key == want }); err != nil {
		return err
	}

	// remember absence too so a concurrent first push is detected
	m.mu.Lock()
	if _, ok := m.pulled[want]; !ok {
		m.pulled[want] = nil
	}
	m.mu.Unlock()
	return nil
}

func (m *Mirror) pull(ctx context.Context, wantRef func(key string) bool) error {
	fetched := 0
	for _, prefix := range objectPrefixes {
		keys, err := m.bucket.List(ctx, prefix)
		if err != nil {
			return wrap("list "+prefix, err)
		}
		n, err := m.download(ctx, keys)
		fetched += n
		if err != nil {
			return err
		}
	}

	refs, err := m.bucket.List(ctx, "refs/")
	if err != nil {
		return wrap("list refs", err)
	}
	for _, key := range refs {
		if !isRef(key) || !wantRef(key) {
			continue
		}
		data, err := m.bucket.Get(ctx, key)
		if err != nil {
			return wrap("get "+key, err)
		}
		if err := m.local.WriteFile(key, data); err != nil {
			return err
		}
		m.remember(key, data)
	}

	slog.Debug("transport pull", "transport", m.name, "objects", fetched, "refs", len(refs))
	return nil
}

func (m *Mirror) download(ctx context.Context, keys []string) (int, error) {
	var (
		mu sync.Mutex
		n  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(transferWorkers)
	for _, key := range keys {
		if !immutable(key) {
			continue
		}
		g.Go(func() error {
			ok, err := m.local.Exists(key)
			if err != nil || ok {
				return err
			}
			data, err := m.bucket.Get(gctx, key)
			if err != nil {
				return wrap("get "+key, err)
			}
			if err := m.local.WriteFile(key, data); err != nil {
				return err
			}
			mu.Lock()
			n++
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return n, err
}

func (m *Mirror) PushLatest(ctx context.Context, branch string) error {
	if err := objstore.ValidBranch(branch); err != nil {
		return err
	}

	pushed := 0
	for _, prefix := range objectPrefixes {
		n, err := m.upload(ctx, prefix)
		pushed += n
		if err != nil {
			return err
		}
	}

	key := objstore.RefPath(branch)
	data, err := m.local.ReadFile(key)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	current, err := m.bucket.Get(ctx, key)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		current = nil
	case err != nil:
		return wrap("get "+key, err)
	}
	if bytes.Equal(current, data) {
		return nil
	}

	m.mu.Lock()
	seen, tracked := m.pulled[key]
	m.mu.Unlock()
	if tracked && !bytes.Equal(current, seen) {
		return wrap("push "+branch, ErrRemoteAdvanced)
	}

	if err := m.bucket.Put(ctx, key, data); err != nil {
		return wrap("put "+key, err)
	}
	m.remember(key, data)

	slog.Info("transport push", "transport", m.name, "branch", branch, "objects", pushed)
	return nil
}

// upload copies local objects under prefix that the bucket lacks.
func (m *Mirror) upload(ctx context.Context, prefix string) (int, error) {
	remote, err := m.bucket.List(ctx, prefix)
	if err != nil {
		return 0, wrap("list "+prefix, err)
	}
	have := mapset.NewThreadUnsafeSet(remote...)

	var todo []string
	err = m.local.Walk(prefix[:len(prefix)-1], func(fi vfs.FileInfo) error {
		if !have.Contains(fi.Path) {
			todo = append(todo, fi.Path)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(transferWorkers)
	for _, key := range todo {
		g.Go(func() error {
			data, err := m.local.ReadFile(key)
			if err != nil {
				return err
			}
			return wrap("put "+key, m.bucket.Put(gctx, key, data))
		})
	}
	return len(todo), g.Wait()
}

func (m *Mirror) remember(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulled[key] = append([]byte{}, data...)
}
