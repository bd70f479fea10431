// Package transport moves the encrypted mirror between the local metadata
// directory and a shared remote. Transports never see plaintext.
package transport

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/openmined/syncvault/internal/config"
	"github.com/openmined/syncvault/internal/objstore"
	"github.com/openmined/syncvault/internal/vfs"
)

var (
	ErrTransport = errors.New("transport error")
	// ErrRemoteAdvanced means the branch ref moved on the remote between
	// pull and push. Syncing again resolves it.
	ErrRemoteAdvanced = errors.New("remote branch advanced since last pull")
)

type Transport interface {
	Name() string
	// RemoteIndexExists reports whether the remote holds any snapshot.
	RemoteIndexExists(ctx context.Context) (bool, error)
	// CloneAll copies every object and every branch ref.
	CloneAll(ctx context.Context) error
	// PullLatest copies missing objects and the ref of branch.
	PullLatest(ctx context.Context, branch string) error
	// PushLatest publishes local objects first and the ref of branch last.
	PushLatest(ctx context.Context, branch string) error
}

// New builds the transport cfg selects. mirror is rooted at the local
// remotes directory.
func New(ctx context.Context, cfg *config.Config, mirror *vfs.FS) (Transport, error) {
	switch cfg.Transport {
	case config.TransportDir:
		remote := vfs.NewOS(cfg.Dir.Path)
		return NewMirror(config.TransportDir, mirror, NewDirBucket(remote)), nil
	case config.TransportS3:
		bucket, err := NewS3Bucket(ctx, &cfg.S3)
		if err != nil {
			return nil, wrap("s3 setup", err)
		}
		return NewMirror(config.TransportS3, mirror, bucket), nil
	case config.TransportGit:
		return NewGit(mirror.Root(), &cfg.Git, cfg.EnvironmentID), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrTransport, cfg.Transport)
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

// immutable reports whether a mirror key is a content or snapshot object.
// Those never change once written; refs do.
func immutable(key string) bool {
	return strings.HasPrefix(key, string(objstore.KindFiles)+"/") ||
		strings.HasPrefix(key, string(objstore.KindIndexes)+"/")
}

func isRef(key string) bool {
	return path.Dir(key) == "refs"
}
