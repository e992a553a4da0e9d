// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"
)

// Store is a write-once object store rooted at an afs URL.
type Store struct {
	fs     afs.Service
	root   string
	signer *Signer
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithSigner enables SignedURL.
func WithSigner(signer *Signer) Option {
	return func(s *Store) error {
		s.signer = signer
		return nil
	}
}

// NewStore creates a store rooted at root. A bare path is treated as a
// local directory.
func NewStore(root string, opts ...Option) (*Store, error) {
	root = strings.TrimRight(strings.TrimSpace(root), "/")
	if root == "" {
		return nil, ErrRootRequired
	}
	if !strings.Contains(root, "://") {
		root = "file://" + root
	}
	s := &Store{
		fs:     afs.New(),
		root:   root,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "blob")
	return s, nil
}

// Root returns the root URL objects are stored under.
func (s *Store) Root() string {
	return s.root
}

// URI returns the stable address of a collection's file.
func (s *Store) URI(collectionID, filename string) string {
	return url.Join(url.Join(s.root, collectionID), filename)
}

// Put writes r once under collectionID/filename and returns its URI.
func (s *Store) Put(ctx context.Context, collectionID, filename string, r io.Reader) (string, error) {
	if err := checkName(collectionID); err != nil {
		return "", err
	}
	if err := checkName(filename); err != nil {
		return "", err
	}
	uri := s.URI(collectionID, filename)
	exists, err := s.fs.Exists(ctx, uri)
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", uri, err)
	}
	if exists {
		return "", fmt.Errorf("%w: %s", ErrBlobExists, uri)
	}
	if err := s.fs.Upload(ctx, uri, file.DefaultFileOsMode, r); err != nil {
		return "", fmt.Errorf("uploading %s: %w", uri, err)
	}
	s.logger.Debug("blob stored", "uri", uri)
	return uri, nil
}

// Get reads the object at uri.
func (s *Store) Get(ctx context.Context, uri string) ([]byte, error) {
	if _, _, err := s.Locate(uri); err != nil {
		return nil, err
	}
	exists, err := s.fs.Exists(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", uri, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, uri)
	}
	data, err := s.fs.DownloadWithURL(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", uri, err)
	}
	return data, nil
}

// Open returns a reader over the object at uri.
func (s *Store) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	data, err := s.Get(ctx, uri)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the object at uri.
func (s *Store) Delete(ctx context.Context, uri string) error {
	if _, _, err := s.Locate(uri); err != nil {
		return err
	}
	exists, err := s.fs.Exists(ctx, uri)
	if err != nil {
		return fmt.Errorf("checking %s: %w", uri, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrBlobNotFound, uri)
	}
	return s.fs.Delete(ctx, uri)
}

// Locate splits a URI of this store into collection and filename.
func (s *Store) Locate(uri string) (collectionID, filename string, err error) {
	rel, ok := strings.CutPrefix(uri, s.root+"/")
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideRoot, uri)
	}
	collectionID, filename, ok = strings.Cut(rel, "/")
	if !ok || checkName(collectionID) != nil || checkName(filename) != nil {
		return "", "", fmt.Errorf("%w: %s", ErrOutsideRoot, uri)
	}
	return collectionID, filename, nil
}

// SignedURL returns a relative read URL for uri that stops working after ttl.
func (s *Store) SignedURL(uri string, ttl time.Duration) (string, error) {
	if s.signer == nil {
		return "", ErrSignerRequired
	}
	collectionID, filename, err := s.Locate(uri)
	if err != nil {
		return "", err
	}
	return s.signer.URL(collectionID, filename, ttl), nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
