// Copyright 2025 Blink Labs Software
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

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsURLPrefix = "gcs://"

// ParseGCSURL splits a gcs://<bucket>[/<prefix>] URL
func ParseGCSURL(url string) (bucket string, prefix string, err error) {
	rest, ok := strings.CutPrefix(url, gcsURLPrefix)
	if !ok {
		return "", "", fmt.Errorf("archive: expected %s<bucket>, got %q", gcsURLPrefix, url)
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", errors.New("archive: bucket not set")
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

type GCSSinkOptionFunc func(*GCSSink)

// WithLogger specifies the logger object to use for logging messages
func WithLogger(logger *slog.Logger) GCSSinkOptionFunc {
	return func(s *GCSSink) {
		s.logger = logger
	}
}

// WithBucket specifies the GCS bucket name
func WithBucket(bucket string) GCSSinkOptionFunc {
	return func(s *GCSSink) {
		s.bucketName = bucket
	}
}

// WithCredentialsFile specifies a service account credentials file. The
// default is Application Default Credentials.
func WithCredentialsFile(path string) GCSSinkOptionFunc {
	return func(s *GCSSink) {
		s.credentialsFile = path
	}
}

// WithClientOptions appends options passed to the storage client
func WithClientOptions(opts ...option.ClientOption) GCSSinkOptionFunc {
	return func(s *GCSSink) {
		s.clientOpts = append(s.clientOpts, opts...)
	}
}

// GCSSink writes objects to a Google Cloud Storage bucket
type GCSSink struct {
	logger          *slog.Logger
	client          *storage.Client
	bucket          *storage.BucketHandle
	bucketName      string
	credentialsFile string
	clientOpts      []option.ClientOption
	mu              sync.Mutex
}

// NewGCSSink creates the storage client for the configured bucket
func NewGCSSink(
	ctx context.Context,
	opts ...GCSSinkOptionFunc,
) (*GCSSink, error) {
	s := &GCSSink{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("component", "archive", "bucket", s.bucketName)
	if s.bucketName == "" {
		return nil, errors.New("archive: bucket not set")
	}
	clientOpts := []option.ClientOption{storage.WithDisabledClientMetrics()}
	if s.credentialsFile != "" {
		if _, err := os.Stat(s.credentialsFile); err != nil {
			return nil, fmt.Errorf("archive: credentials file: %w", err)
		}
		clientOpts = append(
			clientOpts,
			option.WithCredentialsFile(s.credentialsFile),
		)
	}
	clientOpts = append(clientOpts, s.clientOpts...)
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	client, err := storage.NewClient(connectCtx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: failed creating storage client: %w", err)
	}
	s.client = client
	s.bucket = client.Bucket(s.bucketName)
	return s, nil
}

// Put writes data to the named object, replacing any previous content
func (s *GCSSink) Put(ctx context.Context, name string, data []byte) error {
	s.mu.Lock()
	bucket := s.bucket
	s.mu.Unlock()
	if bucket == nil {
		return errors.New("archive: sink is closed")
	}
	w := bucket.Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	s.logger.Debug("object written", "object", name, "size", len(data))
	return nil
}

// Close closes the storage client
func (s *GCSSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	s.bucket = nil
	return err
}
