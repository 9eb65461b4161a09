package r2s3

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Stats struct {
	UploadSuccessTotal uint64
	UploadFailTotal    uint64
	RetryTotal         uint64
	BytesTotal         uint64
	LastSuccessUnix    int64
	LastErrorUnix      int64
}

// Mirror copies finished backup directories into the bucket under
// <prefix>/<backup dir name>/<relative path>.
type Mirror struct {
	client  *Client
	prefix  string
	workers int
	logger  *log.Logger

	maxAttempts int
	backoff     time.Duration

	uploadSuccessTotal atomic.Uint64
	uploadFailTotal    atomic.Uint64
	retryTotal         atomic.Uint64
	bytesTotal         atomic.Uint64
	lastSuccessUnix    atomic.Int64
	lastErrorUnix      atomic.Int64
}

func NewMirror(client *Client, prefix string, workers int, logger *log.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	return &Mirror{
		client:      client,
		prefix:      strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		workers:     workers,
		logger:      logger,
		maxAttempts: 4,
		backoff:     200 * time.Millisecond,
	}
}

type upload struct {
	key   string
	local string
	size  int64
}

// Upload sends every regular file under dir and returns how many objects were
// written. The file named last (relative to dir) is sent only after all others
// succeeded, so its presence in the bucket marks a complete copy.
func (m *Mirror) Upload(ctx context.Context, dir, last string) (int, error) {
	var jobs []upload
	var final *upload
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		u := upload{key: m.objectKey(dir, rel), local: p, size: info.Size()}
		if last != "" && filepath.ToSlash(rel) == last {
			final = &u
			return nil
		}
		jobs = append(jobs, u)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].size > jobs[j].size })

	ch := make(chan upload)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
		done atomic.Int64
	)
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range ch {
				if err := m.uploadOne(ctx, u); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					continue
				}
				done.Add(1)
			}
		}()
	}
	for _, u := range jobs {
		if ctx.Err() != nil {
			break
		}
		ch <- u
	}
	close(ch)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return int(done.Load()), errors.Join(errs...)
	}
	if final != nil {
		if err := m.uploadOne(ctx, *final); err != nil {
			return int(done.Load()), err
		}
		done.Add(1)
	}
	return int(done.Load()), nil
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		UploadSuccessTotal: m.uploadSuccessTotal.Load(),
		UploadFailTotal:    m.uploadFailTotal.Load(),
		RetryTotal:         m.retryTotal.Load(),
		BytesTotal:         m.bytesTotal.Load(),
		LastSuccessUnix:    m.lastSuccessUnix.Load(),
		LastErrorUnix:      m.lastErrorUnix.Load(),
	}
}

func (m *Mirror) uploadOne(ctx context.Context, u upload) error {
	if err := m.uploadWithRetry(ctx, u.key, u.local); err != nil {
		m.uploadFailTotal.Add(1)
		m.lastErrorUnix.Store(time.Now().UTC().Unix())
		m.printf("mirror upload failed key=%s local=%s err=%v", u.key, u.local, err)
		return err
	}
	m.uploadSuccessTotal.Add(1)
	m.bytesTotal.Add(uint64(u.size))
	m.lastSuccessUnix.Store(time.Now().UTC().Unix())
	m.printf("mirror uploaded key=%s bytes=%d", u.key, u.size)
	return nil
}

func (m *Mirror) uploadWithRetry(ctx context.Context, key, localPath string) error {
	var lastErr error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err := m.client.PutFile(ctx, key, localPath)
		if err == nil {
			return nil
		}
		lastErr = err
		var se *StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return err
		}
		if attempt == m.maxAttempts {
			break
		}
		m.retryTotal.Add(1)
		t := time.NewTimer(time.Duration(attempt*attempt) * m.backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}

func (m *Mirror) objectKey(dir, rel string) string {
	key := path.Join(filepath.Base(filepath.Clean(dir)), filepath.ToSlash(rel))
	if m.prefix != "" {
		key = path.Join(m.prefix, key)
	}
	return key
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
