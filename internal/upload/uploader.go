package upload

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/raysh454/sitegen/internal/apperr"
	"github.com/raysh454/sitegen/internal/logging"
)

// ObjectStore is the external storage collaborator.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (url string, err error)
	Delete(ctx context.Context, key string) error
}

// Object describes a stored asset.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// ProgressFunc receives upload progress in percent. Calls are serialized.
type ProgressFunc func(percent int)

const (
	simulatedCeiling = 90
	simulatedStep    = 10
)

// Uploader validates assets and stores them, reporting simulated progress
// while the store call is in flight.
type Uploader struct {
	store  ObjectStore
	logger logging.Logger
	tick   time.Duration
	now    func() time.Time
}

// UploaderOption customizes an Uploader.
type UploaderOption func(*Uploader)

// WithTickInterval sets how often simulated progress advances.
func WithTickInterval(d time.Duration) UploaderOption {
	return func(u *Uploader) {
		if d > 0 {
			u.tick = d
		}
	}
}

// WithNow overrides the clock used for object keys.
func WithNow(now func() time.Time) UploaderOption {
	return func(u *Uploader) { u.now = now }
}

// NewUploader returns an Uploader writing to store.
func NewUploader(store ObjectStore, logger logging.Logger, opts ...UploaderOption) *Uploader {
	if logger == nil {
		logger = logging.Nop()
	}
	u := &Uploader{
		store:  store,
		logger: logger.With(logging.Field{Key: "component", Value: "upload"}),
		tick:   200 * time.Millisecond,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload validates filename and size for asset, reads body, and stores it
// under a fresh key. onProgress may be nil.
func (u *Uploader) Upload(ctx context.Context, asset AssetType, filename string, body io.Reader, size int64, onProgress ProgressFunc) (*Object, error) {
	if err := Validate(asset, filename, size); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(body, asset.MaxBytes()+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := Validate(asset, filename, int64(len(data))); err != nil {
		return nil, err
	}

	contentType, _ := ContentType(asset, filename)
	key := ObjectKey(asset, filename, u.now())
	if onProgress == nil {
		onProgress = func(int) {}
	}

	onProgress(0)
	stop := u.simulate(onProgress)
	url, err := u.store.Put(ctx, key, data, contentType)
	stop()
	if err != nil {
		u.logger.Warn("upload failed", logging.Field{Key: "key", Value: key}, logging.Err(err))
		return nil, err
	}
	onProgress(100)

	u.logger.Info("asset uploaded",
		logging.Field{Key: "asset", Value: string(asset)},
		logging.Field{Key: "key", Value: key},
		logging.Field{Key: "bytes", Value: len(data)})
	return &Object{Key: key, URL: url, Size: int64(len(data)), ContentType: contentType}, nil
}

// simulate advances progress by fixed steps up to the ceiling until the
// returned stop func is called. stop waits for the ticker goroutine.
func (u *Uploader) simulate(onProgress ProgressFunc) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(u.tick)
		defer t.Stop()
		p := 0
		for {
			select {
			case <-done:
				return
			case <-t.C:
				if p >= simulatedCeiling {
					continue
				}
				p += simulatedStep
				onProgress(p)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}
}

// Delete removes a previously uploaded object.
func (u *Uploader) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := u.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	u.logger.Info("asset deleted", logging.Field{Key: "key", Value: key})
	return nil
}

// IsValidationError reports whether err came from asset validation.
func IsValidationError(err error) bool { return apperr.IsInvalidInput(err) }
