package services

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/arzan03/mediadrop/internal/models"
	"github.com/arzan03/mediadrop/internal/platform"
	"github.com/arzan03/mediadrop/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const fakeMediaHost = "https://media.example/"

// fakePlatform serves media from memory and counts calls.
type fakePlatform struct {
	mu           sync.Mutex
	media        map[string][]byte
	resolveErr   error
	fetchErr     error
	body         func(mediaID string) io.ReadCloser
	resolveCalls int
	fetchCalls   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{media: map[string][]byte{}}
}

func (f *fakePlatform) ResolveMedia(_ context.Context, mediaID string) (*platform.MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if _, ok := f.media[mediaID]; !ok && f.body == nil {
		return nil, &platform.APIError{Status: http.StatusNotFound, Code: 100, Message: "Unsupported get request"}
	}
	return &platform.MediaInfo{ID: mediaID, URL: fakeMediaHost + mediaID}, nil
}

func (f *fakePlatform) Fetch(_ context.Context, mediaURL string) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	id := strings.TrimPrefix(mediaURL, fakeMediaHost)
	if f.body != nil {
		return &http.Response{StatusCode: http.StatusOK, Body: f.body(id), ContentLength: -1}, nil
	}
	data := f.media[id]
	return &http.Response{
		StatusCode:    http.StatusOK,
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: int64(len(data)),
	}, nil
}

func (f *fakePlatform) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls, f.fetchCalls
}

// fakeArchive is an in-memory MediaArchive.
type fakeArchive struct {
	mu       sync.Mutex
	objects  map[string][]byte
	purgeErr error
	purges   int
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: map[string][]byte{}}
}

func (a *fakeArchive) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[key] = data
	return nil
}

func (a *fakeArchive) Open(_ context.Context, key string) (*storage.Object, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.objects[key]
	if !ok {
		return nil, storage.ErrObjectMissing
	}
	return &storage.Object{Body: io.NopCloser(bytes.NewReader(data)), Size: int64(len(data))}, nil
}

func (a *fakeArchive) Purge(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.purges++
	if a.purgeErr != nil {
		return a.purgeErr
	}
	a.objects = map[string][]byte{}
	return nil
}

func (a *fakeArchive) has(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.objects[key]
	return ok
}

// fixedRand returns the queued values in order, repeating the last one.
func fixedRand(values ...int64) func(int64) (int64, error) {
	var mu sync.Mutex
	i := 0
	return func(int64) (int64, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v, nil
	}
}

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func pdfRef() models.MediaRef {
	return models.MediaRef{
		ExternalMediaID: "m1",
		MimeType:        "application/pdf",
		Extension:       ".pdf",
		OriginalName:    "resume.pdf",
		SenderID:        "15550001111",
	}
}
