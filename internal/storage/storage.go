package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/nfrund/huddle/internal/domain"
)

// MaxBlobSize caps a single uploaded blob.
const MaxBlobSize = 10 << 20

// AferoStore saves and reads blobs on an afero filesystem. Production uses an
// OS-backed filesystem rooted at the upload directory; tests use MemMapFs.
type AferoStore struct {
	fs afero.Fs
}

// NewAferoStore creates a new AferoStore.
func NewAferoStore(fs afero.Fs) *AferoStore {
	return &AferoStore{fs: fs}
}

// NewDiskStore creates an AferoStore rooted at dir.
func NewDiskStore(dir string) (*AferoStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return NewAferoStore(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

// Save writes the content of the reader to the given path.
func (s *AferoStore) Save(ctx context.Context, path string, reader io.Reader) (int64, error) {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	f, err := s.fs.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, reader)
}

// Delete removes a file.
func (s *AferoStore) Delete(ctx context.Context, path string) error {
	return s.fs.Remove(path)
}

// Open opens a file for reading.
func (s *AferoStore) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return s.fs.OpenFile(path, os.O_RDONLY, 0)
}

// BlobStore implements domain.Uploader on top of an AferoStore. Uploaded
// content is sniffed and only images are accepted.
type BlobStore struct {
	store   *AferoStore
	baseURL string
}

var _ domain.Uploader = (*BlobStore)(nil)

// NewBlobStore returns a BlobStore whose URLs are baseURL joined with the
// stored path.
func NewBlobStore(store *AferoStore, baseURL string) *BlobStore {
	return &BlobStore{store: store, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// Upload stores content under folder and returns its public URL.
func (b *BlobStore) Upload(ctx context.Context, folder string, content io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxBlobSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: read: %v", domain.ErrUploadFailed, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty content", domain.ErrUploadFailed)
	}
	if len(data) > MaxBlobSize {
		return "", fmt.Errorf("%w: content exceeds %d bytes", domain.ErrUploadFailed, MaxBlobSize)
	}

	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", fmt.Errorf("%w: unsupported content type %s", domain.ErrUploadFailed, mtype.String())
	}

	name := path.Join(cleanFolder(folder), uuid.NewString()+mtype.Extension())
	if _, err := b.store.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: save: %v", domain.ErrUploadFailed, err)
	}
	return b.baseURL + "/" + name, nil
}

// Open returns a stored blob and its detected content type.
func (b *BlobStore) Open(ctx context.Context, name string) (io.ReadCloser, string, error) {
	clean := path.Clean("/" + name)[1:]
	if clean == "" {
		return nil, "", domain.ErrNotFound
	}
	f, err := b.store.fs.Open(clean)
	if err != nil {
		return nil, "", domain.ErrNotFound
	}

	mtype, err := mimetype.DetectReader(f)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		f.Close()
		return nil, "", fmt.Errorf("read blob %s: %w", clean, err)
	}
	return f, mtype.String(), nil
}

func cleanFolder(folder string) string {
	clean := path.Clean("/" + folder)[1:]
	if clean == "" {
		return "misc"
	}
	return clean
}
