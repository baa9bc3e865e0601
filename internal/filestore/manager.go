package filestore

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/google/uuid"

	"teamhub/api/internal/store"
)

// MetadataStore records files and their version chain.
type MetadataStore interface {
	CreateFileVersion(ctx context.Context, projectID int64, filename string, uploaderID int64, savedPath string, size int64) (store.FileMetadata, store.FileVersion, error)
	GetFile(ctx context.Context, fileID int64) (store.FileMetadata, error)
	ListProjectFiles(ctx context.Context, projectID int64) ([]store.FileMetadata, map[int64]store.FileVersion, error)
	ListFileVersions(ctx context.Context, fileID int64) ([]store.FileVersion, error)
	GetFileVersion(ctx context.Context, fileID int64, version int) (store.FileVersion, error)
	LatestFileVersion(ctx context.Context, fileID int64) (store.FileVersion, error)
	DeleteFileRecords(ctx context.Context, fileID int64) ([]string, error)
}

// Manager combines blob storage with version bookkeeping. Uploading a
// filename that already exists in the project appends a new version;
// every version keeps its own blob.
type Manager struct {
	storage  Storage
	metadata MetadataStore
}

func NewManager(storage Storage, metadata MetadataStore) *Manager {
	return &Manager{storage: storage, metadata: metadata}
}

// Store saves the blob under a fresh uuid-based name and records the
// next version. The original filename survives only in metadata; the
// kept extension helps external tooling sniff content types.
func (m *Manager) Store(ctx context.Context, projectID int64, filename string, uploaderID int64, r io.Reader) (store.FileMetadata, store.FileVersion, error) {
	name := uuid.NewString() + filepath.Ext(filename)

	size, err := m.storage.Save(ctx, name, r)
	if err != nil {
		return store.FileMetadata{}, store.FileVersion{}, fmt.Errorf("save blob: %w", err)
	}

	meta, version, err := m.metadata.CreateFileVersion(ctx, projectID, filename, uploaderID, name, size)
	if err != nil {
		// The blob is orphaned without its metadata row.
		_ = m.storage.Remove(ctx, name)
		return store.FileMetadata{}, store.FileVersion{}, err
	}
	return meta, version, nil
}

// SaveBlob stores a standalone blob outside any version chain and
// returns its storage name. Profile images go through here.
func (m *Manager) SaveBlob(ctx context.Context, filename string, r io.Reader) (string, error) {
	name := uuid.NewString() + filepath.Ext(filename)
	if _, err := m.storage.Save(ctx, name, r); err != nil {
		return "", fmt.Errorf("save blob: %w", err)
	}
	return name, nil
}

// Open returns the blob of a specific version.
func (m *Manager) Open(ctx context.Context, fileID int64, versionNum int) (io.ReadCloser, store.FileVersion, error) {
	version, err := m.metadata.GetFileVersion(ctx, fileID, versionNum)
	if err != nil {
		return nil, store.FileVersion{}, err
	}
	rc, err := m.storage.Open(ctx, version.SavedPath)
	if err != nil {
		return nil, store.FileVersion{}, err
	}
	return rc, version, nil
}

// OpenLatest returns the blob of the newest version.
func (m *Manager) OpenLatest(ctx context.Context, fileID int64) (io.ReadCloser, store.FileVersion, error) {
	version, err := m.metadata.LatestFileVersion(ctx, fileID)
	if err != nil {
		return nil, store.FileVersion{}, err
	}
	rc, err := m.storage.Open(ctx, version.SavedPath)
	if err != nil {
		return nil, store.FileVersion{}, err
	}
	return rc, version, nil
}

// History lists a file's versions, newest first.
func (m *Manager) History(ctx context.Context, fileID int64) ([]store.FileVersion, error) {
	return m.metadata.ListFileVersions(ctx, fileID)
}

// Delete removes the version rows before the metadata row, then
// reclaims the blobs. The records are the source of truth: once they
// are gone the deletion has succeeded, and a blob that fails to
// delete is only logged. Orphaned blobs can be swept offline.
func (m *Manager) Delete(ctx context.Context, fileID int64) error {
	paths, err := m.metadata.DeleteFileRecords(ctx, fileID)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := m.storage.Remove(ctx, p); err != nil {
			log.Printf("remove blob %s: %v", p, err)
		}
	}
	return nil
}
