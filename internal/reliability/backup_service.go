// Package reliability provides cloud backups of the snapshot database.
package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/horizon/internal/database"
)

// backupPrefix is the key prefix for backup archives in the bucket.
const backupPrefix = "backups/"

// retainedBackups is how many archives are kept; older ones are pruned after
// each successful upload.
const retainedBackups = 14

// BackupService creates tar.gz archives of the snapshot database and uploads
// them to S3-compatible storage.
type BackupService struct {
	client *S3Client
	db     *database.DB
	log    zerolog.Logger
}

// BackupMetadata describes an archive's contents.
type BackupMetadata struct {
	Timestamp time.Time `json:"timestamp"`
	Database  string    `json:"database"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
}

// NewBackupService creates a backup service.
func NewBackupService(client *S3Client, db *database.DB, log zerolog.Logger) *BackupService {
	return &BackupService{
		client: client,
		db:     db,
		log:    log.With().Str("service", "backup").Logger(),
	}
}

// CreateAndUploadBackup checkpoints the database, archives it with a
// metadata file, uploads the archive, and prunes old backups.
func (s *BackupService) CreateAndUploadBackup(ctx context.Context) error {
	s.log.Info().Msg("Starting backup")
	startTime := time.Now()

	// Flush the WAL so the main file is complete on its own.
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint database: %w", err)
	}

	stagingDir, err := os.MkdirTemp("", "horizon-backup-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	dbPath := s.db.Path()
	info, err := os.Stat(dbPath)
	if err != nil {
		return fmt.Errorf("failed to stat database: %w", err)
	}

	checksum, err := fileChecksum(dbPath)
	if err != nil {
		return fmt.Errorf("failed to checksum database: %w", err)
	}

	metadata := BackupMetadata{
		Timestamp: time.Now().UTC(),
		Database:  s.db.Name(),
		SizeBytes: info.Size(),
		Checksum:  checksum,
	}

	archivePath := filepath.Join(stagingDir, "backup.tar.gz")
	if err := writeArchive(archivePath, dbPath, metadata); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer archive.Close()

	key := fmt.Sprintf("%s%s.tar.gz", backupPrefix, metadata.Timestamp.Format("2006-01-02T15-04-05Z"))
	if err := s.client.Upload(ctx, key, archive); err != nil {
		return err
	}

	s.log.Info().
		Str("key", key).
		Int64("db_bytes", info.Size()).
		Dur("elapsed", time.Since(startTime)).
		Msg("Backup uploaded")

	if err := s.pruneOldBackups(ctx); err != nil {
		// The upload succeeded; pruning failure just leaves extra archives.
		s.log.Warn().Err(err).Msg("Failed to prune old backups")
	}
	return nil
}

// ListBackups returns stored backups, newest first.
func (s *BackupService) ListBackups(ctx context.Context) ([]ObjectInfo, error) {
	return s.client.List(ctx, backupPrefix)
}

// pruneOldBackups deletes archives beyond the retention count.
func (s *BackupService) pruneOldBackups(ctx context.Context) error {
	backups, err := s.client.List(ctx, backupPrefix)
	if err != nil {
		return err
	}
	for _, backup := range backups[min(retainedBackups, len(backups)):] {
		s.log.Debug().Str("key", backup.Key).Msg("Pruning old backup")
		if err := s.client.Delete(ctx, backup.Key); err != nil {
			return err
		}
	}
	return nil
}

// writeArchive creates a tar.gz with the database file and its metadata.
func writeArchive(archivePath, dbPath string, metadata BackupMetadata) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	metaBytes, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    "metadata.json",
		Mode:    0644,
		Size:    int64(len(metaBytes)),
		ModTime: metadata.Timestamp,
	}); err != nil {
		return err
	}
	if _, err := tw.Write(metaBytes); err != nil {
		return err
	}

	db, err := os.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	info, err := db.Stat()
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    filepath.Base(dbPath),
		Mode:    0644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}); err != nil {
		return err
	}
	if _, err := io.Copy(tw, db); err != nil {
		return err
	}

	return nil
}

// fileChecksum returns the hex SHA-256 of a file.
func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
