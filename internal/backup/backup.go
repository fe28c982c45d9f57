// Package backup takes encrypted snapshots of the habit database and
// restores them into a fresh file.
package backup

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tct123/open-source-habit-tracker-app/internal/config"
	"github.com/tct123/open-source-habit-tracker-app/internal/database"
	"github.com/tct123/open-source-habit-tracker-app/internal/metrics"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/store"
	"github.com/tct123/open-source-habit-tracker-app/internal/tracker"
)

const minPassphrase = 8

var (
	ErrInProgress     = errors.New("backup: another backup is running")
	ErrWeakPassphrase = fmt.Errorf("backup: passphrase must be at least %d characters", minPassphrase)
	ErrOutputExists   = errors.New("backup: restore output already exists")
	ErrNotFound       = errors.New("backup: not found")
)

// s3Client is the part of the S3 API the manager uses.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// target is where sealed snapshots live.
type target interface {
	Location() string
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

type s3Target struct {
	client s3Client
	bucket string
}

func newS3Client(cfg config.S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

func (t *s3Target) Location() string { return "s3" }

func (t *s3Target) Put(ctx context.Context, key string, data []byte) error {
	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(t.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("upload to s3: %w", err)
	}
	return nil
}

func (t *s3Target) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object: %w", err)
	}
	return data, nil
}

type dirTarget struct {
	dir string
}

func (t *dirTarget) Location() string { return "local" }

func (t *dirTarget) Put(_ context.Context, key string, data []byte) error {
	if err := os.MkdirAll(t.dir, 0o700); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(t.dir, key), data, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

func (t *dirTarget) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(t.dir, filepath.Base(key)))
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	return data, nil
}

// Notify is called after each backup run with its final record.
type Notify func(model.Backup)

type Manager struct {
	db      *sql.DB
	backups *store.BackupStore
	target  target
	notify  Notify
	logger  *slog.Logger
	now     func() time.Time

	running sync.Mutex
}

// NewManager stores snapshots in S3 when cfg.S3 is complete and in cfg.Dir
// otherwise.
func NewManager(cfg config.BackupConfig, db *sql.DB, notify Notify, logger *slog.Logger) *Manager {
	var t target = &dirTarget{dir: cfg.Dir}
	if cfg.S3.Enabled() {
		t = &s3Target{client: newS3Client(cfg.S3), bucket: cfg.S3.Bucket}
	}
	return newManager(t, db, notify, logger)
}

func newManager(t target, db *sql.DB, notify Notify, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:      db,
		backups: store.NewBackupStore(db),
		target:  t,
		notify:  notify,
		logger:  logger,
		now:     time.Now,
	}
}

func (m *Manager) Location() string {
	return m.target.Location()
}

func (m *Manager) List(ctx context.Context, limit int) ([]model.Backup, error) {
	return m.backups.List(ctx, limit)
}

// RunNow snapshots the database, seals it with passphrase and stores it.
// Only one backup runs at a time.
func (m *Manager) RunNow(ctx context.Context, passphrase string) (*model.Backup, error) {
	if len(passphrase) < minPassphrase {
		return nil, ErrWeakPassphrase
	}
	if !m.running.TryLock() {
		return nil, ErrInProgress
	}
	defer m.running.Unlock()

	now := m.now().UTC()
	key := "habits-" + now.Format("20060102T150405.000Z") + ".db.enc"
	record, err := m.backups.Create(ctx, key, m.target.Location(), now)
	if err != nil {
		return nil, fmt.Errorf("create backup record: %w", err)
	}

	size, err := m.run(ctx, record.ID, key, passphrase)
	if err != nil {
		metrics.BackupsTotal.WithLabelValues("error").Inc()
		m.logger.Error("backup failed", "key", key, "error", err)
		if uerr := m.backups.UpdateStatus(ctx, record.ID, model.BackupStatusFailed, err.Error()); uerr != nil {
			m.logger.Error("record backup failure", "key", key, "error", uerr)
		}
		m.finish(ctx, record.ID)
		return nil, err
	}

	if err := m.backups.UpdateCompleted(ctx, record.ID, size, m.now()); err != nil {
		return nil, fmt.Errorf("record backup: %w", err)
	}
	metrics.BackupsTotal.WithLabelValues("ok").Inc()
	m.logger.Info("backup completed", "key", key, "location", m.target.Location(), "bytes", size)
	return m.finish(ctx, record.ID), nil
}

func (m *Manager) run(ctx context.Context, id int64, key, passphrase string) (int64, error) {
	if err := m.backups.UpdateStatus(ctx, id, model.BackupStatusUploading, ""); err != nil {
		return 0, err
	}

	tmpDir, err := os.MkdirTemp("", "habits-backup-")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "snapshot.db")
	if _, err := m.db.ExecContext(ctx, `VACUUM INTO ?`, snapshot); err != nil {
		return 0, fmt.Errorf("snapshot database: %w", err)
	}
	plaintext, err := os.ReadFile(snapshot)
	if err != nil {
		return 0, fmt.Errorf("read snapshot: %w", err)
	}
	sealed, err := Seal(plaintext, passphrase)
	if err != nil {
		return 0, fmt.Errorf("encrypt snapshot: %w", err)
	}
	if err := m.target.Put(ctx, key, sealed); err != nil {
		return 0, err
	}
	return int64(len(sealed)), nil
}

func (m *Manager) finish(ctx context.Context, id int64) *model.Backup {
	b, err := m.backups.GetByID(ctx, id)
	if err != nil || b == nil {
		return b
	}
	if m.notify != nil {
		m.notify(*b)
	}
	return b
}

// RestoreReport describes a restored snapshot.
type RestoreReport struct {
	Key        string `json:"key"`
	OutPath    string `json:"out_path"`
	Habits     int    `json:"habits"`
	Mismatches int    `json:"mismatches"`
	Rebuilt    int    `json:"rebuilt"`
}

// Restore fetches the backup stored under key, decrypts it, checks the
// file's integrity and its aggregate cache, and writes it to outPath. A
// cache that disagrees with the ledger is rebuilt in the restored copy.
// The live database is never touched.
func (m *Manager) Restore(ctx context.Context, key, passphrase, outPath string) (*RestoreReport, error) {
	if _, err := os.Stat(outPath); err == nil {
		return nil, ErrOutputExists
	}
	sealed, err := m.target.Get(ctx, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}
	plaintext, err := Open(sealed, passphrase)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(outPath), ".habits-restore-*.db")
	if err != nil {
		return nil, fmt.Errorf("create restore file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(plaintext); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write restore file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close restore file: %w", err)
	}

	report, err := m.check(ctx, tmpPath)
	if err != nil {
		return nil, err
	}
	report.Key = key
	report.OutPath = outPath

	os.Remove(tmpPath + "-wal")
	os.Remove(tmpPath + "-shm")
	if err := os.Rename(tmpPath, outPath); err != nil {
		return nil, fmt.Errorf("move restored database: %w", err)
	}
	m.logger.Info("backup restored", "key", key, "out", outPath, "habits", report.Habits, "rebuilt", report.Rebuilt)
	return report, nil
}

func (m *Manager) check(ctx context.Context, path string) (*RestoreReport, error) {
	// Open migrates snapshots taken by an older schema.
	db, err := database.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open restored db: %w", err)
	}
	defer db.Close()

	var integrity string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&integrity); err != nil {
		return nil, fmt.Errorf("integrity check: %w", err)
	}
	if integrity != "ok" {
		return nil, fmt.Errorf("integrity check failed: %s", integrity)
	}

	report := &RestoreReport{}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM habits`).Scan(&report.Habits); err != nil {
		return nil, fmt.Errorf("count habits: %w", err)
	}

	mismatches, err := tracker.CheckAggregates(ctx, db, m.logger)
	if err != nil {
		return nil, err
	}
	report.Mismatches = len(mismatches)
	if len(mismatches) > 0 {
		svc := tracker.New(db, nil, m.logger)
		if report.Rebuilt, err = svc.RebuildAll(ctx); err != nil {
			return nil, err
		}
	}
	return report, nil
}
