package metrics

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
)

// InfluxOptions configures the InfluxDB writer.
type InfluxOptions struct {
	URL    string
	Token  string
	Org    string
	Bucket string
	// BackupFile receives gzipped line protocol while InfluxDB is unreachable.
	BackupFile string
	Logger     zerolog.Logger
}

// Influx writes a "rep" point per repetition. When the server cannot be
// reached at start-up, points go to a gzip line-protocol backup file that can
// be imported later.
type Influx struct {
	opts     InfluxOptions
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu         sync.Mutex
	backupFile *os.File
	backup     *gzip.Writer
}

// NewInflux connects to InfluxDB, falling back to the backup file when the
// ping fails.
func NewInflux(ctx context.Context, opts InfluxOptions) (*Influx, error) {
	w := &Influx{opts: opts}

	client := influxdb2.NewClientWithOptions(opts.URL, opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	running, err := client.Ping(pingCtx)
	cancel()

	if err != nil || !running {
		client.Close()
		opts.Logger.Warn().Err(err).Str("backup", opts.BackupFile).Msg("InfluxDB unreachable, writing to backup file")
		if err := w.openBackup(); err != nil {
			return nil, err
		}
		return w, nil
	}

	w.client = client
	w.writeAPI = client.WriteAPI(opts.Org, opts.Bucket)
	go w.logErrors(w.writeAPI.Errors())

	return w, nil
}

func (w *Influx) openBackup() error {
	if w.opts.BackupFile == "" {
		return errors.New("influxDB unreachable and no backup file configured")
	}
	if err := os.MkdirAll(filepath.Dir(w.opts.BackupFile), 0755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}
	f, err := os.OpenFile(w.opts.BackupFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	w.backupFile = f
	w.backup = gzip.NewWriter(f)
	return nil
}

// logErrors drains write errors until the client closes the channel.
func (w *Influx) logErrors(errs <-chan error) {
	for err := range errs {
		w.opts.Logger.Error().Err(err).Msg("InfluxDB write failed")
	}
}

// Backup reports whether points are going to the backup file.
func (w *Influx) Backup() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.backup != nil
}

// RecordRep implements Recorder.
func (w *Influx) RecordRep(ctx context.Context, r Rep) error {
	p := RepPoint(r)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writeAPI != nil {
		w.writeAPI.WritePoint(p)
		return nil
	}
	if w.backup == nil {
		return errors.New("influxDB writer closed")
	}
	line := strings.TrimRight(write.PointToLineProtocol(p, time.Nanosecond), "\n")
	if _, err := w.backup.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client or backup file.
func (w *Influx) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.writeAPI != nil {
		w.writeAPI.Flush()
		w.client.Close()
		w.writeAPI = nil
		return nil
	}
	if w.backup == nil {
		return nil
	}
	err := errors.Join(w.backup.Close(), w.backupFile.Close())
	w.backup = nil
	w.backupFile = nil
	return err
}

// RepPoint converts a rep into an InfluxDB point.
func RepPoint(r Rep) *write.Point {
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPointWithMeasurement("rep").
		AddTag("exercise", r.Exercise).
		AddTag("side", r.Side).
		AddTag("session", r.SessionID).
		AddField("count", int64(r.Count)).
		AddField("angle", r.Angle).
		SetTime(at)
}

// FormatRep returns the line protocol of a rep, mainly for logs and tests.
func FormatRep(r Rep) string {
	return strings.TrimRight(write.PointToLineProtocol(RepPoint(r), time.Nanosecond), "\n")
}

// Multi fans a rep out to several recorders and joins their errors.
type Multi []Recorder

// RecordRep implements Recorder.
func (m Multi) RecordRep(ctx context.Context, r Rep) error {
	var errs []error
	for i, rec := range m {
		if rec == nil {
			continue
		}
		if err := rec.RecordRep(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("recorder %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
