package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/okian/platecount/internal/adapters/vision"
	"github.com/okian/platecount/internal/domain/dedupe"
	"github.com/okian/platecount/internal/domain/model"
	"github.com/okian/platecount/internal/domain/types"
	"github.com/okian/platecount/pkg/logger"
	"github.com/okian/platecount/pkg/metrics"
)

// StatusDuplicate is reported when an upload matches an earlier one.
const StatusDuplicate = "duplicate"

// DefaultStreamName is the save name of a stream without one.
const DefaultStreamName = "stream_output.mp4"

const uploadStamp = "20060102_150405"

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Upload is a file submitted for processing.
type Upload = types.Upload

// SubmitResult describes an accepted submission.
type SubmitResult = types.SubmitResult

// SanitizeFilename reduces name to a safe ASCII base name. It returns an
// empty string when nothing usable remains.
func SanitizeFilename(name string) string {
	name = norm.NFKD.String(name)
	name = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, name)
	name = strings.NewReplacer("/", " ", "\\", " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}

// Submit saves an upload and queues it for processing. An upload whose bytes
// match a job that has not failed returns that job instead.
func (s *Service) Submit(ctx context.Context, u Upload) (SubmitResult, error) {
	if !s.isStarted() {
		return SubmitResult{}, ErrNotStarted
	}

	name := SanitizeFilename(u.Filename)
	if name == "" {
		return SubmitResult{}, ErrNoFilename
	}
	kind, ok := vision.KindForName(name)
	if !ok {
		return SubmitResult{}, fmt.Errorf("%w: %q", ErrUnsupportedType, vision.Ext(name))
	}

	id := uuid.NewString()
	now := s.now()
	path, digest, size, err := s.save(now.Format(uploadStamp), id, name, u.Body)
	if err != nil {
		return SubmitResult{}, err
	}

	if existing, seen := s.deduper.SeenAndRecord(ctx, digest, id); seen {
		removeFile(path)
		metrics.RecordJobDuplicate()
		s.logger.Info(ctx, "duplicate upload",
			logger.String("filename", name),
			logger.String("job_id", existing),
		)
		return SubmitResult{JobID: existing, Filename: name, Status: StatusDuplicate, Duplicate: true}, nil
	}
	metrics.UpdateDedupeEntries(s.deduper.Size())

	job := model.Job{
		ID:        id,
		Filename:  name,
		InputPath: path,
		Digest:    digest,
		Kind:      kind,
		Status:    model.StatusProcessing,
		Progress:  ProgressStarting,
		StartedAt: now,
	}
	if err := s.enqueue(ctx, job); err != nil {
		s.deduper.Unrecord(ctx, digest)
		removeFile(path)
		return SubmitResult{}, err
	}

	metrics.RecordUploadBytes(size)
	s.logger.Info(ctx, "job submitted",
		logger.String("job_id", id),
		logger.String("filename", name),
		logger.Int64("bytes", size),
	)
	return SubmitResult{JobID: id, Filename: name, Status: string(model.StatusProcessing)}, nil
}

// SubmitStream queues a network stream for processing. Only the first frames
// of the stream are read.
func (s *Service) SubmitStream(ctx context.Context, rawURL, name string) (SubmitResult, error) {
	if !s.isStarted() {
		return SubmitResult{}, ErrNotStarted
	}
	if !s.Streams() {
		return SubmitResult{}, ErrStreamsUnsupported
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || (u.Host == "" && u.Path == "") {
		return SubmitResult{}, fmt.Errorf("%w: %q", ErrInvalidStreamURL, rawURL)
	}

	name = SanitizeFilename(name)
	if name == "" {
		name = DefaultStreamName
	}
	job := model.Job{
		ID:        uuid.NewString(),
		Filename:  name,
		URL:       rawURL,
		Kind:      model.KindStream,
		Status:    model.StatusProcessing,
		Progress:  ProgressStarting,
		StartedAt: s.now(),
	}
	if err := s.enqueue(ctx, job); err != nil {
		return SubmitResult{}, err
	}

	s.logger.Info(ctx, "stream submitted", logger.String("job_id", job.ID), logger.String("url", u.Redacted()))
	return SubmitResult{JobID: job.ID, Filename: name, Status: string(model.StatusProcessing)}, nil
}

func (s *Service) enqueue(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	if err := s.store.Create(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	if !s.queue.Enqueue(ctx, job) {
		if err := s.store.Delete(ctx, job.ID); err != nil {
			s.logger.Error(ctx, "failed to roll back job", logger.String("job_id", job.ID), logger.Error(err))
		}
		return ErrBackpressure
	}
	metrics.RecordJobSubmitted(string(job.Kind))
	return nil
}

// save writes body under the upload directory and digests it in one pass.
// The file is named <stamp>_<name>; a name collision adds the job id.
func (s *Service) save(stamp, id, name string, body io.Reader) (path, digest string, size int64, err error) {
	if body == nil {
		return "", "", 0, ErrNoFile
	}

	path = filepath.Join(s.uploadDir, stamp+"_"+name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		path = filepath.Join(s.uploadDir, stamp+"_"+id[:8]+"_"+name)
		f, err = os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	}
	if err != nil {
		return "", "", 0, fmt.Errorf("save upload: %w", err)
	}

	counter := &countingWriter{w: f}
	digest, err = dedupe.Digest(io.TeeReader(io.LimitReader(body, s.maxUploadBytes+1), counter))
	closeErr := f.Close()
	switch {
	case err != nil:
		removeFile(path)
		return "", "", 0, fmt.Errorf("save upload: %w", err)
	case closeErr != nil:
		removeFile(path)
		return "", "", 0, fmt.Errorf("save upload: %w", closeErr)
	case counter.n > s.maxUploadBytes:
		removeFile(path)
		return "", "", 0, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxUploadBytes)
	}
	return path, digest, counter.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func removeFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
