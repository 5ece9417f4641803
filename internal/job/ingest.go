package job

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Ingest streams body into a spooled file under spoolDir, following
// spec.md §4.3's "Job ingestion" rule: O_WRONLY|O_CREAT|O_TRUNC|O_NOFOLLOW
// mode 0600, unlinking the partial file and aborting the job on any
// read/write failure. On success the job's SpoolFile field is set; its
// state is left unchanged.
func (j *Job) Ingest(spoolDir, filename string, body io.Reader) error {
	path := filepath.Join(spoolDir, filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|syscall.O_NOFOLLOW, 0600)
	if err != nil {
		j.abortIngest("", err)
		return err
	}

	j.OpenSpoolFD(int(f.Fd()))
	_, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	j.CloseSpoolFD()

	if copyErr != nil || closeErr != nil {
		combined := copyErr
		if combined == nil {
			combined = closeErr
		}
		j.abortIngest(path, combined)
		return combined
	}

	j.mu.Lock()
	j.SpoolFile = path
	j.mu.Unlock()
	return nil
}

func (j *Job) abortIngest(path string, cause error) {
	if path != "" {
		os.Remove(path)
	}
	j.mu.Lock()
	j.state = StateAborted
	j.reasons |= ReasonAborted
	j.Completed = time.Now()
	if cause != nil {
		j.Message = cause.Error()
	} else {
		j.Message = "document ingestion failed"
	}
	j.mu.Unlock()
}

var errNoDocument = errors.New("job: no document body supplied")

// RequireBody returns errNoDocument if body is nil, for operations
// (Print-Job) that require one, per spec.md §4.2's dispatch table.
func RequireBody(body io.Reader) error {
	if body == nil {
		return errNoDocument
	}
	return nil
}
