package system

import (
	"io"
	"os"

	"ippd/internal/device"
	"ippd/internal/job"
)

// streamFile copies j's spooled document to conn in 8 KiB chunks, polling j.IsCanceled between chunks so a mid-job
// cancellation stops the transfer promptly, per spec.md §5's cancellation
// semantics ("... between pages and return promptly when set").
func streamFile(conn *device.Connection, path string, j *job.Job) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	buf := make([]byte, 8192)
	for {
		if j.IsCanceled() {
			return nil
		}
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return conn.Flush()
		}
		if rerr != nil {
			return rerr
		}
	}
}

// deleteFile removes a spool file, tolerating an already-missing file (the
// common case when cleanup races with a concurrent delete).
func deleteFile(path string) error {
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
