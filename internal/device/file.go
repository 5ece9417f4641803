package device

import (
	"fmt"
	"net/url"
	"os"
)

// fileScheme implements the "file:///path" device URI grammar of spec.md
// §6: a character device or named pipe opened for read/write.
func fileScheme() *Scheme {
	return &Scheme{
		Name: "file",
		Type: TypeLocal,
		Open: fileOpen,
		Close: func(c *Connection) error {
			f, _ := c.FD().(*os.File)
			if f == nil {
				return nil
			}
			return f.Close()
		},
		Read: func(c *Connection, buf []byte) (int, error) {
			f := c.FD().(*os.File)
			return f.Read(buf)
		},
		Write: func(c *Connection, buf []byte) (int, error) {
			f := c.FD().(*os.File)
			return f.Write(buf)
		},
		Status: func(c *Connection) (Status, error) {
			return Status{}, nil
		},
	}
}

func fileOpen(uri string, errCB ErrCallback) (*Connection, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("device/file: invalid URI: %w", err)
	}
	path := u.Path
	if path == "" {
		return nil, fmt.Errorf("device/file: URI %q has no path", uri)
	}
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		// Some character devices are write-only from the host's perspective.
		f, err = os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return nil, fmt.Errorf("device/file: open %s: %w", path, err)
		}
	}
	conn := &Connection{}
	conn.SetFD(f)
	return conn, nil
}
