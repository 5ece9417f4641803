// Package device implements the pluggable URI-scheme device layer of
// spec.md §4.1: a uniform {open, close, read, write, flush, status,
// supplies, id, list} contract across USB, raw TCP sockets, character
// devices, and network-discovered printers.
//
// The registry/callback-table shape is new (spec.md has no single teacher
// analogue for a device abstraction), but every concrete scheme is grounded
// on a transport the teacher or the retrieval pack already drives: USB
// class-7 enumeration follows OpenPrinting-ipp-usb's usb.go/usbcommon.go
// (ported here to github.com/google/gousb, the same pack's USB binding);
// DNS-SD uses github.com/grandcat/zeroconf exactly as the teacher's
// agent/agent/mdns.go already does; SNMP uses github.com/gosnmp/gosnmp
// exactly as the teacher's agent/agent/snmp.go and agent/scanner/snmp*.go.
package device

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// Type tags a scheme as local (USB, character device) or network.
type Type int

const (
	TypeLocal Type = 1 << iota
	TypeNetwork
	TypeAll = TypeLocal | TypeNetwork
)

// ListCallback is invoked once per discovered device. Returning false stops
// enumeration for the scheme that invoked it and skips any schemes not yet
// listed (spec.md §4.1's "List operation").
type ListCallback func(uri, id string, userData interface{}) bool

// ErrCallback reports a fatal operation error; the default implementation
// writes to standard error (spec.md §4.1, "Error reporting").
type ErrCallback func(message string, data interface{})

func defaultErrCallback(message string, data interface{}) {
	fmt.Fprintln(os.Stderr, "device:", message)
}

// Scheme is the callback vtable a URI scheme registers. Every callback is
// optional except Open; nil callbacks are treated as unsupported for that
// operation.
type Scheme struct {
	Name string
	Type Type

	List     func(cb ListCallback, userData interface{}, errCB ErrCallback)
	Open     func(uri string, errCB ErrCallback) (*Connection, error)
	Close    func(c *Connection) error
	Read     func(c *Connection, buf []byte) (int, error)
	Write    func(c *Connection, buf []byte) (int, error)
	Status   func(c *Connection) (Status, error)
	Supplies func(c *Connection) ([]Supply, error)
	ID       func(c *Connection) (string, error)
}

// Status is the Centronics-style device status bitfield (spec.md §4.1, USB
// GET_PORT_STATUS interpretation), reused uniformly across schemes.
type Status struct {
	Offline    bool
	PaperEmpty bool
	Jam        bool
	CoverOpen  bool
	OtherError bool
}

// Supply describes one consumable (ink/toner/etc).
type Supply struct {
	Name        string
	Color       string
	Type        string
	Level       int // percent, 0-100; -1 if unknown
	MaxCapacity int
}

const writeBufferCapacity = 8192

// Metrics accumulates per-connection I/O counters (spec.md §3, "Device
// connection").
type Metrics struct {
	ReadRequests   uint64
	WriteRequests  uint64
	StatusRequests uint64
	ReadBytes      uint64
	WriteBytes     uint64
	ReadMillis     uint64
	WriteMillis    uint64
}

// Connection is a device handle: buffered I/O plus the scheme's callback
// set and private data, per spec.md §3 ("Device connection").
type Connection struct {
	mu sync.Mutex

	scheme *Scheme
	errCB  ErrCallback
	data   interface{} // scheme-private state

	writeBuf    []byte
	buffered    int
	metrics     Metrics
	fd          interface{} // socket, file handle, or USB endpoint pair
}

// SetData stashes scheme-private state on the connection; called from a
// scheme's Open callback.
func (c *Connection) SetData(v interface{}) { c.data = v }

// Data retrieves scheme-private state.
func (c *Connection) Data() interface{} { return c.data }

// SetFD stashes the underlying transport handle (net.Conn, *os.File, USB
// endpoint pair) for the scheme's Read/Write/Close callbacks to use.
func (c *Connection) SetFD(fd interface{}) { c.fd = fd }

// FD retrieves the underlying transport handle.
func (c *Connection) FD() interface{} { return c.fd }

// Metrics returns a snapshot of the connection's I/O counters.
func (c *Connection) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Write buffers bytes, flushing first if the write would overflow the
// buffer, per spec.md §4.1's "Buffered write" algorithm.
func (c *Connection) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for len(p) > 0 {
		if c.buffered+len(p) <= writeBufferCapacity {
			c.writeBuf = append(c.writeBuf[:c.buffered], p...)
			c.buffered += len(p)
			total += len(p)
			p = nil
			break
		}

		// Would overflow: flush what we have, then either buffer the rest
		// or bypass the buffer entirely for a chunk >= capacity.
		if err := c.flushLocked(); err != nil {
			return total, err
		}
		if len(p) >= writeBufferCapacity {
			n, err := c.rawWrite(p)
			total += n
			if err != nil {
				return total, err
			}
			p = nil
			break
		}
	}
	return total, nil
}

// Flush forces any buffered bytes out via the scheme's Write callback.
func (c *Connection) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

func (c *Connection) flushLocked() error {
	if c.buffered == 0 {
		return nil
	}
	buf := c.writeBuf[:c.buffered]
	_, err := c.rawWrite(buf)
	c.buffered = 0
	return err
}

func (c *Connection) rawWrite(buf []byte) (int, error) {
	if c.scheme.Write == nil {
		return 0, fmt.Errorf("device: scheme %q does not support write", c.scheme.Name)
	}
	start := time.Now()
	n, err := c.scheme.Write(c, buf)
	c.metrics.WriteRequests++
	c.metrics.WriteMillis += uint64(time.Since(start).Milliseconds())
	if err == nil {
		c.metrics.WriteBytes += uint64(n)
	} else if c.errCB != nil {
		c.errCB(fmt.Sprintf("device write failed: %v", err), c.data)
	}
	return n, err
}

// Read flushes any pending write bytes, then reads via the scheme's Read
// callback, per spec.md §4.1's "Read" algorithm.
func (c *Connection) Read(buf []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.buffered > 0 {
		if err := c.flushLocked(); err != nil {
			return 0, err
		}
	}
	if c.scheme.Read == nil {
		return 0, fmt.Errorf("device: scheme %q does not support read", c.scheme.Name)
	}
	start := time.Now()
	n, err := c.scheme.Read(c, buf)
	c.metrics.ReadRequests++
	c.metrics.ReadMillis += uint64(time.Since(start).Milliseconds())
	if err == nil {
		c.metrics.ReadBytes += uint64(n)
	} else if c.errCB != nil {
		c.errCB(fmt.Sprintf("device read failed: %v", err), c.data)
	}
	return n, err
}

// Status queries the device's current status.
func (c *Connection) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.StatusRequests++
	if c.scheme.Status == nil {
		return Status{}, nil
	}
	return c.scheme.Status(c)
}

// Supplies queries the device's consumables.
func (c *Connection) Supplies() ([]Supply, error) {
	if c.scheme.Supplies == nil {
		return nil, nil
	}
	return c.scheme.Supplies(c)
}

// ID queries the device's IEEE-1284 device id string.
func (c *Connection) ID() (string, error) {
	if c.scheme.ID == nil {
		return "", nil
	}
	return c.scheme.ID(c)
}

// Close flushes pending bytes and invokes the scheme's Close callback, per
// spec.md §4.1.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	flushErr := c.flushLocked()
	var closeErr error
	if c.scheme.Close != nil {
		closeErr = c.scheme.Close(c)
	}
	if closeErr != nil {
		return closeErr
	}
	return flushErr
}

// Registry is the scheme-name-keyed set described in spec.md §4.1, guarded
// by a reader/writer lock per spec.md §5 (device_scheme_rwlock).
type Registry struct {
	mu      sync.RWMutex
	schemes map[string]*Scheme
}

// NewRegistry creates a registry pre-seeded with the built-in schemes
// (file, socket, usb, dnssd, snmp), per spec.md §4.1.
func NewRegistry() *Registry {
	r := &Registry{schemes: make(map[string]*Scheme)}
	for _, s := range []*Scheme{fileScheme(), socketScheme(), usbScheme(), dnssdScheme(), snmpScheme()} {
		r.schemes[s.Name] = s
	}
	return r
}

// AddScheme registers (or replaces) a URI scheme.
func (r *Registry) AddScheme(s *Scheme) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[s.Name] = s
}

// RemoveScheme unregisters a URI scheme by name.
func (r *Registry) RemoveScheme(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schemes, name)
}

// RemoveTypes unregisters every scheme whose Type intersects mask.
func (r *Registry) RemoveTypes(mask Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, s := range r.schemes {
		if s.Type&mask != 0 {
			delete(r.schemes, name)
		}
	}
}

// IsSupported parses uri and reports whether its scheme is registered; for
// the file scheme it additionally requires a non-empty resource path. It
// does not check whether that path is writable.
func (r *Registry) IsSupported(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	r.mu.RLock()
	s, ok := r.lookup(u.Scheme)
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if s.Name == "file" {
		return isWritablePath(u.Path)
	}
	return true
}

func (r *Registry) lookup(scheme string) (*Scheme, bool) {
	s, ok := r.schemes[scheme]
	return s, ok
}

// List invokes cb for every device discovered by schemes matching typeMask
// that expose a List callback. Once a callback returns "stop enumeration"
// (false), the remaining schemes are not listed, matching spec.md's
// "any true short-circuits subsequent schemes" rule.
func (r *Registry) List(typeMask Type, cb ListCallback, userData interface{}, errCB ErrCallback) {
	if errCB == nil {
		errCB = defaultErrCallback
	}
	r.mu.RLock()
	var matching []*Scheme
	for _, s := range r.schemes {
		if s.Type&typeMask != 0 && s.List != nil {
			matching = append(matching, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range matching {
		stopped := false
		s.List(func(uri, id string, ud interface{}) bool {
			if !cb(uri, id, ud) {
				stopped = true
				return false
			}
			return true
		}, userData, errCB)
		if stopped {
			return
		}
	}
}

// Open parses uri with any '?'-delimited options stripped to find its
// scheme, passes the full uri (options included) to the scheme's Open
// callback, and attaches the scheme's callback set to the
// resulting Connection, per spec.md §4.1's "Open operation".
func (r *Registry) Open(uri string, errCB ErrCallback) (*Connection, error) {
	if errCB == nil {
		errCB = defaultErrCallback
	}
	base := uri
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		base = uri[:i]
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("device: invalid URI %q: %w", uri, err)
	}

	r.mu.RLock()
	s, ok := r.lookup(u.Scheme)
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("device: unsupported scheme %q", u.Scheme)
	}
	if s.Open == nil {
		return nil, fmt.Errorf("device: scheme %q does not support open", s.Name)
	}

	conn, err := s.Open(uri, errCB)
	if err != nil {
		return nil, err
	}
	conn.scheme = s
	conn.errCB = errCB
	conn.writeBuf = make([]byte, writeBufferCapacity)
	return conn, nil
}

func isWritablePath(path string) bool {
	if path == "" {
		return false
	}
	return true
}
