package device

import "testing"

func TestNewRegistrySeedsBuiltinSchemes(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"file", "socket", "usb", "dnssd", "snmp"} {
		if _, ok := r.lookup(name); !ok {
			t.Errorf("expected built-in scheme %q to be registered", name)
		}
	}
}

func TestRegistryAddRemoveScheme(t *testing.T) {
	r := NewRegistry()
	r.AddScheme(&Scheme{Name: "custom", Type: TypeNetwork})
	if !r.IsSupported("custom://host/path") {
		t.Fatal("expected custom scheme to be supported")
	}
	r.RemoveScheme("custom")
	if r.IsSupported("custom://host/path") {
		t.Fatal("expected custom scheme to be removed")
	}
}

func TestRegistryRemoveTypes(t *testing.T) {
	r := NewRegistry()
	r.RemoveTypes(TypeNetwork)
	if _, ok := r.lookup("dnssd"); ok {
		t.Fatal("expected network schemes to be removed")
	}
	if _, ok := r.lookup("file"); !ok {
		t.Fatal("expected local schemes to survive removing network types")
	}
}

func TestRegistryIsSupportedFileRequiresPath(t *testing.T) {
	r := NewRegistry()
	if r.IsSupported("file://") {
		t.Fatal("expected file scheme with empty path to be unsupported")
	}
	if !r.IsSupported("file:///tmp/out.prn") {
		t.Fatal("expected file scheme with a path to be supported")
	}
}

func TestRegistryOpenUnsupportedScheme(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Open("nope://host", nil); err == nil {
		t.Fatal("expected an error opening an unregistered scheme")
	}
}

func TestRegistryOpenStripsQueryOptions(t *testing.T) {
	r := NewRegistry()
	var gotURI string
	r.AddScheme(&Scheme{
		Name: "probe",
		Type: TypeNetwork,
		Open: func(uri string, errCB ErrCallback) (*Connection, error) {
			gotURI = uri
			return &Connection{}, nil
		},
	})
	if _, err := r.Open("probe://host/path?timeout=5", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotURI != "probe://host/path?timeout=5" {
		t.Errorf("scheme.Open should receive the original uri, got %q", gotURI)
	}
}

func TestConnectionWriteBuffersAndFlushes(t *testing.T) {
	var written []byte
	s := &Scheme{
		Name: "mem",
		Write: func(c *Connection, buf []byte) (int, error) {
			written = append(written, buf...)
			return len(buf), nil
		},
	}
	c := &Connection{scheme: s, writeBuf: make([]byte, writeBufferCapacity)}

	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(written) != 0 {
		t.Fatal("expected bytes to stay buffered until flush")
	}
	if err := c.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(written) != "hello" {
		t.Errorf("got %q, want %q", written, "hello")
	}
	m := c.Metrics()
	if m.WriteBytes != 5 || m.WriteRequests != 1 {
		t.Errorf("unexpected metrics: %+v", m)
	}
}

func TestConnectionWriteOverflowTriggersFlush(t *testing.T) {
	var writes [][]byte
	s := &Scheme{
		Name: "mem",
		Write: func(c *Connection, buf []byte) (int, error) {
			cp := append([]byte(nil), buf...)
			writes = append(writes, cp)
			return len(buf), nil
		},
	}
	c := &Connection{scheme: s, writeBuf: make([]byte, writeBufferCapacity)}

	big := make([]byte, writeBufferCapacity+10)
	if _, err := c.Write(big); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writes) != 1 {
		t.Fatalf("expected the oversized chunk to bypass the buffer in one write, got %d writes", len(writes))
	}
}

func TestConnectionReadFlushesPendingWrites(t *testing.T) {
	var flushedBeforeRead bool
	s := &Scheme{
		Name: "mem",
		Write: func(c *Connection, buf []byte) (int, error) {
			flushedBeforeRead = true
			return len(buf), nil
		},
		Read: func(c *Connection, buf []byte) (int, error) {
			if !flushedBeforeRead {
				t.Error("expected write buffer to be flushed before read")
			}
			return copy(buf, "ok"), nil
		},
	}
	c := &Connection{scheme: s, writeBuf: make([]byte, writeBufferCapacity)}
	if _, err := c.Write([]byte("pending")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := make([]byte, 8)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(buf[:n]) != "ok" {
		t.Errorf("got %q, want %q", buf[:n], "ok")
	}
}

func TestConnectionStatusWithoutCallback(t *testing.T) {
	c := &Connection{scheme: &Scheme{Name: "mem"}}
	st, err := c.Status()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != (Status{}) {
		t.Errorf("expected zero-value status, got %+v", st)
	}
}
