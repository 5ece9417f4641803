package device

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"ippd/internal/idutil"
)

// snmpScanQuiescence / snmpScanMax mirror the SNMP timing in spec.md §5
// ("SNMP scan: 30s total with 2s idle cutoff").
const (
	snmpScanQuiescence = 2 * time.Second
	snmpScanMax        = 30 * time.Second
)

type snmpDevice struct {
	address string
	sysName string
	id      string
	port    int
}

// snmpScheme implements "snmp://<address>" SNMP-discovered raw-socket
// printers, grounded on the teacher's agent/agent/snmp.go and
// agent/scanner/snmp.go use of github.com/gosnmp/gosnmp.
func snmpScheme() *Scheme {
	return &Scheme{
		Name: "snmp",
		Type: TypeNetwork,
		List: snmpList,
	}
}

func snmpList(cb ListCallback, userData interface{}, errCB ErrCallback) {
	devices, err := scanSNMP()
	if err != nil {
		errCB(fmt.Sprintf("snmp scan failed: %v", err), userData)
		return
	}
	for _, d := range devices {
		uri := fmt.Sprintf("snmp://%s", d.address)
		if !cb(uri, d.id, userData) {
			return
		}
	}
}

// scanSNMP broadcasts a GetRequest for OIDPrinterDeviceType on every local
// interface's broadcast address, then chains sysName/device-id/port
// queries against replying hosts, per spec.md §4.1.
func scanSNMP() ([]snmpDevice, error) {
	broadcasts, err := localBroadcastAddrs()
	if err != nil {
		return nil, err
	}

	found := make(map[string]snmpDevice)
	deadline := time.Now().Add(snmpScanMax)
	lastNew := time.Now()

	for _, bcast := range broadcasts {
		if time.Now().After(deadline) {
			break
		}
		replies := broadcastGet(bcast, idutil.OIDPrinterDeviceType)
		for addr := range replies {
			if _, ok := found[addr]; ok {
				continue
			}
			dev := snmpDevice{address: addr}
			dev.sysName = snmpGetString(addr, idutil.OIDSysName)
			dev.id = snmpGetDeviceID(addr)
			dev.port = snmpGetPort(addr)
			found[addr] = dev
			lastNew = time.Now()
		}
		if time.Since(lastNew) >= snmpScanQuiescence {
			break
		}
	}

	out := make([]snmpDevice, 0, len(found))
	for _, d := range found {
		// Skip ports reserved for LPD (515) and IPP (631) per spec.md §4.1.
		if d.port == 515 || d.port == 631 {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func broadcastGet(bcastAddr, oid string) map[string]struct{} {
	replies := make(map[string]struct{})
	conn := &gosnmp.GoSNMP{
		Target:    bcastAddr,
		Port:      161,
		Community: "public",
		Version:   gosnmp.Version1,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
	if err := conn.Connect(); err != nil {
		return replies
	}
	defer conn.Conn.Close()

	pkt, err := conn.Get([]string{oid})
	if err != nil || pkt == nil {
		return replies
	}
	for _, v := range pkt.Variables {
		if strings.HasPrefix(v.Name, strings.TrimSuffix(oid, ".0")) {
			replies[bcastAddr] = struct{}{}
		}
	}
	return replies
}

func snmpGetString(addr, oid string) string {
	conn := &gosnmp.GoSNMP{Target: addr, Port: 161, Community: "public", Version: gosnmp.Version1, Timeout: 2 * time.Second, Retries: 1}
	if err := conn.Connect(); err != nil {
		return ""
	}
	defer conn.Conn.Close()
	pkt, err := conn.Get([]string{oid})
	if err != nil || pkt == nil || len(pkt.Variables) == 0 {
		return ""
	}
	if b, ok := pkt.Variables[0].Value.([]byte); ok {
		return idutil.DecodeOctetString(b)
	}
	return ""
}

// snmpGetDeviceID tries each vendor OID in turn, per spec.md §4.1's
// "chain GetRequests ... (multiple vendor OIDs: HP, Lexmark, Zebra, PWG,
// Extended Networks)".
func snmpGetDeviceID(addr string) string {
	for _, oid := range idutil.IEEE1284DeviceIDOIDs {
		if s := snmpGetString(addr, oid); s != "" {
			return s
		}
	}
	return ""
}

func snmpGetPort(addr string) int {
	conn := &gosnmp.GoSNMP{Target: addr, Port: 161, Community: "public", Version: gosnmp.Version1, Timeout: 2 * time.Second, Retries: 1}
	if err := conn.Connect(); err != nil {
		return 0
	}
	defer conn.Conn.Close()
	pkt, err := conn.Get([]string{idutil.OIDPortMonitorRawPort})
	if err != nil || pkt == nil || len(pkt.Variables) == 0 {
		return 0
	}
	switch v := pkt.Variables[0].Value.(type) {
	case int:
		return v
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func localBroadcastAddrs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagBroadcast == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			bcast := make(net.IP, len(ipnet.IP.To4()))
			ip := ipnet.IP.To4()
			mask := ipnet.Mask
			for i := range ip {
				bcast[i] = ip[i] | ^mask[i]
			}
			out = append(out, bcast.String())
		}
	}
	return out, nil
}
