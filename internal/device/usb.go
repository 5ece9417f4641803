package device

import (
	"fmt"
	"strings"

	"github.com/google/gousb"
)

// Printer class/subclass/protocol constants per the USB Printer Class spec,
// referenced in spec.md §4.1.
const (
	usbClassPrinter    = 7
	usbSubclassPrinter = 1
	usbProtocolUnidir  = 1
	usbProtocolBidir   = 2

	usbGetDeviceIDRequest = 0
	usbGetPortStatus      = 1
)

// blacklistedVendors skips device IDs that are never printers (spec.md
// §4.1: "skip blacklisted vendors (e.g. Apple)").
var blacklistedVendors = map[gousb.ID]bool{
	0x05ac: true, // Apple
}

type usbDeviceState struct {
	dev      *gousb.Device
	intf     *gousb.Interface
	inEP     *gousb.InEndpoint
	outEP    *gousb.OutEndpoint
	deviceID string
}

func usbScheme() *Scheme {
	return &Scheme{
		Name: "usb",
		Type: TypeLocal,
		List: usbList,
		Open: usbOpen,
		Close: func(c *Connection) error {
			st, _ := c.Data().(*usbDeviceState)
			if st == nil {
				return nil
			}
			if st.intf != nil {
				st.intf.Close()
			}
			return st.dev.Close()
		},
		Read: func(c *Connection, buf []byte) (int, error) {
			st := c.Data().(*usbDeviceState)
			return st.inEP.Read(buf)
		},
		Write: func(c *Connection, buf []byte) (int, error) {
			st := c.Data().(*usbDeviceState)
			return st.outEP.Write(buf)
		},
		Status: func(c *Connection) (Status, error) {
			st := c.Data().(*usbDeviceState)
			return usbPortStatus(st.dev)
		},
		ID: func(c *Connection) (string, error) {
			st := c.Data().(*usbDeviceState)
			return st.deviceID, nil
		},
	}
}

// usbCandidate is a printer-class alt setting chosen by usbBestAltSetting.
type usbCandidate struct {
	cfgNum, ifNum, altNum, protocol int
	outEP                           int
}

// usbBestAltSetting implements spec.md §4.1's alt-setting selection:
// "require printer class (7), subclass 1, protocol 1 or 2; choose the
// setting with the highest protocol and at least one bulk-OUT endpoint."
func usbBestAltSetting(desc *gousb.DeviceDesc) (usbCandidate, bool) {
	var best usbCandidate
	found := false
	for cfgNum, cfg := range desc.Configs {
		for ifNum, intf := range cfg.Interfaces {
			for _, alt := range intf.AltSettings {
				if alt.Class != gousb.ClassPrinter || alt.SubClass != usbSubclassPrinter {
					continue
				}
				if alt.Protocol != usbProtocolUnidir && alt.Protocol != usbProtocolBidir {
					continue
				}
				outEP := -1
				for addr, ep := range alt.Endpoints {
					if ep.Direction == gousb.EndpointDirectionOut && ep.TransferType == gousb.TransferTypeBulk {
						outEP = int(addr)
						break
					}
				}
				if outEP < 0 {
					continue
				}
				if !found || int(alt.Protocol) > best.protocol {
					best = usbCandidate{
						cfgNum:   cfgNum,
						ifNum:    ifNum,
						altNum:   alt.Alternate,
						protocol: int(alt.Protocol),
						outEP:    outEP,
					}
					found = true
				}
			}
		}
	}
	return best, found
}

func usbList(cb ListCallback, userData interface{}, errCB ErrCallback) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if len(desc.Configs) == 0 || desc.Vendor == 0 || desc.Product == 0 {
			return false
		}
		if blacklistedVendors[desc.Vendor] {
			return false
		}
		_, ok := usbBestAltSetting(desc)
		return ok
	})
	if err != nil {
		errCB(fmt.Sprintf("usb enumerate failed: %v", err), userData)
		return
	}
	defer func() {
		for _, d := range devs {
			d.Close()
		}
	}()

	for _, dev := range devs {
		cand, ok := usbBestAltSetting(dev.Desc)
		if !ok {
			continue
		}
		id, err := usbReadDeviceID(dev, cand)
		if err != nil {
			continue
		}
		make_, model, serial := parseIEEE1284DeviceID(id)
		if serial == "" {
			if sn, err := dev.SerialNumber(); err == nil {
				serial = sn
			}
		}
		uri := fmt.Sprintf("usb://%s/%s", make_, model)
		if serial != "" {
			uri += "?serial=" + serial
		}
		if !cb(uri, id, userData) {
			return
		}
	}
}

func usbOpen(uri string, errCB ErrCallback) (*Connection, error) {
	make_, model, serial, err := parseUsbURI(uri)
	if err != nil {
		return nil, err
	}

	ctx := gousb.NewContext()
	var target *gousb.Device
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		_, ok := usbBestAltSetting(desc)
		return ok
	})
	if err != nil {
		ctx.Close()
		return nil, err
	}

	for _, dev := range devs {
		cand, ok := usbBestAltSetting(dev.Desc)
		if !ok {
			dev.Close()
			continue
		}
		id, err := usbReadDeviceID(dev, cand)
		if err != nil {
			dev.Close()
			continue
		}
		m, mo, sn := parseIEEE1284DeviceID(id)
		if sn == "" {
			if s, err := dev.SerialNumber(); err == nil {
				sn = s
			}
		}
		if strings.EqualFold(m, make_) && strings.EqualFold(mo, model) && (serial == "" || serial == sn) && target == nil {
			target = dev
			continue
		}
		dev.Close()
	}
	if target == nil {
		ctx.Close()
		return nil, fmt.Errorf("device/usb: no matching device for %s", uri)
	}

	cand, _ := usbBestAltSetting(target.Desc)
	cfg, err := target.Config(cand.cfgNum)
	if err != nil {
		target.Close()
		ctx.Close()
		return nil, fmt.Errorf("device/usb: set config: %w", err)
	}
	intf, err := cfg.Interface(cand.ifNum, cand.altNum)
	if err != nil {
		target.Close()
		ctx.Close()
		return nil, fmt.Errorf("device/usb: claim interface: %w", err)
	}
	outEP, err := intf.OutEndpoint(cand.outEP)
	if err != nil {
		intf.Close()
		target.Close()
		ctx.Close()
		return nil, fmt.Errorf("device/usb: out endpoint: %w", err)
	}
	var inEP *gousb.InEndpoint
	for addr, ep := range intf.Setting.Endpoints {
		if ep.Direction == gousb.EndpointDirectionIn && ep.TransferType == gousb.TransferTypeBulk {
			if e, err := intf.InEndpoint(int(addr)); err == nil {
				inEP = e
			}
			break
		}
	}

	id, _ := usbReadDeviceID(target, cand)
	st := &usbDeviceState{dev: target, intf: intf, inEP: inEP, outEP: outEP, deviceID: id}

	conn := &Connection{}
	conn.SetData(st)
	conn.SetFD(st)
	return conn, nil
}

// usbReadDeviceID issues the IEEE-1284 GET_DEVICE_ID class request
// (spec.md §4.1): the first two bytes are a big-endian length; if
// implausible, try little-endian and strip those two bytes either way.
func usbReadDeviceID(dev *gousb.Device, cand usbCandidate) (string, error) {
	buf := make([]byte, 1024)
	n, err := dev.Control(
		0xA1, // bmRequestType: IN, class, interface
		usbGetDeviceIDRequest,
		uint16(cand.protocol-1)<<8,
		uint16(cand.ifNum),
		buf,
	)
	if err != nil || n < 2 {
		return "", fmt.Errorf("device/usb: GET_DEVICE_ID failed: %v", err)
	}

	beLen := int(buf[0])<<8 | int(buf[1])
	payload := buf[2:n]
	if beLen > 2 && beLen <= n {
		return string(payload[:beLen-2]), nil
	}
	leLen := int(buf[1])<<8 | int(buf[0])
	if leLen > 2 && leLen <= n {
		return string(payload[:leLen-2]), nil
	}
	return string(payload), nil
}

// parseIEEE1284DeviceID parses the semicolon-delimited KEY:VALUE; pairs of
// spec.md §6, recognizing MANUFACTURER/MFG, MODEL/MDL, SERIALNUMBER/SERN/SN.
func parseIEEE1284DeviceID(id string) (make_, model, serial string) {
	for _, field := range strings.Split(id, ";") {
		kv := strings.SplitN(field, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(kv[0]))
		val := strings.TrimSpace(kv[1])
		switch key {
		case "MANUFACTURER", "MFG":
			make_ = val
		case "MODEL", "MDL":
			model = val
		case "SERIALNUMBER", "SERN", "SN":
			serial = val
		}
	}
	return
}

func parseUsbURI(uri string) (make_, model, serial string, err error) {
	rest := strings.TrimPrefix(uri, "usb://")
	base := rest
	query := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		base = rest[:i]
		query = rest[i+1:]
	}
	parts := strings.SplitN(base, "/", 2)
	if len(parts) != 2 {
		return "", "", "", fmt.Errorf("device/usb: malformed URI %q", uri)
	}
	make_, model = parts[0], parts[1]
	if strings.HasPrefix(query, "serial=") {
		serial = strings.TrimPrefix(query, "serial=")
	}
	return make_, model, serial, nil
}

// usbPortStatus issues USB class request 1 (GET_PORT_STATUS), interpreted
// per Centronics bits, per spec.md §4.1.
func usbPortStatus(dev *gousb.Device) (Status, error) {
	buf := make([]byte, 1)
	_, err := dev.Control(0xA1, usbGetPortStatus, 0, 0, buf)
	if err != nil {
		return Status{}, err
	}
	b := buf[0]
	return Status{
		Offline:    b&0x08 == 0, // select bit low == offline/other
		PaperEmpty: b&0x20 != 0,
		CoverOpen:  b&0x10 == 0,
	}, nil
}

// IEEE1284DeviceIDString formats the parsed fields back into the canonical
// semicolon-delimited form, for drivers that want to re-derive it.
func IEEE1284DeviceIDString(make_, model, serial, cmdSet string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MFG:%s;MDL:%s;", make_, model)
	if cmdSet != "" {
		fmt.Fprintf(&b, "CMD:%s;", cmdSet)
	}
	if serial != "" {
		fmt.Fprintf(&b, "SN:%s;", serial)
	}
	return b.String()
}
