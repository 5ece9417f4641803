package idutil

// OIDs used by the SNMP discovery and status-polling paths of
// internal/device. Centralized here the way the teacher's
// common/snmp/oids package centralizes the agent's own OID constants, so
// callers don't scatter raw dotted strings through device/snmp.go.
const (
	// OIDSysDescr / OIDSysName / OIDSysObjectID: SNMPv2-MIB::system group.
	OIDSysDescr    = "1.3.6.1.2.1.1.1.0"
	OIDSysName     = "1.3.6.1.2.1.1.5.0"
	OIDSysObjectID = "1.3.6.1.2.1.1.2.0"

	// OIDPrinterDeviceType is the Printer-MIB hrDeviceType value identifying
	// printers (hrDeviceType.1 == printer(5)); spec.md §4.1 SNMP discovery
	// matches replies whose OID prefix equals this value.
	OIDPrinterDeviceType = "1.3.6.1.2.1.25.3.1.5"

	// OIDPortMonitorRawPort is the PWG Port Monitor MIB raw TCP socket port
	// number for the printer's data channel.
	OIDPortMonitorRawPort = "1.3.6.1.4.1.2699.1.2.1.3.1.1.9.1"
)

// IEEE1284DeviceIDOIDs lists the vendor OIDs spec.md §4.1 names for
// retrieving a device's IEEE-1284 id string over SNMP: HP, Lexmark, Zebra,
// PWG, and Extended Networks, tried in this order.
var IEEE1284DeviceIDOIDs = []string{
	"1.3.6.1.4.1.11.2.3.9.1.1.7.0",   // HP hpicdPrinterGenericDeviceID
	"1.3.6.1.4.1.641.2.1.2.1.2.1",    // Lexmark device id
	"1.3.6.1.4.1.10642.1.1.2.0",      // Zebra device id
	"1.3.6.1.2.1.43.5.1.1.16.1",      // PWG prtGeneral device id fallback
	"1.3.6.1.4.1.2699.1.2.1.2.1.3",   // PWG Port Monitor MIB device id
	"1.3.6.1.4.1.26696.2.16.1.1.1.3", // Extended Networks device id
}
