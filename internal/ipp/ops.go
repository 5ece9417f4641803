package ipp

import "github.com/OpenPrinting/goipp"

// Custom operation codes for multi-printer management, per spec.md §6:
// "custom operation codes for multi-printer management occupy codes
// 0x402b-0x402d (find-devices, find-drivers, create-printers)."
const (
	OpFindDevices    goipp.Op = 0x402b
	OpFindDrivers    goipp.Op = 0x402c
	OpCreatePrinters goipp.Op = 0x402d
)

// Vendor attribute name prefixes, per spec.md §6.
const (
	VendorPrefixPWG   = "smi2699-"
	VendorPrefixVendor = "smi55357-"
)
