package ipp

import "github.com/OpenPrinting/goipp"

// SettableAttr describes one entry of spec.md §4.2's settable-attribute
// table: "(name, value-tag, max-count)".
type SettableAttr struct {
	Name     string
	Tag      goipp.Tag
	MaxCount int
}

// JobSettableAttrs is the whitelist Print-Job/Create-Job/Set-Job-Attributes
// validate job attributes against.
var JobSettableAttrs = []SettableAttr{
	{"job-name", goipp.TagName, 1},
	{"copies", goipp.TagInteger, 1},
	{"job-priority", goipp.TagInteger, 1},
	{"job-hold-until", goipp.TagKeyword, 1},
	{"job-sheets", goipp.TagKeyword, 1},
	{"media", goipp.TagKeyword, 1},
	{"sides", goipp.TagKeyword, 1},
	{"print-quality", goipp.TagEnum, 1},
	{"print-color-mode", goipp.TagKeyword, 1},
	{"orientation-requested", goipp.TagEnum, 1},
	{"document-format", goipp.TagMimeType, 1},
}

// PrinterSettableAttrs is the whitelist Set-Printer-Attributes validates
// against, per spec.md §4.2's "apply a whitelisted settable subset."
var PrinterSettableAttrs = []SettableAttr{
	{"printer-name", goipp.TagName, 1},
	{"printer-location", goipp.TagText, 1},
	{"printer-info", goipp.TagText, 1},
	{"printer-is-accepting-jobs", goipp.TagBoolean, 1},
	{"printer-state", goipp.TagEnum, 1},
}

// SystemSettableAttrs is the whitelist Set-System-Attributes validates
// against.
var SystemSettableAttrs = []SettableAttr{
	{"system-name", goipp.TagName, 1},
	{"system-location", goipp.TagText, 1},
	{"system-default-printer-id", goipp.TagInteger, 1},
}

// ValidateSettable checks attrs against table, returning the names of any
// attribute whose tag or value count doesn't match, per spec.md §4.2:
// "any mismatched attribute is echoed back under the unsupported-attributes
// group ... a request with any unsupported attribute is never partially
// applied."
func ValidateSettable(attrs goipp.Attributes, table []SettableAttr) (unsupported []string) {
	byName := make(map[string]SettableAttr, len(table))
	for _, s := range table {
		byName[s.Name] = s
	}
	for _, a := range attrs {
		spec, ok := byName[a.Name]
		if !ok {
			unsupported = append(unsupported, a.Name)
			continue
		}
		if spec.MaxCount > 0 && len(a.Values) > spec.MaxCount {
			unsupported = append(unsupported, a.Name)
			continue
		}
		for _, v := range a.Values {
			if v.T != spec.Tag {
				unsupported = append(unsupported, a.Name)
				break
			}
		}
	}
	return unsupported
}
