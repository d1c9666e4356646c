package core

import (
	"bytes"
	"sort"
	"sync"

	"huepico/protocol"
	"huepico/tinycompress"
)

// Dictionary is the self-description the host downloads with identify:
// a zlib-wrapped JSON object listing commands, responses, constants and
// enumerations.
type Dictionary struct {
	mu            sync.RWMutex
	reg           *CommandRegistry
	constants     map[string]string
	enumerations  map[string][]string
	version       string
	buildVersions string
	cached        []byte
}

var globalDictionary = NewDictionary(globalRegistry)

func NewDictionary(reg *CommandRegistry) *Dictionary {
	return &Dictionary{
		reg:           reg,
		constants:     make(map[string]string),
		enumerations:  make(map[string][]string),
		version:       protocol.Version,
		buildVersions: "tinygo",
	}
}

func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}

// RegisterConstant adds a constant to the global dictionary.
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds a value list to the global dictionary. Entry i
// maps to i; empty entries are skipped.
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	d.constants[name] = valueToString(value)
	d.cached = nil
	d.mu.Unlock()
}

func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	d.enumerations[name] = append([]string(nil), values...)
	d.cached = nil
	d.mu.Unlock()
}

func (d *Dictionary) SetBuildVersions(v string) {
	d.mu.Lock()
	d.buildVersions = v
	d.cached = nil
	d.mu.Unlock()
}

// Build renders and compresses the dictionary. Call it once every command
// is registered; commands registered later are not seen until the next Build.
func (d *Dictionary) Build() {
	entries := d.reg.Entries()

	d.mu.Lock()
	defer d.mu.Unlock()

	raw := d.renderLocked(entries)
	var buf bytes.Buffer
	w := tinycompress.NewWriter(&buf)
	w.Grow(len(raw))
	if _, err := w.Write(raw); err != nil {
		DebugPrintln("[dict] compress failed: " + err.Error())
		d.cached = raw
		return
	}
	if err := w.Close(); err != nil {
		DebugPrintln("[dict] compress failed: " + err.Error())
		d.cached = raw
		return
	}
	d.cached = buf.Bytes()
	DebugPrintln("[dict] " + itoa(len(raw)) + " bytes, " + itoa(len(d.cached)) + " on the wire")
}

// Data returns the compressed dictionary, building it if needed.
func (d *Dictionary) Data() []byte {
	d.mu.RLock()
	data := d.cached
	d.mu.RUnlock()
	if data == nil {
		d.Build()
		d.mu.RLock()
		data = d.cached
		d.mu.RUnlock()
	}
	return data
}

// JSON returns the uncompressed dictionary.
func (d *Dictionary) JSON() []byte {
	entries := d.reg.Entries()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.renderLocked(entries)
}

// GetChunk returns a copy of up to count bytes starting at offset. Past the
// end it returns an empty slice, which tells the host the transfer is done.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Data()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))
	return append([]byte(nil), data[offset:end]...)
}

func (d *Dictionary) renderLocked(entries []*Command) []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":`...)
	out = appendQuoted(out, d.version)
	out = append(out, `,"build_versions":`...)
	out = appendQuoted(out, d.buildVersions)

	out = append(out, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendQuoted(out, name)
		out = append(out, ':')
		out = appendQuoted(out, d.constants[name])
	}

	out = append(out, `},"commands":{`...)
	out = appendCommands(out, entries, true)
	out = append(out, `},"responses":{`...)
	out = appendCommands(out, entries, false)
	out = append(out, '}')

	if len(d.enumerations) > 0 {
		out = append(out, `,"enumerations":{`...)
		for i, name := range sortedKeys(d.enumerations) {
			if i > 0 {
				out = append(out, ',')
			}
			out = appendQuoted(out, name)
			out = append(out, ":{"...)
			first := true
			for v, label := range d.enumerations[name] {
				if label == "" {
					continue
				}
				if !first {
					out = append(out, ',')
				}
				first = false
				out = appendQuoted(out, label)
				out = append(out, ':')
				out = append(out, itoa(v)...)
			}
			out = append(out, '}')
		}
		out = append(out, '}')
	}
	return append(out, '}')
}

func appendCommands(out []byte, entries []*Command, handlers bool) []byte {
	first := true
	for _, c := range entries {
		if (c.Handler != nil) != handlers {
			continue
		}
		if !first {
			out = append(out, ',')
		}
		first = false
		out = appendQuoted(out, c.Signature())
		out = append(out, ':')
		out = append(out, utoa(uint32(c.ID))...)
	}
	return out
}

func appendQuoted(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			out = append(out, '\\', c)
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, c)
		}
	}
	return append(out, '"')
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
