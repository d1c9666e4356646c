package device

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"huepico/protocol"
)

// Param is one named argument of a command or response.
type Param struct {
	Name   string
	Format string
}

// Kind reports how the argument is encoded on the wire.
func (p Param) Kind() ParamKind {
	switch p.Format {
	case "%s", "%.*s", "%*s":
		return KindBytes
	case "%i", "%hi", "%ci":
		return KindInt
	}
	return KindUint
}

type ParamKind int

const (
	KindUint ParamKind = iota
	KindInt
	KindBytes
)

// MessageFormat is a command or response as described by the dictionary.
type MessageFormat struct {
	ID     uint16
	Name   string
	Params []Param
}

// parseSignature splits "set_pixel index=%hu rgb=%u" into a name and params.
func parseSignature(sig string, id int) (*MessageFormat, error) {
	fields := strings.Fields(sig)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty signature for id %d", id)
	}
	if id < 0 || id > 0xFFFF {
		return nil, fmt.Errorf("%s: id %d out of range", fields[0], id)
	}
	m := &MessageFormat{ID: uint16(id), Name: fields[0]}
	for _, f := range fields[1:] {
		name, format, ok := strings.Cut(f, "=")
		if !ok || name == "" || !strings.HasPrefix(format, "%") {
			return nil, fmt.Errorf("%s: malformed parameter %q", m.Name, f)
		}
		m.Params = append(m.Params, Param{Name: name, Format: format})
	}
	return m, nil
}

// Decode reads the message's arguments from data, which must start after the
// message id.
func (m *MessageFormat) Decode(data []byte) ([]any, error) {
	args := make([]any, 0, len(m.Params))
	for _, p := range m.Params {
		var (
			v   any
			err error
		)
		switch p.Kind() {
		case KindBytes:
			v, err = protocol.DecodeVLQBytes(&data)
		case KindInt:
			v, err = protocol.DecodeVLQInt(&data)
		default:
			v, err = protocol.DecodeVLQUint(&data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.Name, p.Name, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// Dictionary is the parsed self-description of the firmware.
type Dictionary struct {
	Version       string
	BuildVersions string
	Config        map[string]string
	Enumerations  map[string]map[string]int

	commands  map[string]*MessageFormat
	responses map[string]*MessageFormat
	byID      map[uint16]*MessageFormat
}

type dictionaryJSON struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// ParseDictionary decodes a dictionary as sent by identify: zlib-wrapped JSON,
// or bare JSON.
func ParseDictionary(data []byte) (*Dictionary, error) {
	raw := data
	if len(data) >= 2 && data[0] == 0x78 {
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("open zlib stream: %w", err)
		}
		defer zr.Close()
		if raw, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("inflate dictionary: %w", err)
		}
	}

	var dj dictionaryJSON
	if err := json.Unmarshal(raw, &dj); err != nil {
		return nil, fmt.Errorf("decode dictionary: %w", err)
	}

	d := &Dictionary{
		Version:       dj.Version,
		BuildVersions: dj.BuildVersions,
		Config:        dj.Config,
		Enumerations:  dj.Enumerations,
		commands:      make(map[string]*MessageFormat, len(dj.Commands)),
		responses:     make(map[string]*MessageFormat, len(dj.Responses)),
		byID:          make(map[uint16]*MessageFormat, len(dj.Commands)+len(dj.Responses)),
	}
	for _, set := range []struct {
		in  map[string]int
		out map[string]*MessageFormat
	}{{dj.Commands, d.commands}, {dj.Responses, d.responses}} {
		for sig, id := range set.in {
			m, err := parseSignature(sig, id)
			if err != nil {
				return nil, err
			}
			if prev, ok := d.byID[m.ID]; ok {
				return nil, fmt.Errorf("id %d used by %s and %s", m.ID, prev.Name, m.Name)
			}
			set.out[m.Name] = m
			d.byID[m.ID] = m
		}
	}
	return d, nil
}

// Command looks up a host-to-device command by name.
func (d *Dictionary) Command(name string) (*MessageFormat, bool) {
	m, ok := d.commands[name]
	return m, ok
}

// Response looks up a device-to-host response by name.
func (d *Dictionary) Response(name string) (*MessageFormat, bool) {
	m, ok := d.responses[name]
	return m, ok
}

// ByID returns the command or response registered under id.
func (d *Dictionary) ByID(id uint16) (*MessageFormat, bool) {
	m, ok := d.byID[id]
	return m, ok
}

// Enum returns the value of label in enumeration name.
func (d *Dictionary) Enum(name, label string) (int, error) {
	values, ok := d.Enumerations[name]
	if !ok {
		return 0, fmt.Errorf("no enumeration %q", name)
	}
	v, ok := values[label]
	if !ok {
		return 0, fmt.Errorf("%s: unknown value %q (have %s)", name, label, strings.Join(sortedLabels(values), ", "))
	}
	return v, nil
}

// EnumLabel is the reverse of Enum. Unknown values print as numbers.
func (d *Dictionary) EnumLabel(name string, v int) string {
	for label, n := range d.Enumerations[name] {
		if n == v {
			return label
		}
	}
	return fmt.Sprint(v)
}

// Commands returns every command sorted by id.
func (d *Dictionary) Commands() []*MessageFormat {
	return sortedByID(d.commands)
}

// Responses returns every response sorted by id.
func (d *Dictionary) Responses() []*MessageFormat {
	return sortedByID(d.responses)
}

func sortedByID(m map[string]*MessageFormat) []*MessageFormat {
	out := make([]*MessageFormat, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedLabels(values map[string]int) []string {
	labels := make([]string, 0, len(values))
	for l := range values {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// String renders the signature the way the firmware registers it.
func (m *MessageFormat) String() string {
	var b strings.Builder
	b.WriteString(m.Name)
	for _, p := range m.Params {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(p.Format)
	}
	return b.String()
}
