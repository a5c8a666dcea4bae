// Package descriptor builds a static od.Table from an EDS-style device
// description file, the way the teacher's od_parser.go builds a dynamic
// ObjectDictionary from the same file format — here the output is a sorted,
// binary-searchable Table instead of a map, matching spec.md's static object
// dictionary requirement.
package descriptor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"github.com/zencan-go/zencan/od"
)

const (
	objVar    = 7
	objDomain = 2
	objArray  = 8
	objRecord = 9
)

var (
	indexPattern    = regexp.MustCompile(`^[0-9A-Fa-f]{4}$`)
	subIndexPattern = regexp.MustCompile(`^([0-9A-Fa-f]{4})[sS]ub([0-9A-Fa-f]+)$`)
)

// LoadFile parses path as an EDS-style device description and returns a
// Table, substituting $NODEID in numeric fields with nodeID the way the
// teacher's NewVariableFromSection does for default values and COB-IDs.
func LoadFile(path string, nodeID uint8) (*od.Table, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %w", err)
	}
	return build(f, nodeID)
}

// LoadBytes parses raw EDS-style content.
func LoadBytes(data []byte, nodeID uint8) (*od.Table, error) {
	f, err := ini.Load(data)
	if err != nil {
		return nil, fmt.Errorf("descriptor: %w", err)
	}
	return build(f, nodeID)
}

type pendingArray struct {
	index    uint16
	name     string
	elemType od.DataType
	attr     od.Attribute
	elemSize int
	n        int
}

func build(f *ini.File, nodeID uint8) (*od.Table, error) {
	var objects []*od.Object
	pendingArrays := map[uint16]*pendingArray{}
	pendingRecords := map[uint16]*od.Object{}

	for _, section := range f.Sections() {
		name := section.Name()

		switch {
		case indexPattern.MatchString(name):
			idx, err := strconv.ParseUint(name, 16, 16)
			if err != nil {
				return nil, err
			}
			index := uint16(idx)
			paramName := section.Key("ParameterName").String()
			objType, err := section.Key("ObjectType").Uint()
			if err != nil {
				objType = objVar
			}

			switch objType {
			case objVar, objDomain:
				sub, err := buildSub(section, nodeID)
				if err != nil {
					return nil, err
				}
				objects = append(objects, od.NewVariableObject(index, paramName, sub))
			case objArray:
				subNumber, _ := section.Key("SubNumber").Int()
				dt, attr, size := typeFromSection(section)
				pendingArrays[index] = &pendingArray{index: index, name: paramName, elemType: dt, attr: attr, elemSize: size, n: subNumber - 1}
			case objRecord:
				pendingRecords[index] = od.NewRecordObject(index, paramName, nil)
			default:
				return nil, fmt.Errorf("descriptor: unsupported ObjectType %d at %s", objType, name)
			}
			log.Debugf("[OD] parsed index %s (%q)", name, paramName)

		case subIndexPattern.MatchString(name):
			m := subIndexPattern.FindStringSubmatch(name)
			idx, err := strconv.ParseUint(m[1], 16, 16)
			if err != nil {
				return nil, err
			}
			index := uint16(idx)
			subIdx, err := strconv.ParseUint(m[2], 16, 8)
			if err != nil {
				return nil, err
			}

			sub, err := buildSub(section, nodeID)
			if err != nil {
				return nil, err
			}
			if rec, ok := pendingRecords[index]; ok {
				rec.Subs = append(rec.Subs, sub)
				_ = subIdx
			}
		}
	}

	for index, pa := range pendingArrays {
		objects = append(objects, od.NewArrayObject(index, pa.name, pa.elemType, pa.attr, pa.elemSize, pa.n))
	}
	for _, rec := range pendingRecords {
		objects = append(objects, rec)
	}

	return od.NewTable(objects), nil
}

func typeFromSection(section *ini.Section) (od.DataType, od.Attribute, int) {
	dtRaw, _ := section.Key("DataType").Uint()
	dt := mapDataType(uint8(dtRaw))
	attr := accessAttribute(section.Key("AccessType").String())
	size := od.DataLength(dt)
	if size == 0 {
		size = 8
		if s, err := section.Key("DataLength").Int(); err == nil && s > 0 {
			size = s
		}
	}
	return dt, attr, size
}

func buildSub(section *ini.Section, nodeID uint8) (*od.SubObject, error) {
	name := section.Key("ParameterName").String()
	dt, attr, size := typeFromSection(section)
	defaultValue := section.Key("DefaultValue").String()
	defaultValue = strings.ReplaceAll(defaultValue, "$NODEID", strconv.Itoa(int(nodeID)))

	var raw []byte
	if defaultValue != "" {
		switch dt {
		case od.VisibleString, od.OctetString, od.UnicodeString, od.Domain:
			raw = []byte(defaultValue)
			if len(raw) > size {
				size = len(raw)
			}
		default:
			v, err := strconv.ParseUint(strings.TrimPrefix(defaultValue, "0x"), autoBase(defaultValue), 64)
			if err != nil {
				return nil, fmt.Errorf("descriptor: bad default %q for %s: %w", defaultValue, name, err)
			}
			raw = od.EncodeUint(dt, v)
			size = len(raw)
		}
	}

	return od.NewSubObject(name, dt, attr, size, raw), nil
}

func autoBase(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}

func mapDataType(raw uint8) od.DataType {
	switch raw {
	case 0x01:
		return od.Boolean
	case 0x02:
		return od.Int8
	case 0x03:
		return od.Int16
	case 0x04:
		return od.Int32
	case 0x05:
		return od.UInt8
	case 0x06:
		return od.UInt16
	case 0x07:
		return od.UInt32
	case 0x08:
		return od.Real32
	case 0x09:
		return od.VisibleString
	case 0x0A:
		return od.OctetString
	case 0x0B:
		return od.UnicodeString
	case 0x0F:
		return od.Domain
	case 0x11:
		return od.Real64
	case 0x15:
		return od.Int64
	case 0x1B:
		return od.UInt64
	default:
		return od.UInt32
	}
}

func accessAttribute(accessType string) od.Attribute {
	switch strings.ToLower(strings.TrimSpace(accessType)) {
	case "ro", "const":
		return od.AttrSDOR
	case "wo":
		return od.AttrSDOW
	default:
		return od.AttrSDORW
	}
}
