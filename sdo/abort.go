package sdo

import (
	"fmt"

	"github.com/zencan-go/zencan/od"
)

// AbortCode is the 32-bit SDO abort code carried in an abort message,
// matching CiA 301 Table 23. Grounded on the teacher's sdo_common.go
// SDOAbortCode taxonomy.
type AbortCode uint32

const (
	AbortNone              AbortCode = 0x00000000
	AbortToggleBit         AbortCode = 0x05030000
	AbortTimeout           AbortCode = 0x05040000
	AbortCommand           AbortCode = 0x05040001
	AbortBlockSize         AbortCode = 0x05040002
	AbortSeqNum            AbortCode = 0x05040003
	AbortCRC               AbortCode = 0x05040004
	AbortOutOfMemory       AbortCode = 0x05040005
	AbortUnsupportedAccess AbortCode = 0x06010000
	AbortWriteOnly         AbortCode = 0x06010001
	AbortReadOnly          AbortCode = 0x06010002
	AbortNotExist          AbortCode = 0x06020000
	AbortNoMap             AbortCode = 0x06040041
	AbortMapLen            AbortCode = 0x06040042
	AbortParamIncompat     AbortCode = 0x06040043
	AbortDeviceIncompat    AbortCode = 0x06040047
	AbortHardware          AbortCode = 0x06060000
	AbortTypeMismatch      AbortCode = 0x06070010
	AbortDataLong          AbortCode = 0x06070012
	AbortDataShort         AbortCode = 0x06070013
	AbortSubUnknown        AbortCode = 0x06090011
	AbortInvalidValue      AbortCode = 0x06090030
	AbortValueHigh         AbortCode = 0x06090031
	AbortValueLow          AbortCode = 0x06090032
	AbortMaxLessMin        AbortCode = 0x06090036
	AbortNoResource        AbortCode = 0x060A0023
	AbortGeneral           AbortCode = 0x08000000
)

var abortText = map[AbortCode]string{
	AbortNone:              "no abort",
	AbortToggleBit:         "toggle bit not alternated",
	AbortTimeout:           "SDO protocol timed out",
	AbortCommand:           "command specifier not valid or unknown",
	AbortBlockSize:         "invalid block size in block mode",
	AbortSeqNum:            "invalid sequence number in block mode",
	AbortCRC:               "CRC error (block mode only)",
	AbortOutOfMemory:       "out of memory",
	AbortUnsupportedAccess: "unsupported access to an object",
	AbortWriteOnly:         "attempt to read a write only object",
	AbortReadOnly:          "attempt to write a read only object",
	AbortNotExist:          "object does not exist in the object dictionary",
	AbortNoMap:             "object cannot be mapped to the PDO",
	AbortMapLen:            "number and length of mapped objects exceeds PDO length",
	AbortParamIncompat:     "general parameter incompatibility",
	AbortDeviceIncompat:    "general internal incompatibility in device",
	AbortHardware:          "access failed due to hardware error",
	AbortTypeMismatch:      "data type does not match, length does not match",
	AbortDataLong:          "data type does not match, length too high",
	AbortDataShort:         "data type does not match, length too short",
	AbortSubUnknown:        "sub index does not exist",
	AbortInvalidValue:      "invalid value for parameter",
	AbortValueHigh:         "value range of parameter written too high",
	AbortValueLow:          "value range of parameter written too low",
	AbortMaxLessMin:        "maximum value is less than minimum value",
	AbortNoResource:        "resource not available",
	AbortGeneral:           "general error",
}

func (a AbortCode) Error() string {
	if s, ok := abortText[a]; ok {
		return s
	}
	return fmt.Sprintf("unknown abort code %#08x", uint32(a))
}

// FromODR maps an object dictionary access result onto its wire abort code,
// matching the teacher's ODR.GetSDOAbordCode.
func FromODR(e od.ODR) AbortCode {
	switch e {
	case od.ErrOK, od.ErrPartial:
		return AbortNone
	case od.ErrOutOfMem:
		return AbortOutOfMemory
	case od.ErrUnsuppAccess:
		return AbortUnsupportedAccess
	case od.ErrWriteOnly:
		return AbortWriteOnly
	case od.ErrReadOnly:
		return AbortReadOnly
	case od.ErrIdxNotExist:
		return AbortNotExist
	case od.ErrNoMap:
		return AbortNoMap
	case od.ErrMapLen:
		return AbortMapLen
	case od.ErrParIncompat:
		return AbortParamIncompat
	case od.ErrDevIncompat:
		return AbortDeviceIncompat
	case od.ErrHardware:
		return AbortHardware
	case od.ErrTypeMismatch:
		return AbortTypeMismatch
	case od.ErrDataLong:
		return AbortDataLong
	case od.ErrDataShort:
		return AbortDataShort
	case od.ErrSubNotExist:
		return AbortSubUnknown
	case od.ErrInvalidValue:
		return AbortInvalidValue
	case od.ErrValueHigh:
		return AbortValueHigh
	case od.ErrValueLow:
		return AbortValueLow
	case od.ErrMaxLessMin:
		return AbortMaxLessMin
	case od.ErrNoResource:
		return AbortNoResource
	default:
		return AbortGeneral
	}
}
