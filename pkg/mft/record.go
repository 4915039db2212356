package mft

import (
	"encoding/binary"
	"unicode/utf16"
)

// USN reason flags for the change kinds the watcher cares about.
// Metadata-only reasons are deliberately excluded from the watcher's mask:
// they don't change what a name search finds.
const (
	// ReasonFileCreate indicates that a file or directory was created.
	ReasonFileCreate = 0x00000100
	// ReasonFileDelete indicates that a file or directory was deleted.
	ReasonFileDelete = 0x00000200
	// ReasonRenameOldName carries the old name of a rename.
	ReasonRenameOldName = 0x00001000
	// ReasonRenameNewName carries the new name of a rename.
	ReasonRenameNewName = 0x00002000
)

// fileAttributeDirectory is the FILE_ATTRIBUTE_DIRECTORY attribute bit.
const fileAttributeDirectory = 0x00000010

// usnRecordV2HeaderSize is the fixed portion of a version 2 USN record,
// before the file name.
const usnRecordV2HeaderSize = 60

// Record is a parsed version 2 USN record.
type Record struct {
	// FRN is the record's File Reference Number.
	FRN uint64
	// ParentFRN is the parent directory's File Reference Number.
	ParentFRN uint64
	// USN is the record's journal position.
	USN int64
	// Timestamp is the record's time in Unix seconds.
	Timestamp int64
	// Reason is the reason flag set.
	Reason uint32
	// Attributes is the file attribute set.
	Attributes uint32
	// Name is the record's file name.
	Name string
}

// IsDirectory indicates whether or not the record describes a directory.
func (r *Record) IsDirectory() bool {
	return r.Attributes&fileAttributeDirectory != 0
}

// filetimeToUnix converts a Windows FILETIME (100-nanosecond intervals since
// 1601) to Unix seconds.
func filetimeToUnix(filetime int64) int64 {
	const epochDelta = 116444736000000000
	if filetime < epochDelta {
		return 0
	}
	return (filetime - epochDelta) / 10000000
}

// parseRecord parses a single version 2 USN record from the front of a
// buffer, returning the record (nil for malformed or non-v2 records) and the
// total record length to advance by (zero if the buffer is exhausted).
// Malformed records are skipped silently; they're never fatal.
func parseRecord(buffer []byte) (*Record, int) {
	if len(buffer) < 4 {
		return nil, 0
	}
	recordLength := int(binary.LittleEndian.Uint32(buffer[0:4]))
	if recordLength < usnRecordV2HeaderSize || recordLength > len(buffer) {
		return nil, 0
	}

	// Only version 2 records are understood; others advance without a
	// parsed record.
	majorVersion := binary.LittleEndian.Uint16(buffer[4:6])
	if majorVersion != 2 {
		return nil, recordLength
	}

	// Decode the fixed header.
	record := &Record{
		FRN:        binary.LittleEndian.Uint64(buffer[8:16]),
		ParentFRN:  binary.LittleEndian.Uint64(buffer[16:24]),
		USN:        int64(binary.LittleEndian.Uint64(buffer[24:32])),
		Timestamp:  filetimeToUnix(int64(binary.LittleEndian.Uint64(buffer[32:40]))),
		Reason:     binary.LittleEndian.Uint32(buffer[40:44]),
		Attributes: binary.LittleEndian.Uint32(buffer[52:56]),
	}

	// Decode the name.
	nameLength := int(binary.LittleEndian.Uint16(buffer[56:58]))
	nameOffset := int(binary.LittleEndian.Uint16(buffer[58:60]))
	if nameOffset+nameLength > recordLength || nameLength%2 != 0 {
		return nil, recordLength
	}
	nameUTF16 := make([]uint16, nameLength/2)
	for i := range nameUTF16 {
		nameUTF16[i] = binary.LittleEndian.Uint16(buffer[nameOffset+2*i : nameOffset+2*i+2])
	}
	record.Name = string(utf16.Decode(nameUTF16))

	// Done.
	return record, recordLength
}

// ParseRecords parses every well-formed version 2 record in a
// FSCTL-returned buffer (after its leading next-USN field has been
// stripped).
func ParseRecords(buffer []byte) []Record {
	var records []Record
	for len(buffer) > 0 {
		record, advance := parseRecord(buffer)
		if advance == 0 {
			break
		}
		if record != nil {
			records = append(records, *record)
		}
		buffer = buffer[advance:]
	}
	return records
}
