package mft

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

// encodeRecord builds a synthetic version 2 USN record buffer.
func encodeRecord(frn, parentFRN uint64, usn int64, reason, attributes uint32, name string) []byte {
	encoded := utf16.Encode([]rune(name))
	nameBytes := len(encoded) * 2
	recordLength := usnRecordV2HeaderSize + nameBytes
	// Records are 8-byte aligned on the wire.
	if padding := recordLength % 8; padding != 0 {
		recordLength += 8 - padding
	}

	buffer := make([]byte, recordLength)
	binary.LittleEndian.PutUint32(buffer[0:4], uint32(recordLength))
	binary.LittleEndian.PutUint16(buffer[4:6], 2)
	binary.LittleEndian.PutUint64(buffer[8:16], frn)
	binary.LittleEndian.PutUint64(buffer[16:24], parentFRN)
	binary.LittleEndian.PutUint64(buffer[24:32], uint64(usn))
	// Timestamp: 2001-09-09T01:46:40Z in FILETIME form.
	binary.LittleEndian.PutUint64(buffer[32:40], uint64(116444736000000000+1000000000*10000000))
	binary.LittleEndian.PutUint32(buffer[40:44], reason)
	binary.LittleEndian.PutUint32(buffer[52:56], attributes)
	binary.LittleEndian.PutUint16(buffer[56:58], uint16(nameBytes))
	binary.LittleEndian.PutUint16(buffer[58:60], uint16(usnRecordV2HeaderSize))
	for i, unit := range encoded {
		binary.LittleEndian.PutUint16(buffer[usnRecordV2HeaderSize+2*i:], unit)
	}
	return buffer
}

func TestParseRecords(t *testing.T) {
	buffer := append(
		encodeRecord(100, 5, 42, ReasonFileCreate, 0, "notes.txt"),
		encodeRecord(101, 5, 43, ReasonFileDelete, fileAttributeDirectory, "Старая папка")...,
	)
	records := ParseRecords(buffer)
	if len(records) != 2 {
		t.Fatal("record count not as expected:", len(records))
	}

	first := records[0]
	if first.FRN != 100 || first.ParentFRN != 5 || first.USN != 42 {
		t.Fatal("first record header not as expected:", first)
	}
	if first.Name != "notes.txt" || first.IsDirectory() {
		t.Fatal("first record body not as expected:", first)
	}
	if first.Timestamp != 1000000000 {
		t.Fatal("timestamp conversion not as expected:", first.Timestamp)
	}

	second := records[1]
	if second.Name != "Старая папка" || !second.IsDirectory() {
		t.Fatal("second record not as expected:", second)
	}
	if second.Reason&ReasonFileDelete == 0 {
		t.Fatal("reason flags not as expected:", second.Reason)
	}
}

func TestParseRecordsMalformed(t *testing.T) {
	// Truncated buffers and absurd lengths must terminate parsing without
	// panicking.
	if records := ParseRecords([]byte{1, 2}); len(records) != 0 {
		t.Fatal("truncated buffer should yield no records")
	}
	var oversized [8]byte
	binary.LittleEndian.PutUint32(oversized[0:4], 1<<30)
	if records := ParseRecords(oversized[:]); len(records) != 0 {
		t.Fatal("oversized record length should yield no records")
	}
}

func TestParseRecordsSkipsUnknownVersions(t *testing.T) {
	record := encodeRecord(100, 5, 42, ReasonFileCreate, 0, "a")
	binary.LittleEndian.PutUint16(record[4:6], 3)
	buffer := append(record, encodeRecord(101, 5, 43, ReasonFileCreate, 0, "b")...)
	records := ParseRecords(buffer)
	if len(records) != 1 || records[0].Name != "b" {
		t.Fatal("unknown versions should be skipped silently:", records)
	}
}
