package mm2

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"path/filepath"
	"time"
)

// fileHeaderSize is the fixed 64-byte on-disk header preceding every
// file's sector array (spec.md §4.6).
const fileHeaderSize = 64

const (
	magicNormal    uint32 = 0xDEAD5EC7
	magicEmergency uint32 = 0xDEADBEEF
	fileVersion    uint16 = 1
)

// FileHeader is the 64-byte header at offset 0 of every spool file.
type FileHeader struct {
	Magic       uint32
	Version     uint16
	SensorID    uint32
	RecordKind  RecordKind
	SectorCount uint16
	RecordCount uint32
	FirstUTCMs  uint64
	DataSize    uint32
	CRC32       uint32
}

func encodeFileHeader(h FileHeader) [fileHeaderSize]byte {
	var b [fileHeaderSize]byte
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint16(b[4:6], h.Version)
	binary.LittleEndian.PutUint32(b[6:10], h.SensorID)
	b[10] = byte(h.RecordKind)
	binary.LittleEndian.PutUint16(b[11:13], h.SectorCount)
	binary.LittleEndian.PutUint32(b[13:17], h.RecordCount)
	binary.LittleEndian.PutUint64(b[17:25], h.FirstUTCMs)
	binary.LittleEndian.PutUint32(b[25:29], h.DataSize)
	binary.LittleEndian.PutUint32(b[29:33], h.CRC32)
	return b
}

func decodeFileHeader(b []byte) (FileHeader, error) {
	if len(b) < fileHeaderSize {
		return FileHeader{}, ErrCorruptFile
	}
	h := FileHeader{
		Magic:       binary.LittleEndian.Uint32(b[0:4]),
		Version:     binary.LittleEndian.Uint16(b[4:6]),
		SensorID:    binary.LittleEndian.Uint32(b[6:10]),
		RecordKind:  RecordKind(b[10]),
		SectorCount: binary.LittleEndian.Uint16(b[11:13]),
		RecordCount: binary.LittleEndian.Uint32(b[13:17]),
		FirstUTCMs:  binary.LittleEndian.Uint64(b[17:25]),
		DataSize:    binary.LittleEndian.Uint32(b[25:29]),
		CRC32:       binary.LittleEndian.Uint32(b[29:33]),
	}
	if h.Magic != magicNormal && h.Magic != magicEmergency {
		return FileHeader{}, ErrCorruptFile
	}
	return h, nil
}

// DiskFile is the durable record of one spool file, immutable after
// creation except FreeCount and MarkedForDeletion (spec.md §3).
type DiskFile struct {
	Path              string
	SensorID          uint32
	SectorCount       uint16
	FreeCount         uint16
	CreatedUTC        uint64
	MarkedForDeletion bool
}

// incrementFree bumps FreeCount by one and reports whether the file is
// now fully reclaimed (every sector freed), in which case it is marked
// for deletion — actual unlinking happens in the migration engine's
// CleanupDisk state (spec.md §4.6: "mark_sector_freed... increments
// free_count; if free_count == sector_count, sets marked_for_deletion").
func (df *DiskFile) incrementFree() bool {
	df.FreeCount++
	if df.FreeCount >= df.SectorCount {
		df.MarkedForDeletion = true
	}
	return df.MarkedForDeletion
}

// spoolFilename builds the spec.md §4.6 filename
// sensor_<sid:03u>_<yyyymmdd>_<seq:03u>.dat for the given sequence.
func spoolFilename(sensorID uint32, nowUTCMs uint64, seq int) string {
	date := time.UnixMilli(int64(nowUTCMs)).UTC().Format("20060102")
	return fmt.Sprintf("sensor_%03d_%s_%03d.dat", sensorID%1000, date, seq)
}

// nextFreeSpoolPath finds the first unused filename for sensorID under
// dir, incrementing seq from 1 to 999. Returns ErrDiskQuota once the
// namespace for this sensor/day is exhausted.
func nextFreeSpoolPath(deps dependencies, dir string, sensorID uint32, nowUTCMs uint64) (string, error) {
	for seq := 1; seq <= 999; seq++ {
		path := filepath.Join(dir, spoolFilename(sensorID, nowUTCMs, seq))
		if !deps.exists(path) {
			return path, nil
		}
	}
	return "", ErrDiskQuota
}

// writeDiskFile performs the atomic create sequence of spec.md §4.6:
// journal CreateFile -> write temp -> compute crc32 -> fsync -> rename
// -> fsync dir -> journal CreateFile-completed. sectors must already
// have their Next fields rewritten into disk address space by the
// caller (migration.go), since only the caller knows the disk ids the
// address table assigned to this batch.
func writeDiskFile(deps dependencies, jrnl *journal, finalPath string, sensorID uint32, kind RecordKind, sectors []Sector, firstUTCMs, nowUTCMs uint64, emergency bool) (DiskFile, error) {
	tempPath := finalPath + ".tmp"

	if err := jrnl.append(JournalEntry{Op: opCreateFile, TempPath: tempPath, FinalPath: finalPath, UTCMs: nowUTCMs}); err != nil {
		return DiskFile{}, err
	}

	f, err := deps.createFile(tempPath)
	if err != nil {
		return DiskFile{}, wrapDiskIO("create temp spool file", err)
	}

	magic := magicNormal
	if emergency {
		magic = magicEmergency
	}
	recordCount := 0
	for _, s := range sectors {
		recordCount += int(s.Count)
	}
	header := FileHeader{
		Magic:       magic,
		Version:     fileVersion,
		SensorID:    sensorID,
		RecordKind:  kind,
		SectorCount: uint16(len(sectors)),
		RecordCount: uint32(recordCount),
		FirstUTCMs:  firstUTCMs,
		DataSize:    uint32(len(sectors) * SectorSize),
	}

	headerBytes := encodeFileHeader(header)
	if _, err := f.Write(headerBytes[:]); err != nil {
		f.Close()
		return DiskFile{}, wrapDiskIO("write spool header", err)
	}

	data := make([]byte, 0, len(sectors)*SectorSize)
	for _, s := range sectors {
		enc := EncodeSector(s)
		data = append(data, enc[:]...)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return DiskFile{}, wrapDiskIO("write spool sectors", err)
	}

	crc := crc32.ChecksumIEEE(append(append([]byte{}, headerBytes[:]...), data...))
	// header.crc32 covers the header-with-crc-field-zeroed, so it was
	// already zero in headerBytes above; recompute with the field set
	// and rewrite only that field rather than reopening the file.
	header.CRC32 = crc
	headerBytes = encodeFileHeader(header)

	if sw, ok := f.(interface {
		WriteAt([]byte, int64) (int, error)
	}); ok {
		if _, err := sw.WriteAt(headerBytes[:], 0); err != nil {
			f.Close()
			return DiskFile{}, wrapDiskIO("rewrite spool header crc", err)
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return DiskFile{}, wrapDiskIO("fsync spool file", err)
	}
	if err := f.Close(); err != nil {
		return DiskFile{}, wrapDiskIO("close spool file", err)
	}

	if deps.disrupt("crashBeforeRename") {
		return DiskFile{}, ErrDiskIO
	}

	if err := deps.rename(tempPath, finalPath); err != nil {
		return DiskFile{}, wrapDiskIO("rename spool file", err)
	}

	if deps.disrupt("crashAfterRename") {
		return DiskFile{}, ErrDiskIO
	}

	if err := deps.syncDir(filepath.Dir(finalPath)); err != nil {
		return DiskFile{}, wrapDiskIO("fsync spool directory", err)
	}

	if err := jrnl.append(JournalEntry{Op: opCreateFile, TempPath: tempPath, FinalPath: finalPath, UTCMs: nowUTCMs, Completed: true}); err != nil {
		return DiskFile{}, err
	}

	return DiskFile{
		Path:        finalPath,
		SensorID:    sensorID,
		SectorCount: uint16(len(sectors)),
		CreatedUTC:  nowUTCMs,
	}, nil
}

// deleteDiskFile performs the journaled delete sequence of spec.md
// §4.6: journal DeleteFile -> unlink -> journal completion.
func deleteDiskFile(deps dependencies, jrnl *journal, df *DiskFile, nowUTCMs uint64) error {
	if err := jrnl.append(JournalEntry{Op: opDeleteFile, FinalPath: df.Path, UTCMs: nowUTCMs}); err != nil {
		return err
	}
	if err := deps.remove(df.Path); err != nil {
		return wrapDiskIO("delete spool file", err)
	}
	return jrnl.append(JournalEntry{Op: opDeleteFile, FinalPath: df.Path, UTCMs: nowUTCMs, Completed: true})
}

// readDiskFile reads and validates an entire spool file, returning its
// header and decoded sectors. On a bad magic or CRC mismatch it returns
// ErrCorruptFile; the caller (recovery.go's recoverOneFile) is
// responsible for quarantining the file.
func readDiskFile(deps dependencies, path string) (FileHeader, []Sector, error) {
	rc, err := deps.openFile(path)
	if err != nil {
		return FileHeader{}, nil, wrapDiskIO("open spool file", err)
	}
	defer rc.Close()

	buf := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return FileHeader{}, nil, wrapCorruptFile(path, err)
	}
	header, err := decodeFileHeader(buf)
	if err != nil {
		return FileHeader{}, nil, wrapCorruptFile(path, err)
	}

	data := make([]byte, header.DataSize)
	if _, err := io.ReadFull(rc, data); err != nil {
		return FileHeader{}, nil, wrapCorruptFile(path, err)
	}

	zeroed := make([]byte, fileHeaderSize)
	copy(zeroed, buf)
	binary.LittleEndian.PutUint32(zeroed[29:33], 0)
	wantCRC := crc32.ChecksumIEEE(append(zeroed, data...))
	if wantCRC != header.CRC32 {
		return FileHeader{}, nil, wrapCorruptFile(path, ErrCorruptFile)
	}

	sectors := make([]Sector, 0, header.SectorCount)
	for i := 0; i < int(header.SectorCount); i++ {
		off := i * SectorSize
		s, err := DecodeSector(data[off : off+SectorSize])
		if err != nil {
			return FileHeader{}, nil, wrapCorruptFile(path, err)
		}
		sectors = append(sectors, s)
	}
	return header, sectors, nil
}
