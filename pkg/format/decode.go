package format

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
)

var (
	ErrNotMinidump = errors.New("not a minidump")
	ErrOutOfBounds = errors.New("location outside document")
	ErrNoStream    = errors.New("stream not present")
)

// File is a decoded document. Only the header and the directory are
// decoded eagerly; stream accessors decode on demand.
type File struct {
	Header    Header
	Directory []Directory
	Data      []byte
}

// Parse validates the header and every directory entry of data.
func Parse(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotMinidump, len(data))
	}
	f := &File{Data: data}
	if err := Unmarshal(data, &f.Header); err != nil {
		return nil, err
	}
	if f.Header.Signature != Signature {
		return nil, fmt.Errorf("%w: signature %#x", ErrNotMinidump, f.Header.Signature)
	}
	if f.Header.Version&0xffff != Version {
		return nil, fmt.Errorf("%w: version %#x", ErrNotMinidump, f.Header.Version)
	}
	if uint64(f.Header.StreamCount)*DirectorySize > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %d streams declared in %d bytes", ErrOutOfBounds, f.Header.StreamCount, len(data))
	}
	dir := Location{
		DataSize: f.Header.StreamCount * DirectorySize,
		RVA:      f.Header.StreamDirectoryRVA,
	}
	raw, err := f.Slice(dir)
	if err != nil {
		return nil, fmt.Errorf("stream directory: %w", err)
	}
	f.Directory = make([]Directory, f.Header.StreamCount)
	for i := range f.Directory {
		if err := Unmarshal(raw[i*DirectorySize:], &f.Directory[i]); err != nil {
			return nil, err
		}
		if _, err := f.Slice(f.Directory[i].Location); err != nil {
			return nil, fmt.Errorf("directory entry %d (%s): %w", i, f.Directory[i].StreamType, err)
		}
	}
	return f, nil
}

// Slice returns the bytes loc refers to.
func (f *File) Slice(loc Location) ([]byte, error) {
	if loc.End() > uint64(len(f.Data)) {
		return nil, fmt.Errorf("%w: rva %#x size %#x, document %#x", ErrOutOfBounds, loc.RVA, loc.DataSize, len(f.Data))
	}
	return f.Data[loc.RVA:loc.End()], nil
}

// Stream returns the payload of the first stream of type t.
func (f *File) Stream(t StreamType) ([]byte, error) {
	for _, d := range f.Directory {
		if d.StreamType == t {
			return f.Slice(d.Location)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoStream, t)
}

// ReadString decodes the MDString at rva.
func (f *File) ReadString(rva RVA) (string, error) {
	head, err := f.Slice(Location{DataSize: 4, RVA: rva})
	if err != nil {
		return "", err
	}
	n := le.Uint32(head)
	if uint64(rva)+4 > math.MaxUint32 {
		return "", fmt.Errorf("%w: string at rva %#x", ErrOutOfBounds, rva)
	}
	raw, err := f.Slice(Location{DataSize: n, RVA: rva + 4})
	if err != nil {
		return "", err
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = le.Uint16(raw[2*i:])
	}
	return string(utf16.Decode(units)), nil
}

// list decodes a u32 count followed by count records of size each.
func (f *File) list(t StreamType, size int, each func(raw []byte) error) error {
	raw, err := f.Stream(t)
	if err != nil {
		return err
	}
	if len(raw) < 4 {
		return fmt.Errorf("%s: %w", t, ErrOutOfBounds)
	}
	n := int(le.Uint32(raw))
	if 4+n*size > len(raw) {
		return fmt.Errorf("%s: %d entries do not fit in %d bytes: %w", t, n, len(raw), ErrOutOfBounds)
	}
	for i := 0; i < n; i++ {
		if err := each(raw[4+i*size:]); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) Threads() ([]Thread, error) {
	var out []Thread
	err := f.list(ThreadListStream, ThreadSize, func(raw []byte) error {
		var t Thread
		if err := Unmarshal(raw, &t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	return out, err
}

func (f *File) MemoryList() ([]MemoryDescriptor, error) {
	var out []MemoryDescriptor
	err := f.list(MemoryListStream, MemoryDescriptorSize, func(raw []byte) error {
		var m MemoryDescriptor
		if err := Unmarshal(raw, &m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

// ModuleEntry is a module record with its name and build id resolved.
type ModuleEntry struct {
	Module
	Name    string
	BuildID []byte
}

func (f *File) Modules() ([]ModuleEntry, error) {
	var out []ModuleEntry
	err := f.list(ModuleListStream, ModuleSize, func(raw []byte) error {
		var e ModuleEntry
		if err := Unmarshal(raw, &e.Module); err != nil {
			return err
		}
		name, err := f.ReadString(e.ModuleNameRVA)
		if err != nil {
			return fmt.Errorf("module %#x name: %w", e.BaseOfImage, err)
		}
		e.Name = name
		cv, err := f.Slice(e.CVRecord)
		if err != nil {
			return fmt.Errorf("module %#x cv record: %w", e.BaseOfImage, err)
		}
		if len(cv) >= 4 && le.Uint32(cv) == CVSignatureELF {
			e.BuildID = cv[4:]
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// ThreadNames maps thread ids to names.
func (f *File) ThreadNames() (map[uint32]string, error) {
	out := make(map[uint32]string)
	err := f.list(ThreadNameListStream, ThreadNameSize, func(raw []byte) error {
		var n ThreadName
		if err := Unmarshal(raw, &n); err != nil {
			return err
		}
		if n.ThreadNameRVA > 0xffffffff {
			return fmt.Errorf("thread %d name rva %#x: %w", n.ThreadID, n.ThreadNameRVA, ErrOutOfBounds)
		}
		name, err := f.ReadString(RVA(n.ThreadNameRVA))
		if err != nil {
			return err
		}
		out[n.ThreadID] = name
		return nil
	})
	return out, err
}

func (f *File) SystemInfo() (*SystemInfo, error) {
	raw, err := f.Stream(SystemInfoStream)
	if err != nil {
		return nil, err
	}
	if len(raw) < SystemInfoSize {
		return nil, fmt.Errorf("system info: %w", ErrOutOfBounds)
	}
	var si SystemInfo
	if err := Unmarshal(raw, &si); err != nil {
		return nil, err
	}
	return &si, nil
}

func (f *File) MiscInfo() (*MiscInfo, error) {
	raw, err := f.Stream(MiscInfoStream)
	if err != nil {
		return nil, err
	}
	if len(raw) < MiscInfoSize {
		return nil, fmt.Errorf("misc info: %w", ErrOutOfBounds)
	}
	var mi MiscInfo
	if err := Unmarshal(raw, &mi); err != nil {
		return nil, err
	}
	return &mi, nil
}

func (f *File) Exception() (*ExceptionStreamRecord, error) {
	raw, err := f.Stream(ExceptionStream)
	if err != nil {
		return nil, err
	}
	if len(raw) < ExceptionStreamSize {
		return nil, fmt.Errorf("exception: %w", ErrOutOfBounds)
	}
	var e ExceptionStreamRecord
	if err := Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// DSODebug decodes the r_debug summary and its link map entries.
func (f *File) DSODebug() (*Debug, []LinkMap, error) {
	raw, err := f.Stream(LinuxDSODebugStream)
	if err != nil {
		return nil, nil, err
	}
	if len(raw) < DebugSize {
		return nil, nil, fmt.Errorf("dso debug: %w", ErrOutOfBounds)
	}
	var d Debug
	if err := Unmarshal(raw, &d); err != nil {
		return nil, nil, err
	}
	maps, err := f.Slice(Location{DataSize: d.DSOCount * LinkMapSize, RVA: d.Map})
	if err != nil {
		return nil, nil, fmt.Errorf("dso debug link map: %w", err)
	}
	out := make([]LinkMap, d.DSOCount)
	for i := range out {
		if err := Unmarshal(maps[i*LinkMapSize:], &out[i]); err != nil {
			return nil, nil, err
		}
	}
	return &d, out, nil
}
