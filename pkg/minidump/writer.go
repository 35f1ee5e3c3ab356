package minidump

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"
	"gitlab.com/tozd/go/errors"

	"github.com/monsterxx03/godump/pkg/dumperr"
	"github.com/monsterxx03/godump/pkg/format"
)

// A sectionWriter encodes one stream. It returns false when the stream
// has nothing to say and is left out of the directory.
type sectionWriter func(w *writer) (format.Location, bool, errors.E)

type section struct {
	stream format.StreamType
	write  sectionWriter
}

// sections is the canonical stream order.
var sections = []section{
	{format.SystemInfoStream, writeSystemInfo},
	{format.ThreadListStream, writeThreadList},
	{format.MemoryListStream, writeMemoryList},
	{format.ModuleListStream, writeModuleList},
	{format.ExceptionStream, writeException},
	{format.MiscInfoStream, writeMiscInfo},
	{format.ThreadNameListStream, writeThreadNames},
	{format.LinuxCPUInfoStream, writeFile(format.LinuxCPUInfoStream)},
	{format.LinuxProcStatusStream, writeFile(format.LinuxProcStatusStream)},
	{format.LinuxLSBReleaseStream, writeFile(format.LinuxLSBReleaseStream)},
	{format.LinuxCmdLineStream, writeFile(format.LinuxCmdLineStream)},
	{format.LinuxEnvironStream, writeFile(format.LinuxEnvironStream)},
	{format.LinuxAuxvStream, writeFile(format.LinuxAuxvStream)},
	{format.LinuxMapsStream, writeFile(format.LinuxMapsStream)},
	{format.LinuxDSODebugStream, writeDSODebug},
}

type writer struct {
	buf  *Buffer
	m    *model
	opts *Options
	ws   *dumperr.Warnings
	log  log.FieldLogger

	dirRVA format.RVA
	dir    []format.Directory

	// contexts and stacks are published by the thread list for streams
	// that refer to the same blobs.
	contexts map[int]format.Location
	stacks   map[int]format.MemoryDescriptor
}

func newWriter(m *model, opts *Options, ws *dumperr.Warnings, l log.FieldLogger) *writer {
	return &writer{
		buf:      NewBuffer(),
		m:        m,
		opts:     opts,
		ws:       ws,
		log:      l,
		contexts: map[int]format.Location{},
		stacks:   map[int]format.MemoryDescriptor{},
	}
}

// writeStreams reserves the header and a directory slot for every
// enabled section, then appends the stream payloads.
func (w *writer) writeStreams() errors.E {
	if _, err := w.buf.Alloc(format.HeaderSize); err != nil {
		return err
	}
	var enabled []section
	for _, s := range sections {
		if !w.opts.skipped(s.stream) {
			enabled = append(enabled, s)
		}
	}
	rva, err := w.buf.Alloc(len(enabled) * format.DirectorySize)
	if err != nil {
		return err
	}
	w.dirRVA = rva
	for _, s := range enabled {
		loc, ok, err := s.write(w)
		if err != nil {
			return errors.Errorf("%s: %w", s.stream, err)
		}
		if !ok {
			continue
		}
		w.log.WithField("stream", s.stream).WithField("rva", loc.RVA).WithField("size", loc.DataSize).Debug("stream written")
		w.dir = append(w.dir, format.Directory{StreamType: s.stream, Location: loc})
	}
	return nil
}

// finalize fills the directory and the header once every stream is in
// place. Slots of streams that were left out stay zero.
func (w *writer) finalize() errors.E {
	for i := range w.dir {
		w.buf.WriteAt(w.dirRVA+format.RVA(i*format.DirectorySize), format.Marshal(&w.dir[i]))
	}
	h := format.Header{
		Signature:          format.Signature,
		Version:            format.Version,
		StreamCount:        uint32(len(w.dir)),
		StreamDirectoryRVA: w.dirRVA,
		TimeDateStamp:      w.m.time,
	}
	w.buf.WriteAt(0, format.Marshal(&h))
	return nil
}

// writeList encodes a u32 count followed by the records.
func (w *writer) writeList(n int, records []byte) (format.Location, errors.E) {
	out := binary.LittleEndian.AppendUint32(make([]byte, 0, 4+len(records)), uint32(n))
	return w.buf.Write(append(out, records...))
}

// writeFile copies a gathered Linux text stream verbatim.
func writeFile(t format.StreamType) sectionWriter {
	return func(w *writer) (format.Location, bool, errors.E) {
		data, ok := w.m.files[t]
		if !ok {
			return format.Location{}, false, nil
		}
		loc, err := w.buf.Write(data)
		return loc, err == nil, err
	}
}
