package minidump

import (
	"io"
	"time"

	log "github.com/sirupsen/logrus"
	"gitlab.com/tozd/go/errors"

	gbin "github.com/monsterxx03/godump/pkg/binary"
	"github.com/monsterxx03/godump/pkg/format"
	"github.com/monsterxx03/godump/pkg/sysinfo"
)

const (
	DefaultMaxStackBytes  = 32 * 1024
	DefaultIPContextBytes = 256
	DefaultMaxRescans     = 3
)

// Region is caller-chosen memory to include in the memory list.
type Region struct {
	Address uint64 `yaml:"address"`
	Length  uint64 `yaml:"length"`
}

// Options tune one dump. Start from DefaultOptions; zero numeric fields
// are taken literally.
type Options struct {
	MaxStackBytes  uint64   `yaml:"max_stack_bytes"`
	IPContextBytes uint64   `yaml:"ip_context_bytes"`
	MaxRescans     int      `yaml:"max_rescans"`
	AppMemory      []Region `yaml:"app_memory"`
	// SkipStreams names optional streams to leave out, such as
	// "linux_environ".
	SkipStreams []string `yaml:"skip_streams"`

	Clock    func() time.Time `yaml:"-"`
	Logger   log.FieldLogger  `yaml:"-"`
	Host     sysinfo.Host     `yaml:"-"`
	Resolver *gbin.Resolver   `yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		MaxStackBytes:  DefaultMaxStackBytes,
		IPContextBytes: DefaultIPContextBytes,
		MaxRescans:     DefaultMaxRescans,
	}
}

// optional streams may be named in SkipStreams.
var optional = map[format.StreamType]bool{
	format.ThreadNameListStream:  true,
	format.LinuxCPUInfoStream:    true,
	format.LinuxProcStatusStream: true,
	format.LinuxLSBReleaseStream: true,
	format.LinuxCmdLineStream:    true,
	format.LinuxEnvironStream:    true,
	format.LinuxAuxvStream:       true,
	format.LinuxMapsStream:       true,
	format.LinuxDSODebugStream:   true,
}

func (o *Options) Validate() errors.E {
	if o.MaxRescans < 0 {
		return errors.Errorf("max_rescans must not be negative: %d", o.MaxRescans)
	}
	for _, r := range o.AppMemory {
		if r.Length >= maxDocument {
			return errors.Errorf("app memory at %#x: length %#x does not fit in a document", r.Address, r.Length)
		}
	}
	if o.MaxStackBytes >= maxDocument || o.IPContextBytes >= maxDocument {
		return errors.New("stack and ip context sizes must fit in a document")
	}
	for _, name := range o.SkipStreams {
		t, ok := format.StreamTypeByName(name)
		if !ok {
			return errors.Errorf("unknown stream %q", name)
		}
		if !optional[t] {
			return errors.Errorf("stream %q cannot be skipped", name)
		}
	}
	return nil
}

func (o *Options) skipped(t format.StreamType) bool {
	for _, name := range o.SkipStreams {
		if name == t.String() {
			return true
		}
	}
	return false
}

func (o *Options) withDefaults() (Options, errors.E) {
	c := *o
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		l := log.New()
		l.SetOutput(io.Discard)
		c.Logger = l
	}
	if c.Host == nil {
		c.Host = sysinfo.Local{}
	}
	if c.Resolver == nil {
		r, err := gbin.NewResolver(gbin.DefaultCacheSize)
		if err != nil {
			return c, err
		}
		c.Resolver = r
	}
	return c, nil
}
