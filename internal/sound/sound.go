// Package sound plays short audio cues for effects such as layer changes.
//
// Every <name>.wav under the assets directory is decoded once, resampled
// to the output rate and kept in memory. Play hands a fresh streamer to
// the output, which mixes it in the background, so a cue never delays key
// dispatch.
package sound

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// DefaultSampleRate is the output rate used when none is configured.
const DefaultSampleRate beep.SampleRate = 44100

// resampleQuality trades CPU for fidelity when an asset's rate differs
// from the output rate. Cues are decoded once, so a high value is fine.
const resampleQuality = 4

// ErrUnknownSound is returned for names with no matching asset.
var ErrUnknownSound = errors.New("sound: unknown sound")

// Output mixes streamers without blocking. speaker.Play satisfies it.
type Output func(s ...beep.Streamer)

// Logger defines the logging interface used by the player.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Player holds the decoded cues of one assets directory. The set is fixed
// after New, so Play is safe for concurrent use.
type Player struct {
	dir    string
	rate   beep.SampleRate
	out    Output
	logger Logger
	sounds map[string]*beep.Buffer
}

// New decodes every .wav file in dir at the given output rate. A zero
// rate means DefaultSampleRate. Files that fail to decode are an error:
// a broken asset is reported at startup rather than on first use.
func New(dir string, rate beep.SampleRate, out Output) (*Player, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("sound assets: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sound assets: %s is not a directory", dir)
	}
	if out == nil {
		return nil, errors.New("sound: output is required")
	}
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	p := &Player{
		dir:    dir,
		rate:   rate,
		out:    out,
		logger: noopLogger{},
		sounds: make(map[string]*beep.Buffer),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("sound assets: %w", err)
	}
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".wav")
		if !ok || e.IsDir() || name == "" || strings.HasPrefix(name, ".") {
			continue
		}
		buf, err := p.decode(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("sound %q: %w", name, err)
		}
		p.sounds[name] = buf
	}
	return p, nil
}

func (p *Player) decode(path string) (*beep.Buffer, error) {
	f, err := os.Open(path) //nolint:gosec // asset paths come from the configured directory
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	defer streamer.Close() //nolint:errcheck // read-only

	var s beep.Streamer = streamer
	if format.SampleRate != p.rate {
		s = beep.Resample(resampleQuality, format.SampleRate, p.rate, streamer)
	}
	format.SampleRate = p.rate

	buf := beep.NewBuffer(format)
	buf.Append(s)
	if err := streamer.Err(); err != nil {
		return nil, fmt.Errorf("decoding wav: %w", err)
	}
	return buf, nil
}

// SetLogger sets the logger for the player.
func (p *Player) SetLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	p.logger = l
}

// Names returns the loaded sound names, sorted.
func (p *Player) Names() []string {
	names := make([]string, 0, len(p.sounds))
	for name := range p.sounds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Play queues name on the output and returns without waiting for it.
func (p *Player) Play(name string) error {
	buf, ok := p.sounds[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSound, name)
	}

	p.out(buf.Streamer(0, buf.Len()))
	p.logger.Debug("playing sound", "name", name)
	return nil
}
