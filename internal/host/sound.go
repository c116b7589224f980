package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"go.uber.org/zap"
)

var soundFiles = map[Cue]string{
	CueWorkComplete:      "work_complete.wav",
	CueBreakComplete:     "break_complete.wav",
	CueLongBreakComplete: "long_break_complete.wav",
}

// SoundNotifier plays a cue for each notification and then hands it to the
// wrapped notifier. Missing sound files only disable the matching cue.
type SoundNotifier struct {
	next    Notifier
	logger  *zap.Logger
	volume  float64
	enabled func(context.Context) bool

	mu      sync.Mutex
	buffers map[Cue]*beep.Buffer
}

// NewSoundNotifier decodes the cues in dir and initialises the speaker.
// enabled is consulted per notification so the soundEnabled setting takes
// effect without a restart.
func NewSoundNotifier(next Notifier, dir string, volume float64, enabled func(context.Context) bool, logger *zap.Logger) (*SoundNotifier, error) {
	buffers, err := loadSounds(dir, logger)
	if err != nil {
		return nil, err
	}
	return &SoundNotifier{
		next:    next,
		logger:  logger,
		volume:  volume,
		enabled: enabled,
		buffers: buffers,
	}, nil
}

func loadSounds(dir string, logger *zap.Logger) (map[Cue]*beep.Buffer, error) {
	buffers := make(map[Cue]*beep.Buffer)

	var format beep.Format
	for cue, name := range soundFiles {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			logger.Warn("sound cue unavailable", zap.String("path", path), zap.Error(err))
			continue
		}

		streamer, fileFormat, err := wav.Decode(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}

		if format.SampleRate == 0 {
			format = fileFormat
			if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
				streamer.Close()
				return nil, fmt.Errorf("init speaker: %w", err)
			}
		}

		buffer := beep.NewBuffer(fileFormat)
		buffer.Append(streamer)
		buffers[cue] = buffer

		streamer.Close()
	}
	return buffers, nil
}

func (s *SoundNotifier) Notify(ctx context.Context, note Notification) (string, error) {
	if note.Cue != CueNone && (s.enabled == nil || s.enabled(ctx)) {
		s.play(note.Cue)
	}
	return s.next.Notify(ctx, note)
}

func (s *SoundNotifier) play(cue Cue) {
	s.mu.Lock()
	buffer, ok := s.buffers[cue]
	s.mu.Unlock()
	if !ok {
		return
	}

	streamer := buffer.Streamer(0, buffer.Len())
	speaker.Play(&effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   s.volume,
		Silent:   false,
	})
}
