package voice

import (
	"context"
	"time"

	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/door"
)

// Name is the source name used in logs, metrics and status.
const Name = "voice"

// Config wires an Adapter.
type Config struct {
	Recorder    Recorder
	Transcriber Transcriber

	// Window is how long each capture lasts.
	Window time.Duration

	// ServiceBackoff is how long to pause after a transcription failure.
	ServiceBackoff time.Duration

	Logger adapters.Logger
	Now    func() time.Time
}

// Adapter is the voice Source.
type Adapter struct {
	cfg Config
}

// New creates a voice adapter.
func New(cfg Config) *Adapter {
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Second
	}
	if cfg.ServiceBackoff <= 0 {
		cfg.ServiceBackoff = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = adapters.NoopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Adapter{cfg: cfg}
}

// Name implements adapters.Source.
func (a *Adapter) Name() string { return Name }

// Poll implements adapters.Source.
func (a *Adapter) Poll(ctx context.Context) (*door.Command, error) {
	audio, err := a.cfg.Recorder.Record(ctx, a.cfg.Window)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, nil
	}

	text, err := a.cfg.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, adapters.RetryAfter(err, a.cfg.ServiceBackoff)
	}
	if text == "" {
		return nil, nil
	}
	a.cfg.Logger.Debug("heard", "transcript", text)

	kind, ok := Parse(text)
	if !ok {
		return nil, nil
	}
	a.cfg.Logger.Info("voice command recognised", "kind", kind, "transcript", text)
	return &door.Command{
		Kind:      kind,
		Source:    door.SourceVoice,
		Timestamp: a.cfg.Now(),
		Evidence:  door.Evidence{Transcript: text},
	}, nil
}
