package vision

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/door"
)

// Name is the source name used in logs, metrics and status.
const Name = "vision"

// Config wires an Adapter.
type Config struct {
	Camera     Camera
	Detector   *MotionDetector
	Recognizer Recognizer
	Plates     access.PlateStore

	// Cooldown is the minimum time between two recogniser calls.
	Cooldown time.Duration

	// MinConfidence is the recogniser confidence a line must exceed.
	MinConfidence float64

	Preview *Preview
	Logger  adapters.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Adapter is the vision Source.
type Adapter struct {
	cfg       Config
	lastCheck time.Time
}

// New creates a vision adapter.
func New(cfg Config) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = adapters.NoopLogger{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Detector == nil {
		cfg.Detector = NewMotionDetector(MotionConfig{Threshold: 25, MinArea: 5000, BlurSigma: 3.5})
	}
	return &Adapter{cfg: cfg}
}

// Name implements adapters.Source.
func (a *Adapter) Name() string { return Name }

// Poll implements adapters.Source.
//
// An unauthorised plate still produces an OPEN command, without an
// authorisation record, so the refusal is validated and audited like any
// other decision.
func (a *Adapter) Poll(ctx context.Context) (*door.Command, error) {
	frame, err := a.cfg.Camera.Frame(ctx)
	if err != nil {
		a.cfg.Detector.Reset()
		return nil, err
	}

	if a.cfg.Preview != nil {
		if err := a.cfg.Preview.Write(frame); err != nil {
			a.cfg.Logger.Warn("preview write failed", "error", err)
		}
	}

	if !a.cfg.Detector.Detect(frame) {
		return nil, nil
	}

	now := a.cfg.Now()
	if !a.lastCheck.IsZero() && now.Sub(a.lastCheck) < a.cfg.Cooldown {
		a.cfg.Logger.Debug("motion detected during cooldown", "remaining", a.cfg.Cooldown-now.Sub(a.lastCheck))
		return nil, nil
	}
	a.lastCheck = now
	a.cfg.Logger.Info("motion detected, checking plate")

	plate, err := a.recognise(ctx, frame)
	if err != nil {
		a.cfg.Logger.Warn("plate recognition failed", "error", err)
		return nil, nil
	}
	if plate == "" {
		a.cfg.Logger.Info("no plate detected with sufficient confidence")
		return nil, nil
	}

	record, err := a.cfg.Plates.Lookup(ctx, plate)
	switch {
	case errors.Is(err, access.ErrPlateNotAuthorized):
		a.cfg.Logger.Info("plate not authorised", "plate", plate)
		record = nil
	case err != nil:
		a.cfg.Logger.Warn("plate lookup failed", "plate", plate, "error", err)
		return nil, nil
	default:
		a.cfg.Logger.Info("authorised plate detected", "plate", plate)
	}

	return &door.Command{
		Kind:      door.KindOpen,
		Source:    door.SourceVision,
		Timestamp: now,
		Evidence:  door.Evidence{Plate: plate, Authorization: record},
	}, nil
}

func (a *Adapter) recognise(ctx context.Context, frame image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, frame, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("encoding frame: %w", err)
	}
	detections, err := a.cfg.Recognizer.Detect(ctx, buf.Bytes())
	if err != nil {
		return "", err
	}
	return SelectPlate(detections, a.cfg.MinConfidence), nil
}
