package vision

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/adapters"
	"github.com/nerrad567/garagegate/internal/door"
)

const frameW, frameH = 320, 240

// frame returns a black frame with a white square of side size at (x, y).
func frame(x, y, size int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, frameW, frameH))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	for py := y; py < y+size && py < frameH; py++ {
		for px := x; px < x+size && px < frameW; px++ {
			img.SetNRGBA(px, py, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img
}

func sharpDetector() *MotionDetector {
	return NewMotionDetector(MotionConfig{Threshold: 25, MinArea: 5000})
}

func TestMotionDetector(t *testing.T) {
	tests := []struct {
		name   string
		frames []*image.NRGBA
		want   bool
	}{
		{name: "first frame is reference only", frames: []*image.NRGBA{frame(0, 0, 120)}, want: false},
		{name: "identical frames", frames: []*image.NRGBA{frame(10, 10, 100), frame(10, 10, 100)}, want: false},
		{name: "large object appears", frames: []*image.NRGBA{frame(0, 0, 0), frame(50, 50, 100)}, want: true},
		{name: "small object appears", frames: []*image.NRGBA{frame(0, 0, 0), frame(50, 50, 20)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sharpDetector()
			var got bool
			for _, f := range tt.frames {
				got = d.Detect(f)
			}
			if got != tt.want {
				t.Errorf("Detect() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMotionDetector_SizeChangeResetsReference(t *testing.T) {
	d := sharpDetector()
	d.Detect(frame(0, 0, 0))
	small := image.NewNRGBA(image.Rect(0, 0, 160, 120))
	if d.Detect(small) {
		t.Error("Detect() reported motion across a resolution change")
	}
}

func TestSelectPlate(t *testing.T) {
	tests := []struct {
		name       string
		detections []Detection
		want       string
	}{
		{name: "none", want: ""},
		{
			name:       "word detections ignored",
			detections: []Detection{{Text: "ABC", Type: "WORD", Confidence: 99}},
			want:       "",
		},
		{
			name:       "confidence must exceed threshold",
			detections: []Detection{{Text: "ABC 123", Type: DetectionTypeLine, Confidence: 80}},
			want:       "",
		},
		{
			name: "first qualifying line wins and is cleaned",
			detections: []Detection{
				{Text: "low", Type: DetectionTypeLine, Confidence: 50},
				{Text: "ab-12 3", Type: DetectionTypeLine, Confidence: 95},
				{Text: "XYZ999", Type: DetectionTypeLine, Confidence: 99},
			},
			want: "AB123",
		},
		{
			name: "punctuation-only line skipped",
			detections: []Detection{
				{Text: "--", Type: DetectionTypeLine, Confidence: 95},
				{Text: "XYZ999", Type: DetectionTypeLine, Confidence: 99},
			},
			want: "XYZ999",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectPlate(tt.detections, 80); got != tt.want {
				t.Errorf("SelectPlate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHTTPRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "image/jpeg" {
			http.Error(w, "want jpeg", http.StatusUnsupportedMediaType)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"detections":[{"text":"ABC 123","type":"LINE","confidence":97.5}]}`))
	}))
	defer srv.Close()

	got, err := NewHTTPRecognizer(srv.Client(), srv.URL).Detect(context.Background(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(got) != 1 || got[0].Text != "ABC 123" || got[0].Confidence != 97.5 {
		t.Errorf("Detect() = %+v", got)
	}
}

func TestHTTPRecognizer_ServiceFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPRecognizer(srv.Client(), srv.URL).Detect(context.Background(), []byte("jpeg"))
	if !errors.Is(err, adapters.ErrServiceFailure) {
		t.Errorf("Detect() error = %v, want ErrServiceFailure", err)
	}
}

func TestSnapshotCamera_ProbesCandidatesAndReopens(t *testing.T) {
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/camera/1/") || failing.Load() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_ = imaging.Encode(w, frame(0, 0, 10), imaging.PNG)
	}))
	defer srv.Close()

	cam := NewSnapshotCamera(srv.Client(), srv.URL+"/camera/{index}/snapshot", []int{3, 1})

	img, err := cam.Frame(context.Background())
	if err != nil {
		t.Fatalf("Frame() error = %v", err)
	}
	if img.Bounds().Dx() != frameW {
		t.Errorf("frame width = %d, want %d", img.Bounds().Dx(), frameW)
	}
	if idx, ok := cam.Index(); !ok || idx != 1 {
		t.Errorf("Index() = (%d, %v), want (1, true)", idx, ok)
	}

	failing.Store(true)
	if _, err := cam.Frame(context.Background()); !errors.Is(err, adapters.ErrUnavailable) {
		t.Errorf("Frame() after failure error = %v, want ErrUnavailable", err)
	}
	if _, ok := cam.Index(); ok {
		t.Error("camera still open after read failure")
	}

	failing.Store(false)
	if _, err := cam.Frame(context.Background()); err != nil {
		t.Errorf("Frame() after recovery error = %v", err)
	}
}

func TestPreview(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preview", "frame.jpg")
	p := NewPreview(path, false)

	if err := p.Write(frame(0, 0, 10)); err != nil {
		t.Fatalf("Write() while disabled error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("preview written while disabled")
	}

	if !p.Toggle() {
		t.Fatal("Toggle() = false, want true")
	}
	if err := p.Write(frame(0, 0, 10)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := imaging.Open(path); err != nil {
		t.Errorf("preview is not a readable image: %v", err)
	}
	if p.Toggle() {
		t.Error("second Toggle() = true, want false")
	}
}

func TestCrosshair(t *testing.T) {
	out := Crosshair(frame(0, 0, 0))
	if got := out.NRGBAAt(frameW/2, 3); got != crosshairColor {
		t.Errorf("vertical line pixel = %v, want %v", got, crosshairColor)
	}
	if got := out.NRGBAAt(7, frameH/2); got != crosshairColor {
		t.Errorf("horizontal line pixel = %v, want %v", got, crosshairColor)
	}
	if got := out.NRGBAAt(1, 1); got == crosshairColor {
		t.Error("crosshair drawn outside the centre lines")
	}
}

type fakeCamera struct {
	frames []image.Image
	err    error
}

func (c *fakeCamera) Frame(context.Context) (image.Image, error) {
	if c.err != nil {
		return nil, c.err
	}
	f := c.frames[0]
	if len(c.frames) > 1 {
		c.frames = c.frames[1:]
	}
	return f, nil
}

type fakeRecognizer struct {
	detections []Detection
	err        error
	calls      int
}

func (r *fakeRecognizer) Detect(context.Context, []byte) ([]Detection, error) {
	r.calls++
	return r.detections, r.err
}

type fakePlates map[string]door.AuthorizationRecord

func (p fakePlates) Lookup(_ context.Context, plate string) (*door.AuthorizationRecord, error) {
	rec, ok := p[plate]
	if !ok {
		return nil, access.ErrPlateNotAuthorized
	}
	return &rec, nil
}

func (p fakePlates) List(context.Context) ([]door.AuthorizationRecord, error) {
	return nil, nil
}

type adapterFixture struct {
	cam *fakeCamera
	rec *fakeRecognizer
	now time.Time
	a   *Adapter
}

func newAdapterFixture(plateText string) *adapterFixture {
	f := &adapterFixture{
		// Alternating frames: every poll after the first sees motion.
		cam: &fakeCamera{frames: []image.Image{
			frame(0, 0, 0), frame(40, 40, 120),
			frame(0, 0, 0), frame(40, 40, 120),
			frame(0, 0, 0), frame(40, 40, 120),
		}},
		rec: &fakeRecognizer{detections: []Detection{{Text: plateText, Type: DetectionTypeLine, Confidence: 95}}},
		now: time.Unix(1_760_000_000, 0),
	}
	f.a = New(Config{
		Camera:        f.cam,
		Detector:      sharpDetector(),
		Recognizer:    f.rec,
		Plates:        fakePlates{"ABC123": {PlateID: "ABC123"}},
		Cooldown:      30 * time.Second,
		MinConfidence: 80,
		Now:           func() time.Time { return f.now },
	})
	return f
}

func (f *adapterFixture) poll(t *testing.T) *door.Command {
	t.Helper()
	cmd, err := f.a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	return cmd
}

func TestAdapter_AuthorisedPlateOpens(t *testing.T) {
	f := newAdapterFixture("abc 123")

	if cmd := f.poll(t); cmd != nil {
		t.Fatalf("first poll (no reference frame) = %+v, want nil", cmd)
	}
	cmd := f.poll(t)
	if cmd == nil {
		t.Fatal("poll with motion returned no command")
	}
	if cmd.Kind != door.KindOpen || cmd.Source != door.SourceVision {
		t.Errorf("command = %s/%s, want open/vision", cmd.Kind, cmd.Source)
	}
	if cmd.Evidence.Plate != "ABC123" || cmd.Evidence.Authorization == nil {
		t.Errorf("evidence = %+v, want authorised ABC123", cmd.Evidence)
	}
	if !cmd.Timestamp.Equal(f.now) {
		t.Errorf("timestamp = %v, want %v", cmd.Timestamp, f.now)
	}
}

func TestAdapter_CooldownSuppressesRecognition(t *testing.T) {
	f := newAdapterFixture("ABC123")

	f.poll(t)
	if f.poll(t) == nil {
		t.Fatal("expected a command on first motion")
	}

	f.now = f.now.Add(10 * time.Second)
	f.poll(t)
	if cmd := f.poll(t); cmd != nil {
		t.Errorf("motion inside cooldown produced %+v", cmd)
	}
	if f.rec.calls != 1 {
		t.Errorf("recognizer calls = %d, want 1", f.rec.calls)
	}

	f.now = f.now.Add(25 * time.Second)
	if f.poll(t) == nil {
		t.Error("motion after cooldown produced no command")
	}
}

func TestAdapter_UnauthorisedPlateCarriesNoRecord(t *testing.T) {
	f := newAdapterFixture("ZZZ 999")
	f.poll(t)
	cmd := f.poll(t)
	if cmd == nil {
		t.Fatal("expected a command for audit")
	}
	if cmd.Evidence.Authorization != nil || cmd.Evidence.Plate != "ZZZ999" {
		t.Errorf("evidence = %+v, want plate without authorisation", cmd.Evidence)
	}
}

func TestAdapter_RecognizerFailureYieldsNothing(t *testing.T) {
	f := newAdapterFixture("ABC123")
	f.rec.err = adapters.ErrServiceFailure
	f.poll(t)
	if cmd := f.poll(t); cmd != nil {
		t.Errorf("Poll() = %+v, want nil on recognizer failure", cmd)
	}
}

func TestAdapter_CameraFailure(t *testing.T) {
	a := New(Config{Camera: &fakeCamera{err: adapters.ErrUnavailable}})
	if _, err := a.Poll(context.Background()); !errors.Is(err, adapters.ErrUnavailable) {
		t.Errorf("Poll() error = %v, want ErrUnavailable", err)
	}
}
