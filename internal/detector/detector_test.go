package detector

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/andrelcx/wamon/internal/config"
)

// fakePage scripts DOM probes and evaluation results for tests.
type fakePage struct {
	present     map[string]bool
	elemResults map[string]any // selector -> EvalOn result
	pageResults map[string]any // script -> Eval result
}

func (f *fakePage) Has(selector string) bool {
	return f.present[selector]
}

func (f *fakePage) Eval(_ context.Context, js string, out any, _ ...any) error {
	v, ok := f.pageResults[js]
	if !ok {
		return nil
	}
	return assign(v, out)
}

func (f *fakePage) EvalOn(_ context.Context, selector, _ string, out any) error {
	v, ok := f.elemResults[selector]
	if !ok {
		return errors.New("element not found: " + selector)
	}
	return assign(v, out)
}

func assign(v, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	cfg := config.Default()
	return New(cfg.Selectors, cfg.Monitor.MinQRLength, nil)
}

func TestIsLoggedIn(t *testing.T) {
	d := newDetector(t)

	tests := []struct {
		name    string
		present map[string]bool
		want    bool
	}{
		{
			name:    "chat list marker present",
			present: map[string]bool{"[data-testid='chat-list']": true},
			want:    true,
		},
		{
			name:    "qr canvas on screen",
			present: map[string]bool{"canvas": true},
			want:    false,
		},
		{
			name:    "no markers at all",
			present: map[string]bool{},
			want:    true,
		},
		{
			name: "both marker classes present prefers logged in",
			present: map[string]bool{
				"#main":  true,
				"canvas": true,
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePage{present: tt.present}
			if got := d.IsLoggedIn(p); got != tt.want {
				t.Errorf("IsLoggedIn() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateActiveSession(t *testing.T) {
	d := newDetector(t)
	ctx := context.Background()

	t.Run("error marker invalidates", func(t *testing.T) {
		p := &fakePage{present: map[string]bool{
			".landing-wrapper":          true,
			"[data-testid='chat-list']": true,
			"[data-testid='search']":    true,
		}}
		if d.ValidateActiveSession(ctx, p) {
			t.Error("session with error marker should be invalid")
		}
	})

	t.Run("one critical marker invalidates even with probe", func(t *testing.T) {
		p := &fakePage{
			present:     map[string]bool{"#main": true},
			pageResults: map[string]any{sessionProbeScript: true},
		}
		if d.ValidateActiveSession(ctx, p) {
			t.Error("a single critical marker should invalidate")
		}
	})

	t.Run("two markers plus live probe validate", func(t *testing.T) {
		p := &fakePage{
			present: map[string]bool{
				"[data-testid='chat-list']": true,
				"#main":                     true,
			},
			pageResults: map[string]any{sessionProbeScript: true},
		}
		if !d.ValidateActiveSession(ctx, p) {
			t.Error("all checks passing should validate")
		}

		p.pageResults[sessionProbeScript] = false
		if d.ValidateActiveSession(ctx, p) {
			t.Error("negative probe should invalidate")
		}
	})
}

func TestExtractQRFromCanvas(t *testing.T) {
	d := newDetector(t)
	want := "data:image/png;base64," + strings.Repeat("A", 200)

	p := &fakePage{
		present: map[string]bool{},
		elemResults: map[string]any{
			"[data-testid='qr-code'] canvas": want,
		},
	}

	got, err := d.ExtractQR(context.Background(), p)
	if err != nil {
		t.Fatalf("ExtractQR() error = %v", err)
	}
	if got != want {
		t.Errorf("ExtractQR() = %q, want %q", got, want)
	}
}

func TestExtractQRRejectsShortData(t *testing.T) {
	d := newDetector(t)

	// Canvas renders something too small to be a QR code; the data-ref
	// payload should be rendered locally instead.
	p := &fakePage{
		present: map[string]bool{},
		elemResults: map[string]any{
			"[data-testid='qr-code'] canvas": "data:image/png;base64,AAA",
			"[data-ref]":                     "2@AbCdEfGhIjKlMnOpQrStUvWxYz0123456789",
		},
	}

	got, err := d.ExtractQR(context.Background(), p)
	if err != nil {
		t.Fatalf("ExtractQR() error = %v", err)
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Errorf("ExtractQR() = %q, want locally rendered PNG data URL", got[:min(len(got), 40)])
	}
	if len(got) < 100 {
		t.Errorf("rendered QR suspiciously small: %d bytes", len(got))
	}
}

func TestExtractQRCanvasSweep(t *testing.T) {
	d := newDetector(t)
	want := "data:image/png;base64," + strings.Repeat("B", 2000)

	p := &fakePage{
		present:     map[string]bool{},
		pageResults: map[string]any{anyCanvasDataURLScript: want},
	}

	got, err := d.ExtractQR(context.Background(), p)
	if err != nil {
		t.Fatalf("ExtractQR() error = %v", err)
	}
	if got != want {
		t.Error("sweep result not returned")
	}
}

func TestExtractQRNothingWorks(t *testing.T) {
	d := newDetector(t)
	p := &fakePage{present: map[string]bool{}}

	_, err := d.ExtractQR(context.Background(), p)
	if !errors.Is(err, ErrQRGeneration) {
		t.Errorf("error = %v, want ErrQRGeneration", err)
	}
}

func TestClassify(t *testing.T) {
	d := newDetector(t)
	ctx := context.Background()

	t.Run("logged in", func(t *testing.T) {
		p := &fakePage{present: map[string]bool{"#main": true}}
		v, qr := d.Classify(ctx, p)
		if v != LoggedIn || qr != "" {
			t.Errorf("Classify() = (%v, %q), want (LoggedIn, \"\")", v, qr)
		}
	})

	t.Run("qr pending", func(t *testing.T) {
		data := "data:image/png;base64," + strings.Repeat("C", 200)
		p := &fakePage{
			present:     map[string]bool{"canvas": true},
			elemResults: map[string]any{"canvas": data},
		}
		v, qr := d.Classify(ctx, p)
		if v != QRPending {
			t.Fatalf("Classify() verdict = %v, want QRPending", v)
		}
		if qr != data {
			t.Error("QR payload not returned")
		}
	})

	t.Run("indeterminate", func(t *testing.T) {
		p := &fakePage{present: map[string]bool{"canvas": true}}
		v, qr := d.Classify(ctx, p)
		if v != Indeterminate || qr != "" {
			t.Errorf("Classify() = (%v, %q), want (Indeterminate, \"\")", v, qr)
		}
	})
}
