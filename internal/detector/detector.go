package detector

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/andrelcx/wamon/internal/config"
)

// ErrQRGeneration is returned when no QR image can be produced by any
// extraction strategy.
var ErrQRGeneration = errors.New("failed to generate QR code")

// Page is the slice of the browser surface the detector needs. The concrete
// driver satisfies it; tests substitute a scripted fake.
type Page interface {
	Has(selector string) bool
	Eval(ctx context.Context, js string, out any, args ...any) error
	EvalOn(ctx context.Context, selector, js string, out any) error
}

// Verdict is the outcome of classifying the current page.
type Verdict int

const (
	// Indeterminate means neither a logged-in session nor a scannable QR
	// code could be established.
	Indeterminate Verdict = iota
	// LoggedIn means an authenticated WhatsApp session is on screen.
	LoggedIn
	// QRPending means the login QR code is on screen and was captured.
	QRPending
)

func (v Verdict) String() string {
	switch v {
	case LoggedIn:
		return "logged_in"
	case QRPending:
		return "qr_pending"
	default:
		return "indeterminate"
	}
}

// Detector classifies WhatsApp Web page states from DOM probes. It holds no
// page handle itself; every method takes the page so one detector serves
// successive browser instances across reconnects.
type Detector struct {
	selectors   config.Selectors
	minQRLength int
	logger      *zap.Logger
}

func New(selectors config.Selectors, minQRLength int, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if minQRLength <= 0 {
		minQRLength = 100
	}
	return &Detector{selectors: selectors, minQRLength: minQRLength, logger: logger}
}

// IsLoggedIn reports whether the page shows an authenticated session. Any
// logged-in marker is sufficient; absent those, a page with no QR markers at
// all is treated as logged in, since WhatsApp renames chrome more often than
// it changes the login flow.
func (d *Detector) IsLoggedIn(p Page) bool {
	for _, sel := range d.selectors.LoggedIn {
		if p.Has(sel) {
			d.logger.Debug("logged-in marker present", zap.String("selector", sel))
			return true
		}
	}
	for _, sel := range d.selectors.QRProbe {
		if p.Has(sel) {
			return false
		}
	}
	d.logger.Debug("no QR markers found, assuming logged in")
	return true
}

// ValidateActiveSession decides whether an apparently logged-in session is
// actually usable. Three checks, all required: no session-error markers on
// screen, at least two of the four critical markers present, and an in-page
// probe of the app globals and chat list coming back positive. Headless
// rendering produces enough half-loaded pages that any single signal lies.
func (d *Detector) ValidateActiveSession(ctx context.Context, p Page) bool {
	for _, sel := range d.selectors.SessionError {
		if p.Has(sel) {
			d.logger.Warn("session error marker present", zap.String("selector", sel))
			return false
		}
	}

	present := 0
	for _, sel := range d.selectors.Critical {
		if p.Has(sel) {
			present++
		}
	}
	if present < 2 {
		d.logger.Debug("too few critical markers", zap.Int("present", present))
		return false
	}

	var alive bool
	if err := p.Eval(ctx, sessionProbeScript, &alive); err != nil {
		d.logger.Warn("session probe script failed", zap.Error(err))
		return false
	}
	d.logger.Debug("session probe result",
		zap.Int("critical_markers", present),
		zap.Bool("probe_alive", alive))
	return alive
}

// ExtractQR captures the login QR code as an image data URL. It tries each
// known canvas selector, then an unscoped sweep of all canvases, then renders
// the QR payload from the data-ref attribute locally. Returns ErrQRGeneration
// when every strategy comes up empty.
func (d *Detector) ExtractQR(ctx context.Context, p Page) (string, error) {
	for _, sel := range d.selectors.QRCanvas {
		var data string
		if err := p.EvalOn(ctx, sel, canvasDataURLScript, &data); err != nil {
			continue
		}
		if len(data) > d.minQRLength && strings.HasPrefix(data, "data:image/") {
			d.logger.Debug("QR captured from canvas", zap.String("selector", sel), zap.Int("bytes", len(data)))
			return data, nil
		}
	}

	var swept string
	if err := p.Eval(ctx, anyCanvasDataURLScript, &swept); err == nil {
		if len(swept) > 1000 && strings.HasPrefix(swept, "data:image/") {
			d.logger.Debug("QR captured from canvas sweep", zap.Int("bytes", len(swept)))
			return swept, nil
		}
	}

	var ref string
	if err := p.EvalOn(ctx, d.selectors.QRRef, qrRefScript, &ref); err == nil && ref != "" {
		png, err := qrcode.Encode(ref, qrcode.Medium, 512)
		if err == nil {
			d.logger.Debug("QR rendered from data-ref payload", zap.Int("payload_len", len(ref)))
			return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
		}
		d.logger.Warn("encoding data-ref payload failed", zap.Error(err))
	}

	return "", ErrQRGeneration
}

// Classify takes one look at the page and reports whether the user is logged
// in, needs to scan a QR code (returned alongside), or the page is in neither
// recognizable state.
func (d *Detector) Classify(ctx context.Context, p Page) (Verdict, string) {
	if d.IsLoggedIn(p) {
		return LoggedIn, ""
	}
	qr, err := d.ExtractQR(ctx, p)
	if err != nil {
		return Indeterminate, ""
	}
	return QRPending, qr
}
