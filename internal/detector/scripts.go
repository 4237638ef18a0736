package detector

// Scripts evaluated inside the WhatsApp Web page. Element-scoped scripts
// receive the matched element as `this`.

// canvasDataURLScript renders a single QR canvas to a data URL. Tainted or
// zero-sized canvases throw; returning null lets the caller fall through to
// the next selector.
const canvasDataURLScript = `() => {
	try {
		return this.toDataURL();
	} catch (e) {
		return null;
	}
}`

// anyCanvasDataURLScript sweeps every canvas on the page and returns the
// first render large enough to plausibly be a QR code.
const anyCanvasDataURLScript = `() => {
	const canvases = document.querySelectorAll('canvas');
	for (const c of canvases) {
		try {
			const data = c.toDataURL();
			if (data && data.length > 1000) {
				return data;
			}
		} catch (e) {}
	}
	return null;
}`

// qrRefScript reads the pairing payload WhatsApp Web stores on the QR
// container. The payload is what the canvas encodes, so a local render of it
// is an equivalent QR image.
const qrRefScript = `() => this.getAttribute('data-ref')`

// sessionProbeScript checks for the app globals and a populated chat list,
// the two signals that survive WhatsApp Web markup churn longest.
const sessionProbeScript = `() => {
	try {
		if (window.Store && window.Store.Chat) {
			return true;
		}
		const list = document.querySelector('[data-testid="chat-list"]');
		if (list && list.children.length > 0) {
			return true;
		}
		return false;
	} catch (e) {
		return false;
	}
}`
