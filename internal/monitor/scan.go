package monitor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/andrelcx/wamon/internal/bus"
	"github.com/andrelcx/wamon/internal/store"
)

// collectMessagesScript scrapes visible messages from the open conversation.
// Each row's timestamp comes from its own data-pre-plain-text metadata
// ("[HH:MM, DD/MM/YYYY] Sender: "), parsed to epoch seconds; rows at or below
// the watermark, and rows without parsable metadata, are skipped so the
// watermark actually excludes already-scanned history.
const collectMessagesScript = `(since) => {
	const out = [];
	const rows = document.querySelectorAll('#main .message-in, #main .message-out');
	const header = document.querySelector('#main header span[title]');
	const chatId = header ? (header.getAttribute('title') || '') : '';
	for (const row of rows) {
		const textEl = row.querySelector('.selectable-text');
		if (!textEl) {
			continue;
		}
		const text = textEl.innerText || '';
		if (!text) {
			continue;
		}
		const meta = row.querySelector('[data-pre-plain-text]');
		const pre = meta ? (meta.getAttribute('data-pre-plain-text') || '') : '';
		const m = pre.match(/\[(\d{1,2}):(\d{2})(?::(\d{2}))?,\s*(\d{1,2})\/(\d{1,2})\/(\d{4})\]/);
		if (!m) {
			continue;
		}
		const when = new Date(+m[6], +m[5] - 1, +m[4], +m[1], +m[2], +(m[3] || 0));
		const ts = Math.floor(when.getTime() / 1000);
		if (ts <= since) {
			continue;
		}
		out.push({
			text: text,
			timestamp: ts,
			sender: row.classList.contains('message-out') ? 'me' : 'contact',
			chat_id: chatId,
			message_type: 'text',
			created_at: ts,
		});
	}
	return out;
}`

type scanCandidate struct {
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
	Sender      string `json:"sender"`
	ChatID      string `json:"chat_id"`
	MessageType string `json:"message_type"`
	CreatedAt   int64  `json:"created_at"`
}

// MessageID derives a stable message id from content. Re-scanning the same
// DOM region must yield the same id so storage dedup absorbs replays.
func MessageID(text string, timestamp int64, sender string) string {
	sum := sha256.Sum256([]byte(text + "|" + strconv.FormatInt(timestamp, 10) + "|" + sender))
	return hex.EncodeToString(sum[:])
}

// scanLoop polls the page for new messages on a fixed tick until monitoring
// stops or the failure threshold trips.
func (m *Monitor) scanLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.Monitor.ScanInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !m.monitoringActive() {
			return
		}
		if stop := m.scanOnce(ctx); stop {
			return
		}
	}
}

// scanOnce runs a single scan tick. Returns true when the loop must stop.
func (m *Monitor) scanOnce(ctx context.Context) bool {
	b := m.currentBrowser()
	if b == nil {
		return true
	}

	m.mu.Lock()
	since := m.state.LastMessageTimestamp
	m.mu.Unlock()

	var candidates []scanCandidate
	if err := b.Eval(ctx, collectMessagesScript, &candidates, since); err != nil {
		return m.recordScanFailure(err)
	}

	// Any successful tick is a sign of life: reset the failure streak and
	// refresh the heartbeat whether or not messages arrived.
	m.mu.Lock()
	m.state.Health.ConsecutiveFailures = 0
	m.state.Health.LastHeartbeat = m.now()
	m.mu.Unlock()

	for _, c := range candidates {
		if c.CreatedAt <= since {
			continue
		}
		msg := store.Message{
			ID:          MessageID(c.Text, c.Timestamp, c.Sender),
			ChatID:      c.ChatID,
			Sender:      c.Sender,
			Body:        c.Text,
			MessageType: c.MessageType,
			Timestamp:   c.Timestamp,
			CreatedAt:   c.CreatedAt,
		}
		stored, err := m.store.StoreMessage(ctx, msg)
		if err != nil {
			// At-least-once toward storage: skip this message, keep the tick.
			m.logger.Error("storing message failed", zap.String("id", msg.ID), zap.Error(err))
			continue
		}

		m.mu.Lock()
		if c.CreatedAt > m.state.LastMessageTimestamp {
			m.state.LastMessageTimestamp = c.CreatedAt
		}
		if stored {
			m.state.MessageCount++
			if msg.ChatID != "" && !contains(m.state.ActiveChats, msg.ChatID) {
				m.state.ActiveChats = append(m.state.ActiveChats, msg.ChatID)
			}
		}
		m.mu.Unlock()

		if stored {
			m.publish(bus.KindMessageStored, msg)
		}
	}
	return false
}

func (m *Monitor) recordScanFailure(err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Health.ConsecutiveFailures++
	failures := m.state.Health.ConsecutiveFailures
	m.logger.Warn("scan tick failed", zap.Int("consecutive_failures", failures), zap.Error(err))

	if failures > m.cfg.Monitor.MaxConsecutiveFailures {
		m.setErrorLocked("Connection lost - too many scan failures")
		m.state.Health.MonitoringActive = false
		return true
	}
	return false
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
