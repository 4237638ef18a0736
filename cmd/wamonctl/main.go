package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/andrelcx/wamon/internal/monitor"
	"github.com/andrelcx/wamon/internal/session"
	"github.com/andrelcx/wamon/internal/store"
)

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	limitFlag := flag.Int("limit", 50, "max messages to list")
	flag.Parse()

	sessionName := session.Resolve(*sessionFlag)
	if err := session.ValidateName(sessionName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := newClient(session.SocketPath(sessionName))
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "connect":
		cmdState(ctx, c, "/v1/session/connect", *jsonFlag)
	case "disconnect":
		cmdOK(ctx, c, "/v1/session/disconnect")
	case "check-login":
		cmdState(ctx, c, "/v1/session/check-login", *jsonFlag)
	case "monitor":
		if len(args) < 2 || args[1] != "start" {
			fmt.Fprintln(os.Stderr, "usage: wamonctl monitor start")
			os.Exit(1)
		}
		cmdOK(ctx, c, "/v1/monitor/start")
	case "qr":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: wamonctl qr <output.png>")
			os.Exit(1)
		}
		cmdQR(ctx, c, args[1])
	case "messages":
		cmdMessages(ctx, c, *limitFlag, *jsonFlag)
	case "processed":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: wamonctl processed <id> <work|personal> [low|medium|high]")
			os.Exit(1)
		}
		priority := ""
		if len(args) >= 4 {
			priority = args[3]
		}
		cmdProcessed(ctx, c, args[1], args[2], priority)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: wamonctl [--session <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                               Show session status")
	fmt.Fprintln(os.Stderr, "  connect                              Connect to WhatsApp Web")
	fmt.Fprintln(os.Stderr, "  disconnect                           Disconnect and release the browser")
	fmt.Fprintln(os.Stderr, "  check-login                          Re-run login detection")
	fmt.Fprintln(os.Stderr, "  monitor start                        Start message monitoring")
	fmt.Fprintln(os.Stderr, "  qr <output.png>                      Save the current QR code")
	fmt.Fprintln(os.Stderr, "  messages [--limit N]                 List unprocessed messages")
	fmt.Fprintln(os.Stderr, "  processed <id> <work|personal> [prio] Mark a message triaged")
}

// client talks HTTP over the daemon's Unix socket.
type client struct {
	http *http.Client
}

func newClient(socketPath string) *client {
	return &client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cannot reach daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s", e.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func cmdStatus(ctx context.Context, c *client, jsonOut bool) {
	var state monitor.State
	if err := c.do(ctx, http.MethodGet, "/v1/session/status", nil, &state); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(state)
		return
	}
	printState(state)
}

func cmdState(ctx context.Context, c *client, path string, jsonOut bool) {
	var state monitor.State
	if err := c.do(ctx, http.MethodPost, path, nil, &state); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(state)
		return
	}
	printState(state)
	if state.Status == monitor.StatusQRCodeReady {
		fmt.Println("\nQR code ready. Save it with: wamonctl qr code.png")
	}
}

func cmdOK(ctx context.Context, c *client, path string) {
	if err := c.do(ctx, http.MethodPost, path, nil, nil); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdQR(ctx context.Context, c *client, outPath string) {
	var state monitor.State
	if err := c.do(ctx, http.MethodGet, "/v1/session/status", nil, &state); err != nil {
		fail(err)
	}
	if state.QRCode == "" {
		fail(fmt.Errorf("no QR code available (status: %s)", state.Status))
	}

	idx := strings.Index(state.QRCode, "base64,")
	if idx < 0 {
		fail(fmt.Errorf("QR code is not a base64 data URL"))
	}
	img, err := base64.StdEncoding.DecodeString(state.QRCode[idx+len("base64,"):])
	if err != nil {
		fail(fmt.Errorf("decode QR code: %w", err))
	}
	if err := os.WriteFile(outPath, img, 0600); err != nil {
		fail(err)
	}
	fmt.Printf("QR code written to %s\n", outPath)
}

func cmdMessages(ctx context.Context, c *client, limit int, jsonOut bool) {
	var resp struct {
		Messages []store.Message `json:"messages"`
		Count    int             `json:"count"`
	}
	path := fmt.Sprintf("/v1/messages/unprocessed?limit=%d", limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		fail(err)
	}
	if jsonOut {
		outputJSON(resp)
		return
	}
	if resp.Count == 0 {
		fmt.Println("no unprocessed messages")
		return
	}
	for _, m := range resp.Messages {
		fmt.Printf("%.12s  [%s] %s: %s\n", m.ID, m.ChatID, m.Sender, m.Body)
	}
}

func cmdProcessed(ctx context.Context, c *client, id, kind, priority string) {
	var workRelated bool
	switch kind {
	case "work":
		workRelated = true
	case "personal":
		workRelated = false
	default:
		fail(fmt.Errorf("classification must be work or personal, got %q", kind))
	}

	payload := map[string]any{"work_related": workRelated}
	if priority != "" {
		payload["priority"] = priority
	}
	body, _ := json.Marshal(payload)
	if err := c.do(ctx, http.MethodPost, "/v1/messages/"+id+"/processed", strings.NewReader(string(body)), nil); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func printState(s monitor.State) {
	fmt.Printf("Status:    %s\n", s.Status)
	if s.LastError != "" {
		fmt.Printf("Error:     %s\n", s.LastError)
	}
	if s.ConnectedSince != nil {
		fmt.Printf("Connected: %s\n", s.ConnectedSince.Format(time.RFC3339))
	}
	fmt.Printf("Messages:  %d\n", s.MessageCount)
	if len(s.ActiveChats) > 0 {
		fmt.Printf("Chats:     %s\n", strings.Join(s.ActiveChats, ", "))
	}
	fmt.Printf("Monitoring: %v (failures: %d, gaps: %d)\n",
		s.Health.MonitoringActive, s.Health.ConsecutiveFailures, s.Health.GapCount)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
