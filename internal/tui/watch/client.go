package watch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/armsd/internal/api"
	"github.com/mattjoyce/armsd/internal/events"
)

// --- Message types ---

type eventMsg events.Event

type armsMsg api.ArmsResponse

type healthMsg api.HealthzResponse

type tickMsg time.Time

type errMsg error

// sseDisconnectedMsg carries the last event id seen so the next
// subscription resumes from the server's replay buffer.
type sseDisconnectedMsg struct{ lastID int64 }

type reconnectMsg struct{ lastID int64 }

// Client talks to a running armsd API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func (c Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.BaseURL, "/")+path, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return req, nil
}

func (c Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, path)
	if err != nil {
		return err
	}
	resp, err := c.httpClient(2 * time.Second).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("GET %s: %s %s", path, resp.Status, e.Error)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c Client) httpClient(timeout time.Duration) *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: timeout}
}

// Arms fetches the GET /arms snapshot.
func (c Client) Arms(ctx context.Context) (api.ArmsResponse, error) {
	var out api.ArmsResponse
	err := c.getJSON(ctx, "/arms", &out)
	return out, err
}

// Health fetches GET /healthz.
func (c Client) Health(ctx context.Context) (api.HealthzResponse, error) {
	var out api.HealthzResponse
	err := c.getJSON(ctx, "/healthz", &out)
	return out, err
}

// Stream reads /events until the connection drops, sending each event to
// ch. It returns the id of the last event delivered.
func (c Client) Stream(ctx context.Context, lastID int64, ch chan<- events.Event) (int64, error) {
	req, err := c.newRequest(ctx, "/events")
	if err != nil {
		return lastID, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatInt(lastID, 10))
	}

	// No client timeout: the stream is long-lived.
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return lastID, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return lastID, fmt.Errorf("GET /events: %s", resp.Status)
	}

	err = readSSE(resp.Body, func(ev events.Event) {
		lastID = ev.ID
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	})
	return lastID, err
}

// readSSE parses a text/event-stream body. Comment lines (keep-alives)
// are ignored; a blank line dispatches the pending event.
func readSSE(r io.Reader, emit func(events.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var pending events.Event
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				pending.Data = json.RawMessage(data.String())
				pending.At = time.Now()
				emit(pending)
			}
			pending = events.Event{}
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "id:"):
			if id, err := strconv.ParseInt(strings.TrimSpace(line[3:]), 10, 64); err == nil {
				pending.ID = id
			}
		case strings.HasPrefix(line, "event:"):
			pending.Type = strings.TrimSpace(line[6:])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line[5:], " "))
		}
	}
	return scanner.Err()
}

// --- Commands ---

func subscribeToEvents(c Client, lastID int64, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		last, _ := c.Stream(context.Background(), lastID, ch)
		return sseDisconnectedMsg{lastID: last}
	}
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func fetchArms(c Client) tea.Cmd {
	return func() tea.Msg {
		arms, err := c.Arms(context.Background())
		if err != nil {
			return errMsg(err)
		}
		return armsMsg(arms)
	}
}

func fetchHealth(c Client) tea.Msg {
	h, err := c.Health(context.Background())
	if err != nil {
		return errMsg(err)
	}
	return healthMsg(h)
}
