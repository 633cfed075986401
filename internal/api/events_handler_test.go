package api

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/armsd/internal/events"
)

func TestParseLastEventID(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]int64{"": 0, "12": 12, "-3": 0, "abc": 0} {
		assert.Equal(t, want, parseLastEventID(in), in)
	}
}

func readEvent(t *testing.T, sc *bufio.Scanner) (id, typ, data string) {
	t.Helper()
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			typ = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && id != "":
			return id, typ, data
		}
	}
	t.Fatalf("stream ended: %v", sc.Err())
	return "", "", ""
}

func TestEventsStreamReplaysThenFollows(t *testing.T) {
	t.Parallel()
	f := newFixture(t, fixtureOptions{})
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	f.hub.Publish(events.TypeArmsPruned, events.ArmsPruned{Arms: []string{"old"}})
	f.hub.Publish(events.TypeArmsPruned, events.ArmsPruned{Arms: []string{"older"}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	id, typ, data := readEvent(t, sc)
	assert.Equal(t, "2", id)
	assert.Equal(t, events.TypeArmsPruned, typ)
	assert.JSONEq(t, `{"arms":["older"]}`, data)

	// The handler subscribes before replaying, so this is delivered live.
	require.Eventually(t, func() bool { return f.hub.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	f.srv.publish(events.TypeArmSampled, events.ArmSampled{DecisionID: "d-1", Arm: "hero-a", Draw: 0.7})

	id, typ, data = readEvent(t, sc)
	assert.Equal(t, "3", id)
	assert.Equal(t, events.TypeArmSampled, typ)
	assert.Contains(t, data, `"decision_id":"d-1"`)
}
