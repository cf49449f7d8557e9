package lavalink

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/guildbox/internal/domain/player"
	"github.com/osa030/guildbox/internal/domain/track"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

// fakeNode serves the Lavalink websocket and REST API.
type fakeNode struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu          sync.Mutex
	requests    []recordedRequest
	statuses    map[string]int // "METHOD path" -> status
	loadBody    string
	sessionIDs  []string // Session-Id header of each dial
	conns       chan *websocket.Conn
	dialCount   int
	nextSession string
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()

	n := &fakeNode{
		t:           t,
		statuses:    make(map[string]int),
		conns:       make(chan *websocket.Conn, 4),
		nextSession: "s1",
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(n.server.Close)
	return n
}

func (n *fakeNode) handle(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "pw" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if r.URL.Path == "/v4/websocket" {
		n.mu.Lock()
		n.dialCount++
		resumed := r.Header.Get("Session-Id") != ""
		n.sessionIDs = append(n.sessionIDs, r.Header.Get("Session-Id"))
		session := n.nextSession
		n.mu.Unlock()

		conn, err := n.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]any{"op": "ready", "resumed": resumed, "sessionId": session})
		n.conns <- conn
		return
	}

	body, _ := io.ReadAll(r.Body)
	key := r.Method + " " + r.URL.Path

	n.mu.Lock()
	n.requests = append(n.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: string(body)})
	status, ok := n.statuses[key]
	loadBody := n.loadBody
	n.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if ok && status >= 300 {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"status":`+strconv.Itoa(status)+`,"error":"err","message":"rejected","path":"`+r.URL.Path+`"}`)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/v4/loadtracks") {
		_, _ = io.WriteString(w, loadBody)
		return
	}
	if r.Method == http.MethodDelete {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_, _ = io.WriteString(w, `{}`)
}

func (n *fakeNode) setStatus(method, path string, status int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses[method+" "+path] = status
}

func (n *fakeNode) setLoadBody(body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loadBody = body
}

func (n *fakeNode) lastRequest() recordedRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(n.t, n.requests)
	return n.requests[len(n.requests)-1]
}

func (n *fakeNode) requestsTo(method, path string) []recordedRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []recordedRequest
	for _, r := range n.requests {
		if r.Method == method && r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (n *fakeNode) dials() (int, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dialCount, append([]string(nil), n.sessionIDs...)
}

func (n *fakeNode) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-n.conns:
		return c
	case <-time.After(time.Second):
		t.Fatal("no websocket connection")
		return nil
	}
}

func (n *fakeNode) config(t *testing.T) Config {
	t.Helper()
	u, err := url.Parse(n.server.URL)
	require.NoError(t, err)
	host, port, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	return Config{
		Host:           host,
		Port:           p,
		Password:       "pw",
		UserID:         1,
		RESTRate:       1000,
		RESTBurst:      100,
		ReconnectDelay: 10 * time.Millisecond,
		VoiceTimeout:   time.Second,
	}
}

type recordingListener struct {
	mu      sync.Mutex
	starts  []string
	ends    []player.EndReason
	updates []time.Duration
}

func (l *recordingListener) OnTrackStart(guildID snowflake.ID, t track.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, t.Title)
}

func (l *recordingListener) OnTrackEnd(guildID snowflake.ID, t track.Track, reason player.EndReason) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ends = append(l.ends, reason)
}

func (l *recordingListener) OnPlayerUpdate(guildID snowflake.ID, position time.Duration, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, position)
}

func (l *recordingListener) counts() (int, int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.starts), len(l.ends), len(l.updates)
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    []*snowflake.ID
	onUpdate func(guildID snowflake.ID, channelID *snowflake.ID)
}

func (g *fakeGateway) UpdateVoiceState(ctx context.Context, guildID snowflake.ID, channelID *snowflake.ID) error {
	g.mu.Lock()
	g.calls = append(g.calls, channelID)
	cb := g.onUpdate
	g.mu.Unlock()
	if cb != nil {
		go cb(guildID, channelID)
	}
	return nil
}

type countingMetrics struct {
	mu  sync.Mutex
	ok  int
	bad int
}

func (m *countingMetrics) BackendRequest(op string, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.ok++
	} else {
		m.bad++
	}
}

func connect(t *testing.T, node *fakeNode, gateway VoiceGateway, metrics Metrics) *Client {
	t.Helper()
	c := New(node.config(t), gateway, metrics)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)
	return c
}

const sampleTrack = `{"encoded":"QAAA","info":{"identifier":"dQw4w9WgXcQ","isSeekable":true,"author":"Rick Astley","length":213000,"isStream":false,"position":0,"title":"Never Gonna Give You Up","uri":"https://www.youtube.com/watch?v=dQw4w9WgXcQ","artworkUrl":"https://i.ytimg.com/vi/dQw4w9WgXcQ/mqdefault.jpg","sourceName":"youtube"}}`

func TestClient_LoadTracks(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantType      LoadType
		wantTitles    []string
		wantPlaylist  string
		wantErr       bool
		wantTransient bool
	}{
		{
			name:       "single track",
			body:       `{"loadType":"track","data":` + sampleTrack + `}`,
			wantType:   LoadTypeTrack,
			wantTitles: []string{"Never Gonna Give You Up"},
		},
		{
			name:       "search results",
			body:       `{"loadType":"search","data":[` + sampleTrack + `,` + sampleTrack + `]}`,
			wantType:   LoadTypeSearch,
			wantTitles: []string{"Never Gonna Give You Up", "Never Gonna Give You Up"},
		},
		{
			name:         "playlist",
			body:         `{"loadType":"playlist","data":{"info":{"name":"Mix","selectedTrack":-1},"pluginInfo":{},"tracks":[` + sampleTrack + `]}}`,
			wantType:     LoadTypePlaylist,
			wantTitles:   []string{"Never Gonna Give You Up"},
			wantPlaylist: "Mix",
		},
		{
			name:     "empty",
			body:     `{"loadType":"empty","data":{}}`,
			wantType: LoadTypeEmpty,
		},
		{
			name:    "common error",
			body:    `{"loadType":"error","data":{"message":"Video unavailable","severity":"common","cause":"x"}}`,
			wantErr: true,
		},
		{
			name:          "fault error",
			body:          `{"loadType":"error","data":{"message":"Something broke","severity":"fault","cause":"x"}}`,
			wantErr:       true,
			wantTransient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode(t)
			node.setLoadBody(tt.body)
			c := New(node.config(t), nil, nil)

			result, err := c.LoadTracks(context.Background(), "ytsearch:never gonna")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantTransient, errors.Is(err, player.ErrTransient))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, result.Type)
			assert.Equal(t, tt.wantPlaylist, result.PlaylistName)

			titles := make([]string, 0, len(result.Tracks))
			for _, tr := range result.Tracks {
				titles = append(titles, tr.Title)
			}
			if len(tt.wantTitles) == 0 {
				assert.Empty(t, titles)
			} else {
				assert.Equal(t, tt.wantTitles, titles)
			}
		})
	}
}

func TestClient_LoadTracksMapsTrack(t *testing.T) {
	node := newFakeNode(t)
	node.setLoadBody(`{"loadType":"track","data":` + sampleTrack + `}`)
	c := New(node.config(t), nil, nil)

	result, err := c.LoadTracks(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Len(t, result.Tracks, 1)

	assert.Equal(t, track.Track{
		ID:         "QAAA",
		Title:      "Never Gonna Give You Up",
		Author:     "Rick Astley",
		Duration:   213 * time.Second,
		URI:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		ArtworkURL: "https://i.ytimg.com/vi/dQw4w9WgXcQ/mqdefault.jpg",
		SourceName: "youtube",
	}, result.Tracks[0])
}

func TestClient_PlayerCommands(t *testing.T) {
	ctx := context.Background()
	node := newFakeNode(t)
	metrics := &countingMetrics{}
	c := connect(t, node, nil, metrics)

	const path = "/v4/sessions/s1/players/42"
	tests := []struct {
		name     string
		call     func() error
		wantBody string
	}{
		{
			name:     "play",
			call:     func() error { return c.Play(ctx, 42, track.Track{ID: "QAAA"}) },
			wantBody: `{"track":{"encoded":"QAAA"},"paused":false}`,
		},
		{
			name:     "pause",
			call:     func() error { return c.Pause(ctx, 42) },
			wantBody: `{"paused":true}`,
		},
		{
			name:     "resume",
			call:     func() error { return c.Resume(ctx, 42) },
			wantBody: `{"paused":false}`,
		},
		{
			name:     "seek",
			call:     func() error { return c.Seek(ctx, 42, 90*time.Second) },
			wantBody: `{"position":90000}`,
		},
		{
			name:     "volume",
			call:     func() error { return c.SetVolume(ctx, 42, 70) },
			wantBody: `{"volume":70}`,
		},
		{
			name:     "stop",
			call:     func() error { return c.Stop(ctx, 42) },
			wantBody: `{"track":{"encoded":null}}`,
		},
		{
			name:     "effects",
			call:     func() error { return c.SetEffects(ctx, 42, []string{"nightcore"}) },
			wantBody: `{"filters":{"timescale":{"speed":1.25,"pitch":1.25,"rate":1}}}`,
		},
		{
			name:     "clear effects",
			call:     func() error { return c.SetEffects(ctx, 42, nil) },
			wantBody: `{"filters":{}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.call())
			req := node.lastRequest()
			assert.Equal(t, http.MethodPatch, req.Method)
			assert.Equal(t, path, req.Path)
			assert.JSONEq(t, tt.wantBody, req.Body)
		})
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	assert.Equal(t, len(tests), metrics.ok)
	assert.Zero(t, metrics.bad)
}

func TestClient_PlayErrors(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		wantLoadFailed bool
		wantTransient  bool
	}{
		{name: "refused track", status: http.StatusBadRequest, wantLoadFailed: true},
		{name: "node failure", status: http.StatusServiceUnavailable, wantTransient: true},
		{name: "unknown session", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := newFakeNode(t)
			node.setStatus(http.MethodPatch, "/v4/sessions/s1/players/42", tt.status)
			c := connect(t, node, nil, nil)

			err := c.Play(context.Background(), 42, track.Track{ID: "bad"})
			require.Error(t, err)
			assert.Equal(t, tt.wantLoadFailed, errors.Is(err, player.ErrLoadFailed))
			assert.Equal(t, tt.wantTransient, errors.Is(err, player.ErrTransient))

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.Status)
			assert.Equal(t, "rejected", se.Message)
		})
	}
}

func TestClient_NotConnected(t *testing.T) {
	node := newFakeNode(t)
	c := New(node.config(t), nil, nil)

	err := c.Pause(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.True(t, errors.Is(err, player.ErrTransient))
}

func TestClient_Events(t *testing.T) {
	node := newFakeNode(t)
	listener := &recordingListener{}
	c := New(node.config(t), nil, nil)
	c.SetListener(listener)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)

	conn := node.conn(t)
	var tr map[string]any
	require.NoError(t, json.Unmarshal([]byte(sampleTrack), &tr))

	require.NoError(t, conn.WriteJSON(map[string]any{"op": "stats", "players": 1}))
	require.NoError(t, conn.WriteJSON(map[string]any{"op": "event", "type": "TrackStartEvent", "guildId": "42", "track": tr}))
	require.NoError(t, conn.WriteJSON(map[string]any{
		"op": "playerUpdate", "guildId": "42",
		"state": map[string]any{"time": time.Now().UnixMilli(), "position": 12000, "connected": true, "ping": 20},
	}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	require.NoError(t, conn.WriteJSON(map[string]any{"op": "event", "type": "TrackEndEvent", "guildId": "not-a-snowflake", "track": tr, "reason": "finished"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"op": "event", "type": "TrackEndEvent", "guildId": "42", "track": tr, "reason": "loadFailed"}))

	assert.Eventually(t, func() bool {
		_, ends, _ := listener.counts()
		return ends == 1
	}, time.Second, 10*time.Millisecond)

	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Equal(t, []string{"Never Gonna Give You Up"}, listener.starts)
	assert.Equal(t, []time.Duration{12 * time.Second}, listener.updates)
	assert.Equal(t, []player.EndReason{player.EndLoadFailed}, listener.ends)
}

func TestClient_ReconnectResumesSession(t *testing.T) {
	node := newFakeNode(t)
	cfg := node.config(t)
	cfg.ResumeTimeout = time.Minute
	c := New(cfg, nil, nil)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)

	resuming := node.requestsTo(http.MethodPatch, "/v4/sessions/s1")
	require.Len(t, resuming, 1)
	assert.JSONEq(t, `{"resuming":true,"timeout":60}`, resuming[0].Body)

	first := node.conn(t)
	require.NoError(t, first.Close())

	assert.Eventually(t, func() bool {
		n, _ := node.dials()
		return n == 2
	}, 2*time.Second, 10*time.Millisecond)

	_, sessions := node.dials()
	assert.Equal(t, []string{"", "s1"}, sessions)
}

func TestClient_Join(t *testing.T) {
	node := newFakeNode(t)
	gateway := &fakeGateway{}
	c := connect(t, node, gateway, nil)

	gateway.onUpdate = func(guildID snowflake.ID, channelID *snowflake.ID) {
		c.OnVoiceStateUpdate(guildID, channelID, "voice-session")
		c.OnVoiceServerUpdate(guildID, "token", "endpoint.discord.media")
	}

	require.NoError(t, c.Join(context.Background(), 42, 77))

	voice := node.requestsTo(http.MethodPatch, "/v4/sessions/s1/players/42")
	require.Len(t, voice, 1)
	assert.JSONEq(t, `{"voice":{"token":"token","endpoint":"endpoint.discord.media","sessionId":"voice-session","channelId":"77"}}`, voice[0].Body)

	// Already connected to the same channel
	require.NoError(t, c.Join(context.Background(), 42, 77))
	gateway.mu.Lock()
	assert.Len(t, gateway.calls, 1)
	gateway.mu.Unlock()
}

func TestClient_JoinTimeout(t *testing.T) {
	node := newFakeNode(t)
	cfg := node.config(t)
	cfg.VoiceTimeout = 50 * time.Millisecond
	c := New(cfg, &fakeGateway{}, nil)
	require.NoError(t, c.Connect(context.Background()))
	t.Cleanup(c.Close)

	err := c.Join(context.Background(), 42, 77)
	assert.ErrorIs(t, err, ErrVoiceTimeout)
}

func TestClient_Leave(t *testing.T) {
	node := newFakeNode(t)
	node.setStatus(http.MethodDelete, "/v4/sessions/s1/players/42", http.StatusNotFound)
	gateway := &fakeGateway{}
	c := connect(t, node, gateway, nil)

	require.NoError(t, c.Leave(context.Background(), 42))
	require.Len(t, node.requestsTo(http.MethodDelete, "/v4/sessions/s1/players/42"), 1)

	gateway.mu.Lock()
	defer gateway.mu.Unlock()
	require.Len(t, gateway.calls, 1)
	assert.Nil(t, gateway.calls[0])
}
