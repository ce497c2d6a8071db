package dashboard

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gmvreport/gmvdash/internal/apiclient"
	"github.com/gmvreport/gmvdash/internal/query"
	"github.com/gmvreport/gmvdash/internal/service"
	"github.com/gmvreport/gmvdash/internal/session"
	"github.com/gmvreport/gmvdash/internal/views"
)

// Views that can be followed over /ws.
const (
	viewManager = "manager"
	viewHost    = "host"
	viewHosts   = "hosts"
	viewUsers   = "users"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// liveView maps a view to the roles allowed to follow it and the queries
// its page reads.
type liveView struct {
	roles   []apiclient.Role
	queries func(s *server, q url.Values) []service.Query
}

var liveViews = map[string]liveView{
	viewManager: {
		roles: []apiclient.Role{apiclient.RoleManager},
		queries: func(s *server, q url.Values) []service.Query {
			reports, stats, hostStats, months := managerQueries(s.svc, views.ParseReportFilter(q), s.now())
			return []service.Query{reports, stats, hostStats, months}
		},
	},
	viewHost: {
		roles: []apiclient.Role{apiclient.RoleHost},
		queries: func(s *server, q url.Values) []service.Query {
			reports, months := hostQueries(s.svc, views.ParseReportFilter(q), s.now())
			return []service.Query{reports, months}
		},
	},
	viewHosts: {
		roles: []apiclient.Role{apiclient.RoleManager},
		queries: func(s *server, q url.Values) []service.Query {
			return []service.Query{s.svc.Hosts(views.ParseHostFilter(q).Params())}
		},
	},
	viewUsers: {
		roles: []apiclient.Role{apiclient.RoleManager},
		queries: func(s *server, q url.Values) []service.Query {
			return []service.Query{s.svc.PendingUsers()}
		},
	},
}

// liveQuery is the websocket query string for a view: its filter plus the
// time the page read its data.
func liveQuery(view string, filter url.Values, rendered time.Time) string {
	q := url.Values{}
	for k, vs := range filter {
		q[k] = vs
	}
	q.Set("view", view)
	q.Set("since", strconv.FormatInt(rendered.UnixMilli(), 10))
	return q.Encode()
}

// liveMessage is the only frame shape in both directions.
type liveMessage struct {
	Type string `json:"type"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// liveClient is one open page. Its subscriptions keep the page's queries
// fresh for as long as the socket is open.
type liveClient struct {
	conn    *websocket.Conn
	subs    []*query.Subscription
	changed chan struct{}
	expired chan struct{}
	done    chan struct{}

	mu   sync.Mutex
	seen map[string]query.Snapshot
}

// live upgrades to a websocket, subscribes the view's queries, and pushes
// {"type":"changed"} whenever one of them gets new data or a new error.
// The client may send {"type":"focus"} to refetch stale data.
func (s *server) live(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	view, ok := liveViews[params.Get("view")]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown_view", "unknown live view")
		return
	}
	if s.guard.Authorize(view.roles...) != session.Allow {
		writeError(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &liveClient{
		conn:    conn,
		changed: make(chan struct{}, 1),
		expired: make(chan struct{}, 1),
		done:    make(chan struct{}),
		seen:    make(map[string]query.Snapshot),
	}
	var since time.Time
	if ms, err := strconv.ParseInt(params.Get("since"), 10, 64); err == nil {
		since = time.UnixMilli(ms)
	}
	for _, q := range view.queries(s, params) {
		sub := s.svc.Subscribe(q, c.observe)
		c.baseline(sub.Snapshot(), since)
		c.subs = append(c.subs, sub)
	}
	cancel := s.guard.Subscribe(func(st session.State) {
		if st != session.Authenticated {
			signal(c.expired)
		}
	})

	if s.metrics != nil {
		s.metrics.LiveConnections.Inc()
	}
	s.logger.Debug("live view opened", "view", params.Get("view"), "queries", len(c.subs))

	go func() {
		defer func() {
			cancel()
			for _, sub := range c.subs {
				sub.Close()
			}
			if s.metrics != nil {
				s.metrics.LiveConnections.Dec()
			}
		}()
		c.writePump()
	}()
	c.readPump(s.svc.Cache())
}

// signal does a non-blocking send; one pending signal is enough.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// baseline records what the page was rendered from. Data that arrived
// after the page read it is announced right away.
func (c *liveClient) baseline(snap query.Snapshot, since time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[snap.Key.String()]; ok {
		return
	}
	c.seen[snap.Key.String()] = snap
	if !since.IsZero() && snap.FetchedAt.After(since) {
		signal(c.changed)
	}
}

// observe is the subscription callback. Loading and fetching flips are not
// worth a reload; new data or a new error is.
func (c *liveClient) observe(snap query.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := snap.Key.String()
	prev, ok := c.seen[key]
	c.seen[key] = snap
	if !ok {
		if snap.Status == query.StatusSuccess || snap.Status == query.StatusError {
			signal(c.changed)
		}
		return
	}
	if !snap.FetchedAt.Equal(prev.FetchedAt) || errText(snap.Err) != errText(prev.Err) {
		signal(c.changed)
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (c *liveClient) readPump(cache *query.Client) {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg liveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "focus" {
			cache.Focus()
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case <-c.changed:
			if err := c.write(liveMessage{Type: "changed"}); err != nil {
				return
			}
		case <-c.expired:
			_ = c.write(liveMessage{Type: "expired"})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *liveClient) write(msg liveMessage) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}
