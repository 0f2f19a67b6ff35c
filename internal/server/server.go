package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/shaunagostinho/goradar/internal/gauge"
	"github.com/shaunagostinho/goradar/internal/geo"
	"github.com/shaunagostinho/goradar/internal/geocode"
	"github.com/shaunagostinho/goradar/internal/gps"
	"github.com/shaunagostinho/goradar/internal/nav"
)

// Server pumps GPS fixes into the navigation session and broadcasts gauge
// frames to WebSocket clients.
type Server struct {
	cfg      *Config
	session  *nav.Session
	gpsProv  gps.Provider
	geocoder geocode.Geocoder
	webFS    fs.FS

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	blink     atomic.Bool
	gpsStatus atomic.Pointer[gps.Status]
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Nav     *nav.State       `json:"nav,omitempty"`
	Gauge   *gauge.Placement `json:"gauge,omitempty"` // Absent while idle
	Blink   bool             `json:"blink"`           // Target marker visible
	Readout string           `json:"readout,omitempty"`
	GPS     *gps.Status      `json:"gps,omitempty"`
	Config  *GaugeConfig     `json:"config,omitempty"` // On connect and config change
	Stamp   int64            `json:"stamp"`            // Unix ms
}

// New creates a new Server. gpsProv may be nil when the location source is
// disabled; geocoder may be nil to accept coordinates only.
func New(cfg *Config, session *nav.Session, gpsProv gps.Provider, geocoder geocode.Geocoder, webFS fs.FS) *Server {
	if geocoder == nil {
		geocoder = geocode.Literal{}
	}
	s := &Server{
		cfg:      cfg,
		session:  session,
		gpsProv:  gpsProv,
		geocoder: geocoder,
		webFS:    webFS,
		clients:  make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.blink.Store(true)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve embedded web files
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	// Config API
	mux.HandleFunc("/api/config", s.handleConfig)

	// Navigation API
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/destination", s.handleDestination)
	mux.HandleFunc("/api/track", s.handleTrack)

	return mux
}

// Run starts the HTTP server and the GPS, blink and broadcast loops.
func (s *Server) Run(ctx context.Context) error {
	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Snapshot().Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", n)

	// Send gauge config with the current frame so the client can draw at once
	first := s.frame()
	gc := s.cfg.Snapshot().Gauge
	first.Config = &gc
	if data, err := json.Marshal(first); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		// Broadcast updated gauge config
		gc := s.cfg.Snapshot().Gauge
		s.broadcast(Frame{Config: &gc, Blink: s.blink.Load(), Stamp: time.Now().UnixMilli()})

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	writeJSON(w, http.StatusOK, s.frame())
}

// destinationRequest is either explicit coordinates or a free-text query.
type destinationRequest struct {
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
	Query string   `json:"query"`
}

func (s *Server) handleDestination(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st := s.session.Snapshot()
		if st.Destination == nil {
			http.Error(w, nav.ErrNoDestination.Error(), 404)
			return
		}
		writeJSON(w, http.StatusOK, st.Destination)

	case http.MethodPost:
		var req destinationRequest
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
			http.Error(w, "bad request: "+err.Error(), 400)
			return
		}

		p, status, err := s.resolveDestination(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), status)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.session.SetDestination(ctx, p); err != nil {
			if errors.Is(err, geo.ErrInvalidPoint) {
				http.Error(w, err.Error(), 400)
				return
			}
			http.Error(w, err.Error(), 503)
			return
		}
		writeJSON(w, http.StatusOK, s.session.Snapshot())

	case http.MethodDelete:
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.session.ClearDestination(ctx); err != nil {
			http.Error(w, err.Error(), 503)
			return
		}
		writeJSON(w, http.StatusOK, s.session.Snapshot())

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// resolveDestination returns the point for req and the HTTP status to use on
// failure.
func (s *Server) resolveDestination(ctx context.Context, req destinationRequest) (geo.Point, int, error) {
	if req.Lat != nil || req.Lon != nil {
		if req.Lat == nil || req.Lon == nil {
			return geo.Point{}, 400, errors.New("both lat and lon are required")
		}
		p := geo.Point{Lat: *req.Lat, Lon: *req.Lon}
		if err := p.Check(); err != nil {
			return geo.Point{}, 400, err
		}
		return p, 0, nil
	}
	if req.Query == "" {
		return geo.Point{}, 400, errors.New("lat/lon or query required")
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	p, err := s.geocoder.Lookup(ctx, req.Query)
	switch {
	case err == nil:
		return p, 0, nil
	case errors.Is(err, geocode.ErrNotFound):
		return geo.Point{}, 404, err
	default:
		log.Printf("[geocode] lookup %q failed: %v", req.Query, err)
		return geo.Point{}, 502, fmt.Errorf("geocoding failed: %w", err)
	}
}

// handleTrack exports the smoothing window, smoothed position and
// destination as GeoJSON.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	data, err := trackGeoJSON(s.session.Snapshot(), s.session.Track()).MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

func trackGeoJSON(st nav.State, window []geo.Point) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if len(window) > 0 {
		ls := make(orb.LineString, 0, len(window))
		for _, p := range window {
			ls = append(ls, orbPoint(p))
		}
		var g orb.Geometry = ls
		if len(ls) == 1 {
			g = ls[0]
		}
		f := geojson.NewFeature(g)
		f.Properties["role"] = "window"
		fc.Append(f)
	}
	if st.Position != nil {
		f := geojson.NewFeature(orbPoint(*st.Position))
		f.Properties["role"] = "position"
		if st.HeadingValid {
			f.Properties["heading"] = st.Heading
		}
		fc.Append(f)
	}
	if st.Destination != nil {
		f := geojson.NewFeature(orbPoint(*st.Destination))
		f.Properties["role"] = "destination"
		f.Properties["session"] = st.SessionID
		if st.Active() {
			f.Properties["distance"] = st.Distance
		}
		fc.Append(f)
	}
	return fc
}

func orbPoint(p geo.Point) orb.Point { return orb.Point{p.Lon, p.Lat} }

// pollLoop runs the GPS pump, the blink clock and the broadcast loop. The
// pump feeds the session at fix cadence; broadcasts read snapshots only.
func (s *Server) pollLoop(ctx context.Context) {
	cfg := s.cfg.Snapshot()
	gpsHz := cfg.GPS.PollHz
	if gpsHz <= 0 {
		gpsHz = 10
	}
	broadcastHz := cfg.Server.BroadcastHz
	if broadcastHz <= 0 {
		broadcastHz = 10
	}
	gpsTicker := time.NewTicker(time.Second / time.Duration(gpsHz))
	blinkTicker := time.NewTicker(time.Duration(cfg.Gauge.BlinkMs) * time.Millisecond)
	broadcastTicker := time.NewTicker(time.Second / time.Duration(broadcastHz))
	defer gpsTicker.Stop()
	defer blinkTicker.Stop()
	defer broadcastTicker.Stop()

	// GPS polling goroutine, independent of the broadcast rate
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-gpsTicker.C:
				s.pumpGPS()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-blinkTicker.C:
			s.blink.Store(!s.blink.Load())
		case <-broadcastTicker.C:
			s.broadcast(s.frame())
		}
	}
}

// pumpGPS moves at most one fix from the provider into the session.
func (s *Server) pumpGPS() {
	if s.gpsProv == nil {
		return
	}
	fix, err := s.gpsProv.Read()
	st := s.gpsProv.Status()
	s.gpsStatus.Store(&st)
	if err != nil || fix == nil {
		return
	}
	s.session.Submit(*fix)
}

// frame assembles what the display needs from the latest snapshot.
func (s *Server) frame() Frame {
	st := s.session.Snapshot()
	f := Frame{
		Nav:   &st,
		Blink: s.blink.Load(),
		GPS:   s.gpsStatus.Load(),
		Stamp: time.Now().UnixMilli(),
	}
	if st.Active() {
		mapper := s.cfg.Snapshot().Gauge.Mapper
		p := mapper.Place(st.RelativeBearing, st.Distance)
		f.Gauge = &p
		f.Readout = formatDistance(st.Distance)
	}
	return f
}

// formatDistance renders whole meters below a kilometer, then tenths of a
// kilometer.
func formatDistance(m float64) string {
	switch {
	case m < 1000:
		return fmt.Sprintf("%.0f m", m)
	case m < 100000:
		return fmt.Sprintf("%.1f km", m/1000)
	default:
		return fmt.Sprintf("%.0f km", m/1000)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
