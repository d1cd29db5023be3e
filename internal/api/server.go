package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/burpheart/chatwire/internal/chatstream"
	"github.com/burpheart/chatwire/internal/client"
	"github.com/burpheart/chatwire/pkg/types"
)

// Server wires the upstream client, the recorder, and the WebSocket hub
// behind one HTTP listener.
type Server struct {
	config   types.Config
	upstream *client.Client
	recorder *chatstream.Recorder

	hub      *Hub
	httpSrv  *http.Server
	listener net.Listener
	log      zerolog.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewServer creates a new API server for the given configuration.
func NewServer(config types.Config, log zerolog.Logger) (*Server, error) {
	hub := NewHub()

	var recorder *chatstream.Recorder
	if config.RecordFile != "" {
		var err error
		recorder, err = chatstream.NewRecorder(
			config.RecordFile,
			chatstream.WithCacheSize(10000),
		)
		if err != nil {
			return nil, errors.Wrap(err, "create recorder")
		}
		log.Info().Str("file", config.RecordFile).Msg("stream recording enabled")
	}

	tokens := client.NewTokenProvider(config.Token, nil)
	upstream := client.New(config.APIBase, config.BotID, tokens,
		client.WithLogger(log),
		client.WithRecorder(recorder),
		client.WithBotVersion(config.BotVersion),
		client.WithConnectorID(config.ConnectorID),
		client.WithPageSize(config.HistoryPageSize),
	)

	return &Server{
		config:   config,
		upstream: upstream,
		recorder: recorder,
		hub:      hub,
		log:      log,
		stopChan: make(chan struct{}),
	}, nil
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start runs the server until Stop is called or the listener fails.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	go s.hub.Run()

	var store FrameStore = emptyStore{}
	if s.recorder != nil {
		store = s.recorder
	}
	handler := NewHandler(s.hub, store, s.upstream, s.upstream, s.log)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	s.listener = listener
	s.log.Info().Str("addr", s.config.ListenAddr).Msg("api server listening")

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- errors.Wrap(err, "serve")
		}
	}()

	select {
	case <-s.stopChan:
		return nil
	case err := <-errChan:
		return err
	}
}

// Stop shuts the server down and flushes the recorder.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopChan)

	if s.httpSrv != nil {
		s.httpSrv.Close()
	}
	if s.recorder != nil {
		s.recorder.Close()
	}
}

// emptyStore backs /api/frames when recording is disabled.
type emptyStore struct{}

func (emptyStore) RecentRecords(int) []chatstream.Record { return nil }
