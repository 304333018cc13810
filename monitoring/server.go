package monitoring

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server /metrics 服务
type Server struct {
	mu     sync.Mutex
	server *http.Server
}

// NewServer 创建服务
func NewServer(m *Metrics, addr string) *Server {
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           m.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run 监听并服务，直到 ctx 结束后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务，直到 ctx 结束
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 停止服务
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server.Shutdown(ctx)
}
