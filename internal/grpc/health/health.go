// Package health запускает gRPC-сервер процесса анализа со стандартным сервисом
// grpc.health.v1.Health. Статус обновляется по результату периодической проверки зависимостей.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/magabrotheeeer/zdravscan/internal/lib/sl"
)

// ServiceName - имя сервиса, под которым публикуется статус исполнителя.
const ServiceName = "zdravscan.ScanWorker"

// Pinger проверяет доступность зависимости.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server - gRPC-сервер со статусом здоровья.
type Server struct {
	srv      *grpc.Server
	health   *health.Server
	probes   []Pinger
	interval time.Duration
	log      *slog.Logger
}

// New создаёт сервер. Пока первая проверка не прошла, статус NOT_SERVING.
func New(interval time.Duration, log *slog.Logger, probes ...Pinger) *Server {
	s := &Server{
		srv:      grpc.NewServer(),
		health:   health.NewServer(),
		probes:   probes,
		interval: interval,
		log:      log,
	}
	healthpb.RegisterHealthServer(s.srv, s.health)
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Serve принимает соединения на lis. Блокируется до Stop.
func (s *Server) Serve(lis net.Listener) error {
	const op = "health.Serve"
	s.log.Info("grpc health server started", slog.String("addr", lis.Addr().String()))
	if err := s.srv.Serve(lis); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Watch проверяет зависимости сразу и затем каждые interval до отмены ctx.
func (s *Server) Watch(ctx context.Context) {
	s.Check(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check выполняет одну проверку и выставляет статус.
func (s *Server) Check(ctx context.Context) {
	for _, p := range s.probes {
		pctx, cancel := context.WithTimeout(ctx, s.interval)
		err := p.Ping(pctx)
		cancel()
		if err != nil {
			s.log.Warn("health probe failed", sl.Err(err))
			s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
			return
		}
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

// Stop переводит статус в NOT_SERVING и мягко останавливает сервер.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}
