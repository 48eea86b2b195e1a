package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"github.com/google/uuid"

	"courier/internal/daemon"
	"courier/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName("Courier", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed", logging.Error(err))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.PID = os.Getpid()
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status()
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.SocketPath = status.SocketPath
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	resp.ActiveBatches = status.ActiveBatches
	resp.Batches = make([]BatchView, 0, len(status.Queues))
	for _, snap := range status.Queues {
		resp.Batches = append(resp.Batches, FromQueueSnapshot(snap))
	}
	return nil
}

func (s *service) BatchAdd(req BatchAddRequest, resp *BatchAddResponse) error {
	ctx := logging.WithRequestID(s.ctx, uuid.NewString())
	ctx = logging.WithUserID(ctx, req.UserID)
	logger := logging.WithContext(ctx, s.logger)
	logger.Debug("batch add requested", logging.String("source_id", req.SourceID))
	snap, err := s.daemon.AddBatch(ctx, req.UserID, daemon.BatchRequest{
		Source:     req.Source,
		SourceID:   req.SourceID,
		RangeStart: req.RangeStart,
		RangeEnd:   req.RangeEnd,
		DestChat:   req.DestChat,
	})
	if err != nil {
		return err
	}
	resp.BatchID = snap.BatchID
	resp.Total = snap.Total
	return nil
}

func (s *service) BatchPause(req BatchControlRequest, resp *BatchControlResponse) error {
	if err := s.daemon.Pause(req.UserID); err != nil {
		return err
	}
	resp.Applied = true
	s.logger.Info("batch paused via IPC", logging.Int64(logging.FieldUserID, req.UserID))
	return nil
}

func (s *service) BatchResume(req BatchControlRequest, resp *BatchControlResponse) error {
	if err := s.daemon.Resume(req.UserID); err != nil {
		return err
	}
	resp.Applied = true
	s.logger.Info("batch resumed via IPC", logging.Int64(logging.FieldUserID, req.UserID))
	return nil
}

func (s *service) BatchCancel(req BatchControlRequest, resp *BatchControlResponse) error {
	if err := s.daemon.Cancel(req.UserID); err != nil {
		return err
	}
	resp.Applied = true
	s.logger.Info("batch cancelled via IPC", logging.Int64(logging.FieldUserID, req.UserID))
	return nil
}

func (s *service) QueueList(_ QueueListRequest, resp *QueueListResponse) error {
	snaps := s.daemon.Queues()
	resp.Batches = make([]BatchView, 0, len(snaps))
	for _, snap := range snaps {
		resp.Batches = append(resp.Batches, FromQueueSnapshot(snap))
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	if req.UserID <= 0 {
		return fmt.Errorf("invalid user id %d", req.UserID)
	}
	snap, ok := s.daemon.Queue(req.UserID)
	if !ok {
		resp.Found = false
		return nil
	}
	resp.Found = true
	resp.Batch = FromQueueSnapshot(snap)
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
