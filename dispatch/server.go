package dispatch

import (
	"net"
	"strconv"

	"dfstore/config"
	"dfstore/storage"
	"dfstore/util"
	"dfstore/wire"
)

// Server owns the single listening socket for one node (front-door or
// backend) and spawns one handler per accepted connection: no
// connection pooling, no shared per-client state beyond the socket
// itself.
type Server struct {
	cfg   *config.NodeConfig
	local *storage.Node
}

func NewServer(cfg *config.NodeConfig, local *storage.Node) *Server {
	return &Server{cfg: cfg, local: local}
}

// Serve listens on cfg.ListenPort and accepts connections until done is
// closed, at which point the listener is torn down and Serve returns.
// Serve does not close already-accepted connections and does not wait
// for them to finish.
func (s *Server) Serve(done <-chan struct{}) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.cfg.ListenPort))
	if err != nil {
		return err
	}

	go func() {
		<-done
		ln.Close()
	}()

	s.log("listening on " + ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-done:
				return nil
			default:
				s.log("accept error: " + err.Error())
				continue
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	if s.cfg.Role == config.RoleFrontDoor {
		w := NewWorker(conn, s.cfg, s.local)
		w.Run()
		return
	}

	workerID := util.NewWorkerID()
	ServeBackendConn(wire.NewConn(conn), s.local, workerID)
}

func (s *Server) log(msg string) {
	if util.ProcessLogger != nil {
		util.ProcessLogger.Info(string(s.cfg.Self), msg)
	}
}
