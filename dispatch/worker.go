// Package dispatch implements the front-door's per-client dispatch loop
// and the backend's connection handler: one Worker per accepted client
// connection, executing that client's commands strictly sequentially
// and opening a fresh backend connection per remote operation.
package dispatch

import (
	"errors"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"dfstore/config"
	"dfstore/routing"
	"dfstore/storage"
	"dfstore/util"
	"dfstore/wire"
)

// Worker is a per-client execution context on the front door, holding
// its own client socket and opening backend sockets on demand for the
// duration of one command: one at a time, except for dispfnames, which
// dials its three backends concurrently.
type Worker struct {
	id    string
	conn  *wire.Conn
	cfg   *config.NodeConfig
	local *storage.Node
}

func NewWorker(conn net.Conn, cfg *config.NodeConfig, local *storage.Node) *Worker {
	return &Worker{
		id:    util.NewWorkerID(),
		conn:  wire.NewConn(conn),
		cfg:   cfg,
		local: local,
	}
}

// Run loops: read one command, execute it, relay the response, repeat
// until the client disconnects or sends exit.
func (w *Worker) Run() {
	defer w.conn.Close()
	w.log(w.id, "worker started for "+w.conn.RemoteAddr().String())

	for {
		req, err := w.conn.ReadFrame()
		if err != nil {
			w.log(w.id, "client disconnected: "+err.Error())
			return
		}

		if req.Keyword == "exit" {
			w.log(w.id, "exit")
			return
		}

		resp := w.dispatch(req)
		w.logOp(req.Keyword, string(resp.Keyword))
		if err := w.conn.WriteFrame(resp); err != nil {
			w.log(w.id, "failed relaying response: "+err.Error())
			return
		}
	}
}

func (w *Worker) dispatch(req wire.Frame) wire.Frame {
	switch req.Keyword {
	case "uploadf":
		return w.uploadf(req)
	case "downlf":
		return w.downlf(req)
	case "removef":
		return w.removef(req)
	case "downltar":
		return w.downltar(req)
	case "dispfnames":
		return w.dispfnames(req)
	default:
		return statusFrame(util.NewOperationError(util.KindMalformedCommand, nil), nil)
	}
}

// uploadf: req.Arg is the already-resolved destination logical path
// (including the basename of the uploaded file), req.Payload its bytes.
func (w *Worker) uploadf(req wire.Frame) wire.Frame {
	backend, err := routing.Route(req.Arg)
	if err != nil {
		return statusFrame(err, nil)
	}

	rel, err := routing.RelativeToRoot(req.Arg)
	if err != nil {
		return statusFrame(err, nil)
	}

	if backend == routing.N1 {
		return statusFrame(w.local.Store(rel, req.Payload), nil)
	}
	return w.forward(backend, wire.Frame{Keyword: "store", Arg: rel, Payload: req.Payload})
}

func (w *Worker) downlf(req wire.Frame) wire.Frame {
	backend, err := routing.Route(req.Arg)
	if err != nil {
		return statusFrame(err, nil)
	}
	rel, err := routing.RelativeToRoot(req.Arg)
	if err != nil {
		return statusFrame(err, nil)
	}

	if backend == routing.N1 {
		data, err := w.local.Fetch(rel)
		return statusFrame(err, data)
	}
	return w.forward(backend, wire.Frame{Keyword: "fetch", Arg: rel})
}

func (w *Worker) removef(req wire.Frame) wire.Frame {
	backend, err := routing.Route(req.Arg)
	if err != nil {
		return statusFrame(err, nil)
	}
	rel, err := routing.RelativeToRoot(req.Arg)
	if err != nil {
		return statusFrame(err, nil)
	}

	if backend == routing.N1 {
		return statusFrame(w.local.Delete(rel), nil)
	}
	return w.forward(backend, wire.Frame{Keyword: "delete", Arg: rel})
}

// downltar: req.Arg is the literal file type, not derived from a
// filename. zip is rejected locally, with no backend traffic at all.
func (w *Worker) downltar(req wire.Frame) wire.Frame {
	fileType := strings.ToLower(req.Arg)
	if fileType == "zip" {
		return statusFrame(util.NewOperationError(util.KindUnsupportedArchive, nil), nil)
	}

	backend, err := routing.BackendForType(fileType)
	if err != nil {
		return statusFrame(err, nil)
	}

	if backend == routing.N1 {
		data, err := w.local.Archive(w.id, fileType)
		return statusFrame(err, data)
	}
	return w.forward(backend, wire.Frame{Keyword: "archive", Arg: fileType})
}

// dispfnames fans the three remote `list` calls out concurrently but
// reimposes the fixed N1, N2, N3, N4 concatenation order before
// replying, regardless of which backend answered first.
func (w *Worker) dispfnames(req wire.Frame) wire.Frame {
	dir, err := routing.RelativeToRoot(req.Arg)
	if err != nil {
		return statusFrame(err, nil)
	}

	order := []routing.BackendId{routing.N1, routing.N2, routing.N3, routing.N4}
	results := make([][]string, len(order))

	localNames, localErr := w.local.List(dir)
	if localErr != nil && !isNotFound(localErr) {
		return statusFrame(util.NewOperationError(util.KindBackendUnavailable, localErr), nil)
	}
	results[0] = localNames

	g := new(errgroup.Group)
	for i := 1; i < len(order); i++ {
		i, backend := i, order[i]
		g.Go(func() error {
			resp, err := w.forwardRaw(backend, wire.Frame{Keyword: "list", Arg: dir})
			if err != nil {
				return err
			}
			if resp.Keyword == string(util.StatusNotFound) {
				return nil // absent on this backend contributes nothing, not an error
			}
			if resp.Keyword != string(util.StatusOK) {
				return errors.New("backend " + string(backend) + " list failed: " + resp.Arg)
			}
			if len(resp.Payload) > 0 {
				results[i] = strings.Split(string(resp.Payload), "\n")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return statusFrame(util.NewOperationError(util.KindBackendUnavailable, err), nil)
	}

	var all []string
	for _, names := range results {
		all = append(all, names...)
	}
	return wire.Frame{Keyword: string(util.StatusOK), Payload: []byte(strings.Join(all, "\n"))}
}

// forward dials backend, issues req, reads its response, and relays it
// verbatim to the client. The dispatcher forwards backend error kinds,
// it never translates them.
func (w *Worker) forward(backend routing.BackendId, req wire.Frame) wire.Frame {
	resp, err := w.forwardRaw(backend, req)
	if err != nil {
		return statusFrame(util.NewOperationError(util.KindBackendUnavailable, err), nil)
	}
	return resp
}

func (w *Worker) forwardRaw(backend routing.BackendId, req wire.Frame) (wire.Frame, error) {
	addr, ok := w.cfg.BackendAddrs[backend]
	if !ok {
		return wire.Frame{}, errors.New("no dial address configured for " + string(backend))
	}

	c, err := wire.Dial(addr, time.Duration(w.cfg.DialTimeoutMS)*time.Millisecond)
	if err != nil {
		return wire.Frame{}, err
	}
	defer c.Close()

	if err := c.WriteFrame(req); err != nil {
		return wire.Frame{}, err
	}
	return c.ReadFrame()
}

func isNotFound(err error) bool {
	var opErr *util.OperationError
	return errors.As(err, &opErr) && opErr.Kind == util.KindNotFound
}

func (w *Worker) log(worker, msg string) {
	if util.ProcessLogger != nil {
		util.ProcessLogger.Info(worker, msg)
	}
}

func (w *Worker) logOp(cmd, result string) {
	if util.ProcessLogger != nil {
		util.ProcessLogger.Op(w.id, cmd, result)
	}
}
