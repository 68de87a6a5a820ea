package dispatch

import (
	"errors"
	"strings"

	"dfstore/storage"
	"dfstore/util"
	"dfstore/wire"
)

// ServeBackendConn services one connection accepted by a pure storage
// backend (N2/N3/N4). It loops reading frames and responding until the
// connection closes. In practice N1 dials fresh per command, so this
// almost always handles exactly one request, but the server itself
// makes no such assumption.
func ServeBackendConn(conn *wire.Conn, node *storage.Node, workerID string) {
	defer conn.Close()
	for {
		req, err := conn.ReadFrame()
		if err != nil {
			return
		}
		resp := executeStorageOp(node, workerID, req)
		if err := conn.WriteFrame(resp); err != nil {
			return
		}
	}
}

// executeStorageOp runs one store/fetch/delete/list/archive request
// against node and frames the result.
func executeStorageOp(node *storage.Node, workerID string, req wire.Frame) wire.Frame {
	switch req.Keyword {
	case "store":
		err := node.Store(req.Arg, req.Payload)
		return statusFrame(err, nil)

	case "fetch":
		data, err := node.Fetch(req.Arg)
		return statusFrame(err, data)

	case "delete":
		err := node.Delete(req.Arg)
		return statusFrame(err, nil)

	case "list":
		names, err := node.List(req.Arg)
		if err != nil {
			return statusFrame(err, nil)
		}
		return wire.Frame{Keyword: string(util.StatusOK), Payload: []byte(strings.Join(names, "\n"))}

	case "archive":
		if req.Arg == "zip" {
			return statusFrame(util.NewOperationError(util.KindUnsupportedArchive, nil), nil)
		}
		data, err := node.Archive(workerID, req.Arg)
		return statusFrame(err, data)

	default:
		return statusFrame(util.NewOperationError(util.KindMalformedCommand, nil), nil)
	}
}

// statusFrame turns a Go error (nil on success) into the response
// frame's status keyword, carrying payload through unchanged on success.
func statusFrame(err error, payload []byte) wire.Frame {
	if err == nil {
		return wire.Frame{Keyword: string(util.StatusOK), Payload: payload}
	}
	var opErr *util.OperationError
	if errors.As(err, &opErr) {
		return wire.Frame{Keyword: string(opErr.Status()), Arg: opErr.Error()}
	}
	return wire.Frame{Keyword: string(util.StatusIOError), Arg: err.Error()}
}
