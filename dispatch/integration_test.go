package dispatch

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dfstore/config"
	"dfstore/routing"
	"dfstore/storage"
	"dfstore/wire"
)

// freePort asks the OS for an unused TCP port by binding to :0 and
// immediately releasing it, mirroring how the test harnesses in the
// wider example corpus pick ports for short-lived test servers.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// startCluster starts one front-door and three backends in-process, each
// rooted at its own temp directory, and returns the front-door's dial
// address.
func startCluster(t *testing.T) string {
	t.Helper()

	n1Port := freePort(t)
	n2Port := freePort(t)
	n3Port := freePort(t)
	n4Port := freePort(t)

	backendAddrs := map[routing.BackendId]string{
		routing.N2: "127.0.0.1:" + itoa(n2Port),
		routing.N3: "127.0.0.1:" + itoa(n3Port),
		routing.N4: "127.0.0.1:" + itoa(n4Port),
	}

	startNode(t, &config.NodeConfig{
		Role:         config.RoleFrontDoor,
		Self:         routing.N1,
		ListenPort:   n1Port,
		Root:         t.TempDir(),
		BackendAddrs: backendAddrs,
	}, "")

	startNode(t, &config.NodeConfig{
		Role:       config.RoleBackend,
		Self:       routing.N2,
		ListenPort: n2Port,
		Root:       t.TempDir(),
	}, "pdf")

	startNode(t, &config.NodeConfig{
		Role:       config.RoleBackend,
		Self:       routing.N3,
		ListenPort: n3Port,
		Root:       t.TempDir(),
	}, "txt")

	startNode(t, &config.NodeConfig{
		Role:       config.RoleBackend,
		Self:       routing.N4,
		ListenPort: n4Port,
		Root:       t.TempDir(),
	}, "zip")

	addr := "127.0.0.1:" + itoa(n1Port)
	waitForListener(t, addr)
	return addr
}

func startNode(t *testing.T, cfg *config.NodeConfig, ownedType string) {
	t.Helper()
	node := storage.NewNode(cfg.Root, ownedType)
	srv := NewServer(cfg, node)
	done := make(chan struct{})
	go srv.Serve(done)
	t.Cleanup(func() { close(done) })
}

func waitForListener(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c, err := net.Dial("tcp", addr)
		if err == nil {
			c.Close()
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("node at %s never came up", addr)
}

func itoa(n int) string {
	// avoids pulling in strconv just for these test helpers
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func dialFrontDoor(t *testing.T, addr string) *wire.Conn {
	t.Helper()
	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	return wire.NewConn(c)
}

// TestUploadAndDownloadTxtRoundTrip checks that a bare-path upload of a
// .txt file routes to N3, and reading it back yields the original bytes.
func TestUploadAndDownloadTxtRoundTrip(t *testing.T) {
	addr := startCluster(t)
	conn := dialFrontDoor(t, addr)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "uploadf", Arg: "note.txt", Payload: []byte("hello")}))
	resp, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Keyword)

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "downlf", Arg: "note.txt"}))
	resp, err = conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Keyword)
	assert.Equal(t, "hello", string(resp.Payload))
}

// TestUploadCFileStoredLocally checks that a .c upload never touches a
// backend and is readable straight back from N1.
func TestUploadCFileStoredLocally(t *testing.T) {
	addr := startCluster(t)
	conn := dialFrontDoor(t, addr)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "uploadf", Arg: "src.c", Payload: []byte("int main(){}")}))
	resp, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Keyword)

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "downlf", Arg: "src.c"}))
	resp, err = conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "int main(){}", string(resp.Payload))
}

// TestUploadWithDestinationRewritesPath checks that a pdf uploaded under
// a nested destination lands at the rewritten path on N2 with
// intermediate directories created idempotently.
func TestUploadWithDestinationRewritesPath(t *testing.T) {
	addr := startCluster(t)
	conn := dialFrontDoor(t, addr)
	defer conn.Close()

	dest := "~/S1/a/b/c/report.pdf"
	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "uploadf", Arg: dest, Payload: []byte("pdf-bytes")}))
	resp, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Keyword)

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "downlf", Arg: dest}))
	resp, err = conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(resp.Payload))
}

// TestDownltarZipRejectedLocally checks that zip is rejected at the
// front door before any backend dial.
func TestDownltarZipRejectedLocally(t *testing.T) {
	addr := startCluster(t)
	conn := dialFrontDoor(t, addr)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "downltar", Arg: "zip"}))
	resp, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "unsupported", resp.Keyword)
}

// TestRemoveThenDownloadNotFound checks that after removef, downlf on
// the same path fails with NotFound.
func TestRemoveThenDownloadNotFound(t *testing.T) {
	addr := startCluster(t)
	conn := dialFrontDoor(t, addr)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "uploadf", Arg: "gone.txt", Payload: []byte("x")}))
	resp, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Keyword)

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "removef", Arg: "gone.txt"}))
	resp, err = conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Keyword)

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "downlf", Arg: "gone.txt"}))
	resp, err = conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "notfound", resp.Keyword)
}

// TestDispfnamesOrdering checks that the unified listing across
// backends groups by extension class in fixed order.
func TestDispfnamesOrdering(t *testing.T) {
	addr := startCluster(t)
	conn := dialFrontDoor(t, addr)
	defer conn.Close()

	uploads := []struct {
		dest    string
		payload string
	}{
		{"src.c", "c"},
		{"note.txt", "t"},
		{"~/S1/a/b/c/report.pdf", "p"},
	}
	for _, u := range uploads {
		require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "uploadf", Arg: u.dest, Payload: []byte(u.payload)}))
		resp, err := conn.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, "ok", resp.Keyword)
	}

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "dispfnames", Arg: ""}))
	resp, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Keyword)
	assert.Equal(t, "src.c\nnote.txt", string(resp.Payload))
}

// TestBackendUnavailableWhenBackendDown checks that a command routed to
// a backend that never came up fails with BackendUnavailable.
func TestBackendUnavailableWhenBackendDown(t *testing.T) {
	downPort := freePort(t) // never started

	n1Port := freePort(t)
	n3Port := freePort(t)
	n4Port := freePort(t)

	startNode(t, &config.NodeConfig{
		Role:       config.RoleFrontDoor,
		Self:       routing.N1,
		ListenPort: n1Port,
		Root:       t.TempDir(),
		BackendAddrs: map[routing.BackendId]string{
			routing.N2: "127.0.0.1:" + itoa(downPort),
			routing.N3: "127.0.0.1:" + itoa(n3Port),
			routing.N4: "127.0.0.1:" + itoa(n4Port),
		},
	}, "")
	startNode(t, &config.NodeConfig{Role: config.RoleBackend, Self: routing.N3, ListenPort: n3Port, Root: t.TempDir()}, "txt")
	startNode(t, &config.NodeConfig{Role: config.RoleBackend, Self: routing.N4, ListenPort: n4Port, Root: t.TempDir()}, "zip")

	addr := "127.0.0.1:" + itoa(n1Port)
	waitForListener(t, addr)

	conn := dialFrontDoor(t, addr)
	defer conn.Close()

	require.NoError(t, conn.WriteFrame(wire.Frame{Keyword: "uploadf", Arg: "report.pdf", Payload: []byte("x")}))
	resp, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, "unavailable", resp.Keyword)
}
