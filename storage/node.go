// Package storage implements the five storage operations against a
// node's local filesystem: store, fetch, delete, list, and archive.
// Every node in the cluster, N1 acting on its own root as well as
// N2/N3/N4, runs the same Node implementation against its own root
// directory.
package storage

import (
	"archive/tar"
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dfstore/routing"
	"dfstore/util"
)

// extensionOrder fixes the class ordering list and dispfnames both use:
// all .c names, then .pdf, then .txt, then .zip, lex-sorted within class.
var extensionOrder = []string{"c", "pdf", "txt", "zip"}

// Node executes storage operations under Root. OwnedType, if non-empty,
// is the single file type this node accepts archive requests for (empty
// for N1, which is never asked to archive anything but its own "c"
// files by the front door acting on itself).
type Node struct {
	Root      string
	OwnedType string
	walkGate  *util.WalkGate
}

func NewNode(root string, ownedType string) *Node {
	return &Node{
		Root:      root,
		OwnedType: ownedType,
		walkGate:  util.NewWalkGate(8),
	}
}

// Store creates all parent directories of relPath (idempotent,
// MkdirAll), then writes payload, truncating any prior content.
func (n *Node) Store(relPath string, payload []byte) error {
	full := n.resolve(relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	if err := os.WriteFile(full, payload, 0644); err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	return nil
}

// Fetch reads the full contents of relPath.
func (n *Node) Fetch(relPath string) ([]byte, error) {
	full := n.resolve(relPath)
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.NewOperationError(util.KindNotFound, err)
		}
		return nil, util.NewOperationError(util.KindIOError, err)
	}
	return data, nil
}

// Delete unlinks relPath. It does not remove now-empty parent
// directories.
func (n *Node) Delete(relPath string) error {
	full := n.resolve(relPath)
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return util.NewOperationError(util.KindNotFound, err)
		}
		return util.NewOperationError(util.KindIOError, err)
	}
	return nil
}

// List enumerates the names of regular files directly in relDir (not
// recursive), ordered by extension class (c, pdf, txt, zip) and then
// lexicographically within each class. Hidden entries, non-regular
// files, and files whose extension is none of those four are omitted.
func (n *Node) List(relDir string) ([]string, error) {
	full := n.resolve(relDir)
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, util.NewOperationError(util.KindNotFound, err)
		}
		return nil, util.NewOperationError(util.KindIOError, err)
	}

	byClass := make(map[string][]string)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		ext := routing.FileType(name)
		byClass[ext] = append(byClass[ext], name)
	}

	var out []string
	for _, ext := range extensionOrder {
		names := byClass[ext]
		sort.Strings(names)
		out = append(out, names...)
	}
	return out, nil
}

// Archive produces a tar-format byte stream containing every file of
// fileType found recursively under Root, preserving relative paths
// beneath Root. Staged through a per-worker-unique temporary file
// (named with workerID) that is always removed before returning.
func (n *Node) Archive(workerID string, fileType string) ([]byte, error) {
	if n.OwnedType != "" && fileType != n.OwnedType {
		return nil, util.NewOperationError(util.KindUnsupportedArchive, nil)
	}
	files, err := n.collectByType(fileType)
	if err != nil {
		return nil, err
	}

	stagingPath := filepath.Join(os.TempDir(), "dfstore-archive-"+workerID+".tar")
	if err := n.writeTar(stagingPath, files); err != nil {
		os.Remove(stagingPath)
		return nil, err
	}
	defer os.Remove(stagingPath)

	data, err := os.ReadFile(stagingPath)
	if err != nil {
		return nil, util.NewOperationError(util.KindIOError, err)
	}
	return data, nil
}

func (n *Node) writeTar(stagingPath string, files []string) error {
	out, err := os.Create(stagingPath)
	if err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)
	tw := tar.NewWriter(bw)

	for _, rel := range files {
		if err := n.addTarEntry(tw, rel); err != nil {
			tw.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	if err := bw.Flush(); err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	return nil
}

func (n *Node) addTarEntry(tw *tar.Writer, rel string) error {
	full := n.resolve(rel)
	f, err := os.Open(full)
	if err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	hdr.Name = rel

	if err := tw.WriteHeader(hdr); err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return util.NewOperationError(util.KindIOError, err)
	}
	return nil
}

// collectByType walks Root, collecting every regular file whose
// extension matches fileType as a path relative to Root. Each
// subdirectory is read on its own goroutine, gated by walkGate so a
// pathologically wide tree cannot fan out an unbounded number of
// concurrent os.ReadDir calls.
func (n *Node) collectByType(fileType string) ([]string, error) {
	if _, err := os.Stat(n.Root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, util.NewOperationError(util.KindIOError, err)
	}

	var (
		mu      sync.Mutex
		matches []string
		wg      sync.WaitGroup
	)

	var walk func(dir string)
	walk = func(dir string) {
		defer wg.Done()

		n.walkGate.Acquire()
		entries, err := os.ReadDir(dir)
		n.walkGate.Release()
		if err != nil {
			return
		}

		for _, e := range entries {
			full := filepath.Join(dir, e.Name())
			if e.IsDir() {
				wg.Add(1)
				go walk(full)
				continue
			}
			info, err := e.Info()
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			if routing.FileType(e.Name()) != fileType {
				continue
			}
			rel, err := filepath.Rel(n.Root, full)
			if err != nil {
				continue
			}
			mu.Lock()
			matches = append(matches, rel)
			mu.Unlock()
		}
	}

	wg.Add(1)
	go walk(n.Root)
	wg.Wait()

	sort.Strings(matches)
	return matches, nil
}

func (n *Node) resolve(relPath string) string {
	if relPath == "" {
		return n.Root
	}
	return filepath.Join(n.Root, relPath)
}
