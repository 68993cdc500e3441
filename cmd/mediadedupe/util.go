package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/darianrose/mediadedupe/internal/config"
	"github.com/darianrose/mediadedupe/internal/engine"
	"github.com/darianrose/mediadedupe/internal/store"
	"github.com/darianrose/mediadedupe/internal/types"
)

// storeFlags are shared across every subcommand since they all operate
// against the same on-disk store.
type storeFlags struct {
	storeRoot string
	dbPath    string
	cacheFile string
}

// openEngine constructs an engine.Engine from the shared flags,
// defaulting db/cache paths to well-known locations under storeRoot if
// left unset. The hash cache stays opt-in (empty path disables it) but
// the persistent store itself always gets a sane default location
// instead of requiring one.
func openEngine(f storeFlags) (*engine.Engine, error) {
	if f.storeRoot == "" {
		return nil, fmt.Errorf("--store-root is required")
	}
	dbPath := f.dbPath
	if dbPath == "" {
		dbPath = filepath.Join(f.storeRoot, ".mediadedupe", "store.db")
	}
	cfgPath := filepath.Join(filepath.Dir(dbPath), "config.json")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return engine.New(engine.Options{
		StoreRoot:     f.storeRoot,
		DBPath:        dbPath,
		HashCachePath: f.cacheFile,
		Config:        cfg,
	})
}

func rootHandles(paths []string) []store.RootHandle {
	handles := make([]store.RootHandle, len(paths))
	for i, p := range paths {
		handles[i] = store.PathHandle(p)
	}
	return handles
}

func parseFileID(s string) (types.FileID, error) {
	return uuid.Parse(s)
}

func parseGroupID(s string) (types.GroupID, error) {
	return uuid.Parse(s)
}

func exitErr(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return 1
}
