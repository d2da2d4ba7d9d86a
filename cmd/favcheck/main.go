// Command favcheck audits the per-zone favorites files for slot and id
// drift and optionally rewrites them in place.
//
// Usage:
//
//	# report only
//	go run ./cmd/favcheck -dir ./data/favorites
//
//	# report and rewrite broken files
//	go run ./cmd/favcheck -dir ./data/favorites -repair
//
// Exit code is 1 when any file holds violations (repaired or not), so the
// tool can gate a cron job or a health probe.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/msaudio/audioserver-go/internal/favorites"
	"github.com/msaudio/audioserver-go/internal/fsutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	defaultDir := filepath.Join(envOr("DATA_DIR", "./data"), "favorites")
	dir := flag.String("dir", defaultDir, "favorites directory to audit")
	repair := flag.Bool("repair", false, "rewrite files with violations")
	flag.Parse()

	paths, err := filepath.Glob(filepath.Join(*dir, "*.json"))
	if err != nil {
		log.Fatalf("Failed to list %s: %v", *dir, err)
	}
	if len(paths) == 0 {
		fmt.Printf("No favorites files under %s.\n", *dir)
		return 0
	}

	var broken int
	for _, path := range paths {
		zoneID, ok := zoneIDFromPath(path)
		if !ok {
			log.Printf("Skipping %s: name is not a zone id", filepath.Base(path))
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Error reading %s: %v", path, err)
			broken++
			continue
		}

		problems, err := favorites.Verify(data)
		if err != nil {
			log.Printf("Zone %d: unreadable favorites file: %v", zoneID, err)
			broken++
			continue
		}
		if len(problems) == 0 {
			continue
		}

		broken++
		for _, p := range problems {
			log.Printf("Zone %d: %s", zoneID, p)
		}

		if !*repair {
			continue
		}
		fixed, err := favorites.Repair(zoneID, data)
		if err != nil {
			log.Printf("Zone %d: repair failed: %v", zoneID, err)
			continue
		}
		if err := fsutil.WriteFileAtomic(path, fixed, 0o644); err != nil {
			log.Printf("Zone %d: rewrite failed: %v", zoneID, err)
			continue
		}
		log.Printf("Zone %d: repaired", zoneID)
	}

	fmt.Printf("\nChecked %d files, %d with violations\n", len(paths), broken)
	if broken > 0 {
		return 1
	}
	return 0
}

// zoneIDFromPath maps "<dir>/12.json" to 12.
func zoneIDFromPath(path string) (int, bool) {
	name := strings.TrimSuffix(filepath.Base(path), ".json")
	id, err := strconv.Atoi(name)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func envOr(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
