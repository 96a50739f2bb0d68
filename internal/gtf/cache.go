package gtf

import (
	"encoding/gob"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// IndexCache manages gob-serialized gene tables on disk. Files are stored
// alongside the GTF source:
//
//	<gtf>.genes.gob       (serialized genes, file order)
//	<gtf>.genes.gob.meta  (source file fingerprint)
type IndexCache struct {
	src string
}

// NewIndexCache creates a gene table cache for the given GTF path.
func NewIndexCache(gtfPath string) *IndexCache {
	return &IndexCache{src: gtfPath}
}

// GenesCachePath returns the cache sidecar path for a GTF file.
func GenesCachePath(gtfPath string) string {
	return gtfPath + ".genes.gob"
}

func (ic *IndexCache) gobPath() string {
	return GenesCachePath(ic.src)
}

func (ic *IndexCache) metaPath() string {
	return ic.gobPath() + ".meta"
}

// Fingerprint identifies a source file by size and modification time.
type Fingerprint struct {
	Size    int64
	ModTime time.Time
}

// FingerprintFile stats path and returns its fingerprint.
func FingerprintFile(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Valid checks whether the cached genes match the current source file.
func (ic *IndexCache) Valid(fp Fingerprint) bool {
	meta, err := ic.readMeta()
	if err != nil {
		return false
	}

	if meta["gtf_size"] != strconv.FormatInt(fp.Size, 10) {
		return false
	}
	if meta["gtf_modtime"] != fp.ModTime.UTC().Format(time.RFC3339Nano) {
		return false
	}

	if _, err := os.Stat(ic.gobPath()); err != nil {
		return false
	}
	return true
}

// Load reads serialized genes from disk.
func (ic *IndexCache) Load() ([]Gene, error) {
	f, err := os.Open(ic.gobPath())
	if err != nil {
		return nil, fmt.Errorf("open gene cache: %w", err)
	}
	defer f.Close()

	var genes []Gene
	if err := gob.NewDecoder(f).Decode(&genes); err != nil {
		return nil, fmt.Errorf("decode gene cache: %w", err)
	}
	return genes, nil
}

// Write serializes genes to disk along with the source fingerprint.
func (ic *IndexCache) Write(genes []Gene, fp Fingerprint) error {
	f, err := os.Create(ic.gobPath())
	if err != nil {
		return fmt.Errorf("create gene cache: %w", err)
	}

	if err := gob.NewEncoder(f).Encode(genes); err != nil {
		f.Close()
		os.Remove(ic.gobPath())
		return fmt.Errorf("encode gene cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close gene cache: %w", err)
	}

	return ic.writeMeta(fp)
}

// Clear removes the cached files.
func (ic *IndexCache) Clear() {
	os.Remove(ic.gobPath())
	os.Remove(ic.metaPath())
}

func (ic *IndexCache) writeMeta(fp Fingerprint) error {
	lines := []string{
		"gtf_size=" + strconv.FormatInt(fp.Size, 10),
		"gtf_modtime=" + fp.ModTime.UTC().Format(time.RFC3339Nano),
		"created_at=" + time.Now().UTC().Format(time.RFC3339),
		"",
	}
	return os.WriteFile(ic.metaPath(), []byte(strings.Join(lines, "\n")), 0644)
}

func (ic *IndexCache) readMeta() (map[string]string, error) {
	data, err := os.ReadFile(ic.metaPath())
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			meta[k] = v
		}
	}
	return meta, nil
}

// LoadCached loads genes from a GTF file, using the gob sidecar when its
// fingerprint matches and rewriting it otherwise. Cache problems fall back
// to a plain parse; the cache is best-effort.
func LoadCached(path string) ([]Gene, error) {
	fp, err := FingerprintFile(path)
	if err != nil {
		return nil, fmt.Errorf("stat GTF file: %w", err)
	}

	ic := NewIndexCache(path)
	if ic.Valid(fp) {
		if genes, err := ic.Load(); err == nil {
			return genes, nil
		}
		ic.Clear()
	}

	genes, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := ic.Write(genes, fp); err != nil {
		ic.Clear()
	}
	return genes, nil
}
