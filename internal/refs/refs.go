// Package refs downloads and maintains the reference data the annotation
// pipeline needs: the GENCODE gene annotation, the gnomAD constraint table
// and the PanelApp Mendeliome panel.
package refs

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rnaxplore/outan/internal/gnomad"
	"github.com/rnaxplore/outan/internal/gtf"
	"github.com/rnaxplore/outan/internal/panelapp"
)

// Upstream reference sources.
const (
	GencodeURL = "https://ftp.ebi.ac.uk/pub/databases/gencode/Gencode_human/release_44/gencode.v44.annotation.gtf.gz"
	GnomadURL  = "https://storage.googleapis.com/gcp-public-data--gnomad/release/2.1.1/constraint/gnomad.v2.1.1.lof_metrics.by_gene.txt.bgz"
)

// Local file names after decompression.
const (
	GencodeFileName = "gencode.v44.annotation.gtf"
	GnomadFileName  = "gnomad.v2.1.1.lof_metrics.by_gene.txt"
)

// ConstraintDBFileName is the DuckDB constraint store built by
// BuildConstraintStore.
const ConstraintDBFileName = "gnomad.v2.1.1.lof_metrics.by_gene.duckdb"

// DefaultDir is where references land unless configured otherwise.
const DefaultDir = "references"

// Manager keeps a references directory stocked.
type Manager struct {
	dir      string
	force    bool
	progress bool
	http     *http.Client
	panel    *panelapp.Client
	logger   *zap.Logger

	gencodeURL string
	gnomadURL  string
}

// NewManager creates a Manager over dir, falling back to DefaultDir.
func NewManager(dir string) *Manager {
	if dir == "" {
		dir = DefaultDir
	}
	return &Manager{
		dir:        dir,
		progress:   true,
		http:       &http.Client{Timeout: 30 * time.Minute},
		panel:      panelapp.NewClient(""),
		logger:     zap.NewNop(),
		gencodeURL: GencodeURL,
		gnomadURL:  GnomadURL,
	}
}

// SetLogger replaces the manager's logger (and the panel client's).
func (m *Manager) SetLogger(logger *zap.Logger) {
	if logger != nil {
		m.logger = logger
		m.panel.SetLogger(logger)
	}
}

// SetForce makes Ensure calls refresh references that are already present.
func (m *Manager) SetForce(force bool) {
	m.force = force
}

// SetProgress toggles interactive download progress on stdout.
func (m *Manager) SetProgress(progress bool) {
	m.progress = progress
}

// SetPanelClient replaces the PanelApp client.
func (m *Manager) SetPanelClient(c *panelapp.Client) {
	if c != nil {
		m.panel = c
	}
}

// SetSources overrides the download URLs. Empty strings keep the defaults.
func (m *Manager) SetSources(gencodeURL, gnomadURL string) {
	if gencodeURL != "" {
		m.gencodeURL = gencodeURL
	}
	if gnomadURL != "" {
		m.gnomadURL = gnomadURL
	}
}

// Dir returns the references directory.
func (m *Manager) Dir() string {
	return m.dir
}

// GTFPath returns the local GENCODE annotation path.
func (m *Manager) GTFPath() string {
	return filepath.Join(m.dir, GencodeFileName)
}

// GnomadPath returns the local gnomAD constraint table path.
func (m *Manager) GnomadPath() string {
	return filepath.Join(m.dir, GnomadFileName)
}

// ConstraintDBPath returns the local DuckDB constraint store path.
func (m *Manager) ConstraintDBPath() string {
	return filepath.Join(m.dir, ConstraintDBFileName)
}

// PanelPath returns the local Mendeliome panel path.
func (m *Manager) PanelPath() string {
	return filepath.Join(m.dir, panelapp.LocalFileName)
}

// EnsureAll fetches every missing reference concurrently.
func (m *Manager) EnsureAll(ctx context.Context) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create references dir: %w", err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.EnsureGencode(gctx) })
	g.Go(func() error { return m.EnsureGnomad(gctx) })
	g.Go(func() error { return m.EnsurePanel(gctx) })
	return g.Wait()
}

// EnsureGencode downloads and unpacks the GENCODE annotation when missing.
func (m *Manager) EnsureGencode(ctx context.Context) error {
	return m.ensureCompressed(ctx, m.gencodeURL, m.GTFPath())
}

// EnsureGnomad downloads and unpacks the gnomAD constraint table when
// missing.
func (m *Manager) EnsureGnomad(ctx context.Context) error {
	return m.ensureCompressed(ctx, m.gnomadURL, m.GnomadPath())
}

// EnsurePanel syncs the Mendeliome panel payload.
func (m *Manager) EnsurePanel(ctx context.Context) error {
	if m.force {
		os.Remove(m.PanelPath())
	}
	_, err := panelapp.Sync(ctx, m.panel, m.dir, panelapp.MendeliomePanelID)
	return err
}

// ensureCompressed downloads url and leaves the decompressed file at dest.
// An existing dest is kept unless force is set.
func (m *Manager) ensureCompressed(ctx context.Context, url, dest string) error {
	if !m.force {
		if info, err := os.Stat(dest); err == nil {
			m.logger.Info("reference already present",
				zap.String("file", filepath.Base(dest)),
				zap.String("size", FormatSize(info.Size())))
			return nil
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	if !isCompressed(url) {
		if err := m.downloadFile(ctx, url, dest); err != nil {
			return err
		}
		m.logger.Info("reference ready", zap.String("file", filepath.Base(dest)))
		return nil
	}

	packed := dest + compressSuffix(url)
	if err := m.downloadFile(ctx, url, packed); err != nil {
		return err
	}
	if err := gunzipFile(packed, dest); err != nil {
		return err
	}
	if err := os.Remove(packed); err != nil {
		m.logger.Warn("compressed source not removed",
			zap.String("file", packed),
			zap.Error(err))
	}
	m.logger.Info("reference ready", zap.String("file", filepath.Base(dest)))
	return nil
}

func isCompressed(url string) bool {
	return strings.HasSuffix(url, ".gz") || strings.HasSuffix(url, ".bgz")
}

func compressSuffix(url string) string {
	if strings.HasSuffix(url, ".bgz") {
		return ".bgz"
	}
	return ".gz"
}

// downloadFile fetches url into destPath through a temp file, retrying
// transient failures with exponential backoff.
func (m *Manager) downloadFile(ctx context.Context, url, destPath string) error {
	m.logger.Info("downloading",
		zap.String("file", filepath.Base(destPath)),
		zap.String("url", url))

	tmpPath := destPath + ".tmp"
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := m.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("GET %s: %s", url, resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		f, err := os.Create(tmpPath)
		if err != nil {
			return backoff.Permanent(err)
		}

		var downloaded int64
		src := io.Reader(resp.Body)
		if m.progress {
			src = io.TeeReader(resp.Body, &progressWriter{
				name:       filepath.Base(destPath),
				total:      resp.ContentLength,
				downloaded: &downloaded,
				lastPrint:  time.Now(),
			})
		}

		_, err = io.Copy(f, src)
		f.Close()
		if err != nil {
			os.Remove(tmpPath)
			return err
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 10 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download %s: %w", url, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", destPath, err)
	}
	return nil
}

// gunzipFile decompresses src into dest. Multi-member streams (bgzip)
// decompress as one file.
func gunzipFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("decompress %s: %w", src, err)
	}
	defer zr.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, zr); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("decompress %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// BuildGeneCache rebuilds the gene cache sidecar next to the GTF and
// returns the number of genes indexed.
func (m *Manager) BuildGeneCache() (int, error) {
	gtf.NewIndexCache(m.GTFPath()).Clear()
	genes, err := gtf.LoadCached(m.GTFPath())
	if err != nil {
		return 0, err
	}
	return len(genes), nil
}

// BuildConstraintStore loads the gnomAD table into the DuckDB constraint
// store and returns the number of rows held. An already-populated store is
// reloaded only under force.
func (m *Manager) BuildConstraintStore() (int64, error) {
	store, err := gnomad.OpenStore(m.ConstraintDBPath())
	if err != nil {
		return 0, err
	}
	defer store.Close()

	if m.force || !store.Loaded() {
		if err := store.Load(m.GnomadPath()); err != nil {
			return 0, err
		}
	}
	return store.Count()
}

// Status describes one reference's local state.
type Status struct {
	Name    string
	Path    string
	Present bool
	Size    int64
	Age     time.Duration
	Detail  string
}

// Check reports the local state of every reference and cache artifact. The
// panel status also carries the local and, when reachable, remote panel
// versions.
func (m *Manager) Check(ctx context.Context) []Status {
	statuses := []Status{
		fileStatus("GENCODE annotation", m.GTFPath()),
		fileStatus("gnomAD constraint", m.GnomadPath()),
	}

	panel := fileStatus("Mendeliome panel", m.PanelPath())
	if panel.Present {
		if p, err := panelapp.LoadFile(m.PanelPath()); err == nil {
			panel.Detail = "local " + p.Version
		}
	}
	if remote, err := m.panel.PanelVersion(ctx, panelapp.MendeliomePanelID); err == nil {
		if panel.Detail != "" {
			panel.Detail += ", "
		}
		panel.Detail += "remote " + remote
	}
	statuses = append(statuses, panel)

	return append(statuses,
		fileStatus("gene cache", gtf.GenesCachePath(m.GTFPath())),
		fileStatus("constraint store", m.ConstraintDBPath()))
}

func fileStatus(name, path string) Status {
	st := Status{Name: name, Path: path}
	if info, err := os.Stat(path); err == nil {
		st.Present = true
		st.Size = info.Size()
		st.Age = time.Since(info.ModTime())
	}
	return st
}

// progressWriter tracks download progress.
type progressWriter struct {
	name       string
	total      int64
	downloaded *int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	*pw.downloaded += int64(n)

	// Print progress every second
	if time.Since(pw.lastPrint) > time.Second {
		if pw.total > 0 {
			pct := float64(*pw.downloaded) / float64(pw.total) * 100
			fmt.Printf("\r  %s: %s / %s (%.1f%%)  ",
				pw.name, FormatSize(*pw.downloaded), FormatSize(pw.total), pct)
		} else {
			fmt.Printf("\r  %s: %s  ", pw.name, FormatSize(*pw.downloaded))
		}
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// FormatSize formats bytes as human-readable size.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatAge formats a file age in its largest sensible unit.
func FormatAge(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
