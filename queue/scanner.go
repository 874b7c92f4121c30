package queue

import (
	"context"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// header-only decoders for the recognized image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/pkg/errors"

	"github.com/imxup/imxup/gallery"
)

// imageExtensions is the closed set of recognized image file extensions.
var imageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

// IsImageFile reports whether the filename carries a recognized extension.
func IsImageFile(name string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ScanConfig controls folder scanning and dimension sampling, mirroring the
// SCANNING section of the configuration file.
type ScanConfig struct {
	FastScanning bool

	// SamplingMethod is "fixed" or "percentage".
	SamplingMethod     string
	SamplingFixedCount int
	SamplingPercentage int

	ExcludeFirst          bool
	ExcludeLast           bool
	ExcludeSmallImages    bool
	ExcludeSmallThreshold int64
	ExcludeOutliers       bool
	ExcludePatterns       []string

	// AverageMethod is "mean" or "median".
	AverageMethod string
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.SamplingMethod == "" {
		c.SamplingMethod = "fixed"
	}

	if c.SamplingFixedCount <= 0 {
		c.SamplingFixedCount = 10
	}

	if c.SamplingPercentage <= 0 || c.SamplingPercentage > 100 {
		c.SamplingPercentage = 10
	}

	if c.ExcludeSmallThreshold <= 0 {
		c.ExcludeSmallThreshold = 10 * 1024
	}

	if c.AverageMethod == "" {
		c.AverageMethod = "mean"
	}

	return c
}

type scannedFile struct {
	name string
	size int64
}

type scanResult struct {
	files     []scannedFile
	totalSize int64
	avgWidth  int
	avgHeight int
}

// enqueueScan adds a path to the scan queue without ever blocking the
// caller. Duplicates are allowed; the scanner is idempotent.
func (m *Manager) enqueueScan(path string) {
	m.scanMu.Lock()
	defer m.scanMu.Unlock()

	if m.scanClosed {
		return
	}

	m.scanPending = append(m.scanPending, path)
	m.scanCond.Signal()
}

func (m *Manager) runScanner(ctx context.Context) {
	defer close(m.scanDone)

	for {
		m.scanMu.Lock()

		for len(m.scanPending) == 0 && !m.scanClosed {
			m.scanCond.Wait()
		}

		if len(m.scanPending) == 0 && m.scanClosed {
			m.scanMu.Unlock()
			return
		}

		path := m.scanPending[0]
		m.scanPending = m.scanPending[1:]
		m.scanMu.Unlock()

		m.scanOne(ctx, path)
	}
}

func (m *Manager) scanOne(ctx context.Context, path string) {
	m.mu.Lock()

	g, ok := m.items[path]
	if !ok || g.Status == gallery.StatusUploading {
		m.mu.Unlock()
		return
	}

	old := g.Status
	g.Status = gallery.StatusScanning
	m.version.Add(1)
	m.mu.Unlock()

	if old != gallery.StatusScanning {
		m.signals.StatusChanged.Publish(StatusChanged{Path: path, Old: old, New: gallery.StatusScanning})
	}

	res, err := scanFolder(ctx, path, m.scanCfg)
	if err != nil {
		log(ctx).Debugf("scan of %v failed: %v", path, err)
		m.MarkScanFailed(ctx, path, err.Error())

		return
	}

	m.applyScanResult(ctx, path, res)
}

func (m *Manager) applyScanResult(ctx context.Context, path string, res *scanResult) {
	current := gallery.StringSet{}
	for _, f := range res.files {
		current.Add(f.name)
	}

	m.mu.Lock()

	g, ok := m.items[path]
	if !ok {
		m.mu.Unlock()
		return
	}

	old := g.Status
	g.TotalImages = len(res.files)
	g.TotalSize = res.totalSize
	g.AvgWidth = res.avgWidth
	g.AvgHeight = res.avgHeight
	g.UploadedFiles = g.UploadedFiles.Intersect(current)
	g.UploadedImages = len(g.UploadedFiles)
	g.ScanComplete = true

	newStatus := gallery.StatusReady
	if g.UploadedImages > 0 && g.UploadedImages < g.TotalImages {
		newStatus = gallery.StatusIncomplete
	}

	g.Status = newStatus

	if g.TotalImages > 0 {
		g.Progress = 100 * g.UploadedImages / g.TotalImages
	}

	m.version.Add(1)
	m.markDirtyLocked(path)
	m.mu.Unlock()

	m.signals.StatusChanged.Publish(StatusChanged{Path: path, Old: old, New: newStatus})
}

// scanFolder enumerates image files at the folder root (no recursion),
// totals their sizes and derives average dimensions from a sampled subset so
// large galleries do not require decoding every header.
func scanFolder(ctx context.Context, dir string, cfg ScanConfig) (*scanResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read folder")
	}

	res := &scanResult{}

	for _, e := range entries {
		if !e.Type().IsRegular() || !IsImageFile(e.Name()) {
			continue
		}

		if matchesAny(e.Name(), cfg.ExcludePatterns) {
			continue
		}

		fi, err := e.Info()
		if err != nil {
			continue
		}

		res.files = append(res.files, scannedFile{name: e.Name(), size: fi.Size()})
		res.totalSize += fi.Size()
	}

	if len(res.files) == 0 {
		return nil, errors.New("folder contains no images")
	}

	sort.Slice(res.files, func(i, j int) bool { return res.files[i].name < res.files[j].name })

	sample := selectSample(res.files, cfg)

	var widths, heights []float64

	for _, f := range sample {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "canceled while scanning")
		}

		w, h, err := decodeDimensions(filepath.Join(dir, f.name))
		if err != nil {
			continue
		}

		widths = append(widths, float64(w))
		heights = append(heights, float64(h))
	}

	if len(widths) == 0 {
		return nil, errors.New("no valid image headers found")
	}

	if cfg.ExcludeOutliers && len(widths) >= 4 {
		widths, heights = dropOutliers(widths, heights)
	}

	res.avgWidth = int(average(widths, cfg.AverageMethod))
	res.avgHeight = int(average(heights, cfg.AverageMethod))

	return res, nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}

		if ok, err := filepath.Match(p, name); err == nil && ok {
			return true
		}

		if strings.Contains(strings.ToLower(name), strings.ToLower(p)) {
			return true
		}
	}

	return false
}

// selectSample picks the subset of files whose headers get decoded.
func selectSample(files []scannedFile, cfg ScanConfig) []scannedFile {
	candidates := files

	if cfg.ExcludeFirst && len(candidates) > 1 {
		candidates = candidates[1:]
	}

	if cfg.ExcludeLast && len(candidates) > 1 {
		candidates = candidates[:len(candidates)-1]
	}

	if cfg.ExcludeSmallImages {
		var kept []scannedFile

		for _, f := range candidates {
			if f.size >= cfg.ExcludeSmallThreshold {
				kept = append(kept, f)
			}
		}

		if len(kept) > 0 {
			candidates = kept
		}
	}

	want := cfg.SamplingFixedCount
	if cfg.SamplingMethod == "percentage" {
		want = len(candidates) * cfg.SamplingPercentage / 100
	}

	if want < 1 {
		want = 1
	}

	if want >= len(candidates) {
		return candidates
	}

	// evenly spaced sample across the folder.
	sample := make([]scannedFile, 0, want)
	step := float64(len(candidates)) / float64(want)

	for i := 0; i < want; i++ {
		sample = append(sample, candidates[int(float64(i)*step)])
	}

	return sample
}

func decodeDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, errors.Wrap(err, "unable to open image")
	}
	defer f.Close() //nolint:errcheck

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, errors.Wrap(err, "invalid image header")
	}

	return cfg.Width, cfg.Height, nil
}

// dropOutliers removes samples whose width deviates more than two standard
// deviations from the mean (covers, contact sheets).
func dropOutliers(widths, heights []float64) ([]float64, []float64) {
	mean := average(widths, "mean")

	var variance float64
	for _, w := range widths {
		variance += (w - mean) * (w - mean)
	}

	std := math.Sqrt(variance / float64(len(widths)))
	if std == 0 {
		return widths, heights
	}

	var (
		keptW []float64
		keptH []float64
	)

	for i, w := range widths {
		if math.Abs(w-mean) <= 2*std {
			keptW = append(keptW, w)
			keptH = append(keptH, heights[i])
		}
	}

	if len(keptW) == 0 {
		return widths, heights
	}

	return keptW, keptH
}

func average(values []float64, method string) float64 {
	if len(values) == 0 {
		return 0
	}

	if method == "median" {
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)

		mid := len(sorted) / 2
		if len(sorted)%2 == 0 {
			return (sorted[mid-1] + sorted[mid]) / 2
		}

		return sorted[mid]
	}

	var sum float64
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}
