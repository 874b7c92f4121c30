package queue

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/imxup/imxup/gallery"
)

func TestIsImageFile(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"a.jpg":      true,
		"a.JPG":      true,
		"a.jpeg":     true,
		"a.png":      true,
		"a.gif":      true,
		"a.webp":     false,
		"a.txt":      false,
		"noext":      false,
		"a.jpg.part": false,
	}

	for name, want := range cases {
		require.Equal(t, want, IsImageFile(name), name)
	}
}

func TestScanFolderEmptyFails(t *testing.T) {
	t.Parallel()

	_, err := scanFolder(context.Background(), t.TempDir(), ScanConfig{}.withDefaults())
	require.Error(t, err)
}

func TestScanFolderNonImagesFail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.bin"), []byte("x"), 0o600))

	_, err := scanFolder(context.Background(), dir, ScanConfig{}.withDefaults())
	require.Error(t, err)
}

func TestScanFolderCorruptHeadersFail(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.png"), []byte("not a png"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.jpg"), []byte("not a jpg"), 0o600))

	_, err := scanFolder(context.Background(), dir, ScanConfig{}.withDefaults())
	require.Error(t, err)
}

func TestScanFolderIgnoresSubdirectories(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "top.png"), 100, 50)

	sub := filepath.Join(dir, "nested")
	require.NoError(t, os.Mkdir(sub, 0o700))
	writeTestImage(t, filepath.Join(sub, "deep.png"), 100, 50)

	res, err := scanFolder(context.Background(), dir, ScanConfig{}.withDefaults())
	require.NoError(t, err)
	require.Len(t, res.files, 1)
	require.Equal(t, "top.png", res.files[0].name)
}

func TestScanFolderExcludePatterns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "cover.png"), 100, 50)
	writeTestImage(t, filepath.Join(dir, "page01.png"), 100, 50)
	writeTestImage(t, filepath.Join(dir, "page02.png"), 100, 50)

	cfg := ScanConfig{ExcludePatterns: []string{"cover*"}}.withDefaults()

	res, err := scanFolder(context.Background(), dir, cfg)
	require.NoError(t, err)
	require.Len(t, res.files, 2)

	for _, f := range res.files {
		require.NotEqual(t, "cover.png", f.name)
	}
}

func TestScanFolderDimensions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "a.png"), 100, 200)
	writeTestImage(t, filepath.Join(dir, "b.png"), 300, 400)

	res, err := scanFolder(context.Background(), dir, ScanConfig{}.withDefaults())
	require.NoError(t, err)
	require.Equal(t, 200, res.avgWidth)
	require.Equal(t, 300, res.avgHeight)
	require.NotZero(t, res.totalSize)
}

func TestSelectSampleEvenlySpaced(t *testing.T) {
	t.Parallel()

	files := make([]scannedFile, 100)
	for i := range files {
		files[i] = scannedFile{name: string(rune('a' + i%26)), size: 1 << 20}
	}

	cfg := ScanConfig{SamplingMethod: "fixed", SamplingFixedCount: 10}.withDefaults()

	sample := selectSample(files, cfg)
	require.Len(t, sample, 10)

	cfg = ScanConfig{SamplingMethod: "percentage", SamplingPercentage: 25}.withDefaults()

	sample = selectSample(files, cfg)
	require.Len(t, sample, 25)
}

func TestSelectSampleExcludeFirstLastSmall(t *testing.T) {
	t.Parallel()

	files := []scannedFile{
		{name: "00-cover.png", size: 1 << 20},
		{name: "01.png", size: 1 << 20},
		{name: "02-thumb.png", size: 512},
		{name: "03.png", size: 1 << 20},
		{name: "zz-back.png", size: 1 << 20},
	}

	cfg := ScanConfig{
		ExcludeFirst:       true,
		ExcludeLast:        true,
		ExcludeSmallImages: true,
		SamplingFixedCount: 100,
	}.withDefaults()

	sample := selectSample(files, cfg)
	require.Len(t, sample, 2)
	require.Equal(t, "01.png", sample[0].name)
	require.Equal(t, "03.png", sample[1].name)
}

func TestAverageMeanAndMedian(t *testing.T) {
	t.Parallel()

	values := []float64{10, 20, 90}

	require.InDelta(t, 40.0, average(values, "mean"), 0.001)
	require.InDelta(t, 20.0, average(values, "median"), 0.001)
	require.InDelta(t, 15.0, average([]float64{10, 20}, "median"), 0.001)
	require.Zero(t, average(nil, "mean"))
}

func TestDropOutliers(t *testing.T) {
	t.Parallel()

	widths := []float64{800, 810, 790, 805, 795, 4000}
	heights := []float64{600, 600, 600, 600, 600, 100}

	w, h := dropOutliers(widths, heights)
	require.Len(t, w, 5)
	require.Len(t, h, 5)
	require.NotContains(t, w, 4000.0)
}

func TestScanFailedStatusThroughManager(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)

	dir := t.TempDir() // no images inside

	require.True(t, m.AddItem(ctx, dir, "", "", ""))

	g := waitStatus(t, m, dir, gallery.StatusScanFailed)
	require.NotEmpty(t, g.ErrorMessage)
	require.False(t, g.Status.CanStart())
}

func TestAdditiveRescanPreservesUploadedFiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, _ := newTestManager(t)

	dir := t.TempDir()
	writeTestImage(t, filepath.Join(dir, "a.png"), 100, 100)
	writeTestImage(t, filepath.Join(dir, "b.png"), 100, 100)

	require.True(t, m.AddItem(ctx, dir, "", "", ""))
	waitStatus(t, m, dir, gallery.StatusReady)

	m.RecordImageUploaded(ctx, dir, "a.png", 10)

	// a new file shows up and a stale uploaded record points at a file
	// that no longer exists on disk.
	writeTestImage(t, filepath.Join(dir, "c.png"), 100, 100)
	m.mutate(dir, func(g *gallery.Gallery) { g.UploadedFiles.Add("gone.png") })

	m.RescanGalleryAdditive(ctx, dir)

	g := waitStatus(t, m, dir, gallery.StatusIncomplete)
	require.Equal(t, 3, g.TotalImages)
	require.Equal(t, 1, g.UploadedImages)
	require.True(t, g.UploadedFiles.Contains("a.png"))
	require.False(t, g.UploadedFiles.Contains("gone.png"))
}
