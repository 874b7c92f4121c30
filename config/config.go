// Package config loads and saves the imxup.ini user configuration and owns
// the configuration directory layout.
package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"

	"github.com/imxup/imxup/hooks"
	"github.com/imxup/imxup/queue"
)

// UploadConfig holds the [upload] section.
type UploadConfig struct {
	// Timeout bounds one image upload request.
	Timeout time.Duration

	// Retries is the per-image retry count on transient failures.
	Retries int

	// BatchSize is the number of concurrent image uploads per gallery.
	BatchSize int
}

// GeneralConfig holds the [general] section.
type GeneralConfig struct {
	BaseURL         string
	Username        string
	ThumbnailSize   string
	ThumbnailFormat string
	AutoArchiveDays int
}

// FileHostConfig describes one secondary host from the [filehosts] section.
// Passwords live in the OS secret store, keyed by host name.
type FileHostConfig struct {
	Name     string
	BaseURL  string
	Username string
	Enabled  bool
}

// Config is the full parsed imxup.ini.
type Config struct {
	Upload    UploadConfig
	General   GeneralConfig
	Scanning  queue.ScanConfig
	Hooks     hooks.Config
	FileHosts []FileHostConfig
}

// Default returns the configuration used when no ini file exists.
func Default() *Config {
	return &Config{
		Upload: UploadConfig{
			Timeout:   90 * time.Second,
			Retries:   3,
			BatchSize: 4,
		},
		General: GeneralConfig{
			ThumbnailSize:   "300",
			ThumbnailFormat: "jpg",
		},
		Scanning: queue.ScanConfig{
			SamplingMethod:        "fixed",
			SamplingFixedCount:    10,
			SamplingPercentage:    25,
			ExcludeSmallThreshold: 10 << 10,
			AverageMethod:         "mean",
		},
		Hooks: hooks.Config{
			Hooks: map[hooks.Event]hooks.HookConfig{},
		},
	}
}

var hookEvents = []hooks.Event{hooks.EventAdded, hooks.EventStarted, hooks.EventCompleted}

// Load reads imxup.ini at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	f, err := ini.LooseLoad(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse configuration")
	}

	c := Default()

	up := f.Section("upload")
	c.Upload.Timeout = time.Duration(up.Key("timeout").MustInt(int(c.Upload.Timeout/time.Second))) * time.Second
	c.Upload.Retries = up.Key("retries").MustInt(c.Upload.Retries)
	c.Upload.BatchSize = up.Key("batch_size").MustInt(c.Upload.BatchSize)

	gen := f.Section("general")
	c.General.BaseURL = gen.Key("base_url").MustString(c.General.BaseURL)
	c.General.Username = gen.Key("username").MustString(c.General.Username)
	c.General.ThumbnailSize = gen.Key("thumbnail_size").MustString(c.General.ThumbnailSize)
	c.General.ThumbnailFormat = gen.Key("thumbnail_format").MustString(c.General.ThumbnailFormat)
	c.General.AutoArchiveDays = gen.Key("auto_archive_days").MustInt(c.General.AutoArchiveDays)

	sc := f.Section("SCANNING")
	c.Scanning.FastScanning = sc.Key("fast_scanning").MustBool(c.Scanning.FastScanning)
	c.Scanning.SamplingMethod = sc.Key("sampling_method").MustString(c.Scanning.SamplingMethod)
	c.Scanning.SamplingFixedCount = sc.Key("sampling_fixed_count").MustInt(c.Scanning.SamplingFixedCount)
	c.Scanning.SamplingPercentage = sc.Key("sampling_percentage").MustInt(c.Scanning.SamplingPercentage)
	c.Scanning.ExcludeFirst = sc.Key("exclude_first").MustBool(c.Scanning.ExcludeFirst)
	c.Scanning.ExcludeLast = sc.Key("exclude_last").MustBool(c.Scanning.ExcludeLast)
	c.Scanning.ExcludeSmallImages = sc.Key("exclude_small_images").MustBool(c.Scanning.ExcludeSmallImages)
	c.Scanning.ExcludeSmallThreshold = sc.Key("exclude_small_threshold").MustInt64(c.Scanning.ExcludeSmallThreshold)
	c.Scanning.ExcludeOutliers = sc.Key("exclude_outliers").MustBool(c.Scanning.ExcludeOutliers)
	c.Scanning.AverageMethod = sc.Key("average_method").MustString(c.Scanning.AverageMethod)

	if raw := sc.Key("exclude_patterns").String(); raw != "" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Scanning.ExcludePatterns = append(c.Scanning.ExcludePatterns, p)
			}
		}
	}

	ea := f.Section("EXTERNAL_APPS")
	c.Hooks.ParallelExecution = ea.Key("parallel_execution").MustBool(false)

	for _, ev := range hookEvents {
		prefix := "hook_" + string(ev) + "_"

		hc := hooks.HookConfig{
			Enabled:     ea.Key(prefix + "enabled").MustBool(false),
			Command:     ea.Key(prefix + "command").String(),
			ShowConsole: ea.Key(prefix + "show_console").MustBool(false),
		}

		for i := range hc.KeyMapping {
			hc.KeyMapping[i] = ea.Key(prefix + "key" + strconv.Itoa(i+1)).String()
		}

		if hc.Command != "" || hc.Enabled {
			c.Hooks.Hooks[ev] = hc
		}
	}

	for _, sub := range f.Section("filehosts").ChildSections() {
		name := strings.TrimPrefix(sub.Name(), "filehosts.")

		c.FileHosts = append(c.FileHosts, FileHostConfig{
			Name:     name,
			BaseURL:  sub.Key("base_url").String(),
			Username: sub.Key("username").String(),
			Enabled:  sub.Key("enabled").MustBool(false),
		})
	}

	return c, nil
}

// Save writes the configuration back to path in the section layout Load
// expects.
func (c *Config) Save(path string) error {
	f := ini.Empty()

	up := f.Section("upload")
	up.Key("timeout").SetValue(strconv.Itoa(int(c.Upload.Timeout / time.Second)))
	up.Key("retries").SetValue(strconv.Itoa(c.Upload.Retries))
	up.Key("batch_size").SetValue(strconv.Itoa(c.Upload.BatchSize))

	gen := f.Section("general")
	gen.Key("base_url").SetValue(c.General.BaseURL)
	gen.Key("username").SetValue(c.General.Username)
	gen.Key("thumbnail_size").SetValue(c.General.ThumbnailSize)
	gen.Key("thumbnail_format").SetValue(c.General.ThumbnailFormat)
	gen.Key("auto_archive_days").SetValue(strconv.Itoa(c.General.AutoArchiveDays))

	sc := f.Section("SCANNING")
	sc.Key("fast_scanning").SetValue(strconv.FormatBool(c.Scanning.FastScanning))
	sc.Key("sampling_method").SetValue(c.Scanning.SamplingMethod)
	sc.Key("sampling_fixed_count").SetValue(strconv.Itoa(c.Scanning.SamplingFixedCount))
	sc.Key("sampling_percentage").SetValue(strconv.Itoa(c.Scanning.SamplingPercentage))
	sc.Key("exclude_first").SetValue(strconv.FormatBool(c.Scanning.ExcludeFirst))
	sc.Key("exclude_last").SetValue(strconv.FormatBool(c.Scanning.ExcludeLast))
	sc.Key("exclude_small_images").SetValue(strconv.FormatBool(c.Scanning.ExcludeSmallImages))
	sc.Key("exclude_small_threshold").SetValue(strconv.FormatInt(c.Scanning.ExcludeSmallThreshold, 10))
	sc.Key("exclude_outliers").SetValue(strconv.FormatBool(c.Scanning.ExcludeOutliers))
	sc.Key("exclude_patterns").SetValue(strings.Join(c.Scanning.ExcludePatterns, ","))
	sc.Key("average_method").SetValue(c.Scanning.AverageMethod)

	ea := f.Section("EXTERNAL_APPS")
	ea.Key("parallel_execution").SetValue(strconv.FormatBool(c.Hooks.ParallelExecution))

	for _, ev := range hookEvents {
		hc, ok := c.Hooks.Hooks[ev]
		if !ok {
			continue
		}

		prefix := "hook_" + string(ev) + "_"
		ea.Key(prefix + "enabled").SetValue(strconv.FormatBool(hc.Enabled))
		ea.Key(prefix + "command").SetValue(hc.Command)
		ea.Key(prefix + "show_console").SetValue(strconv.FormatBool(hc.ShowConsole))

		for i, k := range hc.KeyMapping {
			if k != "" {
				ea.Key(prefix + "key" + strconv.Itoa(i+1)).SetValue(k)
			}
		}
	}

	for _, fh := range c.FileHosts {
		sub := f.Section("filehosts." + fh.Name)
		sub.Key("base_url").SetValue(fh.BaseURL)
		sub.Key("username").SetValue(fh.Username)
		sub.Key("enabled").SetValue(strconv.FormatBool(fh.Enabled))
	}

	return errors.Wrap(f.SaveTo(path), "unable to write configuration")
}
