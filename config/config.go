// Package config handles evalwatch configuration from YAML files.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/evalwatch/extract"
	"github.com/hazyhaar/evalwatch/lifecycle"
	"github.com/hazyhaar/evalwatch/receiver"
	"github.com/hazyhaar/evalwatch/reconcile"
	"github.com/hazyhaar/evalwatch/watch"
	"github.com/hazyhaar/evalwatch/widget"
)

// Config is the top-level evalwatch configuration.
type Config struct {
	Page      PageConfig          `yaml:"page"`
	Autosave  AutosaveConfig      `yaml:"autosave"`
	Submit    SubmitConfig        `yaml:"submit"`
	Schema    extract.Schema      `yaml:"schema"`
	Selectors reconcile.Selectors `yaml:"selectors"`
	Slider    SliderConfig        `yaml:"slider"`
	Controls  watch.Controls      `yaml:"controls"`
	Receiver  ReceiverConfig      `yaml:"receiver"`
}

// PageConfig defines the page to observe.
type PageConfig struct {
	ID     string `yaml:"id"`
	URL    string `yaml:"url"`
	Remote string `yaml:"remote"` // DevTools websocket URL; empty launches a browser
}

// AutosaveConfig controls the periodic submission timer.
type AutosaveConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// SubmitConfig controls record delivery.
type SubmitConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// SliderConfig sets the bounds of attached rating sliders.
type SliderConfig struct {
	Min   int `yaml:"min"`
	Max   int `yaml:"max"`
	Value int `yaml:"value"`
	Step  int `yaml:"step"`
}

// ReceiverConfig configures the submission receiver service. Labels remap
// the stored column headings; zero-value fields keep the canonical English
// headings.
type ReceiverConfig struct {
	Addr   string          `yaml:"addr"`
	DBPath string          `yaml:"db_path"`
	Labels receiver.Labels `yaml:"labels"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Autosave.Interval <= 0 {
		c.Autosave.Interval = lifecycle.DefaultInterval
	}
	if c.Submit.URL == "" {
		c.Submit.URL = "http://127.0.0.1:8077/api/submit"
	}
	if c.Submit.Timeout <= 0 {
		c.Submit.Timeout = 10 * time.Second
	}
	if c.Selectors == (reconcile.Selectors{}) {
		c.Selectors = reconcile.DefaultSelectors()
	}
	if c.Slider == (SliderConfig{}) {
		c.Slider = SliderConfig{Min: 1, Max: 7, Value: 4, Step: 1}
	}
	if c.Controls == (watch.Controls{}) {
		c.Controls = watch.DefaultControls()
	}
	if c.Receiver.Addr == "" {
		c.Receiver.Addr = ":8077"
	}
	if c.Receiver.DBPath == "" {
		c.Receiver.DBPath = "evalwatch.db"
	}
	c.Receiver.Labels = receiver.MergedLabels(c.Receiver.Labels)
	// Schema zero values fall back to the canonical selectors at merge
	// time, so no per-field defaulting is needed here.
	c.Schema = extract.Merged(c.Schema)
}

// SliderOptions converts the slider section to widget options.
func (c *Config) SliderOptions() widget.Options {
	return widget.Options{
		Min:   c.Slider.Min,
		Max:   c.Slider.Max,
		Value: c.Slider.Value,
		Step:  c.Slider.Step,
	}
}
