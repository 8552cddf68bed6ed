package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	FontConfig struct {
		ID     int     `yaml:"id" validate:"gte=0"`
		Path   string  `yaml:"path,omitempty" sanitize:"path_clean" validate:"omitempty,filepath"`
		SizePx float64 `yaml:"size_px" validate:"gt=0"`
	}

	MarginsConfig struct {
		Left   int `yaml:"left" validate:"gte=0"`
		Right  int `yaml:"right" validate:"gte=0"`
		Top    int `yaml:"top" validate:"gte=0"`
		Bottom int `yaml:"bottom" validate:"gte=0"`
	}

	HyphenationConfig struct {
		Enable        bool   `yaml:"enable"`
		Language      string `yaml:"language" validate:"required_unless=Enable false"`
		DictionaryDir string `yaml:"dictionary_dir,omitempty" sanitize:"path_clean"`
	}

	LayoutConfig struct {
		ViewportWidth         int               `yaml:"viewport_width" validate:"min=1"`
		ViewportHeight        int               `yaml:"viewport_height" validate:"min=1"`
		Margins               MarginsConfig     `yaml:"margins"`
		Font                  FontConfig        `yaml:"font"`
		LineCompression       float32           `yaml:"line_compression" validate:"gte=0.5,lte=2.0"`
		Alignment             string            `yaml:"alignment" validate:"oneof=justify left center right"`
		Stylesheet            string            `yaml:"stylesheet,omitempty" sanitize:"path_clean"`
		ExtraParagraphSpacing bool              `yaml:"extra_paragraph_spacing"`
		Hyphenation           HyphenationConfig `yaml:"hyphenation"`
	}

	ImagesConfig struct {
		MaxWidth  int `yaml:"max_width" validate:"min=1"`
		MaxHeight int `yaml:"max_height" validate:"min=1"`
	}

	CacheConfig struct {
		Dir string `yaml:"dir" sanitize:"path_clean" validate:"required"`
	}

	LibraryConfig struct {
		Path string `yaml:"path" sanitize:"path_clean,assure_dir_exists_for_file" validate:"required,filepath"`
	}

	Config struct {
		Version int           `yaml:"version" validate:"eq=1"`
		Layout  LayoutConfig  `yaml:"layout"`
		Images  ImagesConfig  `yaml:"images"`
		Cache   CacheConfig   `yaml:"cache"`
		Library LibraryConfig `yaml:"library"`
		Logging LoggingConfig `yaml:"logging"`
	}
)

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
