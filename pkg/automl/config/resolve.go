package config

import (
	"bytes"
	"embed"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DefaultPreset is the base every other preset is merged over.
const DefaultPreset = "tabular"

//go:embed presets/*.yml
var presets embed.FS

// Source is the base layer of a configuration: an embedded preset or a YAML file.
type Source struct {
	preset string
	path   string
}

// Preset selects an embedded preset by name.
func Preset(name string) Source { return Source{preset: name} }

// File selects a YAML file merged over the default preset.
func File(path string) Source { return Source{path: path} }

func (s Source) String() string {
	if s.path != "" {
		return s.path
	}

	if s.preset == "" {
		return DefaultPreset
	}

	return s.preset
}

// Presets lists the embedded preset names.
func Presets() []string {
	entries, err := presets.ReadDir("presets")
	if err != nil {
		return nil
	}

	res := make([]string, 0, len(entries))
	for _, e := range entries {
		res = append(res, strings.TrimSuffix(e.Name(), ".yml"))
	}

	sort.Strings(res)

	return res
}

type resolveOptions struct {
	permissive bool
}

// Option configures Resolve.
type Option func(o *resolveOptions)

// Permissive accepts override keys that have no default instead of failing.
func Permissive() Option {
	return func(o *resolveOptions) {
		o.permissive = true
	}
}

// Resolve merges caller overrides over the base configuration and decodes the result.
// Override keys win; unspecified keys keep their defaults; nested maps merge recursively.
func Resolve(base Source, overrides map[string]map[string]any, opts ...Option) (*Config, error) {
	o := &resolveOptions{}
	for _, opt := range opts {
		opt(o)
	}

	tree, err := loadPreset(DefaultPreset)
	if err != nil {
		return nil, err
	}

	layer, err := loadSource(base)
	if err != nil {
		return nil, err
	}

	if layer != nil {
		err = merge(tree, layer, "", false)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to apply %s", base)
		}
	}

	user := make(map[string]any, len(overrides))
	for section, values := range overrides {
		user[section] = toTree(values)
	}

	err = merge(tree, user, "", o.permissive)
	if err != nil {
		return nil, errors.Wrap(err, "unable to apply overrides")
	}

	cfg, err := decode(tree)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "unable to validate configuration")
	}

	return cfg, nil
}

// Template writes the default preset.
func Template(w io.Writer) error {
	raw, err := presets.ReadFile("presets/" + DefaultPreset + ".yml")
	if err != nil {
		return errors.Wrap(err, "unable to read default preset")
	}

	_, err = w.Write(raw)
	if err != nil {
		return errors.Wrap(err, "unable to write template")
	}

	return nil
}

func loadSource(s Source) (map[string]any, error) {
	if s.path != "" {
		raw, err := os.ReadFile(s.path)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read config file %s", s.path)
		}

		return parse(raw, s.path)
	}

	if s.preset == "" || s.preset == DefaultPreset {
		return nil, nil
	}

	return loadPreset(s.preset)
}

func loadPreset(name string) (map[string]any, error) {
	raw, err := presets.ReadFile("presets/" + name + ".yml")
	if err != nil {
		return nil, errors.Wrap(newError(name, "unknown preset"), err.Error())
	}

	return parse(raw, name)
}

func parse(raw []byte, name string) (map[string]any, error) {
	tree := map[string]any{}

	err := yaml.Unmarshal(raw, &tree)
	if err != nil {
		return nil, errors.Wrap(newError(name, err.Error()), "unable to parse configuration")
	}

	return tree, nil
}

// toTree normalises caller values so nested map[string]any merge like YAML maps.
func toTree(values map[string]any) map[string]any {
	res := make(map[string]any, len(values))

	for k, v := range values {
		if m, ok := v.(map[string]any); ok {
			res[k] = toTree(m)

			continue
		}

		res[k] = v
	}

	return res
}

func merge(dst, src map[string]any, prefix string, permissive bool) error {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, key := range keys {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		value := src[key]

		current, known := dst[key]
		if !known {
			// sections are never free-form
			if prefix == "" || !permissive {
				return newError(path, "unknown key")
			}

			continue
		}

		srcMap, srcIsMap := value.(map[string]any)
		dstMap, dstIsMap := current.(map[string]any)

		if srcIsMap && dstIsMap {
			err := merge(dstMap, srcMap, path, permissive)
			if err != nil {
				return err
			}

			continue
		}

		if dstIsMap && value != nil {
			return newError(path, "expected a mapping")
		}

		dst[key] = value
	}

	return nil
}

func decode(tree map[string]any) (*Config, error) {
	raw, err := yaml.Marshal(tree)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode merged configuration")
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	cfg := &Config{}

	err = dec.Decode(cfg)
	if err != nil {
		return nil, errors.Wrap(newError("document", err.Error()), "unable to decode configuration")
	}

	return cfg, nil
}
