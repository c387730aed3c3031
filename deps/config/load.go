package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/xerrors"
)

const (
	EnvPrefix = "POREP"

	// EnvConfigPath names a TOML file loaded by LoadFromEnv.
	EnvConfigPath = "POREP_CONFIG"

	envRowsToDiscard       = "POREP_SEAL_ROWSTODISCARD"
	legacyEnvRowsToDiscard = "FIL_PROOFS_ROWS_TO_DISCARD"
)

// FromFile loads config from a specified file overriding defaults specified in
// the def parameter. If file does not exist or is empty defaults are assumed.
func FromFile(path string, def *PoRepConfig) (*PoRepConfig, error) {
	file, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
		return FromReader(strings.NewReader(""), def)
	case err != nil:
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()
	return FromReader(file, def)
}

// FromReader loads config from a reader instance, then applies environment overrides.
func FromReader(reader io.Reader, def *PoRepConfig) (*PoRepConfig, error) {
	cfg := def
	if cfg == nil {
		cfg = DefaultPoRepConfig()
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, err
	}

	md, err := toml.Decode(buf.String(), cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, xerrors.Errorf("unknown config keys: %v", undecoded)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("processing env vars overrides: %s", err)
	}

	if _, set := os.LookupEnv(envRowsToDiscard); !set {
		if v, ok := os.LookupEnv(legacyEnvRowsToDiscard); ok {
			rows, err := strconv.Atoi(v)
			if err != nil {
				return nil, xerrors.Errorf("parsing %s: %w", legacyEnvRowsToDiscard, err)
			}
			cfg.Seal.RowsToDiscard = rows
		}
	}

	return cfg, nil
}

// LoadFromEnv returns the defaults, overridden by the file named in
// POREP_CONFIG when set, then by environment variables.
func LoadFromEnv() (*PoRepConfig, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return FromFile(path, DefaultPoRepConfig())
	}
	return FromReader(strings.NewReader(""), DefaultPoRepConfig())
}

// ConfigUpdate renders cfgCur as TOML. With commented set, lines equal to
// cfgDef are commented out and every field is annotated with its doc and env var.
func ConfigUpdate(cfgCur, cfgDef *PoRepConfig, commented bool) ([]byte, error) {
	var nodeStr, defStr string
	if cfgDef != nil {
		buf := new(bytes.Buffer)
		if err := toml.NewEncoder(buf).Encode(cfgDef); err != nil {
			return nil, xerrors.Errorf("encoding default config: %w", err)
		}
		defStr = buf.String()
	}

	{
		buf := new(bytes.Buffer)
		if err := toml.NewEncoder(buf).Encode(cfgCur); err != nil {
			return nil, xerrors.Errorf("encoding config: %w", err)
		}
		nodeStr = buf.String()
	}

	if commented {
		sectionRx := regexp.MustCompile(`\[(.+)]`)

		// default lines, keyed by section, are commented out below
		defaults := map[string]struct{}{}
		currentSection := ""
		for _, l := range strings.Split(defStr, "\n") {
			l = strings.TrimSpace(l)
			if len(l) == 0 || l[0] == '#' {
				continue
			}
			if l[0] == '[' {
				if m := sectionRx.FindStringSubmatch(l); len(m) == 2 {
					currentSection = m[1]
				}
				continue
			}
			defaults[currentSection+"."+l] = struct{}{}
		}

		var outLines []string
		var section string
		for i, line := range strings.Split(nodeStr, "\n") {
			trimmed := strings.TrimSpace(line)
			pad := strings.Repeat(" ", len(line)-len(strings.TrimLeftFunc(line, unicode.IsSpace)))

			if len(trimmed) > 0 && trimmed[0] == '[' {
				m := sectionRx.FindStringSubmatch(trimmed)
				if len(m) != 2 {
					return nil, xerrors.Errorf("section didn't match (line %d)", i)
				}
				section = m[1]

				// never comment sections
				outLines = append(outLines, line, "")
				continue
			}

			if lf := strings.Fields(line); len(lf) > 1 {
				if doc := findDoc(section, lf[0]); doc != nil {
					for _, docLine := range strings.Split(doc.Comment, "\n") {
						outLines = append(outLines, pad+"# "+docLine)
					}
					outLines = append(outLines, pad+"#", pad+"# type: "+doc.Type)
				}
				if !strings.Contains(section, ".") {
					outLines = append(outLines, pad+"# env var: "+EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(section, ".", "_"))+"_"+strings.ToUpper(lf[0]))
				}
			}

			if _, found := defaults[section+"."+trimmed]; (cfgDef == nil || found) && len(trimmed) > 0 {
				line = pad + "#" + line[len(pad):]
			}
			outLines = append(outLines, line)
			if len(trimmed) > 0 {
				outLines = append(outLines, "")
			}
		}
		nodeStr = strings.Join(outLines, "\n")
	}

	// sanity-check that the updated config parses the same way as the current one
	if cfgDef != nil {
		var def PoRepConfig
		if err := copyConfig(cfgDef, &def); err != nil {
			return nil, err
		}
		var updated PoRepConfig
		if err := copyConfig(&def, &updated); err != nil {
			return nil, err
		}
		if _, err := toml.Decode(nodeStr, &updated); err != nil {
			return nil, xerrors.Errorf("parsing updated config: %w", err)
		}
		if !cmp.Equal(&updated, cfgCur, cmpopts.EquateEmpty()) {
			return nil, xerrors.Errorf("updated config didn't match current config: %s", cmp.Diff(cfgCur, &updated))
		}
	}

	return []byte(nodeStr), nil
}

// ConfigComment renders the commented default config.
func ConfigComment(cfg *PoRepConfig) ([]byte, error) {
	return ConfigUpdate(cfg, DefaultPoRepConfig(), true)
}

func copyConfig(src, dst *PoRepConfig) error {
	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(src); err != nil {
		return xerrors.Errorf("encoding config: %w", err)
	}
	if _, err := toml.Decode(buf.String(), dst); err != nil {
		return xerrors.Errorf("decoding config: %w", err)
	}
	return nil
}

func findDoc(section, name string) *DocField {
	fields, ok := Doc["PoRepConfig"]
	if !ok {
		return nil
	}

	typ := ""
	for _, f := range fields {
		if f.Name == section {
			typ = f.Type
		}
	}
	for _, f := range Doc[typ] {
		if f.Name == name {
			return &f
		}
	}
	return nil
}
