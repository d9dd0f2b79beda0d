// Package languages holds the catalog of translation target languages.
package languages

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Placeholder is the unset value of a target-language selection. Requests
// carrying it are ignored.
const Placeholder = "Select Language"

// DefaultSource is the language transcripts are assumed to be in.
const DefaultSource = "eng_Latn"

//go:embed catalog.yaml
var catalogYAML []byte

// Language is one selectable language.
type Language struct {
	Name string `yaml:"name" json:"name"`
	Code string `yaml:"code" json:"code"`
}

type catalog struct {
	Languages []Language `yaml:"languages"`
}

var (
	loadOnce sync.Once
	all      []Language
	byCode   map[string]Language
	loadErr  error
)

func load() {
	loadOnce.Do(func() {
		var c catalog
		if err := yaml.Unmarshal(catalogYAML, &c); err != nil {
			loadErr = fmt.Errorf("parse language catalog: %w", err)
			return
		}
		sort.Slice(c.Languages, func(i, j int) bool { return c.Languages[i].Name < c.Languages[j].Name })
		all = c.Languages
		byCode = make(map[string]Language, len(all))
		for _, l := range all {
			byCode[l.Code] = l
		}
	})
}

// All returns the catalog sorted by name.
func All() ([]Language, error) {
	load()
	if loadErr != nil {
		return nil, loadErr
	}
	return append([]Language(nil), all...), nil
}

// Lookup returns the language with code.
func Lookup(code string) (Language, bool) {
	load()
	l, ok := byCode[code]
	return l, ok
}

// Name returns the display name of code, or code itself when unknown.
func Name(code string) string {
	if l, ok := Lookup(code); ok {
		return l.Name
	}
	return code
}

// IsSelected reports whether target is an actual choice rather than empty
// or the placeholder.
func IsSelected(target string) bool {
	return target != "" && target != Placeholder
}
