package vocabulary

import (
	"encoding/json"
	"os"
	"path/filepath"

	"golang.org/x/text/language"
)

// Vocabulary is the per-language custom term set operators drop next to
// the data directory. Terms are fed to the transcription backends as
// recognition hints; Corrections rewrite known mis-transcriptions
// afterwards (misheard form to canonical form).
type Vocabulary struct {
	Terms       []string          `json:"terms,omitempty"`
	Corrections map[string]string `json:"corrections,omitempty"`
}

func (v Vocabulary) Empty() bool {
	return len(v.Terms) == 0 && len(v.Corrections) == 0
}

// Filename returns the vocabulary filename for a language, using the
// 2-letter base code (e.g. "vocabulary.en.json").
func Filename(lang string) string {
	return "vocabulary." + normalizeLanguageCode(lang) + ".json"
}

// FilePath returns the full path to the vocabulary file in the given
// directory.
func FilePath(dir, lang string) string {
	return filepath.Join(dir, Filename(lang))
}

// Load reads a vocabulary from a JSON file.
func Load(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, err
	}

	var vocab Vocabulary
	if err := json.Unmarshal(data, &vocab); err != nil {
		return Vocabulary{}, err
	}
	return vocab, nil
}

// Save writes a vocabulary to a JSON file with indentation.
func Save(path string, vocab Vocabulary) error {
	data, err := json.MarshalIndent(vocab, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Dir looks vocabularies up by language in one directory. Missing files
// are not an error; they just mean no vocabulary.
type Dir struct {
	dir string
}

func NewDir(dir string) *Dir {
	return &Dir{dir: dir}
}

func (d *Dir) Lookup(lang string) (Vocabulary, bool) {
	if d == nil || d.dir == "" || lang == "" {
		return Vocabulary{}, false
	}
	vocab, err := Load(FilePath(d.dir, lang))
	if err != nil || vocab.Empty() {
		return Vocabulary{}, false
	}
	return vocab, true
}

// normalizeLanguageCode parses a language string and returns its 2-letter
// base code.
func normalizeLanguageCode(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return lang
	}
	base, _ := tag.Base()
	return base.String()
}
