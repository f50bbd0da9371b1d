package playlist

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/bbernstein/lacylights-showsync/internal/show"
	"github.com/bbernstein/lacylights-showsync/internal/showerr"
)

// documentFile is the playlist YAML layout. "playlist" is accepted as an
// older spelling of "shows".
type documentFile struct {
	Repeat   string   `yaml:"repeat"`
	Volume   *int     `yaml:"volume"`
	Shows    []string `yaml:"shows"`
	Playlist []string `yaml:"playlist"`
}

// Document is a loaded playlist file.
type Document struct {
	Path   string
	Repeat *RepeatMode
	Volume *int
	Shows  []*show.Show
	// Files lists every show path referenced by the document, loaded or not.
	Files []string
	// Problems holds one ConfigError per show that failed to load and was skipped.
	Problems []error
}

// LoadDocument reads a playlist file and every show it references. Show
// paths are relative to the playlist file. A broken show is skipped and
// recorded in Problems; only an unreadable or malformed playlist file fails.
func LoadDocument(path string, ledCount int) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, showerr.Wrap(showerr.KindConfig, err, "read playlist %s", path)
	}

	var file documentFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, showerr.Wrap(showerr.KindConfig, err, "malformed playlist %s", path)
	}

	doc := &Document{Path: path}
	if file.Repeat != "" {
		mode, err := ParseRepeatMode(file.Repeat)
		if err != nil {
			return nil, showerr.Wrap(showerr.KindConfig, err, "playlist %s", path)
		}
		doc.Repeat = &mode
	}
	if file.Volume != nil {
		v := clampVolume(*file.Volume)
		doc.Volume = &v
	}

	base := filepath.Dir(path)
	refs := append(append([]string(nil), file.Shows...), file.Playlist...)
	for _, ref := range refs {
		showPath := ref
		if !filepath.IsAbs(showPath) {
			showPath = filepath.Join(base, showPath)
		}
		doc.Files = append(doc.Files, showPath)

		s, err := show.LoadFile(showPath, ledCount)
		if err != nil {
			log.Printf("Warning: skipping show %s: %v", showPath, err)
			doc.Problems = append(doc.Problems, err)
			continue
		}
		doc.Shows = append(doc.Shows, s)
	}

	if len(doc.Shows) == 0 && len(refs) > 0 {
		log.Printf("Warning: playlist %s has no playable shows", path)
	}
	return doc, nil
}

func clampVolume(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// String summarizes the document for startup logging.
func (d *Document) String() string {
	return fmt.Sprintf("%s (%d shows, %d skipped)", d.Path, len(d.Shows), len(d.Problems))
}
