package book

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/matchers"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"

	"tbr/common"
)

// OpenOptions tune opening of containers; zero value is fine for plain books.
type OpenOptions struct {
	// CodePage forces decoding of non UTF-8 member names inside zip
	// containers (zip "standard" does not define file name encoding and old
	// archives use archaic code pages).
	CodePage encoding.Encoding
	// Index selects a book inside a multi-book zip container.
	Index int
}

// Loader turns raw source bytes of one format into a Document. Loaders are
// the only place format specific logic lives; past this boundary everything
// operates on the content model.
type Loader interface {
	Format() common.BookFormat
	Accepts(name string, data []byte) bool
	Load(name string, data []byte, opt *OpenOptions, log *zap.Logger) (*Document, error)
}

// Probing order matters: the txt loader accepts nearly everything and goes
// last.
var loaders = []Loader{epubLoader{}, haodooLoader{}, htmlLoader{}, txtLoader{}}

// Load detects the book format and builds a Document. Zip archives that are
// not EPUBs are treated as containers of books, the inner book selected by
// opt.Index.
func Load(name string, data []byte, opt *OpenOptions, log *zap.Logger) (*Document, error) {
	if opt == nil {
		opt = &OpenOptions{}
	}
	if (epubLoader{}).Accepts(name, data) {
		return epubLoader{}.Load(name, data, opt, log)
	}
	if filetype.IsType(data, matchers.TypeZip) {
		innerName, innerData, err := openContainer(name, data, opt, log)
		if err != nil {
			return nil, err
		}
		log.Debug("Opening book from container", zap.String("container", name), zap.String("book", innerName))
		return Load(innerName, innerData, opt, log)
	}
	for _, loader := range loaders {
		if loader.Accepts(name, data) {
			return loader.Load(name, data, opt, log)
		}
	}
	// no extension matched - read it as plain text, the reader must
	// always render something
	return txtLoader{}.Load(name, data, opt, log)
}

// Open reads and loads the book at path.
func Open(path string, opt *OpenOptions, log *zap.Logger) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %q: %w", path, err)
	}
	return Load(filepath.Base(path), data, opt, log)
}
