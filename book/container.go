package book

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	zip "github.com/hidez8891/zip"
	"github.com/maruel/natural"
	"go.uber.org/zap"
)

// bookExtensions are member suffixes recognized as books inside a zip
// container.
var bookExtensions = []string{".txt", ".html", ".htm", ".xhtml", ".epub", ".pdb", ".updb"}

// ListContainer enumerates book-like members of a zip container in natural
// order (vol2 before vol10), decoding archaic member name encodings when a
// code page is forced.
func ListContainer(data []byte, opt *OpenOptions) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("unable to open zip container: %w", err)
	}
	var names []string
	for _, f := range r.File {
		name := decodeMemberName(f, opt)
		if !isBookName(name) {
			continue
		}
		names = append(names, name)
	}
	sort.Sort(natural.StringSlice(names))
	return names, nil
}

// openContainer extracts the book selected by opt.Index from a zip container.
func openContainer(name string, data []byte, opt *OpenOptions, log *zap.Logger) (string, []byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, fmt.Errorf("unable to open zip container %q: %w", name, err)
	}

	type member struct {
		name string
		file *zip.File
	}
	var members []member
	for _, f := range r.File {
		decoded := decodeMemberName(f, opt)
		if !isBookName(decoded) {
			continue
		}
		members = append(members, member{name: decoded, file: f})
	}
	if len(members) == 0 {
		return "", nil, fmt.Errorf("container %q holds no books", name)
	}
	sort.Slice(members, func(i, j int) bool { return natural.Less(members[i].name, members[j].name) })

	index := opt.Index
	if index < 0 {
		index = 0
	} else if index >= len(members) {
		log.Warn("Book index out of container range, using first",
			zap.String("container", name), zap.Int("index", index), zap.Int("books", len(members)))
		index = 0
	}

	rc, err := members[index].file.Open()
	if err != nil {
		return "", nil, fmt.Errorf("unable to open container member %q: %w", members[index].name, err)
	}
	defer rc.Close()
	content, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("unable to read container member %q: %w", members[index].name, err)
	}
	return filepath.Base(members[index].name), content, nil
}

func decodeMemberName(f *zip.File, opt *OpenOptions) string {
	name := f.Name
	if opt.CodePage == nil || f.Flags&0x800 != 0 {
		// bit 11 of the general purpose flags marks UTF-8 names
		return name
	}
	decoded, err := opt.CodePage.NewDecoder().String(name)
	if err != nil {
		return name
	}
	return decoded
}

func isBookName(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range bookExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
