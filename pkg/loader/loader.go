package loader

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/perbu/minisum/pkg/minisum"
)

const (
	DefaultChunkSize = 2000
	DefaultOverlap   = 100
)

// Options control how documents are split. Sizes are in runes.
type Options struct {
	ChunkSize int // Maximum chunk length, <= 0 disables size splitting
	Overlap   int // Runes carried over from the previous piece of a section
}

// DefaultOptions returns the default chunking parameters
func DefaultOptions() Options {
	return Options{ChunkSize: DefaultChunkSize, Overlap: DefaultOverlap}
}

var extensions = map[string]bool{".md": true, ".markdown": true, ".txt": true}

func isMarkdown(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".md" || ext == ".markdown"
}

// LoadDocuments reads all markdown and text files below root and returns
// them keyed by path relative to root. If root is a file it is read
// whatever its extension.
func LoadDocuments(fsys fs.FS, root string) (map[string]string, error) {
	docs := make(map[string]string)

	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip directories
		if d.IsDir() {
			return nil
		}

		single := p == root
		if !single && !extensions[strings.ToLower(path.Ext(p))] {
			return nil
		}

		// Read file content
		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}

		// Store with path relative to root
		relPath, err := filepath.Rel(root, p)
		if err != nil || relPath == "." {
			relPath = p
		}

		docs[filepath.ToSlash(relPath)] = string(content)
		return nil
	})

	return docs, err
}

// section is a run of text under one heading
type section struct {
	heading string
	offset  int // byte offset of body in the document
	body    string
}

// headingSections splits markdown on headings found by the goldmark
// parser, so '#' lines inside code blocks are left alone.
func headingSections(content string) []section {
	src := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	type mark struct {
		heading    string
		start, end int // heading line(s) span
	}
	var marks []mark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		lines := h.Lines()
		var title bytes.Buffer
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			if i > 0 {
				title.WriteByte(' ')
			}
			title.Write(bytes.TrimSpace(seg.Value(src)))
		}
		first, last := lines.At(0), lines.At(lines.Len()-1)
		start := bytes.LastIndexByte(src[:first.Start], '\n') + 1
		end := lineEnd(src, max(last.Stop-1, first.Start))
		// setext headings carry their underline on the following line
		if !bytes.HasPrefix(bytes.TrimLeft(src[start:], " "), []byte("#")) {
			end = lineEnd(src, end)
		}
		marks = append(marks, mark{heading: strings.TrimSpace(title.String()), start: start, end: end})
	}

	var sections []section
	if len(marks) == 0 {
		return []section{{body: content}}
	}
	if pre := content[:marks[0].start]; strings.TrimSpace(pre) != "" {
		sections = append(sections, section{body: pre})
	}
	for i, m := range marks {
		stop := len(content)
		if i+1 < len(marks) {
			stop = marks[i+1].start
		}
		bodyStart := min(m.end, stop)
		sections = append(sections, section{heading: m.heading, offset: bodyStart, body: content[bodyStart:stop]})
	}
	return sections
}

// lineEnd returns the offset just past the newline ending the line at pos
func lineEnd(src []byte, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	if i := bytes.IndexByte(src[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(src)
}

// ChunkDocument splits a document into chunks. Markdown is first split on
// headings, then every section longer than opts.ChunkSize is cut on
// paragraph, line or word boundaries. Index is left at zero.
func ChunkDocument(p, content string, opts Options) []minisum.Chunk {
	var sections []section
	if isMarkdown(p) {
		sections = headingSections(content)
	} else {
		sections = []section{{body: content}}
	}

	var chunks []minisum.Chunk
	for _, s := range sections {
		from := 0
		for _, piece := range splitText(s.body, opts.ChunkSize, opts.Overlap) {
			trimmed := strings.TrimSpace(piece)
			if trimmed == "" {
				continue
			}
			offset := s.offset
			if pos := strings.Index(s.body[from:], trimmed); pos >= 0 {
				offset += from + pos
				from += pos + 1
			}
			chunks = append(chunks, minisum.Chunk{
				Path:    p,
				Content: trimmed,
				Heading: s.heading,
				Offset:  offset,
			})
		}
	}

	// If nothing survived (only headings), keep the document as one chunk
	if len(chunks) == 0 && strings.TrimSpace(content) != "" {
		chunks = append(chunks, minisum.Chunk{Path: p, Content: strings.TrimSpace(content)})
	}

	return chunks
}

var separators = []string{"\n\n", "\n", " "}

// splitText cuts s into pieces of at most size runes, preferring the
// coarsest separator that works and carrying up to overlap runes of the
// previous piece into the next.
func splitText(s string, size, overlap int) []string {
	if size <= 0 || utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	if overlap >= size {
		overlap = size / 2
	}

	atoms := atomize(s, size, separators)

	var (
		out []string
		cur []string
		n   int
	)
	for _, a := range atoms {
		al := utf8.RuneCountInString(a)
		if n+al > size && len(cur) > 0 {
			out = append(out, strings.Join(cur, ""))
			// keep the tail of the previous piece as overlap
			var keep []string
			kl := 0
			for j := len(cur) - 1; j >= 0; j-- {
				l := utf8.RuneCountInString(cur[j])
				if kl+l > overlap {
					break
				}
				keep = append([]string{cur[j]}, keep...)
				kl += l
			}
			cur, n = keep, kl
			for len(cur) > 0 && n+al > size {
				n -= utf8.RuneCountInString(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, a)
		n += al
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, ""))
	}
	return out
}

// atomize breaks s into pieces no longer than size whose concatenation is s
func atomize(s string, size int, seps []string) []string {
	if utf8.RuneCountInString(s) <= size {
		return []string{s}
	}
	if len(seps) == 0 {
		r := []rune(s)
		var out []string
		for i := 0; i < len(r); i += size {
			out = append(out, string(r[i:min(i+size, len(r))]))
		}
		return out
	}
	var out []string
	for _, part := range strings.SplitAfter(s, seps[0]) {
		if part == "" {
			continue
		}
		out = append(out, atomize(part, size, seps[1:])...)
	}
	return out
}

// LoadAndChunkAll loads all documents and chunks them in path order. Chunk
// indexes run from 0 across all documents.
func LoadAndChunkAll(fsys fs.FS, root string, opts Options) ([]minisum.Chunk, error) {
	docs, err := LoadDocuments(fsys, root)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(docs))
	for p := range docs {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var allChunks []minisum.Chunk
	for _, p := range paths {
		for _, c := range ChunkDocument(p, docs[p], opts) {
			c.Index = len(allChunks)
			allChunks = append(allChunks, c)
		}
	}

	return allChunks, nil
}

// LoadPath loads a single file or every document below a directory.
func LoadPath(p string, opts Options) ([]minisum.Chunk, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return LoadAndChunkAll(os.DirFS(p), ".", opts)
	}
	return LoadAndChunkAll(os.DirFS(filepath.Dir(p)), filepath.Base(p), opts)
}
