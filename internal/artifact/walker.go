package artifact

import (
	"log/slog"
	"mime"
	"path/filepath"
	"strings"

	"invoiz/internal/model"
)

const (
	textFileName = "content.txt"
	htmlFileName = "index.html"
)

// Walker flattens a content tree into files inside a message container.
type Walker struct {
	store  *FS
	logger *slog.Logger
}

func NewWalker(store *FS, logger *slog.Logger) *Walker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{store: store, logger: logger}
}

// Decompose writes every materializable leaf under dir and returns the
// artifacts in depth-first order. Children are always visited, whatever the
// parent's type. The first write error stops the walk and is returned as a
// *model.MaterializationError; files written before it stay on disk.
//
// Plain-text leaves go to content.txt, then content_1.txt and so on, so a
// message with several text parts keeps all of them. Unnamed markup leaves
// likewise become index.html, index_1.html. Leaves that are neither text,
// markup nor marked as attachments (inline images) are skipped.
func (w *Walker) Decompose(root *model.ContentNode, dir string) ([]model.Artifact, error) {
	var out []model.Artifact
	if err := w.walk(root, dir, &out); err != nil {
		return out, err
	}
	return out, nil
}

func (w *Walker) walk(n *model.ContentNode, dir string, out *[]model.Artifact) error {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if err := w.walk(child, dir, out); err != nil {
			return err
		}
	}

	switch n.Kind {
	case model.KindContainer:
		return nil

	case model.KindText:
		if len(n.Data) == 0 {
			return nil
		}
		a, err := w.write(dir, textFileName, n.Data, model.ArtifactText)
		if err != nil {
			return err
		}
		*out = append(*out, a)

	case model.KindHTML:
		name := safeName(n.Filename)
		if name == "" {
			name = htmlFileName
		}
		a, err := w.write(dir, name, n.Data, model.ArtifactHTML)
		if err != nil {
			return err
		}
		*out = append(*out, a)

	default:
		if !n.IsAttachment() {
			w.logger.Debug("skipping inline part", "mime", n.MimeType, "filename", n.Filename)
			return nil
		}
		name := safeName(n.Filename)
		if name == "" {
			name = "attachment" + guessExt(n.MimeType)
		}
		a, err := w.write(dir, name, n.Data, model.ArtifactAttachment)
		if err != nil {
			return err
		}
		size := n.Size
		if size == 0 {
			size = int64(len(n.Data))
		}
		a.Size = FormatSize(size)
		*out = append(*out, a)
	}
	return nil
}

func (w *Walker) write(dir, name string, data []byte, kind model.ArtifactKind) (model.Artifact, error) {
	path, err := w.store.CreateUnique(dir, name, data)
	if err != nil {
		if path == "" {
			path = filepath.Join(dir, name)
		}
		return model.Artifact{}, &model.MaterializationError{Path: path, Err: err}
	}
	w.logger.Debug("wrote artifact", "kind", kind, "path", path, "bytes", len(data))
	return model.Artifact{
		Kind:     kind,
		Path:     path,
		Filename: filepath.Base(path),
		Bytes:    int64(len(data)),
	}, nil
}

// safeName strips any directory components from a filename taken from a
// message, so it cannot point outside the container.
func safeName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

func guessExt(mimeType string) string {
	exts, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}
