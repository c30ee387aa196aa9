// Package extract turns stored resume PDFs into clean UTF-8 text.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/spigell/resume-screener/internal/filestore"
	"github.com/spigell/resume-screener/internal/sanitize"
)

const maxFileSize = 20 << 20

var pdfMagic = []byte("%PDF-")

// convertPDF is replaced in tests; docconv shells out to pdftotext.
var convertPDF = func(r io.Reader) (string, error) {
	body, _, err := docconv.ConvertPDF(r)
	return body, err
}

type Extractor struct {
	resolver filestore.Resolver
	logger   *zap.Logger
}

func New(resolver filestore.Resolver, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{resolver: resolver, logger: logger}
}

// Extract reads the PDF behind ref and returns its text. The result is valid
// UTF-8, has no NUL bytes and is never empty.
func (e *Extractor) Extract(ctx context.Context, ref string) (string, error) {
	path, err := e.resolver.ResolvePath(ctx, ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, filestore.ErrInvalidRef) {
			return "", &Error{Kind: KindNotFound, Ref: ref, Err: err}
		}
		return "", &Error{Kind: KindUnavailable, Ref: ref, Err: fmt.Errorf("resolve path: %w", err)}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &Error{Kind: KindNotFound, Ref: ref, Err: err}
		}
		return "", &Error{Kind: KindUnavailable, Ref: ref, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return "", &Error{Kind: KindUnavailable, Ref: ref, Err: err}
	}
	if len(data) > maxFileSize {
		return "", &Error{Kind: KindParseFailure, Ref: ref, Err: fmt.Errorf("file exceeds %d bytes", maxFileSize)}
	}

	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return "", &Error{Kind: KindParseFailure, Ref: ref, Err: errors.New("not a pdf document")}
	}

	raw, err := convertPDF(bytes.NewReader(data))
	if err != nil {
		return "", &Error{Kind: KindParseFailure, Ref: ref, Err: err}
	}

	text := Clean(raw)
	if text == "" {
		return "", &Error{Kind: KindEmptyDocument, Ref: ref}
	}

	e.logger.Debug("extracted resume text",
		zap.String("storage_ref", ref),
		zap.Int("bytes", len(data)),
		zap.Int("text_length", len(text)),
	)

	return text, nil
}

// Clean repairs encoding, drops NUL and other non-printable control characters,
// collapses blank line runs and trims the result.
func Clean(s string) string {
	s = sanitize.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t':
			b.WriteRune(r)
		case r == '\r' || r == '\f' || r == '\v':
			b.WriteRune('\n')
		case r < 0x20 || r == 0x7f:
		default:
			b.WriteRune(r)
		}
	}

	lines := strings.Split(b.String(), "\n")
	out := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank++
			if blank > 1 {
				continue
			}
			line = ""
		} else {
			blank = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
