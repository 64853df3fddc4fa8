package loader

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	ragerrors "github.com/Aman-CERP/ragpipe/internal/errors"
)

// loadPDF extracts the plain text of every page as one document.
func loadPDF(path string) (docs []Document, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = corruptPDF(path, fmt.Errorf("%v", r))
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, corruptPDF(path, err)
	}
	defer func() { _ = f.Close() }()

	plain, err := r.GetPlainText()
	if err != nil {
		return nil, corruptPDF(path, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return nil, corruptPDF(path, err)
	}

	text := buf.String()
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []Document{{
		Text: text,
		Meta: map[string]string{"source": path, "pages": fmt.Sprint(r.NumPage())},
	}}, nil
}

func corruptPDF(path string, err error) error {
	return ragerrors.New(ragerrors.ErrCodeFileCorrupt, fmt.Sprintf("cannot extract text from PDF: %s", path), err)
}
