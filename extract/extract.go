package extract

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrEmpty marks a document from which no text at all could be extracted.
var ErrEmpty = errors.New("no text could be extracted")

// ErrUnsupported marks a content type with no registered extractor.
var ErrUnsupported = errors.New("unsupported content type")

// Extractor decodes source bytes into plain text. Partial failures (a bad
// page, a malformed row) are folded into the output as diagnostic lines;
// only a total failure returns an error.
type Extractor interface {
	Extract(data []byte) (string, error)
}

// codeExtensions are source-file extensions ingested as plain text.
var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".c": true, ".cpp": true, ".h": true, ".rs": true, ".rb": true,
	".sh": true, ".sql": true, ".yaml": true, ".yml": true, ".json": true,
	".toml": true, ".xml": true,
}

// ForContentType picks the extractor for an upload. The content type wins;
// the file extension is the fallback for generic or missing types.
func ForContentType(contentType, fileName string) (Extractor, error) {
	base := contentType
	if i := strings.Index(base, ";"); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimSpace(strings.ToLower(base))

	switch base {
	case "text/plain", "text/markdown", "text/x-markdown":
		return plainText{}, nil
	case "text/csv", "application/csv":
		return csvText{}, nil
	case "text/html", "application/xhtml+xml":
		return htmlText{}, nil
	case "application/pdf":
		return pdfText{}, nil
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return docxText{}, nil
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	switch {
	case ext == ".txt" || ext == ".md" || ext == ".markdown":
		return plainText{}, nil
	case ext == ".csv":
		return csvText{}, nil
	case ext == ".html" || ext == ".htm":
		return htmlText{}, nil
	case ext == ".pdf":
		return pdfText{}, nil
	case ext == ".docx":
		return docxText{}, nil
	case codeExtensions[ext]:
		return plainText{}, nil
	case strings.HasPrefix(base, "text/"):
		return plainText{}, nil
	}

	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, contentType, fileName)
}

type plainText struct{}

func (plainText) Extract(data []byte) (string, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}

// csvText renders rows as comma-joined lines. A malformed row is reported
// inline and extraction continues with the rest of the file.
type csvText struct{}

func (csvText) Extract(data []byte) (string, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1

	var b strings.Builder
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintf(&b, "[csv row error: %v]\n", err)
			continue
		}
		b.WriteString(strings.Join(record, ", "))
		b.WriteString("\n")
	}

	text := b.String()
	if strings.TrimSpace(text) == "" {
		return "", ErrEmpty
	}
	return text, nil
}
