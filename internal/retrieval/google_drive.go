package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	docs "google.golang.org/api/docs/v1"
	drive "google.golang.org/api/drive/v3"
	sheets "google.golang.org/api/sheets/v4"

	"github.com/mohomer/layla-concierge/pkg/logging"
)

// ErrUnsupportedDocument marks Drive files whose MIME type has no text
// extraction path. Callers skip these instead of failing the reindex run.
var ErrUnsupportedDocument = errors.New("retrieval: unsupported document type")

const (
	mimeGoogleDoc   = "application/vnd.google-apps.document"
	mimeGoogleSheet = "application/vnd.google-apps.spreadsheet"
)

// DriveSource reads document text out of Google Drive. Docs come through the
// Docs API, spreadsheets through the Sheets API.
type DriveSource struct {
	drive  *drive.Service
	docs   *docs.Service
	sheets *sheets.Service
	logger *logging.Logger
}

// NewDriveSource wires the three Google API services.
func NewDriveSource(driveSvc *drive.Service, docsSvc *docs.Service, sheetsSvc *sheets.Service, logger *logging.Logger) *DriveSource {
	if driveSvc == nil || docsSvc == nil || sheetsSvc == nil {
		panic("retrieval: all three Drive API services are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DriveSource{drive: driveSvc, docs: docsSvc, sheets: sheetsSvc, logger: logger}
}

// FetchText looks up the file's MIME type and extracts its text content.
func (s *DriveSource) FetchText(ctx context.Context, documentID string) (string, error) {
	file, err := s.drive.Files.Get(documentID).Fields("mimeType", "name").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("retrieval: look up drive file %s: %w", documentID, err)
	}

	switch file.MimeType {
	case mimeGoogleDoc:
		return s.documentText(ctx, documentID)
	case mimeGoogleSheet:
		return s.spreadsheetText(ctx, documentID)
	default:
		s.logger.Warn("skipping drive file with unsupported MIME type",
			"document_id", documentID, "name", file.Name, "mime_type", file.MimeType)
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDocument, file.MimeType)
	}
}

// documentText flattens a Google Doc body to plain text.
func (s *DriveSource) documentText(ctx context.Context, documentID string) (string, error) {
	doc, err := s.docs.Documents.Get(documentID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("retrieval: fetch document %s: %w", documentID, err)
	}

	var b strings.Builder
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String(), nil
}

// spreadsheetText renders every sheet as pipe-separated rows.
func (s *DriveSource) spreadsheetText(ctx context.Context, spreadsheetID string) (string, error) {
	meta, err := s.sheets.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("retrieval: fetch spreadsheet %s: %w", spreadsheetID, err)
	}

	var b strings.Builder
	for _, sheet := range meta.Sheets {
		title := sheet.Properties.Title
		values, err := s.sheets.Spreadsheets.Values.Get(spreadsheetID, title).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("retrieval: fetch sheet %s!%s: %w", spreadsheetID, title, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("Sheet: " + title + "\n")
		for _, row := range values.Values {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				cells = append(cells, fmt.Sprint(cell))
			}
			b.WriteString(strings.Join(cells, " | "))
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
