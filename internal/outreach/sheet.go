package outreach

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	sheets "google.golang.org/api/sheets/v4"

	"github.com/mohomer/layla-concierge/internal/messaging"
	"github.com/mohomer/layla-concierge/pkg/logging"
)

// Sheet column headers the runner reads and writes.
const (
	colPhoneNumber       = "PhoneNumber"
	colClientName        = "ClientName"
	colMessageStatus     = "MessageStatus"
	colInterestedService = "InterestedService"
	colLastContactedDate = "LastContactedDate"
)

// Contact is one row of the contact sheet. RowIndex is the 1-based sheet row
// including the header.
type Contact struct {
	Phone           string
	Name            string
	Status          string
	ServiceInterest string
	RowIndex        int
}

// ContactSheet is the campaign's data backend: contacts to message, the
// message template, and per-row status writeback.
type ContactSheet interface {
	// ID identifies the sheet in logs and the run summary.
	ID() string
	Contacts(ctx context.Context) ([]Contact, error)
	Template(ctx context.Context) (Template, error)
	// SetStatus and SetLastContacted are no-ops when the sheet has no such
	// column.
	SetStatus(ctx context.Context, c Contact, status string) error
	SetLastContacted(ctx context.Context, c Contact, timestamp string) error
}

var sheetURLPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)
var sheetIDPattern = regexp.MustCompile(`^[a-zA-Z0-9-_]{30,}$`)

// ExtractSheetID accepts either a full Google Sheets URL or a bare sheet ID
// and returns the ID. Unrecognizable input is returned as-is for the API to
// reject with a specific error.
func ExtractSheetID(urlOrID string) string {
	if m := sheetURLPattern.FindStringSubmatch(urlOrID); m != nil {
		return m[1]
	}
	if sheetIDPattern.MatchString(urlOrID) {
		return urlOrID
	}
	return urlOrID
}

// GoogleContactSheet reads and writes a campaign spreadsheet through the
// Sheets API. The template sheet holds key/value rows: Header, Body, Footer,
// Simple, and one Button row per quick reply (title in column B, ID in
// column C).
type GoogleContactSheet struct {
	service       *sheets.Service
	sheetID       string
	contactsName  string
	templateName  string
	logger        *logging.Logger
	headerColumns map[string]int // populated by Contacts
}

// NewGoogleContactSheet wires a Sheets service to one spreadsheet.
func NewGoogleContactSheet(service *sheets.Service, sheetID, contactsName, templateName string, logger *logging.Logger) *GoogleContactSheet {
	if service == nil {
		panic("outreach: sheets service is required")
	}
	if sheetID == "" {
		panic("outreach: sheet ID is required")
	}
	if contactsName == "" {
		contactsName = "Sheet1"
	}
	if templateName == "" {
		templateName = "MessageTemplate"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GoogleContactSheet{
		service:      service,
		sheetID:      sheetID,
		contactsName: contactsName,
		templateName: templateName,
		logger:       logger,
	}
}

func (g *GoogleContactSheet) ID() string { return g.sheetID }

// Contacts reads the contact rows and records which writeback columns exist.
func (g *GoogleContactSheet) Contacts(ctx context.Context) ([]Contact, error) {
	values, err := g.service.Spreadsheets.Values.Get(g.sheetID, g.contactsName).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("outreach: read contacts sheet %s!%s: %w", g.sheetID, g.contactsName, err)
	}
	if len(values.Values) < 2 {
		return nil, nil
	}

	g.headerColumns = make(map[string]int)
	for i, cell := range values.Values[0] {
		g.headerColumns[strings.TrimSpace(fmt.Sprint(cell))] = i
	}

	cell := func(row []interface{}, header string) string {
		idx, ok := g.headerColumns[header]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(row[idx]))
	}

	contacts := make([]Contact, 0, len(values.Values)-1)
	for i, row := range values.Values[1:] {
		contacts = append(contacts, Contact{
			Phone:           cell(row, colPhoneNumber),
			Name:            cell(row, colClientName),
			Status:          cell(row, colMessageStatus),
			ServiceInterest: cell(row, colInterestedService),
			RowIndex:        i + 2,
		})
	}
	return contacts, nil
}

// Template loads the key/value template sheet.
func (g *GoogleContactSheet) Template(ctx context.Context) (Template, error) {
	values, err := g.service.Spreadsheets.Values.Get(g.sheetID, g.templateName).Context(ctx).Do()
	if err != nil {
		return Template{}, fmt.Errorf("outreach: read template sheet %s!%s: %w", g.sheetID, g.templateName, err)
	}

	var tpl Template
	for _, row := range values.Values {
		if len(row) < 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(fmt.Sprint(row[0])))
		value := strings.TrimSpace(fmt.Sprint(row[1]))
		switch key {
		case "header":
			tpl.Interactive.Header = value
		case "body":
			tpl.Interactive.Body = value
		case "footer":
			tpl.Interactive.Footer = value
		case "simple":
			tpl.Simple = value
		case "button":
			id := ""
			if len(row) > 2 {
				id = strings.TrimSpace(fmt.Sprint(row[2]))
			}
			tpl.Interactive.Buttons = append(tpl.Interactive.Buttons, messaging.Button{Title: value, ID: id})
		}
	}
	if tpl.Empty() {
		return Template{}, fmt.Errorf("outreach: template sheet %s has no usable template", g.templateName)
	}
	return tpl, nil
}

// SetStatus writes the MessageStatus cell for the contact's row.
func (g *GoogleContactSheet) SetStatus(ctx context.Context, c Contact, status string) error {
	return g.writeCell(ctx, c, colMessageStatus, status)
}

// SetLastContacted writes the LastContactedDate cell for the contact's row.
func (g *GoogleContactSheet) SetLastContacted(ctx context.Context, c Contact, timestamp string) error {
	return g.writeCell(ctx, c, colLastContactedDate, timestamp)
}

func (g *GoogleContactSheet) writeCell(ctx context.Context, c Contact, header, value string) error {
	col, ok := g.headerColumns[header]
	if !ok {
		g.logger.Warn("sheet has no writeback column; skipping update", "column", header, "row", c.RowIndex)
		return nil
	}
	rangeRef := fmt.Sprintf("%s!%s%d", g.contactsName, columnLetter(col), c.RowIndex)
	_, err := g.service.Spreadsheets.Values.
		Update(g.sheetID, rangeRef, &sheets.ValueRange{Values: [][]interface{}{{value}}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("outreach: update %s: %w", rangeRef, err)
	}
	return nil
}

// columnLetter converts a 0-based column index to A1 notation.
func columnLetter(idx int) string {
	letters := ""
	for idx >= 0 {
		letters = string(rune('A'+idx%26)) + letters
		idx = idx/26 - 1
	}
	return letters
}
