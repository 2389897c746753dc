package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	rserrors "github.com/reelsheet/reelsheet/pkg/errors"
)

// columnSpan covers the schema's 21 columns.
const columnSpan = "A:U"

// GoogleStore is the Store implementation over the Google Sheets API,
// authenticated with a service account JSON key.
type GoogleStore struct {
	svc     *sheetsapi.Service
	sheetID string
	tab     string
	saEmail string
}

// NewGoogleStore opens a store bound to one spreadsheet. The credentials
// file must exist before any network call is attempted; a missing file is
// a configuration error, not a transient one.
func NewGoogleStore(ctx context.Context, credentialsPath, sheetID, tab string) (*GoogleStore, error) {
	if sheetID == "" {
		return nil, rserrors.MissingSetting("destination sheet ID", "GOOGLE_SHEET_ID")
	}
	if credentialsPath == "" {
		return nil, rserrors.MissingSetting("service account credentials path", "GOOGLE_SA_JSON_PATH")
	}
	if tab == "" {
		tab = "Sheet1"
	}

	data, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, rserrors.CredentialNotFound(credentialsPath)
	}

	saEmail := serviceAccountEmail(data)

	conf, err := google.JWTConfigFromJSON(data, sheetsapi.SpreadsheetsScope)
	if err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeCredentialMissing, "parse service account JSON").
			WithContext("path", credentialsPath)
	}

	svc, err := sheetsapi.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, rserrors.Wrap(err, rserrors.CodeStoreWrite, "create sheets client")
	}

	return &GoogleStore{
		svc:     svc,
		sheetID: sheetID,
		tab:     tab,
		saEmail: saEmail,
	}, nil
}

// serviceAccountEmail pulls client_email out of the key file so permission
// errors can tell the user exactly who to share the sheet with.
func serviceAccountEmail(keyJSON []byte) string {
	var key struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(keyJSON, &key); err != nil || key.ClientEmail == "" {
		return "(unknown service account)"
	}
	return key.ClientEmail
}

// SheetID implements Store.
func (g *GoogleStore) SheetID() string { return g.sheetID }

// ServiceAccount implements Store.
func (g *GoogleStore) ServiceAccount() string { return g.saEmail }

func (g *GoogleStore) dataRange() string {
	return fmt.Sprintf("%s!%s", g.tab, columnSpan)
}

// ReadHeader implements Store.
func (g *GoogleStore) ReadHeader(ctx context.Context) ([]string, error) {
	resp, err := g.svc.Spreadsheets.Values.
		Get(g.sheetID, fmt.Sprintf("%s!A1:U1", g.tab)).
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return cellsToStrings(resp.Values[0]), nil
}

// ReadLastRow implements Store.
func (g *GoogleStore) ReadLastRow(ctx context.Context) ([]string, error) {
	values, err := g.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values[len(values)-1], nil
}

// ReadAll returns every row in the tab, header included.
func (g *GoogleStore) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.
		Get(g.sheetID, g.dataRange()).
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = cellsToStrings(row)
	}
	return rows, nil
}

// WriteHeader implements Store.
func (g *GoogleStore) WriteHeader(ctx context.Context, header []string) error {
	_, err := g.svc.Spreadsheets.Values.
		Update(g.sheetID, fmt.Sprintf("%s!A1:U1", g.tab), &sheetsapi.ValueRange{
			Values: [][]interface{}{stringsToCells(header)},
		}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return err
}

// Append implements Store. Rows are inserted after the current content so
// existing data below (if any) shifts down rather than being overwritten.
func (g *GoogleStore) Append(ctx context.Context, rows [][]string) (string, error) {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = stringsToCells(row)
	}

	resp, err := g.svc.Spreadsheets.Values.
		Append(g.sheetID, g.dataRange(), &sheetsapi.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", err
	}
	if resp.Updates == nil {
		return "", nil
	}
	return resp.Updates.UpdatedRange, nil
}

// IsPermissionDenied reports whether an API error is an access denial, as
// opposed to a transient or structural failure.
func IsPermissionDenied(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 403
	}
	msg := err.Error()
	return strings.Contains(msg, "403") || strings.Contains(msg, "PERMISSION_DENIED")
}

func cellsToStrings(row []interface{}) []string {
	out := make([]string, len(row))
	for i, cell := range row {
		out[i] = fmt.Sprintf("%v", cell)
	}
	return out
}

func stringsToCells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, cell := range row {
		out[i] = cell
	}
	return out
}

// OpenerFromConfig builds the Opener used by the pipeline: every sheet ID
// the router picks gets its own store over the same credentials.
func OpenerFromConfig(credentialsPath, tab string) Opener {
	return func(ctx context.Context, sheetID string) (Store, error) {
		return NewGoogleStore(ctx, credentialsPath, sheetID, tab)
	}
}

var _ Store = (*GoogleStore)(nil)
