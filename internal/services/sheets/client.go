package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// DefaultRequestTimeout bounds every single Sheets API call, independent of
// retry backoff.
const DefaultRequestTimeout = 30 * time.Second

// SheetInfo is the subset of sheet metadata the slot flow needs.
type SheetInfo struct {
	ID     int64
	Title  string
	Hidden bool
}

// Client is a thin wrapper over the Google Sheets v4 API for one
// spreadsheet. It exposes value reads (formatted and raw-sanitized),
// targeted writes and structural batch updates.
type Client struct {
	svc           *sheetsapi.Service
	http          *http.Client
	spreadsheetID string
	timeout       time.Duration
}

// NewClient builds an authorized client from a service-account credentials
// file. The credentials file itself is passed through the sanitizer first:
// pasted-in credentials occasionally carry control characters.
func NewClient(ctx context.Context, credentialsPath, spreadsheetID string, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	raw, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, errors.Wrap(err, "read credentials file")
	}
	cleaned, err := sanitizeJSON(raw)
	if err != nil {
		return nil, errors.Wrap(err, "sanitize credentials file")
	}
	creds, err := google.CredentialsFromJSON(ctx, cleaned,
		sheetsapi.SpreadsheetsScope, sheetsapi.DriveReadonlyScope)
	if err != nil {
		return nil, errors.Wrap(err, "parse credentials")
	}
	svc, err := sheetsapi.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, errors.Wrap(err, "init sheets service")
	}
	return &Client{
		svc:           svc,
		http:          oauth2.NewClient(ctx, creds.TokenSource),
		spreadsheetID: spreadsheetID,
		timeout:       timeout,
	}, nil
}

// Get reads a range with formatted values.
func (c *Client) Get(ctx context.Context, rng string) ([][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrapf(err, "get range %s", rng)
	}
	return toStrings(resp.Values), nil
}

// GetRaw reads a range with UNFORMATTED_VALUE rendering through a raw HTTP
// request, sanitizing the response body before decoding. The generated
// client decodes JSON internally and would fail the whole read on a single
// malformed cell.
func (c *Client) GetRaw(ctx context.Context, rng string) ([][]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	u := fmt.Sprintf("https://sheets.googleapis.com/v4/spreadsheets/%s/values/%s?valueRenderOption=UNFORMATTED_VALUE",
		url.PathEscape(c.spreadsheetID), url.PathEscape(rng))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build raw values request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "get raw range %s", rng)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read raw values response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &googleapi.Error{Code: resp.StatusCode, Body: string(body)}
	}
	cleaned, err := sanitizeJSON(body)
	if err != nil {
		return nil, errors.Wrapf(err, "sanitize raw range %s", rng)
	}
	var payload struct {
		Values [][]any `json:"values"`
	}
	if err := json.Unmarshal(cleaned, &payload); err != nil {
		return nil, errors.Wrapf(err, "decode raw range %s", rng)
	}
	return toStrings(payload.Values), nil
}

// Update writes values into a range with USER_ENTERED input semantics.
func (c *Client) Update(ctx context.Context, rng string, values [][]any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &sheetsapi.ValueRange{
		Values: values,
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return errors.Wrapf(err, "update range %s", rng)
}

// BatchUpdate applies structural requests (unhide/rename sheets and rows).
func (c *Client) BatchUpdate(ctx context.Context, reqs []*sheetsapi.Request) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	return errors.Wrap(err, "batch update")
}

// Sheets lists sheet metadata.
func (c *Client) Sheets(ctx context.Context) ([]SheetInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets(properties(sheetId,title,hidden))").Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, "get spreadsheet metadata")
	}
	infos := make([]SheetInfo, 0, len(resp.Sheets))
	for _, s := range resp.Sheets {
		if s.Properties == nil {
			continue
		}
		infos = append(infos, SheetInfo{
			ID:     s.Properties.SheetId,
			Title:  s.Properties.Title,
			Hidden: s.Properties.Hidden,
		})
	}
	return infos, nil
}

// TransientError reports whether an error is worth retrying: network
// failures, timeouts and 429/5xx API responses.
func TransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}

// toStrings flattens the API cell values: formula results come back as
// numbers or bools, everything downstream works with trimmed strings.
func toStrings(values [][]any) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		cells := make([]string, len(row))
		for j, v := range row {
			switch t := v.(type) {
			case string:
				cells[j] = sanitizeCell(t)
			case float64:
				cells[j] = strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				cells[j] = strconv.FormatBool(t)
			case nil:
				cells[j] = ""
			default:
				cells[j] = sanitizeCell(fmt.Sprint(t))
			}
		}
		rows[i] = cells
	}
	return rows
}
