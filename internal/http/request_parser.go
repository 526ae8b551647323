package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cashledger/internal/core"
	"cashledger/internal/ledger"
)

// bearerToken extracts the opaque token from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// parseFilter builds a listing filter from query parameters. Unknown keys and
// unparseable values are ignored rather than rejected; a bad order_by simply
// falls back to id ordering downstream.
func parseFilter(query url.Values) core.Filter {
	var f core.Filter

	if v := query.Get("kind"); v != "" {
		kind := core.Kind(v)
		f.Kind = &kind
	}
	if v := query.Get("category"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.CategoryID = &id
		}
	}
	if v := query.Get("amount_lt"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.AmountLT = &n
		}
	}
	if v := query.Get("amount_gt"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.AmountGT = &n
		}
	}
	if t := parseTimeParam(query, "timestamp_lt"); t != nil {
		f.TimestampLT = t
	}
	if t := parseTimeParam(query, "timestamp_gt"); t != nil {
		f.TimestampGT = t
	}
	f.OrderBy = query.Get("order_by")

	return f
}

func parseTimeParam(query url.Values, key string) *time.Time {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

// createTransactionRequest is the create body. Amount and timestamp are
// optional; the service fills in their defaults.
type createTransactionRequest struct {
	Amount    *int64  `json:"amount"`
	Kind      string  `json:"kind"`
	Category  *int64  `json:"category"`
	Timestamp *string `json:"timestamp"`
}

func (req createTransactionRequest) toInput() (ledger.CreateInput, error) {
	in := ledger.CreateInput{
		Amount:     req.Amount,
		Kind:       core.Kind(req.Kind),
		CategoryID: req.Category,
	}
	if req.Timestamp != nil {
		t, err := time.Parse(time.RFC3339, *req.Timestamp)
		if err != nil {
			return in, err
		}
		in.Timestamp = &t
	}
	return in, nil
}

// updateTransactionRequest is the partial-update body. Category uses
// RawMessage so an explicit null (clear the tag) is distinguishable from an
// absent field (leave it alone).
type updateTransactionRequest struct {
	Amount    *int64          `json:"amount"`
	Kind      *string         `json:"kind"`
	Category  json.RawMessage `json:"category"`
	Timestamp *string         `json:"timestamp"`
}

func (req updateTransactionRequest) toPatch() (core.TransactionPatch, error) {
	patch := core.TransactionPatch{Amount: req.Amount}

	if req.Kind != nil {
		kind := core.Kind(*req.Kind)
		patch.Kind = &kind
	}

	if len(req.Category) > 0 {
		if bytes.Equal(bytes.TrimSpace(req.Category), []byte("null")) {
			patch.ClearCategory = true
		} else {
			var id int64
			if err := json.Unmarshal(req.Category, &id); err != nil {
				return patch, err
			}
			patch.CategoryID = &id
		}
	}

	if req.Timestamp != nil {
		t, err := time.Parse(time.RFC3339, *req.Timestamp)
		if err != nil {
			return patch, err
		}
		patch.Timestamp = &t
	}

	return patch, nil
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

// decodeBody parses a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}
