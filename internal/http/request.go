package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"roomsplit/internal/core"
)

var errBadRequestBody = errors.New("malformed request body")

// createExpenseRequest is the body of POST /api/expenses. Price may be sent
// as a JSON number or a string.
type createExpenseRequest struct {
	Item   string          `json:"item"`
	Price  json.RawMessage `json:"price"`
	Person string          `json:"person"`
	Date   string          `json:"date"`
	Note   string          `json:"note"`
}

func (req createExpenseRequest) input() core.ExpenseInput {
	price := strings.TrimSpace(string(req.Price))
	if unq, err := strconv.Unquote(price); err == nil {
		price = unq
	} else if price == "null" {
		price = ""
	} else if d, err := decimal.NewFromString(price); err == nil {
		// JSON numbers may use exponent form; strings stay strict.
		price = d.String()
	}
	return core.ExpenseInput{
		Item:   req.Item,
		Price:  price,
		Person: req.Person,
		Date:   req.Date,
		Note:   req.Note,
	}
}

// parseExpenseInput reads a new expense from a JSON or form-encoded body.
func parseExpenseInput(r *http.Request) (core.ExpenseInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		if err := r.ParseForm(); err != nil {
			return core.ExpenseInput{}, bodyError(err)
		}
		return core.ExpenseInput{
			Item:   r.PostForm.Get("item"),
			Price:  r.PostForm.Get("price"),
			Person: r.PostForm.Get("person"),
			Date:   r.PostForm.Get("date"),
			Note:   r.PostForm.Get("note"),
		}, nil
	}

	var req createExpenseRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return core.ExpenseInput{}, bodyError(err)
	}
	return req.input(), nil
}

// bodyError keeps size errors intact for writeServiceError and marks
// everything else as a malformed body.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return fmt.Errorf("%w: %v", errBadRequestBody, err)
}
