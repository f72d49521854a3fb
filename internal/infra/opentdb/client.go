// Package opentdb is a client for the Open Trivia Database HTTP API.
package opentdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/imroc/req/v3"
	"github.com/pkg/errors"

	"trivia-service/internal/domain"
)

const DefaultBaseURL = "https://opentdb.com"

// Response codes returned in the response_code field.
const (
	CodeSuccess       = 0
	CodeNoResults     = 1
	CodeInvalidParam  = 2
	CodeTokenNotFound = 3
	CodeTokenEmpty    = 4
	CodeRateLimit     = 5
)

// ResponseCodeError reports a non-zero response_code from OpenTDB.
type ResponseCodeError struct {
	Code int
}

func (e *ResponseCodeError) Error() string {
	switch e.Code {
	case CodeNoResults:
		return "opentdb: not enough questions for the query"
	case CodeInvalidParam:
		return "opentdb: invalid parameter"
	case CodeTokenNotFound:
		return "opentdb: session token not found"
	case CodeTokenEmpty:
		return "opentdb: session token exhausted"
	case CodeRateLimit:
		return "opentdb: rate limit exceeded"
	}
	return fmt.Sprintf("opentdb: response code %d", e.Code)
}

// Unwrap maps "no results" onto domain.ErrNoQuestions.
func (e *ResponseCodeError) Unwrap() error {
	if e.Code == CodeNoResults {
		return domain.ErrNoQuestions
	}
	return nil
}

// Client implements app.QuestionSource and app.Catalog against OpenTDB.
type Client struct {
	http *req.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := req.C().
		SetBaseURL(baseURL).
		SetJsonMarshal(json.Marshal).
		SetJsonUnmarshal(json.Unmarshal).
		SetCommonHeader("Accept", "application/json")
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &Client{http: c}
}

type questionsResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []rawQuestion `json:"results"`
}

type rawQuestion struct {
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Category         string   `json:"category"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

type categoriesResponse struct {
	TriviaCategories []domain.Category `json:"trivia_categories"`
}

type countResponse struct {
	CategoryID int                  `json:"category_id"`
	Count      domain.QuestionCount `json:"category_question_count"`
}

// FetchQuestions requests one batch of questions. Zero-valued query fields are omitted.
func (c *Client) FetchQuestions(ctx context.Context, q domain.QuestionQuery) ([]domain.Question, error) {
	r := c.http.R().SetContext(ctx)
	amount := q.Amount
	if amount <= 0 {
		amount = domain.DefaultAmount
	}
	r.SetQueryParam("amount", strconv.Itoa(amount))
	if q.Category > 0 {
		r.SetQueryParam("category", strconv.Itoa(q.Category))
	}
	if q.Difficulty != "" {
		r.SetQueryParam("difficulty", string(q.Difficulty))
	}
	if q.Type != "" {
		r.SetQueryParam("type", string(q.Type))
	}

	var body questionsResponse
	if err := c.get(ctx, r, "/api.php", &body); err != nil {
		return nil, err
	}
	if body.ResponseCode != CodeSuccess {
		return nil, &ResponseCodeError{Code: body.ResponseCode}
	}
	return decodeQuestions(body.Results), nil
}

// Categories lists the question categories.
func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	var body categoriesResponse
	if err := c.get(ctx, c.http.R().SetContext(ctx), "/api_category.php", &body); err != nil {
		return nil, err
	}
	return decodeCategories(body.TriviaCategories), nil
}

// CategoryCount returns the per-difficulty question totals of a category.
func (c *Client) CategoryCount(ctx context.Context, categoryID int) (domain.QuestionCount, error) {
	r := c.http.R().SetContext(ctx).SetQueryParam("category", strconv.Itoa(categoryID))
	var body countResponse
	if err := c.get(ctx, r, "/api_count.php", &body); err != nil {
		return domain.QuestionCount{}, err
	}
	return body.Count, nil
}

func (c *Client) get(ctx context.Context, r *req.Request, path string, out any) error {
	resp, err := r.Get(path)
	if err != nil {
		return errors.Wrapf(err, "failed to get `%v`", path)
	}
	if !resp.IsSuccessState() {
		return errors.Errorf("unexpected status code %v from `%v`", resp.GetStatusCode(), path)
	}
	data, err := resp.ToBytes()
	if err != nil {
		return errors.Wrapf(err, "failed to read body of `%v`", path)
	}
	if err = json.UnmarshalContext(ctx, data, out); err != nil {
		return errors.Wrapf(err, "failed to unmarshal body of `%v`", path)
	}
	return nil
}
