// Package trivia — HTTP клиент Open Trivia DB, внешний источник вопросов.
package trivia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/letsssgooo/quizrunner/internal/domain/models"
)

// DefaultBaseURL — адрес API Open Trivia DB.
const DefaultBaseURL = "https://opentdb.com/api.php"

// Таймаут запроса по умолчанию
const timeoutFetch = 10 * time.Second

// ErrFetch возвращается при любой неудаче загрузки: сеть, статус, формат.
// Клиент сам не повторяет запрос.
var ErrFetch = errors.New("trivia: cannot fetch questions")

// Client реализует загрузку вопросов через HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu   sync.Mutex
	rand *rand.Rand
}

// Option настраивает Client.
type Option func(*Client)

// WithBaseURL подменяет адрес API.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

// WithHTTPClient подменяет HTTP клиента.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithSeed фиксирует генератор перемешивания ответов.
func WithSeed(seed int64) Option {
	return func(c *Client) {
		c.rand = rand.New(rand.NewSource(seed))
	}
}

// NewClient создаёт нового клиента.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: timeoutFetch},
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type apiResponse struct {
	ResponseCode int           `json:"response_code"`
	Results      []apiQuestion `json:"results"`
}

type apiQuestion struct {
	Type             string   `json:"type"`
	Difficulty       string   `json:"difficulty"`
	Category         string   `json:"category"`
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// FetchQuestions загружает params.Amount вопросов.
// Порядок вариантов ответа фиксируется здесь один раз.
func (c *Client) FetchQuestions(ctx context.Context, params models.FetchParams) ([]models.Question, error) {
	link, err := c.buildURL(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected response status code %d", ErrFetch, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrFetch, err)
	}

	var result apiResponse
	if err = json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed payload: %v", ErrFetch, err)
	}

	if result.ResponseCode != 0 {
		return nil, fmt.Errorf("%w: api response code %d", ErrFetch, result.ResponseCode)
	}

	if len(result.Results) == 0 {
		return nil, fmt.Errorf("%w: empty question list", ErrFetch)
	}

	questions := make([]models.Question, 0, len(result.Results))
	for i, raw := range result.Results {
		q := models.Question{
			Category:         html.UnescapeString(raw.Category),
			Type:             raw.Type,
			Difficulty:       raw.Difficulty,
			Question:         html.UnescapeString(raw.Question),
			CorrectAnswer:    html.UnescapeString(raw.CorrectAnswer),
			IncorrectAnswers: make([]string, 0, len(raw.IncorrectAnswers)),
		}
		for _, answer := range raw.IncorrectAnswers {
			q.IncorrectAnswers = append(q.IncorrectAnswers, html.UnescapeString(answer))
		}

		q.ShuffledAnswers = c.shuffle(q.DisplayAnswers())

		if err = q.Validate(); err != nil {
			return nil, fmt.Errorf("%w: question %d: %v", ErrFetch, i, err)
		}

		questions = append(questions, q)
	}

	return questions, nil
}

func (c *Client) buildURL(params models.FetchParams) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}

	amount := params.Amount
	if amount <= 0 {
		amount = 10
	}

	q := u.Query()
	q.Set("amount", strconv.Itoa(amount))
	if params.Category > 0 {
		q.Set("category", strconv.Itoa(params.Category))
	}
	if params.Difficulty != "" {
		q.Set("difficulty", params.Difficulty)
	}
	if params.Type != "" {
		q.Set("type", params.Type)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// shuffle перемешивает варианты алгоритмом Фишера-Йейтса.
func (c *Client) shuffle(answers []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rand.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})

	return answers
}
