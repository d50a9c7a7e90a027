package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/fedutinova/smartheart/internal/apperr"
	"github.com/fedutinova/smartheart/internal/commandworker"
	"github.com/fedutinova/smartheart/internal/database"
	"github.com/fedutinova/smartheart/internal/mq"
	"github.com/fedutinova/smartheart/internal/queue"
	redissvc "github.com/fedutinova/smartheart/internal/redis"
	"github.com/fedutinova/smartheart/internal/streamclient"
	"github.com/fedutinova/smartheart/internal/writemodel"
)

func TestDecodeAndValidateRejectsInvalidJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"title":`))
	w := httptest.NewRecorder()

	var req createBookRequest
	ok := decodeAndValidate(w, r, &req)

	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeAndValidateRejectsMissingRequiredField(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"amount": 3}`))
	w := httptest.NewRecorder()

	var req createBookRequest
	ok := decodeAndValidate(w, r, &req)

	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDecodeAndValidateAcceptsWellFormedRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/books", bytes.NewBufferString(`{"title":"Dune","amount":3}`))
	w := httptest.NewRecorder()

	var req createBookRequest
	ok := decodeAndValidate(w, r, &req)

	require.True(t, ok)
	require.Equal(t, "Dune", req.Title)
	require.EqualValues(t, 3, req.Amount)
}

func TestParseExpectedVersionQueryDefaultsToNothing(t *testing.T) {
	r := httptest.NewRequest(http.MethodDelete, "/books/x", nil)
	w := httptest.NewRecorder()

	v, ok := parseExpectedVersionQuery[struct{}](w, r)

	require.True(t, ok)
	require.True(t, v.IsNothing())
}

func TestParseExpectedVersionQueryRejectsNonInteger(t *testing.T) {
	r := httptest.NewRequest(http.MethodDelete, "/books/x?expected_version=nope", nil)
	w := httptest.NewRecorder()

	_, ok := parseExpectedVersionQuery[struct{}](w, r)

	require.False(t, ok)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLimitOffsetParamsDefaults(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/books", nil)
	limit, offset := limitOffsetParams(r)
	require.EqualValues(t, 30, limit)
	require.EqualValues(t, 0, offset)
}

func TestLimitOffsetParamsParsesAndIgnoresGarbage(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/books?limit=5&offset=10", nil)
	limit, offset := limitOffsetParams(r)
	require.EqualValues(t, 5, limit)
	require.EqualValues(t, 10, offset)

	r = httptest.NewRequest(http.MethodGet, "/books?limit=-3&offset=x", nil)
	limit, offset = limitOffsetParams(r)
	require.EqualValues(t, 30, limit)
	require.EqualValues(t, 0, offset)
}

func TestWriteAppErrorMapsApperrClassesToStatusCodes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", apperr.WrapNotFound("book", errors.New("missing")), http.StatusNotFound},
		{"concurrency", apperr.WrapConcurrency("update", errors.New("stale version")), http.StatusConflict},
		{"unavailable", apperr.WrapUnavailable("rent", errors.New("no copies")), http.StatusConflict},
		{"timeout", apperr.WrapTimeout("append", errors.New("deadline")), http.StatusRequestTimeout},
		{"internal", apperr.WrapInternal("decode", errors.New("boom")), http.StatusInternalServerError},
		{"unclassified", errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			wrote := writeAppError(w, tc.err)
			require.True(t, wrote)
			require.Equal(t, tc.want, w.Code)
		})
	}
}

func TestWriteAppErrorNoopOnNilError(t *testing.T) {
	w := httptest.NewRecorder()
	require.False(t, writeAppError(w, nil))
	require.Equal(t, 200, w.Code, "no status should have been written")
}

// newTestHandlers wires a full Handlers against live Redis and Postgres, the
// same collaborators cmd/main.go assembles, so the routes below exercise the
// real write model and command queue end to end.
func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	redisURL := os.Getenv("TEST_REDIS_URL")
	pgURL := os.Getenv("TEST_POSTGRES_URL")
	if redisURL == "" || pgURL == "" {
		t.Skip("TEST_REDIS_URL and TEST_POSTGRES_URL must both be set to run HTTP integration tests")
	}

	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis at %s unreachable: %v", redisURL, err)
	}
	t.Cleanup(func() { rdb.Close() })
	client := streamclient.New(rdb)

	redisService, err := redissvc.New(redisURL)
	require.NoError(t, err)
	t.Cleanup(func() { redisService.Close() })

	db, err := database.NewDB(context.Background(), pgURL)
	if err != nil {
		t.Skipf("postgres at %s unreachable: %v", pgURL, err)
	}
	t.Cleanup(db.Close)

	_, err = db.Pool().Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS books (id uuid PRIMARY KEY, title text NOT NULL, amount int4 NOT NULL, version int8 NOT NULL);
		CREATE TABLE IF NOT EXISTS users (id uuid PRIMARY KEY, name text NOT NULL, rent_limit int4 NOT NULL, version int8 NOT NULL);
		CREATE TABLE IF NOT EXISTS book_rents (book_id uuid NOT NULL, user_id uuid NOT NULL, version int8 NOT NULL, PRIMARY KEY (book_id, user_id));
	`)
	require.NoError(t, err)

	books := writemodel.NewBookService(db, client)
	users := writemodel.NewUserService(db, client)
	rents := writemodel.NewRentService(db, client)

	module := commandworker.Module{Books: books, Users: users}
	cfg := mq.Config{WorkerCount: 1, MaxRetry: 2, RetryDelay: 100 * time.Millisecond}
	commandQueue, err := queue.New(client, module, "test_command_worker_"+t.Name(), cfg, commandworker.Handle)
	require.NoError(t, err)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	commandQueue.StartWorkers(workerCtx)
	t.Cleanup(func() {
		cancelWorkers()
		commandQueue.Close()
	})

	return &Handlers{
		Books:   books,
		Users:   users,
		Rents:   rents,
		Command: commandQueue,
		DB:      db,
		Redis:   redisService,
	}
}

func newTestRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()
	h.Routers(r)
	return r
}

func TestCreateAndGetBook(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)

	body := bytes.NewBufferString(`{"title":"The Go Programming Language","amount":2}`)
	req := httptest.NewRequest(http.MethodPost, "/books", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	getReq := httptest.NewRequest(http.MethodGet, "/books/"+created.ID, nil)
	getW := httptest.NewRecorder()
	router.ServeHTTP(getW, getReq)
	require.Equal(t, http.StatusOK, getW.Code)

	var book bookResponse
	require.NoError(t, json.Unmarshal(getW.Body.Bytes(), &book))
	require.Equal(t, "The Go Programming Language", book.Title)
	require.EqualValues(t, 2, book.Amount)
}

func TestListBooksIncludesCreatedBook(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)

	created, err := h.Books.CreateBook(context.Background(), "Listable Book", 1)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/books?limit=100000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var books []bookResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	found := false
	for _, b := range books {
		if b.ID == created.ID {
			found = true
			break
		}
	}
	require.True(t, found, "the created book should appear in the listing")
}

func TestUpdateBookIsAppliedAsynchronouslyThroughTheQueue(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)

	created, err := h.Books.CreateBook(context.Background(), "Original Title", 1)
	require.NoError(t, err)

	patchBody := bytes.NewBufferString(`{"title":"Updated Title","expected_version":` +
		strconv.FormatInt(created.Version.Int64(), 10) + `}`)
	patchReq := httptest.NewRequest(http.MethodPatch, "/books/"+created.ID.String(), patchBody)
	patchW := httptest.NewRecorder()
	router.ServeHTTP(patchW, patchReq)
	require.Equal(t, http.StatusAccepted, patchW.Code)

	require.Eventually(t, func() bool {
		book, err := h.Books.GetBook(context.Background(), created.ID)
		return err == nil && book != nil && book.Title == "Updated Title"
	}, 3*time.Second, 30*time.Millisecond, "the async command worker should have applied the update")
}

func TestCreateRentRejectsWhenNoCopiesLeft(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)

	book, err := h.Books.CreateBook(context.Background(), "Scarce Book", 0)
	require.NoError(t, err)
	user, err := h.Users.CreateUser(context.Background(), "Reader", 5)
	require.NoError(t, err)

	body := bytes.NewBufferString(`{"book_id":"` + book.ID.String() + `","user_id":"` + user.ID.String() + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/rents", body)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestQueueInfosLenReportsQueuedCount(t *testing.T) {
	h := newTestHandlers(t)
	router := newTestRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/queue/infos/len?target=queued", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp infoLengthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.GreaterOrEqual(t, resp.Length, int64(0))
}

