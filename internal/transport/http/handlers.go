// Package http is the HTTP façade: it decodes DTOs, validates them, and
// drives either a synchronous write-model call (creates, and every read) or
// an asynchronous enqueue onto the command_worker queue (updates, deletes).
// It never touches the event log or the read model directly - that's
// internal/writemodel and internal/projection's job.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/fedutinova/smartheart/internal/apperr"
	"github.com/fedutinova/smartheart/internal/commandworker"
	"github.com/fedutinova/smartheart/internal/config"
	"github.com/fedutinova/smartheart/internal/database"
	"github.com/fedutinova/smartheart/internal/domain"
	"github.com/fedutinova/smartheart/internal/eventlog"
	"github.com/fedutinova/smartheart/internal/mq"
	"github.com/fedutinova/smartheart/internal/projection"
	"github.com/fedutinova/smartheart/internal/queue"
	"github.com/fedutinova/smartheart/internal/redis"
	"github.com/fedutinova/smartheart/internal/writemodel"
)

var validate = validator.New()

// Handlers wires the HTTP façade to the write model, the read-only
// projections, and the command_worker queue: a flat bag of collaborators
// injected by cmd/main.go.
type Handlers struct {
	Books   *writemodel.BookService
	Users   *writemodel.UserService
	Rents   *writemodel.RentService
	Command *queue.Queue[commandworker.Module, mq.CommandOperation]
	DB      *database.DB
	Redis   *redis.Service
	Config  config.Config
}

func (h *Handlers) Routers(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)

	r.Route("/books", func(r chi.Router) {
		r.Get("/", h.listBooks)
		r.Post("/", h.createBook)
		r.Get("/{id}", h.getBook)
		r.Patch("/{id}", h.updateBook)
		r.Delete("/{id}", h.deleteBook)
		r.Get("/{id}/rents", h.listRentsByBook)
	})

	r.Route("/users", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Post("/", h.createUser)
		r.Get("/{id}", h.getUser)
		r.Patch("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})

	r.Post("/rents", h.createRent)
	r.Delete("/rents", h.deleteRent)

	r.Route("/queue/infos", func(r chi.Router) {
		r.Get("/", h.queueInfos)
		r.Get("/len", h.queueInfosLen)
		r.Get("/{id}", h.queueInfo)
	})
}

// --- books ---

type createBookRequest struct {
	Title  string `json:"title" validate:"required"`
	Amount int32  `json:"amount" validate:"gte=0"`
}

type updateBookRequest struct {
	Title           *string `json:"title"`
	Amount          *int32  `json:"amount"`
	ExpectedVersion int64   `json:"expected_version"`
}

type bookResponse struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Amount  int32     `json:"amount"`
	Version int64     `json:"version"`
}

func newBookResponse(b *domain.Book) bookResponse {
	return bookResponse{ID: b.ID, Title: b.Title, Amount: b.Amount, Version: b.Version.Int64()}
}

func (h *Handlers) createBook(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	book, err := h.Books.CreateBook(r.Context(), req.Title, req.Amount)
	if writeAppError(w, err) {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": book.ID})
}

func (h *Handlers) getBook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	book, err := h.Books.GetBook(r.Context(), id)
	if writeAppError(w, err) {
		return
	}
	if book == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newBookResponse(book))
}

func (h *Handlers) listBooks(w http.ResponseWriter, r *http.Request) {
	limit, offset := limitOffsetParams(r)
	rows, err := h.Books.ListBooks(r.Context(), limit, offset)
	if writeAppError(w, err) {
		return
	}
	out := make([]bookResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, bookResponse{ID: row.ID, Title: row.Title, Amount: row.Amount, Version: row.Version})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) updateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var req updateBookRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	expected := eventlog.New[domain.Book](req.ExpectedVersion)
	op := mq.CommandOperationBook(id, domain.NewBookUpdated(req.Title, req.Amount), expected)
	if !h.enqueueCommand(w, r, op) {
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) deleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	expected, ok := parseExpectedVersionQuery[domain.Book](w, r)
	if !ok {
		return
	}
	op := mq.CommandOperationBook(id, domain.NewBookDeleted(), expected)
	if !h.enqueueCommand(w, r, op) {
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) listRentsByBook(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	rows, err := h.Rents.ListRentsByBook(r.Context(), id)
	if writeAppError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, rentRowsResponse(rows))
}

// --- users ---

type createUserRequest struct {
	Name      string `json:"name" validate:"required"`
	RentLimit int32  `json:"rent_limit" validate:"gte=0"`
}

type updateUserRequest struct {
	Name            *string `json:"name"`
	RentLimit       *int32  `json:"rent_limit"`
	ExpectedVersion int64   `json:"expected_version"`
}

type userResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	RentLimit int32     `json:"rent_limit"`
	Version   int64     `json:"version"`
}

func newUserResponse(u *domain.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, RentLimit: u.RentLimit, Version: u.Version.Int64()}
}

func (h *Handlers) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	user, err := h.Users.CreateUser(r.Context(), req.Name, req.RentLimit)
	if writeAppError(w, err) {
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"id": user.ID})
}

func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	user, err := h.Users.GetUser(r.Context(), id)
	if writeAppError(w, err) {
		return
	}
	if user == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := limitOffsetParams(r)
	rows, err := h.Users.ListUsers(r.Context(), limit, offset)
	if writeAppError(w, err) {
		return
	}
	out := make([]userResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, userResponse{ID: row.ID, Name: row.Name, RentLimit: row.RentLimit, Version: row.Version})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	expected := eventlog.New[domain.User](req.ExpectedVersion)
	op := mq.CommandOperationUser(id, domain.NewUserUpdated(req.Name, req.RentLimit), expected)
	if !h.enqueueCommand(w, r, op) {
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	expected, ok := parseExpectedVersionQuery[domain.User](w, r)
	if !ok {
		return
	}
	op := mq.CommandOperationUser(id, domain.NewUserDeleted(), expected)
	if !h.enqueueCommand(w, r, op) {
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// --- rents ---

type rentRequest struct {
	BookID uuid.UUID `json:"book_id" validate:"required"`
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

type rentResponse struct {
	BookID uuid.UUID `json:"book_id"`
	UserID uuid.UUID `json:"user_id"`
}

func rentRowsResponse(rows []projection.RentRow) []rentResponse {
	out := make([]rentResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, rentResponse{BookID: row.BookID, UserID: row.UserID})
	}
	return out
}

func (h *Handlers) createRent(w http.ResponseWriter, r *http.Request) {
	var req rentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	rent, err := h.Rents.Rent(r.Context(), req.BookID, req.UserID)
	if writeAppError(w, err) {
		return
	}
	writeJSON(w, http.StatusCreated, rentResponse{BookID: rent.BookID, UserID: rent.UserID})
}

func (h *Handlers) deleteRent(w http.ResponseWriter, r *http.Request) {
	var req rentRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	err := h.Rents.Return(r.Context(), req.BookID, req.UserID)
	if writeAppError(w, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- queue introspection ---

type infoResponse struct {
	ID         uuid.UUID `json:"id"`
	Data       string    `json:"data"`
	StackTrace string    `json:"stack_trace"`
}

type infoLengthResponse struct {
	Length int64 `json:"length"`
}

func (h *Handlers) queueInfos(w http.ResponseWriter, r *http.Request) {
	size, offset := paginationParams(r)
	target := r.URL.Query().Get("target")

	var infos []mq.ErroredInfo[mq.CommandOperation]
	var err error
	switch target {
	case "", "delayed":
		infos, _, err = h.Command.DelayedInfos(r.Context(), size, offset)
	case "failed":
		infos, _, err = h.Command.FailedInfos(r.Context(), size, offset)
	default:
		http.Error(w, "target must be delayed or failed", http.StatusBadRequest)
		return
	}
	if writeAppError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, infoResponses(infos))
}

func (h *Handlers) queueInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDParam(w, r)
	if !ok {
		return
	}
	target := r.URL.Query().Get("target")

	var info mq.ErroredInfo[mq.CommandOperation]
	var found bool
	var err error
	switch target {
	case "", "delayed":
		info, found, err = h.Command.DelayedInfo(r.Context(), id)
	case "failed":
		info, found, err = h.Command.FailedInfo(r.Context(), id)
	default:
		http.Error(w, "target must be delayed or failed", http.StatusBadRequest)
		return
	}
	if writeAppError(w, err) {
		return
	}
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toInfoResponse(info))
}

func (h *Handlers) queueInfosLen(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")

	var n int64
	var err error
	switch target {
	case "", "queued":
		n, err = h.Command.QueuedLen(r.Context())
	case "delayed":
		n, err = h.Command.DelayedLen(r.Context())
	case "failed":
		n, err = h.Command.FailedLen(r.Context())
	default:
		http.Error(w, "target must be queued, delayed or failed", http.StatusBadRequest)
		return
	}
	if writeAppError(w, err) {
		return
	}
	writeJSON(w, http.StatusOK, infoLengthResponse{Length: n})
}

func infoResponses(infos []mq.ErroredInfo[mq.CommandOperation]) []infoResponse {
	out := make([]infoResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, toInfoResponse(info))
	}
	return out
}

func toInfoResponse(info mq.ErroredInfo[mq.CommandOperation]) infoResponse {
	data, err := json.Marshal(info.Data)
	if err != nil {
		slog.Error("queue info: marshal CommandOperation failed", "id", info.ID, "error", err)
	}
	return infoResponse{ID: info.ID, Data: string(data), StackTrace: info.StackTrace}
}

// --- shared helpers ---

func (h *Handlers) enqueueCommand(w http.ResponseWriter, r *http.Request, op mq.CommandOperation) bool {
	if _, err := h.Command.Enqueue(r.Context(), op); err != nil {
		slog.Error("enqueue command failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return false
	}
	return true
}

func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// parseExpectedVersionQuery reads the ?expected_version= query param the book
// and user DELETE routes use to carry the caller's last-observed version,
// since those routes take no body. Absent means Nothing (wire value -1), matching
// eventlog.Version's own sentinel.
func parseExpectedVersionQuery[T any](w http.ResponseWriter, r *http.Request) (eventlog.Version[T], bool) {
	raw := r.URL.Query().Get("expected_version")
	if raw == "" {
		return eventlog.Nothing[T](), true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid expected_version", http.StatusBadRequest)
		return eventlog.Version[T]{}, false
	}
	return eventlog.New[T](v), true
}

// limitOffsetParams reads the ?limit=&offset= pair the list routes page
// with. Defaults: 30 rows from the start.
func limitOffsetParams(r *http.Request) (limit, offset int32) {
	limit, offset = 30, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n > 0 {
			limit = int32(n)
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil && n >= 0 {
			offset = int32(n)
		}
	}
	return limit, offset
}

func paginationParams(r *http.Request) (size int64, offset uint64) {
	size = int64(50)
	offset = 0
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			size = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			offset = n
		}
	}
	return size, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

// writeAppError maps err's apperr class to an HTTP status with an empty
// body (no error detail leaves the process) and reports whether it wrote a
// response at all.
func writeAppError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}
	switch {
	case apperr.IsNotFound(err):
		w.WriteHeader(http.StatusNotFound)
	case apperr.IsConcurrency(err):
		w.WriteHeader(http.StatusConflict)
	case apperr.IsUnavailable(err):
		w.WriteHeader(http.StatusConflict)
	case apperr.IsTimeout(err):
		w.WriteHeader(http.StatusRequestTimeout)
	default:
		slog.Error("request failed", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
	}
	return true
}
