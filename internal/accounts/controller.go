// Package accounts manages the teacher account collection: listing,
// creating, editing and deleting through the backend, plus the staged state
// of the edit and delete dialogs. After every successful write the whole
// collection is fetched again; the list is never patched locally.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/edusync/edusync/internal/apiclient"
	"github.com/edusync/edusync/internal/diag"
)

var (
	// ErrNothingStaged is returned when a dialog is submitted while closed.
	ErrNothingStaged = errors.New("no account staged")
	// ErrBusy is returned when a dialog is already submitting.
	ErrBusy = errors.New("a submission is already in progress")
)

// Status messages shown after writes.
const (
	MsgRegistering    = "Registering..."
	MsgRegistered     = "Teacher registered successfully"
	MsgRegisterFailed = "Could not register teacher"
	MsgUpdated        = "Teacher updated"
	MsgUpdateFailed   = "Could not update teacher"
	MsgDeleted        = "Teacher deleted"
	MsgDeleteFailed   = "Could not delete teacher"
)

// StatusKind classifies a status message.
type StatusKind string

const (
	StatusNone    StatusKind = ""
	StatusInfo    StatusKind = "info"
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// StatusMessage is the inline banner text.
type StatusMessage struct {
	Kind    StatusKind
	Message string
}

// API is the subset of apiclient.Client used by the controller.
type API interface {
	Do(ctx context.Context, req apiclient.Request, out any) error
}

// MetricsRecorder is an optional sink for account operation metrics.
type MetricsRecorder interface {
	IncAccountOp(op string, ok bool)
}

// View is a snapshot of everything a screen needs to render.
type View struct {
	Accounts      []Account
	Loading       bool
	LastListError error
	Form          Fields
	Status        StatusMessage
	Edit          Modal
	Delete        Modal
}

// Controller is safe for concurrent use. No lock is held across backend
// calls; overlapping list refreshes resolve in completion order.
type Controller struct {
	api     API
	sink    diag.Sink
	metrics MetricsRecorder
	logger  *slog.Logger

	mu          sync.Mutex
	accounts    []Account
	inflight    int
	lastListErr error
	form        Fields
	status      StatusMessage
	edit        Modal
	del         Modal
}

// NewController creates a Controller with an empty collection.
func NewController(api API, sink diag.Sink) *Controller {
	if sink == nil {
		sink = diag.NewLogSink(nil)
	}
	return &Controller{
		api:      api,
		sink:     sink,
		logger:   slog.Default(),
		accounts: []Account{},
	}
}

// SetMetrics sets the optional metrics recorder.
func (c *Controller) SetMetrics(m MetricsRecorder) {
	c.metrics = m
}

// SetLogger replaces the logger.
func (c *Controller) SetLogger(l *slog.Logger) {
	c.logger = l
}

// View returns a snapshot of the controller state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := make([]Account, len(c.accounts))
	copy(list, c.accounts)
	return View{
		Accounts:      list,
		Loading:       c.inflight > 0,
		LastListError: c.lastListErr,
		Form:          c.form,
		Status:        c.status,
		Edit:          c.edit,
		Delete:        c.del,
	}
}

// Accounts returns a copy of the cached collection.
func (c *Controller) Accounts() []Account {
	return c.View().Accounts
}

// List fetches the full collection and replaces the cache. On failure the
// cache keeps its previous value and the error goes to the diagnostics sink
// as well as to the caller.
func (c *Controller) List(ctx context.Context) error {
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()

	var resp rawList
	err := c.api.Do(ctx, apiclient.Request{Method: http.MethodGet, Path: "/maestros"}, &resp)

	c.mu.Lock()
	c.inflight--
	if err != nil {
		c.lastListErr = err
		c.mu.Unlock()
		c.recordOp("list", false)
		diag.Emit(ctx, c.sink, "accounts.list", err)
		return fmt.Errorf("listing accounts: %w", err)
	}
	c.accounts = resp.accounts
	c.lastListErr = nil
	c.mu.Unlock()

	c.recordOp("list", true)
	return nil
}

// LastListError returns the error of the most recent failed List, or nil
// once a later List succeeds.
func (c *Controller) LastListError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastListErr
}

// Create submits f as a new account. On success the form is cleared and the
// collection refreshed. On failure the form keeps f and the status carries
// the backend's email complaint when there is one.
func (c *Controller) Create(ctx context.Context, f Fields) error {
	c.mu.Lock()
	c.form = f
	c.status = StatusMessage{Kind: StatusInfo, Message: MsgRegistering}
	c.mu.Unlock()

	var created Account
	err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodPost,
		Path:   "/register-maestro",
		Body: createPayload{
			Name:                 f.Name,
			Email:                f.Email,
			Password:             f.Password,
			PasswordConfirmation: f.PasswordConfirmation,
		},
	}, &created)
	if err != nil {
		msg := apiclient.FieldError(err, "email")
		if msg == "" {
			msg = MsgRegisterFailed
		}
		c.setStatus(StatusError, msg)
		c.recordOp("create", false)
		return fmt.Errorf("creating account: %w", err)
	}

	c.mu.Lock()
	c.form = Fields{}
	c.status = StatusMessage{Kind: StatusSuccess, Message: MsgRegistered}
	c.mu.Unlock()
	c.recordOp("create", true)
	c.logger.Info("account created", "id", created.ID, "email", f.Email)

	c.refresh(ctx)
	return nil
}

// Update sends req for the account id. It does not touch dialog state.
func (c *Controller) Update(ctx context.Context, id apiclient.ID, req UpdateRequest) error {
	if req == nil {
		return errors.New("update request is nil")
	}
	err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodPut,
		Path:   "/edit-maestro/" + url.PathEscape(id.String()),
		Route:  "/edit-maestro/{id}",
		Body:   req.payload(),
	}, nil)
	if err != nil {
		return fmt.Errorf("updating account %s: %w", id, err)
	}
	return nil
}

// Remove deletes the account id. It does not touch dialog state.
func (c *Controller) Remove(ctx context.Context, id apiclient.ID) error {
	err := c.api.Do(ctx, apiclient.Request{
		Method: http.MethodDelete,
		Path:   "/delete-maestro/" + url.PathEscape(id.String()),
		Route:  "/delete-maestro/{id}",
	}, nil)
	if err != nil {
		return fmt.Errorf("deleting account %s: %w", id, err)
	}
	return nil
}

// OpenEdit stages a copy of a with blank password fields.
func (c *Controller) OpenEdit(a Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.edit.State == Submitting {
		return ErrBusy
	}
	c.edit = stage(a)
	return nil
}

// EditFields changes the staged copy. An empty password keeps the current one.
func (c *Controller) EditFields(name, email, password, confirmation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.edit.editable() {
		if c.edit.State == Submitting {
			return ErrBusy
		}
		return ErrNothingStaged
	}
	c.edit.Target.Name = name
	c.edit.Target.Email = email
	c.edit.Password = password
	c.edit.Confirmation = confirmation
	return nil
}

// CancelEdit discards the staged copy.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.edit.State != Submitting {
		c.edit = Modal{}
	}
}

// SubmitEdit sends the staged copy. On success the dialog closes and the
// collection is refreshed; on failure it stays open in the Failed state with
// a generic message.
func (c *Controller) SubmitEdit(ctx context.Context) error {
	c.mu.Lock()
	if !c.edit.editable() {
		defer c.mu.Unlock()
		if c.edit.State == Submitting {
			return ErrBusy
		}
		return ErrNothingStaged
	}
	staged := c.edit
	c.edit.State = Submitting
	c.edit.Reason = ""
	c.mu.Unlock()

	req := NewUpdateRequest(staged.Target.Name, staged.Target.Email, staged.Password, staged.Confirmation)
	if err := c.Update(ctx, staged.Target.ID, req); err != nil {
		c.mu.Lock()
		c.edit.State = Failed
		c.edit.Reason = MsgUpdateFailed
		c.status = StatusMessage{Kind: StatusError, Message: MsgUpdateFailed}
		c.mu.Unlock()
		c.recordOp("update", false)
		return err
	}

	c.mu.Lock()
	c.edit = Modal{}
	c.status = StatusMessage{Kind: StatusSuccess, Message: MsgUpdated}
	c.mu.Unlock()
	c.recordOp("update", true)

	c.refresh(ctx)
	return nil
}

// OpenDelete stages a for deletion and opens the confirmation dialog.
func (c *Controller) OpenDelete(a Account) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.del.State == Submitting {
		return ErrBusy
	}
	c.del = stage(a)
	return nil
}

// CancelDelete closes the confirmation dialog.
func (c *Controller) CancelDelete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.del.State != Submitting {
		c.del = Modal{}
	}
}

// ConfirmDelete removes the staged account. On success the dialog closes and
// the collection is refreshed; on failure it stays open in the Failed state.
func (c *Controller) ConfirmDelete(ctx context.Context) error {
	c.mu.Lock()
	if !c.del.editable() {
		defer c.mu.Unlock()
		if c.del.State == Submitting {
			return ErrBusy
		}
		return ErrNothingStaged
	}
	target := c.del.Target
	c.del.State = Submitting
	c.del.Reason = ""
	c.mu.Unlock()

	if err := c.Remove(ctx, target.ID); err != nil {
		c.mu.Lock()
		c.del.State = Failed
		c.del.Reason = MsgDeleteFailed
		c.status = StatusMessage{Kind: StatusError, Message: MsgDeleteFailed}
		c.mu.Unlock()
		c.recordOp("delete", false)
		return err
	}

	c.mu.Lock()
	c.del = Modal{}
	c.status = StatusMessage{Kind: StatusSuccess, Message: MsgDeleted}
	c.mu.Unlock()
	c.recordOp("delete", true)

	c.refresh(ctx)
	return nil
}

// refresh re-lists after a successful write. Its failure is already reported
// by List and does not undo the write.
func (c *Controller) refresh(ctx context.Context) {
	_ = c.List(ctx)
}

func (c *Controller) setStatus(kind StatusKind, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = StatusMessage{Kind: kind, Message: msg}
}

func (c *Controller) recordOp(op string, ok bool) {
	if c.metrics != nil {
		c.metrics.IncAccountOp(op, ok)
	}
}
