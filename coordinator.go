package roster

import (
	"context"
	"strings"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

// RoleSource yields the role of the current session. The coordinator
// consults it immediately before every write, so a stale or tampered
// client state cannot bypass authorization by hiding a button.
type RoleSource func() UserRole

// MutationResult reports a write and its consistency refetch separately:
// RefreshErr set with a nil error means the write landed but the roster
// re-read did not.
type MutationResult struct {
	Record     *UserRecord
	RefreshErr error
}

// CreateUserRequest payload.
type CreateUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate will run validation rules.
func (r CreateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required),
	)
}

// UpdateUserRequest payload.
type UpdateUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Validate will run validation rules.
func (r UpdateUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ID, validation.Required),
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Email, validation.Required),
	)
}

// Coordinator performs roster CRUD against the gateway and guarantees the
// published user list reflects a successful write before control returns
// to the caller. Only one mutation per record identity may be in flight;
// a concurrent second request for the same identity is rejected with a
// conflict rather than queued.
type Coordinator struct {
	mu       sync.Mutex
	gateway  Gateway
	role     RoleSource
	logger   Logger
	inflight map[string]struct{}
	users    []UserRecord
}

// CoordinatorOption customizes coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger overrides the default logger.
func WithCoordinatorLogger(logger Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator returns a coordinator bound to a gateway and the current
// session's role.
func NewCoordinator(gateway Gateway, role RoleSource, opts ...CoordinatorOption) *Coordinator {
	if gateway == nil {
		panic("Missing Gateway in mutation coordinator...")
	}
	if role == nil {
		role = func() UserRole { return "" }
	}

	c := &Coordinator{
		gateway:  gateway,
		role:     role,
		logger:   defLogger{},
		inflight: map[string]struct{}{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// ListUsers fetches the roster and publishes it as the current snapshot.
// Consumers apply their own filter via FilterUsers.
func (c *Coordinator) ListUsers(ctx context.Context) ([]UserRecord, error) {
	records, err := c.gateway.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	for i := range records {
		records[i].EnsureRole()
	}

	c.mu.Lock()
	c.users = records
	c.mu.Unlock()

	return copyRecords(records), nil
}

// Users returns the last published snapshot.
func (c *Coordinator) Users() []UserRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyRecords(c.users)
}

// CreateUser adds a roster entry. Requires the CreateUser permission and
// non-empty name and email; on success the roster is force-refetched
// before the call returns.
func (c *Coordinator) CreateUser(ctx context.Context, name, email string) (*MutationResult, error) {
	if err := c.authorize(ActionCreateUser); err != nil {
		return nil, err
	}

	req := CreateUserRequest{Name: name, Email: email}
	if err := req.Validate(); err != nil {
		return nil, invalidPayload(err)
	}

	key := "create:" + strings.ToLower(email)
	if err := c.acquire(key); err != nil {
		return nil, err
	}
	defer c.release(key)

	record, err := c.gateway.CreateUser(ctx, name, email)
	if err != nil {
		return nil, err
	}
	record.EnsureRole()

	return &MutationResult{Record: record, RefreshErr: c.refresh(ctx)}, nil
}

// UpdateUser edits an existing entry; id must reference a record the
// gateway knows about. Same authorization and refetch contract as create.
func (c *Coordinator) UpdateUser(ctx context.Context, id, name, email string) (*MutationResult, error) {
	if err := c.authorize(ActionEditUser); err != nil {
		return nil, err
	}

	req := UpdateUserRequest{ID: id, Name: name, Email: email}
	if err := req.Validate(); err != nil {
		return nil, invalidPayload(err)
	}

	if err := c.acquire(id); err != nil {
		return nil, err
	}
	defer c.release(id)

	record, err := c.gateway.UpdateUser(ctx, id, name, email)
	if err != nil {
		return nil, err
	}
	record.EnsureRole()

	return &MutationResult{Record: record, RefreshErr: c.refresh(ctx)}, nil
}

// DeleteUser removes an entry. Confirmation happens upstream; here only
// the role gate and the in-flight guard stand before the gateway call.
func (c *Coordinator) DeleteUser(ctx context.Context, id string) (*MutationResult, error) {
	if err := c.authorize(ActionDeleteUser); err != nil {
		return nil, err
	}

	if err := validation.Validate(id, validation.Required); err != nil {
		return nil, invalidPayload(err)
	}

	if err := c.acquire(id); err != nil {
		return nil, err
	}
	defer c.release(id)

	if err := c.gateway.DeleteUser(ctx, id); err != nil {
		return nil, err
	}

	return &MutationResult{RefreshErr: c.refresh(ctx)}, nil
}

// Refresh force-refetches the roster, bypassing any cached copy, and
// publishes the result.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *Coordinator) refresh(ctx context.Context) error {
	records, err := c.gateway.ListUsers(ctx)
	if err != nil {
		c.logger.Warn("post-write roster refetch failed: %v", err)
		return err
	}

	for i := range records {
		records[i].EnsureRole()
	}

	c.mu.Lock()
	c.users = records
	c.mu.Unlock()

	return nil
}

func (c *Coordinator) authorize(action Action) error {
	role := c.role()
	if IsAllowed(role, action) {
		return nil
	}
	return ErrNotAuthorized.WithMetadata(map[string]any{
		"role":   role,
		"action": action,
	})
}

func (c *Coordinator) acquire(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, busy := c.inflight[key]; busy {
		return ErrMutationInFlight.WithMetadata(map[string]any{
			"identity": key,
		})
	}

	c.inflight[key] = struct{}{}
	return nil
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

func invalidPayload(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid user payload").
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

// FilterUsers applies a case-insensitive substring match over name and
// email. An empty term returns all records.
func FilterUsers(records []UserRecord, term string) []UserRecord {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return copyRecords(records)
	}

	filtered := make([]UserRecord, 0, len(records))
	for _, record := range records {
		if strings.Contains(strings.ToLower(record.Name), term) ||
			strings.Contains(strings.ToLower(record.Email), term) {
			filtered = append(filtered, record)
		}
	}
	return filtered
}

func copyRecords(records []UserRecord) []UserRecord {
	if records == nil {
		return nil
	}
	out := make([]UserRecord, len(records))
	copy(out, records)
	return out
}
