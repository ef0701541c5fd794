// Package server is the reference gateway: an executable version of the
// client-observable contract (OTP exchange, bearer-gated roster CRUD)
// used by the integration tests and the demo. It is not a production
// deployment.
package server

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/goliatone/go-roster"
)

const claimsKey = "roster.claims"

// Server hosts the gateway HTTP API.
type Server struct {
	cfg    Config
	app    *fiber.App
	db     *bun.DB
	users  Users
	codes  *Codes
	tokens *TokenService
	sender CodeSender
	logger roster.Logger
}

// ServerOption customizes server construction.
type ServerOption func(*Server)

// WithServerLogger overrides the default logger.
func WithServerLogger(logger roster.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCodeSender overrides passcode delivery. The default logs the code;
// tests capture it.
func WithCodeSender(sender CodeSender) ServerOption {
	return func(s *Server) {
		if sender != nil {
			s.sender = sender
		}
	}
}

// New opens the database, ensures the schema, and mounts the routes.
func New(cfg Config, opts ...ServerOption) (*Server, error) {
	cfg = cfg.Normalize()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to open database")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if err := EnsureSchema(context.Background(), db); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		db:     db,
		users:  NewUsersRepository(db),
		codes:  NewCodes(db, cfg.OTPTTL),
		logger: roster.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.sender == nil {
		s.sender = logSender(s.logger)
	}

	s.tokens = NewTokenService([]byte(cfg.SigningKey), cfg.TokenTTL, cfg.Issuer, s.logger)

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	s.routes()

	return s, nil
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Users exposes the repository for seeding fixtures.
func (s *Server) Users() Users {
	return s.users
}

// Tokens exposes the token service, mainly for tests that need to mint
// sessions directly.
func (s *Server) Tokens() *TokenService {
	return s.tokens
}

// Listen serves on addr until shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Serve accepts connections from an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server and closes the database.
func (s *Server) Shutdown() error {
	if err := s.app.Shutdown(); err != nil {
		return err
	}
	return s.db.Close()
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	s.app.Post("/auth/otp/request", s.handleRequestOTP)
	s.app.Post("/auth/otp/verify", s.handleVerifyOTP)

	users := s.app.Group("/users", s.requireSession)
	users.Get("/", s.handleListUsers)
	users.Post("/", s.requirePermission(roster.ActionCreateUser), s.handleCreateUser)
	users.Put("/:id", s.requirePermission(roster.ActionEditUser), s.handleUpdateUser)
	users.Delete("/:id", s.requirePermission(roster.ActionDeleteUser), s.handleDeleteUser)
}

func (s *Server) handleRequestOTP(c *fiber.Ctx) error {
	payload := new(RequestOTPPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	if err := payload.Validate(); err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	if s.cfg.Debug {
		s.logger.Debug("OTP request payload: %s", print.MaybePrettyJSON(payload))
	}

	ctx := c.Context()

	code, err := s.codes.Issue(ctx, payload.Email)
	if err != nil {
		return s.writeError(c, err)
	}

	if err := s.sender.SendCode(ctx, payload.Email, code); err != nil {
		s.logger.Error("failed to deliver OTP to %s: %v", payload.Email, err)
		return s.writeError(c, goerrors.Wrap(err, goerrors.CategoryOperation, "Failed to send OTP email"))
	}

	return c.JSON(fiber.Map{"message": "OTP sent successfully"})
}

func (s *Server) handleVerifyOTP(c *fiber.Ctx) error {
	payload := new(VerifyOTPPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	if err := payload.Validate(); err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	ctx := c.Context()

	if err := s.codes.Redeem(ctx, payload.Email, payload.OTP); err != nil {
		return s.writeError(c, err)
	}

	identity, err := s.identityForEmail(ctx, payload.Email)
	if err != nil {
		return s.writeError(c, err)
	}

	// An account may always step down to USER; stepping up to a role the
	// account does not hold is a mismatch.
	if requested, valid := roster.ParseRole(payload.Role); valid && requested != identity.Role {
		if requested == roster.RoleAdmin {
			return s.writeError(c, goerrors.New("role mismatch: account does not have admin access", goerrors.CategoryAuth).
				WithTextCode(roster.TextCodeRoleMismatch).
				WithCode(goerrors.CodeUnauthorized))
		}
		identity.Role = requested
	}

	token, err := s.tokens.Generate(identity)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user":  identity,
	})
}

// identityForEmail resolves the roster entry for an email, or derives an
// ephemeral USER identity when the address has no record yet.
func (s *Server) identityForEmail(ctx context.Context, email string) (roster.UserRecord, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return roster.UserRecord{}, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load account")
	}

	if user != nil {
		return user.Record(), nil
	}

	name, _, _ := strings.Cut(email, "@")
	guest := &User{
		Name:  name,
		Email: email,
	}
	prepareUserDefaults(guest)

	return guest.Record(), nil
}

func (s *Server) handleListUsers(c *fiber.Ctx) error {
	records, err := s.users.List(c.Context())
	if err != nil {
		return s.writeError(c, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to list users"))
	}

	out := make([]roster.UserRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.Record())
	}

	return c.JSON(fiber.Map{"users": out})
}

func (s *Server) handleCreateUser(c *fiber.Ctx) error {
	payload := new(UserPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	if err := payload.Validate(); err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	if s.cfg.Debug {
		s.logger.Debug("create user payload: %s", print.MaybePrettyJSON(payload))
	}

	ctx := c.Context()

	if existing, err := s.users.GetByEmail(ctx, payload.Email); err != nil {
		return s.writeError(c, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to check email"))
	} else if existing != nil {
		return s.writeError(c, goerrors.New("a user with this email already exists", goerrors.CategoryConflict).
			WithTextCode(roster.TextCodeConflict).
			WithCode(goerrors.CodeConflict))
	}

	record, err := s.users.Create(ctx, &User{
		Name:  payload.Name,
		Email: payload.Email,
	})
	if err != nil {
		return s.writeError(c, goerrors.Wrap(err, goerrors.CategoryOperation, "Failed to create user"))
	}

	return c.Status(http.StatusCreated).JSON(record.Record())
}

func (s *Server) handleUpdateUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	payload := new(UserPayload)
	if err := c.BodyParser(payload); err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	if err := payload.Validate(); err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	ctx := c.Context()

	existing, err := s.users.GetByID(ctx, id)
	if err != nil {
		return s.writeError(c, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to load user"))
	}
	if existing == nil {
		return s.writeError(c, errUserNotFound())
	}

	existing.Name = payload.Name
	existing.Email = strings.ToLower(strings.TrimSpace(payload.Email))

	updated, err := s.users.Update(ctx, existing, repository.UpdateByID(id.String()))
	if err != nil {
		return s.writeError(c, goerrors.Wrap(err, goerrors.CategoryOperation, "Failed to update user"))
	}

	return c.JSON(updated.Record())
}

func (s *Server) handleDeleteUser(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return s.writeError(c, invalidRequest(err))
	}

	if err := s.users.DeleteByID(c.Context(), id); err != nil {
		return s.writeError(c, err)
	}

	return c.SendStatus(http.StatusNoContent)
}

func (s *Server) requireSession(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" || !strings.HasPrefix(header, "Bearer ") {
		return s.writeError(c, goerrors.New("missing bearer token", goerrors.CategoryAuth).
			WithTextCode(roster.TextCodeTokenMalformed).
			WithCode(goerrors.CodeUnauthorized))
	}

	claims, err := s.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		return s.writeError(c, err)
	}

	c.Locals(claimsKey, claims)
	return c.Next()
}

func (s *Server) requirePermission(action roster.Action) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(claimsKey).(*roster.SessionClaims)
		if !ok || claims == nil {
			return s.writeError(c, roster.ErrNotAuthorized)
		}

		role := claims.UserRole
		if role == "" {
			role = roster.RoleUser
		}

		if !roster.IsAllowed(role, action) {
			return s.writeError(c, goerrors.New("access denied", goerrors.CategoryAuthz).
				WithTextCode(roster.TextCodeAccessDenied).
				WithCode(goerrors.CodeForbidden).
				WithMetadata(map[string]any{
					"role":   role,
					"action": action,
				}))
		}

		return c.Next()
	}
}

func invalidRequest(err error) error {
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithTextCode(roster.TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"
	message := "Internal server error"

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		message = rich.Message
		if rich.TextCode != "" {
			code = rich.TextCode
		}

		switch rich.Category {
		case goerrors.CategoryValidation, goerrors.CategoryBadInput:
			status = http.StatusBadRequest
		case goerrors.CategoryAuth:
			status = http.StatusUnauthorized
		case goerrors.CategoryAuthz:
			status = http.StatusForbidden
		case goerrors.CategoryNotFound:
			status = http.StatusNotFound
		case goerrors.CategoryConflict:
			status = http.StatusConflict
		case goerrors.CategoryRateLimit:
			status = http.StatusTooManyRequests
		default:
			status = http.StatusInternalServerError
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("gateway error: %v", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"message": message,
			"code":    code,
		},
	})
}
