package accounts

import (
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

const MessageLoggedOut = "Logged out successfully"

// ControllerRoutes are the paths served by Controller, relative to its prefix
type ControllerRoutes struct {
	Register       string
	Verify         string
	Login          string
	Google         string
	Outlook        string
	Logout         string
	ForgotPassword string
	ResetPassword  string
	ChangePassword string
	UpdateProfile  string
}

// Controller exposes Service over HTTP
type Controller struct {
	Prefix  string
	Routes  *ControllerRoutes
	Service *Service
	Logger  Logger
}

func NewController(service *Service, logger Logger) *Controller {
	if logger == nil {
		logger = defLogger{}
	}
	return &Controller{
		Prefix: "/api/auth",
		Routes: &ControllerRoutes{
			Register:       "/register",
			Verify:         "/verify",
			Login:          "/login",
			Google:         "/google",
			Outlook:        "/outlook",
			Logout:         "/logout",
			ForgotPassword: "/forgot-password",
			ResetPassword:  "/reset-password",
			ChangePassword: "/change-password",
			UpdateProfile:  "/update-profile",
		},
		Service: service,
		Logger:  logger,
	}
}

// RegisterRoutes mounts the controller routes on app under controller.Prefix
func RegisterRoutes[T any](app router.Router[T], controller *Controller) {
	g := app.Group(controller.Prefix)

	g.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("accounts.register.post")
	g.Get(controller.Routes.Verify, controller.Verify).
		SetName("accounts.verify.get")
	g.Post(controller.Routes.Login, controller.LoginPost).
		SetName("accounts.sign-in.post")
	g.Post(controller.Routes.Google, controller.GoogleLogin).
		SetName("accounts.google.post")
	g.Post(controller.Routes.Outlook, controller.OutlookLogin).
		SetName("accounts.outlook.post")
	g.Post(controller.Routes.Logout, controller.LogOut).
		SetName("accounts.sign-out.post")
	g.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).
		SetName("accounts.pwd-forgot.post")
	g.Post(controller.Routes.ResetPassword, controller.ResetPassword).
		SetName("accounts.pwd-reset.post")

	protected := ProtectedRoute(controller.Service.Tokens(), nil)
	g.Post(controller.Routes.ChangePassword, controller.ChangePassword, protected).
		SetName("accounts.pwd-change.post")
	g.Post(controller.Routes.UpdateProfile, controller.UpdateProfile, protected).
		SetName("accounts.profile.post")
}

// RegistrationCreatePayload is the registration request body
type RegistrationCreatePayload struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 72)),
	)
}

func (a *Controller) RegistrationCreate(c router.Context) error {
	payload := new(RegistrationCreatePayload)
	if err := bindAndValidate(c, payload); err != nil {
		return writeError(c, err)
	}

	message, err := a.Service.InitiateRegistration(c.Context(), payload.Email, payload.FirstName, payload.LastName, payload.Password)
	if err != nil {
		a.Logger.Error("registration error", "error", err)
		return writeError(c, err)
	}

	return c.Status(router.StatusOK).SendString(message)
}

func (a *Controller) Verify(c router.Context) error {
	token := c.Query("token")
	if token == "" {
		return writeError(c, validationError("token is required", nil))
	}

	message, err := a.Service.CompleteRegistration(c.Context(), token)
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(router.StatusOK).SendString(message)
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *Controller) LoginPost(c router.Context) error {
	payload := new(LoginRequest)
	if err := bindAndValidate(c, payload); err != nil {
		return writeError(c, err)
	}

	resp, err := a.Service.LoginLocal(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(router.StatusOK, resp)
}

type googleLoginRequest struct {
	IDToken string `json:"idToken"`
}

func (a *Controller) GoogleLogin(c router.Context) error {
	payload := new(googleLoginRequest)
	if err := c.Bind(payload); err != nil || payload.IDToken == "" {
		return writeError(c, validationError("ID token is required", err))
	}

	return a.oauthLogin(c, ProviderGoogle, payload.IDToken)
}

type outlookLoginRequest struct {
	AccessToken string `json:"accessToken"`
}

func (a *Controller) OutlookLogin(c router.Context) error {
	payload := new(outlookLoginRequest)
	if err := c.Bind(payload); err != nil || payload.AccessToken == "" {
		return writeError(c, validationError("Access token is required", err))
	}

	return a.oauthLogin(c, ProviderOutlook, payload.AccessToken)
}

func (a *Controller) oauthLogin(c router.Context, provider Provider, credential string) error {
	resp, err := a.Service.LoginOAuth(c.Context(), provider, credential)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(router.StatusOK, resp)
}

// LogOut clears the session cookie. Tokens stay valid until they expire.
func (a *Controller) LogOut(c router.Context) error {
	c.Cookie(&router.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
	a.Logger.Info("user logged out, clearing session cookie")
	return c.Status(router.StatusOK).SendString(MessageLoggedOut)
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required.Error("Email is required"), is.Email),
	)
}

func (a *Controller) ForgotPassword(c router.Context) error {
	payload := new(ForgotPasswordRequest)
	if err := bindAndValidate(c, payload); err != nil {
		return writeError(c, err)
	}

	message, err := a.Service.ForgotPassword(c.Context(), payload.Email)
	if err != nil {
		a.Logger.Error("forgot password error", "error", err)
		return writeError(c, err)
	}

	return c.Status(router.StatusOK).SendString(message)
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, 72)),
	)
}

func (a *Controller) ResetPassword(c router.Context) error {
	payload := new(ResetPasswordRequest)
	if err := bindAndValidate(c, payload); err != nil {
		return writeError(c, err)
	}

	message, err := a.Service.ResetPassword(c.Context(), payload.Token, payload.NewPassword)
	if err != nil {
		a.Logger.Error("reset password error", "error", err)
		return writeError(c, err)
	}

	return c.Status(router.StatusOK).SendString(message)
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, 72)),
	)
}

func (a *Controller) ChangePassword(c router.Context) error {
	claims, ok := GetRouterClaims(c)
	if !ok {
		return writeError(c, ErrInvalidToken(nil, false))
	}

	payload := new(ChangePasswordRequest)
	if err := bindAndValidate(c, payload); err != nil {
		return writeError(c, err)
	}

	if err := a.Service.ChangePassword(c.Context(), claims.Email, payload.OldPassword, payload.NewPassword); err != nil {
		a.Logger.Error("change password error", "error", err)
		return writeError(c, err)
	}

	return c.Status(router.StatusOK).SendString(MessagePasswordChanged)
}

type UpdateProfileRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	NewEmail  string `json:"newEmail"`
}

func (r UpdateProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.NewEmail, is.Email),
	)
}

func (a *Controller) UpdateProfile(c router.Context) error {
	claims, ok := GetRouterClaims(c)
	if !ok {
		return writeError(c, ErrInvalidToken(nil, false))
	}

	payload := new(UpdateProfileRequest)
	if err := bindAndValidate(c, payload); err != nil {
		return writeError(c, err)
	}

	result, err := a.Service.UpdateProfile(c.Context(), claims.Email, ProfileFields{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		NewEmail:  payload.NewEmail,
	})
	if err != nil {
		a.Logger.Error("profile update error", "error", err)
		return writeError(c, err)
	}

	body := map[string]any{"message": result.Message}
	if result.Response != nil {
		body["user"] = result.Response
	}

	return c.JSON(router.StatusOK, body)
}

func bindAndValidate(c router.Context, payload validation.Validatable) error {
	if err := c.Bind(payload); err != nil {
		return validationError("invalid request body", err)
	}
	if err := goerrors.ValidateWithOzzo(payload.Validate, "invalid request"); err != nil {
		return err.WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

func validationError(msg string, err error) *goerrors.Error {
	e := goerrors.New(msg, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest)
	e.Source = err
	return e
}

func writeError(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = ErrUnavailable(err, "unexpected error")
	}

	status := richErr.Code
	if status == 0 {
		status = http.StatusBadRequest
	}

	body := map[string]any{
		"error": richErr.Message,
		"kind":  KindOf(richErr),
	}
	if richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}
	if fields := richErr.ValidationMap(); len(fields) > 0 {
		body["fields"] = fields
	}

	return c.JSON(status, body)
}
