package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/sitesnap/internal/apperr"
	"github.com/example/sitesnap/internal/middleware"
	"github.com/example/sitesnap/internal/services"
	"github.com/example/sitesnap/internal/utils"
)

// AuthHandler exposes sign-up, verification and sign-in endpoints.
type AuthHandler struct {
	identity *services.IdentityService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(identity *services.IdentityService) *AuthHandler {
	return &AuthHandler{identity: identity}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Register creates an unverified account and emails it a code.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}

	user, err := h.identity.RegisterWithPassword(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "verification code sent",
		"data":    user,
	})
}

type verifyEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required"`
}

func (h *AuthHandler) VerifyEmailOTP(c *fiber.Ctx) error {
	var req verifyEmailRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	session, err := h.identity.VerifyEmailOTP(c.UserContext(), req.Email, req.OTP)
	if err != nil {
		return err
	}
	return utils.OK(c, session)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login signs in with email and password.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	session, err := h.identity.LoginWithPassword(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return utils.OK(c, session)
}

type sendPhoneOTPRequest struct {
	Phone string `json:"phone" validate:"required"`
	Email string `json:"email" validate:"required,email"`
}

func (h *AuthHandler) SendPhoneOTP(c *fiber.Ctx) error {
	var req sendPhoneOTPRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if _, err := h.identity.SendPhoneOTP(c.UserContext(), req.Phone, req.Email); err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "verification code sent")
}

type verifyPhoneRequest struct {
	Phone string `json:"phone" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

func (h *AuthHandler) VerifyPhoneOTP(c *fiber.Ctx) error {
	var req verifyPhoneRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	session, err := h.identity.VerifyPhoneOTP(c.UserContext(), req.Phone, req.OTP)
	if err != nil {
		return err
	}
	return utils.OK(c, session)
}

type googleRequest struct {
	IDToken string `json:"id_token"`
	Token   string `json:"token"`
}

// Google signs in with a Google ID token, creating the account on first use.
func (h *AuthHandler) Google(c *fiber.Ctx) error {
	var req googleRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	token := req.IDToken
	if token == "" {
		token = req.Token
	}
	if token == "" {
		return apperr.New(apperr.CodeValidation, "id_token is required")
	}

	session, err := h.identity.FederatedLogin(c.UserContext(), token)
	if err != nil {
		return err
	}
	return utils.OK(c, session)
}

type resendRequest struct {
	Type  string `json:"type" validate:"required,oneof=email phone"`
	Value string `json:"value" validate:"required"`
}

func (h *AuthHandler) ResendOTP(c *fiber.Ctx) error {
	var req resendRequest
	if err := utils.BindJSON(c, &req); err != nil {
		return err
	}
	if err := h.identity.ResendOTP(c.UserContext(), req.Type, req.Value); err != nil {
		return err
	}
	return utils.Message(c, fiber.StatusOK, "verification code sent")
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return apperr.ErrUnauthenticated
	}
	return utils.OK(c, user)
}
