/*
Package handler provides HTTP handler functions for account registration and login.

Registration is guarded by a Proof-of-Work challenge instead of passwords or
email: an account is just a username plus a generated session ID that the user
shares with their chat partner.
*/
package handler

import (
	"net/http"
	"regexp"
	"strings"

	"pairchat/internal/app/db"
	"pairchat/internal/pkg/auth/jwt"
	"pairchat/internal/pkg/errs"
	"pairchat/internal/pkg/logx"
	"pairchat/internal/pkg/randx"
	"pairchat/internal/pkg/req"
	"pairchat/internal/pkg/resp"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{2,30}$`)

// sessionIDRetries is how many times registration retries on a session ID
// collision before giving up.
const sessionIDRetries = 3

// HandlePowChallenge issues a fresh PoW nonce and the current difficulty.
func HandlePowChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nonce := deps.Pow.GenerateNonce()

		resp.RespondSuccess(w, r, map[string]any{
			"nonce":      nonce,
			"difficulty": deps.Pow.Difficulty(),
		})
	}
}

type PowVerifyInput struct {
	Nonce   string `json:"nonce"`
	Counter string `json:"counter"`
}

// HandlePowVerify validates a solved challenge and issues a short-lived proof
// token the client presents on register.
func HandlePowVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PowVerifyInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, err := deps.Pow.ValidateProof(input.Nonce, input.Counter)
		if err != nil {
			logx.Warn("PoW verification failed", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"powToken": token,
		})
	}
}

type RegisterInput struct {
	Username string `json:"username"`
}

// HandleRegister creates a new account. Requires a valid PoW proof token; the
// session ID is generated server-side and retried on the rare collision.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !deps.Pow.CheckProofToken(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		var input RegisterInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !usernameRegex.MatchString(input.Username) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidUsername))
			return
		}

		for attempt := 0; attempt < sessionIDRetries; attempt++ {
			sessionID, err := randx.SessionID()
			if err != nil {
				logx.Error(err, "failed to generate session ID")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}

			user, err := deps.Store.CreateUser(r.Context(), input.Username, sessionID)
			if err != nil {
				if db.IsUniqueViolation(err) {
					logx.Warn("registration: session ID collision, retrying", "attempt", attempt+1)
					continue
				}
				logx.Error(err, "failed to create user")
				resp.RespondError(w, r, errs.NewError(errs.ErrPersistenceFailed))
				return
			}

			token, err := jwt.GenerateToken(&jwt.Payload{
				ID:        user.ID,
				Username:  user.Username,
				SessionID: user.SessionID,
			}, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
			if err != nil {
				logx.Error(err, "failed to generate token after registration")
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}

			resp.RespondSuccess(w, r, map[string]any{
				"token": token,
				"user":  user,
			})
			return
		}

		logx.Warn("registration: exhausted session ID retries")
		resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
	}
}

type LoginInput struct {
	SessionID string `json:"sessionId"`
}

// HandleLogin exchanges a session ID for a JWT. There is no password: the
// session ID is the credential, which is why its format is validated and its
// generation is random.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input LoginInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		sessionID := strings.ToUpper(strings.TrimSpace(input.SessionID))
		if !randx.IsValidSessionID(sessionID) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidSessionID))
			return
		}

		user, err := deps.Store.GetUserBySessionID(r.Context(), sessionID)
		if err != nil {
			logx.Warn("login: session ID lookup failed", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		token, err := jwt.GenerateToken(&jwt.Payload{
			ID:        user.ID,
			Username:  user.Username,
			SessionID: user.SessionID,
		}, deps.Config.JWTSecret, jwt.UserIdentityExpiration)
		if err != nil {
			logx.Error(err, "login: jwt generation failed")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token": token,
			"user":  user,
		})
	}
}
