package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"prediction-league-service/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: http.StatusText(status), Message: message})
}

// writeDomainError maps a use-case error onto an HTTP status.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrLeaguePrivate):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrContestNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrEntryNotFound),
		errors.Is(err, domain.ErrLeagueNotFound),
		errors.Is(err, domain.ErrMemberNotFound),
		errors.Is(err, domain.ErrContestNotLinked):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrEntryExists),
		errors.Is(err, domain.ErrAlreadyMember),
		errors.Is(err, domain.ErrContestAlreadyLinked),
		errors.Is(err, domain.ErrContestLocked),
		errors.Is(err, domain.ErrContestNotLocked),
		errors.Is(err, domain.ErrQuestionsFrozen),
		errors.Is(err, domain.ErrLockImmutable),
		errors.Is(err, domain.ErrSoleAdmin),
		errors.Is(err, domain.ErrCreatorProtected),
		errors.Is(err, domain.ErrContestNotEligible):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeBody parses the JSON body into v and runs its validate tags.
func decodeBody(r *http.Request, validate *validator.Validate, v interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON")
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" failed "+fe.Tag())
			}
			return errors.New(strings.Join(fields, "; "))
		}
		return err
	}
	return nil
}

// withLogging wraps a handler with request logging.
func withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next(w, r)
		slog.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// actorFrom identifies the caller. Authentication happens upstream; the gateway
// forwards the user in X-User-ID and X-User-Name.
func actorFrom(r *http.Request) (domain.User, bool) {
	id := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if id == "" {
		return domain.User{}, false
	}
	return domain.User{ID: id, DisplayName: strings.TrimSpace(r.Header.Get("X-User-Name"))}, true
}
