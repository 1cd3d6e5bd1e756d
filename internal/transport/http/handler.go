package http

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"prediction-league-service/internal/app"
	"prediction-league-service/internal/domain"
	"prediction-league-service/internal/scoring"
)

// Handler exposes the contest and league use cases as a JSON API.
type Handler struct {
	contests *app.ContestService
	leagues  *app.LeagueService
	validate *validator.Validate
	now      func() time.Time
}

func NewHandler(contests *app.ContestService, leagues *app.LeagueService, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{contests: contests, leagues: leagues, validate: validate, now: now}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /contests", withLogging(h.CreateContest))
	mux.HandleFunc("GET /contests/{id}", withLogging(h.GetContest))
	mux.HandleFunc("PUT /contests/{id}", withLogging(h.UpdateContest))
	mux.HandleFunc("POST /contests/{id}/entries", withLogging(h.SubmitEntry))
	mux.HandleFunc("GET /contests/{id}/entries/me", withLogging(h.MyEntry))
	mux.HandleFunc("POST /contests/{id}/reveal", withLogging(h.RevealAnswers))
	mux.HandleFunc("PUT /contests/{id}/questions/{questionId}/answer", withLogging(h.RevealAnswer))
	mux.HandleFunc("GET /contests/{id}/leaderboard", withLogging(h.ContestLeaderboard))
	mux.HandleFunc("GET /contests/{id}/scores/{userId}", withLogging(h.EntryScore))
	mux.HandleFunc("GET /users/{id}/stats", withLogging(h.PlayerStats))

	mux.HandleFunc("POST /leagues", withLogging(h.CreateLeague))
	mux.HandleFunc("GET /leagues/{id}", withLogging(h.GetLeague))
	mux.HandleFunc("PUT /leagues/{id}", withLogging(h.UpdateLeague))
	mux.HandleFunc("POST /leagues/{id}/join", withLogging(h.JoinLeague))
	mux.HandleFunc("POST /leagues/{id}/leave", withLogging(h.LeaveLeague))
	mux.HandleFunc("DELETE /leagues/{id}/members/{userId}", withLogging(h.RemoveMember))
	mux.HandleFunc("POST /leagues/{id}/members/{userId}/admin", withLogging(h.ToggleAdmin))
	mux.HandleFunc("POST /leagues/{id}/contests", withLogging(h.AddLeagueContest))
	mux.HandleFunc("DELETE /leagues/{id}/contests/{contestId}", withLogging(h.RemoveLeagueContest))
	mux.HandleFunc("GET /leagues/{id}/standings", withLogging(h.LeagueStandings))
}

type contestRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	LockAt      time.Time `json:"lockAt" validate:"required"`
	Questions   []string  `json:"questions" validate:"required,min=1,dive,required,max=500"`
}

type updateContestRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=2000"`
	LockAt      time.Time `json:"lockAt"`
	Questions   []string  `json:"questions" validate:"omitempty,min=1,dive,required,max=500"`
}

type answersRequest struct {
	Answers map[string]bool `json:"answers"`
}

type revealRequest struct {
	Answer *bool `json:"answer" validate:"required"`
}

type leagueRequest struct {
	Name           string `json:"name" validate:"required,max=200"`
	Description    string `json:"description" validate:"max=2000"`
	IsPublic       bool   `json:"isPublic"`
	WinBonusPoints *int   `json:"winBonusPoints" validate:"omitempty,min=0,max=50"`
}

type linkContestRequest struct {
	ContestID string `json:"contestId" validate:"required"`
}

// contestView is a contest as shown to a caller. Entries are never listed; the
// caller only sees their own answers. PendingReveals holds the IDs of questions
// still waiting for an answer key.
type contestView struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	CreatedBy      string            `json:"createdBy"`
	LockAt         time.Time         `json:"lockAt"`
	Locked         bool              `json:"locked"`
	Revealed       bool              `json:"revealed"`
	PendingReveals []string          `json:"pendingReveals"`
	Questions      []domain.Question `json:"questions"`
	EntryCount     int               `json:"entryCount"`
	MyEntry        *domain.Entry     `json:"myEntry,omitempty"`
}

func (h *Handler) viewContest(c domain.Contest, viewer string) contestView {
	v := contestView{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedBy:   c.CreatedBy,
		LockAt:      c.LockAt,
		Locked:      scoring.IsLocked(c, h.now()),
		Revealed:    scoring.HasFullReveal(c),
		Questions:   c.Questions,
		EntryCount:  len(c.Entries),
	}
	v.PendingReveals = make([]string, 0)
	for _, q := range scoring.UnrevealedQuestions(c) {
		v.PendingReveals = append(v.PendingReveals, q.ID)
	}
	if e, ok := c.EntryFor(viewer); ok && viewer != "" {
		v.MyEntry = &e
	}
	return v
}

func (h *Handler) CreateContest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req contestRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.contests.CreateContest(r.Context(), actor, app.ContestInput{
		Name:        req.Name,
		Description: req.Description,
		LockAt:      req.LockAt,
		Questions:   req.Questions,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.viewContest(c, actor.ID))
}

func (h *Handler) GetContest(w http.ResponseWriter, r *http.Request) {
	c, err := h.contests.GetContest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	actor, _ := actorFrom(r)
	writeJSON(w, http.StatusOK, h.viewContest(c, actor.ID))
}

func (h *Handler) UpdateContest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req updateContestRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	c, err := h.contests.UpdateContest(r.Context(), actor, r.PathValue("id"), app.ContestInput{
		Name:        req.Name,
		Description: req.Description,
		LockAt:      req.LockAt,
		Questions:   req.Questions,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.viewContest(c, actor.ID))
}

func (h *Handler) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req answersRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := h.contests.SubmitEntry(r.Context(), actor, r.PathValue("id"), req.Answers)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) MyEntry(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	c, err := h.contests.GetContest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	e, ok := c.EntryFor(actor.ID)
	if !ok {
		writeDomainError(w, r, domain.ErrEntryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (h *Handler) RevealAnswers(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req answersRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Answers) == 0 {
		writeError(w, http.StatusBadRequest, "answers are required")
		return
	}
	questions, err := h.contests.RevealAnswers(r.Context(), actor, r.PathValue("id"), req.Answers)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *Handler) RevealAnswer(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req revealRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.contests.RevealAnswer(r.Context(), actor, r.PathValue("id"), r.PathValue("questionId"), *req.Answer)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) ContestLeaderboard(w http.ResponseWriter, r *http.Request) {
	lb, err := h.contests.Leaderboard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) EntryScore(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	score, err := h.contests.EntryScore(r.Context(), actor, r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

func (h *Handler) PlayerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.contests.PlayerStats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CreateLeague(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req leagueRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := h.leagues.CreateLeague(r.Context(), actor, leagueInput(req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) GetLeague(w http.ResponseWriter, r *http.Request) {
	viewer, _ := actorFrom(r)
	l, err := h.leagues.GetLeague(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) UpdateLeague(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req leagueRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	l, err := h.leagues.UpdateLeague(r.Context(), actor, r.PathValue("id"), leagueInput(req))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) JoinLeague(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	m, err := h.leagues.Join(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) LeaveLeague(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.leagues.Leave(r.Context(), actor, r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.leagues.RemoveMember(r.Context(), actor, r.PathValue("id"), r.PathValue("userId")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ToggleAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	m, err := h.leagues.ToggleAdmin(r.Context(), actor, r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) AddLeagueContest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req linkContestRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	link, err := h.leagues.AddContest(r.Context(), actor, r.PathValue("id"), req.ContestID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *Handler) RemoveLeagueContest(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.leagues.RemoveContest(r.Context(), actor, r.PathValue("id"), r.PathValue("contestId")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LeagueStandings(w http.ResponseWriter, r *http.Request) {
	viewer, _ := actorFrom(r)
	lb, err := h.leagues.Standings(r.Context(), viewer, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func (h *Handler) requireActor(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "X-User-ID header is required")
	}
	return actor, ok
}

func leagueInput(req leagueRequest) app.LeagueInput {
	return app.LeagueInput{
		Name:           req.Name,
		Description:    req.Description,
		IsPublic:       req.IsPublic,
		WinBonusPoints: req.WinBonusPoints,
	}
}
