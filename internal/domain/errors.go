package domain

import "errors"

var (
	// ErrContestNotFound indicates the contest could not be loaded.
	ErrContestNotFound = errors.New("contest not found")
	// ErrQuestionNotFound indicates a question ID does not belong to the contest.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrEntryNotFound is returned when a user has no entry in a contest.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryExists is returned by stores when (contest, user) already has an entry.
	ErrEntryExists = errors.New("entry already exists")
	// ErrContestLocked is returned when entries or answers change after the deadline.
	ErrContestLocked = errors.New("contest is locked")
	// ErrContestNotLocked is returned when answers are revealed before the deadline.
	ErrContestNotLocked = errors.New("contest is not locked yet")
	// ErrQuestionsFrozen is returned when questions change after someone entered.
	ErrQuestionsFrozen = errors.New("questions cannot change once entries exist")
	// ErrLockImmutable is returned when the deadline moves after someone entered.
	ErrLockImmutable = errors.New("lock time cannot change once entries exist")

	// ErrLeagueNotFound indicates the league could not be loaded.
	ErrLeagueNotFound = errors.New("league not found")
	// ErrMemberNotFound is returned when a user is not a league member.
	ErrMemberNotFound = errors.New("member not found in league")
	// ErrAlreadyMember is returned when (league, user) already has a membership.
	ErrAlreadyMember = errors.New("already a league member")
	// ErrContestAlreadyLinked is returned when (league, contest) is already linked.
	ErrContestAlreadyLinked = errors.New("contest already in league")
	// ErrContestNotLinked is returned when removing a contest the league does not hold.
	ErrContestNotLinked = errors.New("contest not in league")
	// ErrContestNotEligible is returned when the contest creator is not a league member.
	ErrContestNotEligible = errors.New("contest creator is not a league member")
	// ErrLeaguePrivate is returned when joining a league that is not public.
	ErrLeaguePrivate = errors.New("league is private")
	// ErrSoleAdmin is returned when the creator tries to leave as the only admin.
	ErrSoleAdmin = errors.New("league creator is the only admin")
	// ErrCreatorProtected is returned when removing or demoting the league creator.
	ErrCreatorProtected = errors.New("league creator cannot be changed")

	// ErrForbidden is returned when the actor lacks permission for the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput is returned for malformed operation arguments.
	ErrInvalidInput = errors.New("invalid input")
)
