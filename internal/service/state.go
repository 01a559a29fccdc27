package service

import (
	"context"
	"time"

	"bookmylawn/internal/domain"
	"bookmylawn/internal/models"

	"github.com/rs/zerolog"
)

// StateService keeps the bot conversation state, including the tentative
// date selection of a booking in progress.
type StateService struct {
	stateRepo domain.StateRepository
	logger    *zerolog.Logger
}

var _ domain.StateManager = (*StateService)(nil)

func NewStateService(stateRepo domain.StateRepository, logger *zerolog.Logger) *StateService {
	return &StateService{
		stateRepo: stateRepo,
		logger:    logger,
	}
}

func (s *StateService) GetUserState(ctx context.Context, userID int64) (*models.UserState, error) {
	state, err := s.stateRepo.GetState(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Int64("user_id", userID).Msg("failed to get user state")
		return nil, err
	}

	return state, nil
}

func (s *StateService) SetUserState(ctx context.Context, userID int64, step string, data map[string]interface{}) error {
	if data == nil {
		data = make(map[string]interface{})
	}
	state := &models.UserState{
		UserID:      userID,
		CurrentStep: step,
		TempData:    data,
	}
	return s.stateRepo.SetState(ctx, state)
}

func (s *StateService) ClearUserState(ctx context.Context, userID int64) error {
	return s.stateRepo.ClearState(ctx, userID)
}

func (s *StateService) UpdateUserStateData(ctx context.Context, userID int64, key string, value interface{}) error {
	state, err := s.stateRepo.GetState(ctx, userID)
	if err != nil {
		return err
	}
	if state == nil {
		state = &models.UserState{
			UserID:   userID,
			TempData: make(map[string]interface{}),
		}
	}

	if state.TempData == nil {
		state.TempData = make(map[string]interface{})
	}
	state.TempData[key] = value

	return s.stateRepo.SetState(ctx, state)
}

// Selection returns the dates picked so far; nil when nothing is selected.
func (s *StateService) Selection(ctx context.Context, userID int64) ([]string, error) {
	state, err := s.GetUserState(ctx, userID)
	if err != nil || state == nil {
		return nil, err
	}
	return state.GetStrings(models.StateKeySelection), nil
}

func (s *StateService) SaveSelection(ctx context.Context, userID int64, selection []string) error {
	return s.UpdateUserStateData(ctx, userID, models.StateKeySelection, selection)
}

func (s *StateService) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	return s.stateRepo.CheckRateLimit(ctx, userID, limit, window)
}
