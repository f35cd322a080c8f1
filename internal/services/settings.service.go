package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/nimasrn/group-factory/pkg/logger"
)

type SettingsService struct {
	repo     SettingRepository
	defaults model.PaymentSetting
}

// NewSettingsService falls back to defaults until an admin stores settings.
func NewSettingsService(repo SettingRepository, defaults model.PaymentSetting) *SettingsService {
	return &SettingsService{
		repo:     repo,
		defaults: defaults,
	}
}

func (s *SettingsService) Effective(ctx context.Context) (model.PaymentSetting, error) {
	setting, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrSettingsNotFound) {
			return s.defaults, nil
		}
		return model.PaymentSetting{}, fmt.Errorf("load payment settings: %w", err)
	}
	// rows written before validation tightened fall back field by field
	if !setting.PricePerHundredGroups.IsPositive() {
		setting.PricePerHundredGroups = s.defaults.PricePerHundredGroups
	}
	if setting.MaxGroupsPerOrder < 1 {
		setting.MaxGroupsPerOrder = s.defaults.MaxGroupsPerOrder
	}
	return *setting, nil
}

func (s *SettingsService) Update(ctx context.Context, setting model.PaymentSetting) (model.PaymentSetting, error) {
	if err := setting.Validate(); err != nil {
		return model.PaymentSetting{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.repo.Upsert(ctx, setting); err != nil {
		return model.PaymentSetting{}, err
	}
	logger.Info("Payment settings updated",
		"price_per_hundred_groups", setting.PricePerHundredGroups.String(),
		"max_groups_per_order", setting.MaxGroupsPerOrder)
	return setting, nil
}
