package service

import (
	"context"
	"fmt"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/google/uuid"
)

// WorkCellService 工作单元服务
type WorkCellService struct {
	workCellRepo *repository.WorkCellRepository
	scheduleRepo *repository.ScheduleRepository
}

func NewWorkCellService(workCellRepo *repository.WorkCellRepository, scheduleRepo *repository.ScheduleRepository) *WorkCellService {
	return &WorkCellService{workCellRepo: workCellRepo, scheduleRepo: scheduleRepo}
}

type CreateWorkCellInput struct {
	Code                 string  `json:"code" binding:"required"`
	Name                 string  `json:"name" binding:"required"`
	Description          string  `json:"description"`
	AvailableHoursPerDay float64 `json:"available_hours_per_day"`
	EfficiencyPercentage float64 `json:"efficiency_percentage"`
}

// CreateWorkCell 创建工作单元
func (s *WorkCellService) CreateWorkCell(ctx context.Context, input *CreateWorkCellInput, createdBy string) (*entity.WorkCell, error) {
	hours := input.AvailableHoursPerDay
	if hours <= 0 {
		hours = 8
	}
	efficiency := input.EfficiencyPercentage
	if efficiency <= 0 {
		efficiency = 100
	}

	cell := &entity.WorkCell{
		ID:                   uuid.New().String(),
		Code:                 input.Code,
		Name:                 input.Name,
		Description:          input.Description,
		AvailableHoursPerDay: hours,
		EfficiencyPercentage: efficiency,
		IsActive:             true,
		CreatedBy:            createdBy,
	}
	if err := s.workCellRepo.Create(ctx, cell); err != nil {
		return nil, fmt.Errorf("创建工作单元失败: %w", err)
	}
	return cell, nil
}

// GetWorkCell 工作单元详情
func (s *WorkCellService) GetWorkCell(ctx context.Context, id string) (*entity.WorkCell, error) {
	return s.workCellRepo.FindByID(ctx, id)
}

// ListWorkCells 工作单元列表
func (s *WorkCellService) ListWorkCells(ctx context.Context, activeOnly bool) ([]entity.WorkCell, error) {
	return s.workCellRepo.List(ctx, activeOnly)
}

// UpdateWorkCell 更新工作单元
func (s *WorkCellService) UpdateWorkCell(ctx context.Context, id string, input *CreateWorkCellInput) (*entity.WorkCell, error) {
	cell, err := s.workCellRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("工作单元不存在: %w", err)
	}

	cell.Name = input.Name
	cell.Description = input.Description
	if input.AvailableHoursPerDay > 0 {
		cell.AvailableHoursPerDay = input.AvailableHoursPerDay
	}
	if input.EfficiencyPercentage > 0 {
		cell.EfficiencyPercentage = input.EfficiencyPercentage
	}

	if err := s.workCellRepo.Update(ctx, cell); err != nil {
		return nil, err
	}
	return cell, nil
}

// SetActive 启用/停用工作单元
// 停用不影响已落库的排程，仅阻止新排程分配到该单元。
func (s *WorkCellService) SetActive(ctx context.Context, id string, active bool) error {
	cell, err := s.workCellRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("工作单元不存在: %w", err)
	}
	cell.IsActive = active
	return s.workCellRepo.Update(ctx, cell)
}
