package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/db-puzzle/maintenance-OS-sub006/internal/config"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/entity"
	"github.com/db-puzzle/maintenance-OS-sub006/internal/mes/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SchedulePolicy 排程策略（解析后的配置）
type SchedulePolicy struct {
	DayStartHour   int
	DayStartMinute int
	DayEndHour     int
	DayEndMinute   int
	BufferMinutes  int
	HorizonDays    int
}

// DefaultSchedulePolicy 参考策略：08:00–17:00，5分钟缓冲，30天搜索范围
func DefaultSchedulePolicy() SchedulePolicy {
	return SchedulePolicy{
		DayStartHour:  8,
		DayEndHour:    17,
		BufferMinutes: 5,
		HorizonDays:   30,
	}
}

// PolicyFromConfig 从配置解析排程策略，非法值回落到参考策略
func PolicyFromConfig(cfg config.SchedulingConfig) SchedulePolicy {
	policy := DefaultSchedulePolicy()
	if h, m, ok := parseClock(cfg.WorkdayStart); ok {
		policy.DayStartHour, policy.DayStartMinute = h, m
	}
	if h, m, ok := parseClock(cfg.WorkdayEnd); ok {
		policy.DayEndHour, policy.DayEndMinute = h, m
	}
	if cfg.BufferMinutes > 0 {
		policy.BufferMinutes = cfg.BufferMinutes
	}
	if cfg.HorizonDays > 0 {
		policy.HorizonDays = cfg.HorizonDays
	}
	return policy
}

func parseClock(s string) (hour, minute int, ok bool) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// SchedulingConflict 排程冲突结果
// 批量排程时冲突作为结构化结果返回给调用方处置，不抛错误。
type SchedulingConflict struct {
	RoutingStepID   string    `json:"routing_step_id"`
	WorkCellID      string    `json:"work_cell_id,omitempty"`
	DesiredStart    time.Time `json:"desired_start"`
	DurationMinutes float64   `json:"duration_minutes"`
	Reason          string    `json:"reason"`
}

// ScheduleResult 一次订单排程的结果
type ScheduleResult struct {
	Schedules []entity.ProductionSchedule `json:"schedules"`
	Conflicts []SchedulingConflict        `json:"conflicts"`
}

// SchedulerService 产能排程服务
// 按BOM节点自深向浅排程每道工序：工序链起点受前道工序结束+缓冲
// 与子件最晚完工的双重下限约束，槽位在工作单元行锁内搜索并写入。
type SchedulerService struct {
	orderRepo    *repository.OrderRepository
	bomRepo      *repository.BOMRepository
	routingSvc   *RoutingService
	workCellRepo *repository.WorkCellRepository
	scheduleRepo *repository.ScheduleRepository
	logRepo      *repository.ActivityLogRepository
	policy       SchedulePolicy
	db           *gorm.DB
}

func NewSchedulerService(
	orderRepo *repository.OrderRepository,
	bomRepo *repository.BOMRepository,
	routingSvc *RoutingService,
	workCellRepo *repository.WorkCellRepository,
	scheduleRepo *repository.ScheduleRepository,
	logRepo *repository.ActivityLogRepository,
	policy SchedulePolicy,
	db *gorm.DB,
) *SchedulerService {
	return &SchedulerService{
		orderRepo:    orderRepo,
		bomRepo:      bomRepo,
		routingSvc:   routingSvc,
		workCellRepo: workCellRepo,
		scheduleRepo: scheduleRepo,
		logRepo:      logRepo,
		policy:       policy,
		db:           db,
	}
}

// ScheduleProduction 为订单的BOM树排程
// 自最深层开始，逐节点解析路线（解析不到即跳过），工序串行铺排。
// 所有写入在一个事务内：要么全部排程落库，要么一个都不留；
// 冲突不中断流程，汇总在结果里返回。
func (s *SchedulerService) ScheduleProduction(ctx context.Context, orderID string) (*ScheduleResult, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("订单不存在: %w", err)
	}
	if order.BillOfMaterialID == nil {
		return nil, validationErrorf("订单 %s 未关联BOM，无法排程", order.Number)
	}

	version, err := s.bomRepo.CurrentVersion(ctx, *order.BillOfMaterialID)
	if err != nil {
		return nil, fmt.Errorf("BOM没有当前版本: %w", err)
	}
	items, err := s.bomRepo.ItemsByVersion(ctx, version.ID)
	if err != nil {
		return nil, err
	}

	// 深层优先，同层按兄弟顺序
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Level != items[j].Level {
			return items[i].Level > items[j].Level
		}
		return items[i].SequenceNumber < items[j].SequenceNumber
	})

	base := time.Now().Truncate(time.Minute)
	result := &ScheduleResult{}
	// 节点完工时间：有排程取最后一道工序结束，无排程继承子件最晚完工
	endOf := make(map[string]time.Time)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range items {
			item := &items[i]

			// 子件最晚完工作为本节点的依赖下限
			childFloor := base
			for j := range items {
				child := &items[j]
				if child.ParentItemID != nil && *child.ParentItemID == item.ID {
					if end, ok := endOf[child.ID]; ok && end.After(childFloor) {
						childFloor = end
					}
				}
			}

			routing, err := s.routingSvc.Resolve(ctx, item.ID)
			if err != nil {
				return err
			}
			if routing == nil {
				if childFloor.After(base) {
					endOf[item.ID] = childFloor
				}
				continue
			}

			steps, err := s.routingSvc.routingRepo.StepsByRouting(ctx, routing.ID)
			if err != nil {
				return err
			}

			cursor := childFloor
			for k := range steps {
				step := &steps[k]
				if step.IsTerminal() {
					continue
				}

				desired := cursor
				if k > 0 {
					desired = cursor.Add(time.Duration(s.policy.BufferMinutes) * time.Minute)
				}

				if step.WorkCellID == nil {
					result.Conflicts = append(result.Conflicts, SchedulingConflict{
						RoutingStepID: step.ID,
						DesiredStart:  desired,
						Reason:        "工序未指定工作单元",
					})
					continue
				}

				cell, err := s.workCellRepo.FindByIDForUpdate(tx, *step.WorkCellID)
				if err != nil {
					return fmt.Errorf("工作单元不存在: %w", err)
				}
				if !cell.IsActive {
					result.Conflicts = append(result.Conflicts, SchedulingConflict{
						RoutingStepID: step.ID,
						WorkCellID:    cell.ID,
						DesiredStart:  desired,
						Reason:        fmt.Sprintf("工作单元 %s 未启用", cell.Code),
					})
					continue
				}

				duration := stepDurationMinutes(step, order.Quantity, cell.EfficiencyPercentage)

				var booked []entity.ProductionSchedule
				if err := tx.Where("work_cell_id = ? AND status IN ? AND scheduled_end > ?",
					cell.ID, entity.ActiveScheduleStatuses, desired).
					Order("scheduled_start").
					Find(&booked).Error; err != nil {
					return err
				}

				start, ok := FindAvailableSlot(booked, desired, duration, s.policy)
				if !ok {
					// 搜索范围内无空档：按冲突上报，不落库
					result.Conflicts = append(result.Conflicts, SchedulingConflict{
						RoutingStepID:   step.ID,
						WorkCellID:      cell.ID,
						DesiredStart:    desired,
						DurationMinutes: duration,
						Reason:          fmt.Sprintf("%d 天内无可用空档", s.policy.HorizonDays),
					})
					cursor = desired.Add(time.Duration(duration) * time.Minute)
					continue
				}

				schedule := entity.ProductionSchedule{
					ID:                   uuid.New().String(),
					WorkCellID:           cell.ID,
					RoutingStepID:        step.ID,
					ManufacturingOrderID: order.ID,
					ScheduledStart:       start,
					ScheduledEnd:         start.Add(time.Duration(duration) * time.Minute),
					Status:               entity.ScheduleStatusScheduled,
					BufferTimeMinutes:    float64(s.policy.BufferMinutes),
				}
				if err := tx.Create(&schedule).Error; err != nil {
					return err
				}
				result.Schedules = append(result.Schedules, schedule)
				cursor = schedule.ScheduledEnd
				endOf[item.ID] = schedule.ScheduledEnd
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logRepo.LogActivity(ctx, "order", order.ID, order.Number, "order_scheduled", "", "",
		fmt.Sprintf("生成排程 %d 条，冲突 %d 条", len(result.Schedules), len(result.Conflicts)), order.CreatedBy)
	return result, nil
}

// stepDurationMinutes 工序占用时长（分钟），按工作单元效率折算
func stepDurationMinutes(step *entity.RoutingStep, quantity, efficiencyPct float64) float64 {
	raw := step.SetupTimeMinutes + step.CycleTimeMinutes*quantity + step.TeardownTimeMinutes
	if efficiencyPct > 0 && efficiencyPct != 100 {
		raw = raw * 100 / efficiencyPct
	}
	return raw
}

// FindAvailableSlot 在工作单元的已有排程间向前搜索空档
// 从期望开始时刻起：跳过周末，裁剪到工作时段窗口，区间须整窗放下且
// 不与任何活动排程重叠；放不下推进到当日下一空档或次工作日窗口开启。
// 超出搜索范围返回期望时刻和 false——由调用方作为资源冲突上报。
func FindAvailableSlot(booked []entity.ProductionSchedule, desired time.Time, durationMinutes float64, policy SchedulePolicy) (time.Time, bool) {
	duration := time.Duration(durationMinutes * float64(time.Minute))
	deadline := desired.AddDate(0, 0, policy.HorizonDays)

	cursor := desired
	for cursor.Before(deadline) {
		if wd := cursor.Weekday(); wd == time.Saturday || wd == time.Sunday {
			cursor = nextWorkdayOpen(cursor, policy)
			continue
		}

		dayOpen := time.Date(cursor.Year(), cursor.Month(), cursor.Day(),
			policy.DayStartHour, policy.DayStartMinute, 0, 0, cursor.Location())
		dayClose := time.Date(cursor.Year(), cursor.Month(), cursor.Day(),
			policy.DayEndHour, policy.DayEndMinute, 0, 0, cursor.Location())

		if cursor.Before(dayOpen) {
			cursor = dayOpen
		}
		end := cursor.Add(duration)
		if end.After(dayClose) {
			cursor = nextWorkdayOpen(cursor, policy)
			continue
		}

		conflicted := false
		for i := range booked {
			b := &booked[i]
			if !b.IsActive() {
				continue
			}
			if b.Overlaps(cursor, end) {
				// 推进到占用区间之后再试
				if b.ScheduledEnd.After(cursor) {
					cursor = b.ScheduledEnd
				}
				conflicted = true
				break
			}
		}
		if !conflicted {
			return cursor, true
		}
	}
	return desired, false
}

// nextWorkdayOpen 次一工作日的窗口开启时刻
func nextWorkdayOpen(t time.Time, policy SchedulePolicy) time.Time {
	next := t.AddDate(0, 0, 1)
	for {
		if wd := next.Weekday(); wd != time.Saturday && wd != time.Sunday {
			break
		}
		next = next.AddDate(0, 0, 1)
	}
	return time.Date(next.Year(), next.Month(), next.Day(),
		policy.DayStartHour, policy.DayStartMinute, 0, 0, t.Location())
}

// Reschedule 排程改期
// 时长按原区间保持；目标区间须在排除自身后无冲突。改期后级联：
// 同订单中原开始不早于旧结束的排程，若其开始将早于更新后的链尾结束，
// 则同步平移相同偏移量，每条平移独立复核，整个级联一个事务。
func (s *SchedulerService) Reschedule(ctx context.Context, scheduleID string, newStart time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var schedule entity.ProductionSchedule
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&schedule, "id = ?", scheduleID).Error; err != nil {
			return fmt.Errorf("排程不存在: %w", err)
		}
		if !schedule.IsActive() {
			return validationErrorf("排程状态 %s 不允许改期", schedule.Status)
		}

		duration := schedule.ScheduledEnd.Sub(schedule.ScheduledStart)
		oldStart := schedule.ScheduledStart
		oldEnd := schedule.ScheduledEnd
		newEnd := newStart.Add(duration)
		delta := newStart.Sub(oldStart)

		if err := s.ensureFree(tx, schedule.WorkCellID, newStart, newEnd, schedule.ID); err != nil {
			return err
		}
		if err := tx.Model(&entity.ProductionSchedule{}).
			Where("id = ?", schedule.ID).
			Updates(map[string]interface{}{
				"scheduled_start": newStart,
				"scheduled_end":   newEnd,
			}).Error; err != nil {
			return err
		}

		// 级联受影响的下游排程
		var downstream []entity.ProductionSchedule
		if err := tx.Where("manufacturing_order_id = ? AND id <> ? AND status IN ? AND scheduled_start >= ?",
			schedule.ManufacturingOrderID, schedule.ID, entity.ActiveScheduleStatuses, oldEnd).
			Order("scheduled_start").
			Find(&downstream).Error; err != nil {
			return err
		}

		chainEnd := newEnd
		for i := range downstream {
			d := &downstream[i]
			if !d.ScheduledStart.Before(chainEnd) {
				break
			}
			shiftedStart := d.ScheduledStart.Add(delta)
			shiftedEnd := d.ScheduledEnd.Add(delta)
			if err := s.ensureFree(tx, d.WorkCellID, shiftedStart, shiftedEnd, d.ID); err != nil {
				return err
			}
			if err := tx.Model(&entity.ProductionSchedule{}).
				Where("id = ?", d.ID).
				Updates(map[string]interface{}{
					"scheduled_start": shiftedStart,
					"scheduled_end":   shiftedEnd,
				}).Error; err != nil {
				return err
			}
			chainEnd = shiftedEnd
		}
		return nil
	})
}

// ensureFree 校验工作单元在目标区间内无活动排程占用
func (s *SchedulerService) ensureFree(tx *gorm.DB, workCellID string, start, end time.Time, excludeID string) error {
	var count int64
	if err := tx.Model(&entity.ProductionSchedule{}).
		Where("work_cell_id = ? AND id <> ? AND status IN ?", workCellID, excludeID, entity.ActiveScheduleStatuses).
		Where("scheduled_start < ? AND scheduled_end > ?", end, start).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return conflictErrorf("工作单元在 %s ~ %s 已被占用",
			start.Format("2006-01-02 15:04"), end.Format("2006-01-02 15:04"))
	}
	return nil
}

// MarkDelayed 标记排程延误
func (s *SchedulerService) MarkDelayed(ctx context.Context, scheduleID, reason, actorID string) error {
	schedule, err := s.scheduleRepo.FindByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("排程不存在: %w", err)
	}
	if !schedule.IsActive() {
		return validationErrorf("排程状态 %s 不允许标记延误", schedule.Status)
	}

	from := schedule.Status
	schedule.Status = entity.ScheduleStatusDelayed
	if reason != "" {
		schedule.Notes = reason
	}
	if err := s.scheduleRepo.Update(ctx, schedule); err != nil {
		return err
	}

	s.logRepo.LogActivity(ctx, "schedule", schedule.ID, "", "schedule_delayed", from,
		entity.ScheduleStatusDelayed, reason, actorID)
	return nil
}

// ListByOrder 订单的全部排程
func (s *SchedulerService) ListByOrder(ctx context.Context, orderID string) ([]entity.ProductionSchedule, error) {
	return s.scheduleRepo.ByOrder(ctx, orderID)
}

// WorkCellLoad 工作单元在时间段内的负载（已排分钟数）
func (s *SchedulerService) WorkCellLoad(ctx context.Context, workCellID string, from, to time.Time) (float64, []entity.ProductionSchedule, error) {
	schedules, err := s.scheduleRepo.ActiveByWorkCell(ctx, workCellID, from)
	if err != nil {
		return 0, nil, err
	}

	var minutes float64
	inRange := schedules[:0]
	for i := range schedules {
		sch := schedules[i]
		if sch.ScheduledStart.Before(to) && sch.ScheduledEnd.After(from) {
			minutes += sch.DurationMinutes()
			inRange = append(inRange, sch)
		}
	}
	return minutes, inRange, nil
}
