package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrDealNotFound = errors.New("deal not found")

// DealEventListener receives deal lifecycle events.
type DealEventListener interface {
	DealCreated(ctx context.Context, deal models.Deal)
	DealStageChanged(ctx context.Context, deal models.Deal, fromStageID, toStageID string)
}

// DealService 商机服务，实现 DealSource 并在生命周期事件上通知自动化
type DealService struct {
	db       *gorm.DB
	logger   *logrus.Logger
	listener DealEventListener
}

func NewDealService(db *gorm.DB, logger *logrus.Logger) *DealService {
	if logger == nil {
		logger = logrus.New()
	}
	return &DealService{db: db, logger: logger}
}

// SetEventListener 注入事件监听（通常是自动化注册表）
func (s *DealService) SetEventListener(l DealEventListener) {
	s.listener = l
}

// DealCreateRequest 创建商机请求
type DealCreateRequest struct {
	Title     string   `json:"title" binding:"required"`
	StageID   string   `json:"stage_id" binding:"required"`
	ContactID *string  `json:"contact_id"`
	Value     *float64 `json:"value"`
}

// DealUpdateRequest 更新商机请求（阶段变更请使用 MoveDealStage）
type DealUpdateRequest struct {
	Title     *string  `json:"title"`
	ContactID *string  `json:"contact_id"`
	Value     *float64 `json:"value"`
}

// ListDeals 返回工作区全部商机
func (s *DealService) ListDeals(ctx context.Context, workspaceID string) ([]models.Deal, error) {
	var deals []models.Deal
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC, id ASC").
		Find(&deals).Error; err != nil {
		return nil, fmt.Errorf("load deals: %w", err)
	}
	return deals, nil
}

// GetDeal 获取商机
func (s *DealService) GetDeal(ctx context.Context, workspaceID, id string) (*models.Deal, error) {
	var deal models.Deal
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		First(&deal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDealNotFound
	}
	if err != nil {
		return nil, err
	}
	return &deal, nil
}

// CreateDeal 创建商机并发出创建事件
func (s *DealService) CreateDeal(ctx context.Context, workspaceID string, req *DealCreateRequest) (*models.Deal, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.StageID) == "" {
		return nil, fmt.Errorf("title and stage_id required")
	}
	now := time.Now()
	deal := &models.Deal{
		WorkspaceID: workspaceID,
		StageID:     req.StageID,
		ContactID:   req.ContactID,
		Title:       req.Title,
		Value:       req.Value,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(deal).Error; err != nil {
		return nil, err
	}
	if s.listener != nil {
		s.listener.DealCreated(ctx, *deal)
	}
	return deal, nil
}

// UpdateDeal 更新商机基本信息（会刷新 updated_at，即最近活动时间）
func (s *DealService) UpdateDeal(ctx context.Context, workspaceID, id string, req *DealUpdateRequest) (*models.Deal, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	deal, err := s.GetDeal(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, fmt.Errorf("title cannot be empty")
		}
		updates["title"] = *req.Title
	}
	if req.ContactID != nil {
		updates["contact_id"] = *req.ContactID
	}
	if req.Value != nil {
		updates["value"] = *req.Value
	}
	if err := s.db.WithContext(ctx).Model(deal).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetDeal(ctx, workspaceID, id)
}

// MoveDealStage moves a deal and emits a stage-change event when the stage
// actually changes.
func (s *DealService) MoveDealStage(ctx context.Context, workspaceID, id, toStageID string) (*models.Deal, error) {
	if strings.TrimSpace(toStageID) == "" {
		return nil, fmt.Errorf("stage_id required")
	}
	deal, err := s.GetDeal(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	fromStageID := deal.StageID
	if fromStageID == toStageID {
		return deal, nil
	}
	if err := s.db.WithContext(ctx).Model(deal).Updates(map[string]interface{}{
		"stage_id":   toStageID,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, err
	}
	moved, err := s.GetDeal(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	s.logger.Debugf("deal %s moved %s -> %s", id, fromStageID, toStageID)
	if s.listener != nil {
		s.listener.DealStageChanged(ctx, *moved, fromStageID, toStageID)
	}
	return moved, nil
}
