package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dealflow/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrRuleNotFound = errors.New("automation rule not found")

var (
	_ RuleSource          = (*AutomationRuleService)(nil)
	_ WorkspaceDiscoverer = (*AutomationRuleService)(nil)
)

// AutomationRuleService persists automation rules and serves as the engine's
// RuleSource.
type AutomationRuleService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAutomationRuleService(db *gorm.DB, logger *logrus.Logger) *AutomationRuleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationRuleService{db: db, logger: logger}
}

// AutomationRuleRequest 创建规则的请求
type AutomationRuleRequest struct {
	Name          string          `json:"name" binding:"required"`
	Description   *string         `json:"description"`
	Enabled       *bool           `json:"enabled"`
	TriggerType   string          `json:"trigger_type" binding:"required"`
	TriggerConfig json.RawMessage `json:"trigger_config"`
	ActionType    string          `json:"action_type" binding:"required"`
	ActionConfig  json.RawMessage `json:"action_config"`
}

// AutomationRuleUpdateRequest 更新规则的请求；未提供的字段保持不变
type AutomationRuleUpdateRequest struct {
	Name          *string         `json:"name"`
	Description   *string         `json:"description"`
	Enabled       *bool           `json:"enabled"`
	TriggerType   *string         `json:"trigger_type"`
	TriggerConfig json.RawMessage `json:"trigger_config"`
	ActionType    *string         `json:"action_type"`
	ActionConfig  json.RawMessage `json:"action_config"`
}

// FetchEnabledRules returns enabled rules in creation order. Rules whose
// config cannot be decoded are kept with a nil trigger/action.
func (s *AutomationRuleService) FetchEnabledRules(ctx context.Context, workspaceID string) ([]AutomationRule, error) {
	var rows []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND enabled = ?", workspaceID, true).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load automation rules: %w", err)
	}
	rules := make([]AutomationRule, 0, len(rows))
	for _, row := range rows {
		rule, err := RuleFromModel(row)
		if err != nil {
			s.logger.Warnf("automation: rule %s (%s) is malformed and will not fire: %v", row.ID, row.Name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// WorkspacesWithEnabledTrigger 返回拥有指定类型启用规则的工作区（排序去重）
func (s *AutomationRuleService) WorkspacesWithEnabledTrigger(ctx context.Context, trigger TriggerType) ([]string, error) {
	var workspaces []string
	if err := s.db.WithContext(ctx).
		Model(&models.AutomationRule{}).
		Where("enabled = ? AND trigger_type = ?", true, string(trigger)).
		Distinct().
		Order("workspace_id ASC").
		Pluck("workspace_id", &workspaces).Error; err != nil {
		return nil, fmt.Errorf("list workspaces for %s rules: %w", trigger, err)
	}
	return workspaces, nil
}

// ListRules 返回工作区的全部规则
func (s *AutomationRuleService) ListRules(ctx context.Context, workspaceID string) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).
		Where("workspace_id = ?", workspaceID).
		Order("created_at ASC, id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// GetRule 获取单条规则
func (s *AutomationRuleService) GetRule(ctx context.Context, workspaceID, id string) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	err := s.db.WithContext(ctx).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRule 新建规则，触发器与动作配置在写入前校验并规范化
func (s *AutomationRuleService) CreateRule(ctx context.Context, workspaceID string, req *AutomationRuleRequest) (*models.AutomationRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace required")
	}
	triggerJSON, err := normalizeTrigger(req.TriggerType, req.TriggerConfig)
	if err != nil {
		return nil, err
	}
	actionJSON, err := normalizeAction(req.ActionType, req.ActionConfig)
	if err != nil {
		return nil, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	now := time.Now()
	rule := &models.AutomationRule{
		WorkspaceID:   workspaceID,
		Name:          req.Name,
		Description:   req.Description,
		Enabled:       enabled,
		TriggerType:   req.TriggerType,
		TriggerConfig: triggerJSON,
		ActionType:    req.ActionType,
		ActionConfig:  actionJSON,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateRule 更新规则
func (s *AutomationRuleService) UpdateRule(ctx context.Context, workspaceID, id string, req *AutomationRuleUpdateRequest) (*models.AutomationRule, error) {
	if req == nil {
		return nil, fmt.Errorf("request required")
	}
	rule, err := s.GetRule(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Enabled != nil {
		updates["enabled"] = *req.Enabled
	}
	if req.TriggerType != nil || len(req.TriggerConfig) > 0 {
		triggerType := rule.TriggerType
		if req.TriggerType != nil {
			triggerType = *req.TriggerType
		}
		raw := req.TriggerConfig
		if len(raw) == 0 {
			raw = json.RawMessage(rule.TriggerConfig)
		}
		triggerJSON, err := normalizeTrigger(triggerType, raw)
		if err != nil {
			return nil, err
		}
		updates["trigger_type"] = triggerType
		updates["trigger_config"] = triggerJSON
	}
	if req.ActionType != nil || len(req.ActionConfig) > 0 {
		actionType := rule.ActionType
		if req.ActionType != nil {
			actionType = *req.ActionType
		}
		raw := req.ActionConfig
		if len(raw) == 0 {
			raw = json.RawMessage(rule.ActionConfig)
		}
		actionJSON, err := normalizeAction(actionType, raw)
		if err != nil {
			return nil, err
		}
		updates["action_type"] = actionType
		updates["action_config"] = actionJSON
	}

	if err := s.db.WithContext(ctx).Model(rule).Updates(updates).Error; err != nil {
		return nil, err
	}
	return s.GetRule(ctx, workspaceID, id)
}

// DeleteRule 删除规则
func (s *AutomationRuleService) DeleteRule(ctx context.Context, workspaceID, id string) error {
	result := s.db.WithContext(ctx).
		Where("workspace_id = ? AND id = ?", workspaceID, id).
		Delete(&models.AutomationRule{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func normalizeTrigger(triggerType string, raw json.RawMessage) (string, error) {
	trig, err := DecodeTrigger(triggerType, string(raw))
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(trig)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	return string(b), nil
}

func normalizeAction(actionType string, raw json.RawMessage) (string, error) {
	act, err := DecodeAction(actionType, string(raw))
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(act)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return string(b), nil
}
