package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dealflow/internal/models"
)

// TriggerType 触发器类型
type TriggerType string

const (
	TriggerDealStale        TriggerType = "deal_stale"
	TriggerDealStageChanged TriggerType = "deal_stage_changed"
	TriggerDealCreated      TriggerType = "deal_created"
)

var (
	ErrInvalidTrigger = errors.New("invalid trigger config")
	ErrInvalidAction  = errors.New("invalid action config")
)

// Trigger is the closed set of rule triggers. Only the types in this file
// implement it.
type Trigger interface {
	Type() TriggerType
	valid() bool
}

// DealStaleTrigger fires once a deal has had no activity for StaleDays whole days.
type DealStaleTrigger struct {
	StaleDays int `json:"staleDays"`
}

// DealStageChangedTrigger fires on an explicit transition into ToStageID,
// optionally restricted to transitions out of FromStageID.
type DealStageChangedTrigger struct {
	ToStageID   string  `json:"toStageId"`
	FromStageID *string `json:"fromStageId,omitempty"`
}

// DealCreatedTrigger fires on deal creation, optionally only in StageID.
type DealCreatedTrigger struct {
	StageID *string `json:"stageId,omitempty"`
}

func (DealStaleTrigger) Type() TriggerType        { return TriggerDealStale }
func (DealStageChangedTrigger) Type() TriggerType { return TriggerDealStageChanged }
func (DealCreatedTrigger) Type() TriggerType      { return TriggerDealCreated }

func (t DealStaleTrigger) valid() bool        { return t.StaleDays >= 1 }
func (t DealStageChangedTrigger) valid() bool { return t.ToStageID != "" }
func (t DealCreatedTrigger) valid() bool      { return true }

// ActionType 动作类型
type ActionType string

const ActionCreateTask ActionType = "create_task"

// Action is the closed set of rule actions.
type Action interface {
	Type() ActionType
	valid() bool
}

// CreateTaskAction 创建跟进任务；标题与描述支持 {dealTitle} 占位符
type CreateTaskAction struct {
	TaskTitle       string  `json:"taskTitle"`
	TaskDescription *string `json:"taskDescription,omitempty"`
	DueDaysFromNow  int     `json:"dueDaysFromNow"`
}

func (CreateTaskAction) Type() ActionType { return ActionCreateTask }

func (a CreateTaskAction) valid() bool { return a.DueDaysFromNow >= 0 }

// AutomationRule is the engine's immutable view of a rule. Trigger or Action
// is nil when the stored config could not be decoded; such rules never match.
type AutomationRule struct {
	ID          string
	WorkspaceID string
	Name        string
	Description *string
	Enabled     bool
	Trigger     Trigger
	Action      Action
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DecodeTrigger 按类型解析触发器配置
func DecodeTrigger(triggerType string, raw string) (Trigger, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	switch TriggerType(triggerType) {
	case TriggerDealStale:
		var t DealStaleTrigger
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		if !t.valid() {
			return nil, fmt.Errorf("%w: staleDays must be >= 1", ErrInvalidTrigger)
		}
		return t, nil
	case TriggerDealStageChanged:
		var t DealStageChangedTrigger
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		if !t.valid() {
			return nil, fmt.Errorf("%w: toStageId required", ErrInvalidTrigger)
		}
		return t, nil
	case TriggerDealCreated:
		var t DealCreatedTrigger
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("%w: unsupported trigger type %q", ErrInvalidTrigger, triggerType)
	}
}

// DecodeAction 按类型解析动作配置
func DecodeAction(actionType string, raw string) (Action, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	switch ActionType(actionType) {
	case ActionCreateTask:
		var a CreateTaskAction
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
		}
		if strings.TrimSpace(a.TaskTitle) == "" {
			return nil, fmt.Errorf("%w: taskTitle required", ErrInvalidAction)
		}
		if !a.valid() {
			return nil, fmt.Errorf("%w: dueDaysFromNow must be >= 0", ErrInvalidAction)
		}
		return a, nil
	default:
		return nil, fmt.Errorf("%w: unsupported action type %q", ErrInvalidAction, actionType)
	}
}

// RuleFromModel converts a persisted rule. Decode failures are returned
// alongside a rule whose Trigger/Action is left nil.
func RuleFromModel(m models.AutomationRule) (AutomationRule, error) {
	rule := AutomationRule{
		ID:          m.ID,
		WorkspaceID: m.WorkspaceID,
		Name:        m.Name,
		Description: m.Description,
		Enabled:     m.Enabled,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	trig, terr := DecodeTrigger(m.TriggerType, m.TriggerConfig)
	if terr == nil {
		rule.Trigger = trig
	}
	act, aerr := DecodeAction(m.ActionType, m.ActionConfig)
	if aerr == nil {
		rule.Action = act
	}
	return rule, errors.Join(terr, aerr)
}

// wholeDaysSince 返回自 t 起经过的完整天数（向下取整，不做四舍五入）
func wholeDaysSince(t, now time.Time) int {
	return int(now.Sub(t) / (24 * time.Hour))
}

// MatchesStale reports whether deal has been inactive for at least the
// trigger's threshold.
func MatchesStale(t Trigger, deal models.Deal, now time.Time) bool {
	st, ok := t.(DealStaleTrigger)
	if !ok || !st.valid() {
		return false
	}
	return wholeDaysSince(deal.UpdatedAt, now) >= st.StaleDays
}

// MatchesStageChange only applies to an explicit transition event.
func MatchesStageChange(t Trigger, fromStageID, toStageID string) bool {
	sc, ok := t.(DealStageChangedTrigger)
	if !ok || !sc.valid() {
		return false
	}
	if sc.ToStageID != toStageID {
		return false
	}
	return sc.FromStageID == nil || *sc.FromStageID == fromStageID
}

// MatchesCreated only applies to an explicit creation event.
func MatchesCreated(t Trigger, deal models.Deal) bool {
	dc, ok := t.(DealCreatedTrigger)
	if !ok {
		return false
	}
	return dc.StageID == nil || *dc.StageID == deal.StageID
}

// dealEvent 描述一次评估的事件类别及其上下文
type dealEvent struct {
	category    TriggerType
	fromStageID string
	toStageID   string
}

// evaluateTrigger dispatches on the event category. A rule whose trigger
// variant differs from the category is never evaluated.
func evaluateTrigger(rule AutomationRule, deal models.Deal, evt dealEvent, now time.Time) bool {
	if !rule.Enabled || rule.Trigger == nil || rule.Action == nil || !rule.Action.valid() {
		return false
	}
	if rule.Trigger.Type() != evt.category {
		return false
	}
	switch evt.category {
	case TriggerDealStale:
		return MatchesStale(rule.Trigger, deal, now)
	case TriggerDealStageChanged:
		return MatchesStageChange(rule.Trigger, evt.fromStageID, evt.toStageID)
	case TriggerDealCreated:
		return MatchesCreated(rule.Trigger, deal)
	default:
		return false
	}
}
