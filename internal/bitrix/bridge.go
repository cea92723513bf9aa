package bitrix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/hr-intake-bot/internal/domain"
)

// Bridge is the capability contract shared by both backend variants.
// Every method reports plain success/failure; no error detail crosses it.
type Bridge interface {
	Mode() domain.BackendMode
	// CreateCase opens a case owned by ownerID and returns its reference.
	CreateCase(ctx context.Context, title, description string, ownerID int64) (domain.CaseRef, bool)
	// Comment posts text on the referenced case.
	Comment(ctx context.Context, ref domain.CaseRef, text string) bool
	// Close closes the referenced case, posting comment first when non-empty.
	Close(ctx context.Context, ref domain.CaseRef, comment string) bool
}

// Config selects and parameterizes the backend.
type Config struct {
	BaseURL string
	Mode    domain.BackendMode

	// CRM smart-process parameters.
	EntityTypeID int64
	CategoryID   string
	StageID      string

	TaskTimeout time.Duration
	CRMTimeout  time.Duration
	RPS         float64
	Burst       int
}

// ErrInvalidConfig reports an unusable backend configuration.
var ErrInvalidConfig = errors.New("bitrix: invalid configuration")

// New selects the backend variant once, at startup. CRM mode without an
// entity type id is rejected for a configured portal; with no portal at all
// it falls back to task mode on the unconfigured client, whose calls fail
// fast.
func New(cfg Config) (Bridge, error) {
	switch cfg.Mode {
	case domain.ModeTasks, "":
		return NewTaskBridge(NewClient(cfg.BaseURL, cfg.TaskTimeout, cfg.RPS, cfg.Burst)), nil
	case domain.ModeCRM:
		if cfg.EntityTypeID <= 0 {
			if strings.TrimSpace(cfg.BaseURL) != "" {
				return nil, fmt.Errorf("%w: CRM mode requires a smart-process entity type id", ErrInvalidConfig)
			}
			log.Warn().Msg("bitrix: CRM mode without entity type id and portal, using task mode")
			return NewTaskBridge(NewClient("", cfg.TaskTimeout, cfg.RPS, cfg.Burst)), nil
		}
		return NewCRMBridge(NewClient(cfg.BaseURL, cfg.CRMTimeout, cfg.RPS, cfg.Burst), cfg.EntityTypeID, cfg.CategoryID, cfg.StageID), nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, cfg.Mode)
	}
}

var (
	_ Bridge = (*TaskBridge)(nil)
	_ Bridge = (*CRMBridge)(nil)
)

func i64(n int64) string { return strconv.FormatInt(n, 10) }

// ---- Tasks ----

// TaskBridge manages cases as Bitrix24 tasks.
type TaskBridge struct {
	c *Client
}

func NewTaskBridge(c *Client) *TaskBridge { return &TaskBridge{c: c} }

func (*TaskBridge) Mode() domain.BackendMode { return domain.ModeTasks }

func (b *TaskBridge) CreateCase(ctx context.Context, title, description string, ownerID int64) (domain.CaseRef, bool) {
	raw, err := b.c.Call(ctx, "tasks.task.add", map[string]string{
		"fields[TITLE]":          title,
		"fields[DESCRIPTION]":    description,
		"fields[RESPONSIBLE_ID]": i64(ownerID),
	})
	if err != nil {
		return domain.CaseRef{}, false
	}
	var res struct {
		Task struct {
			ID flexID `json:"id"`
		} `json:"task"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.Task.ID <= 0 {
		return domain.CaseRef{}, false
	}
	return domain.TaskRef(int64(res.Task.ID)), true
}

func (b *TaskBridge) Comment(ctx context.Context, ref domain.CaseRef, text string) bool {
	if ref.TaskID == nil {
		return false
	}
	_, err := b.c.Call(ctx, "task.commentitem.add", map[string]string{
		"fields[TASK_ID]":      i64(*ref.TaskID),
		"fields[POST_MESSAGE]": text,
	})
	return err == nil
}

func (b *TaskBridge) Close(ctx context.Context, ref domain.CaseRef, comment string) bool {
	if ref.TaskID == nil {
		return false
	}
	commented := true
	if comment != "" {
		commented = b.Comment(ctx, ref, comment)
	}
	_, err := b.c.Call(ctx, "tasks.task.complete", map[string]string{
		"taskId": i64(*ref.TaskID),
	})
	return commented && err == nil
}

// ---- CRM smart process ----

// CRMBridge manages cases as CRM smart-process items. Closing only posts a
// timeline comment; stage changes are left to the portal's own automation.
type CRMBridge struct {
	c          *Client
	entityType int64
	category   string
	stage      string
}

func NewCRMBridge(c *Client, entityTypeID int64, categoryID, stageID string) *CRMBridge {
	return &CRMBridge{c: c, entityType: entityTypeID, category: categoryID, stage: stageID}
}

func (*CRMBridge) Mode() domain.BackendMode { return domain.ModeCRM }

func (b *CRMBridge) CreateCase(ctx context.Context, title, description string, ownerID int64) (domain.CaseRef, bool) {
	form := map[string]string{
		"entityTypeId":         i64(b.entityType),
		"fields[title]":        title,
		"fields[assignedById]": i64(ownerID),
	}
	if b.category != "" {
		form["fields[categoryId]"] = b.category
	}
	if b.stage != "" {
		form["fields[stageId]"] = b.stage
	}
	raw, err := b.c.Call(ctx, "crm.item.add", form)
	if err != nil {
		return domain.CaseRef{}, false
	}
	var res struct {
		Item struct {
			ID flexID `json:"id"`
		} `json:"item"`
	}
	if err := json.Unmarshal(raw, &res); err != nil || res.Item.ID <= 0 {
		return domain.CaseRef{}, false
	}
	ref := domain.CRMItemRef(int64(res.Item.ID))
	// smart-process items carry no free-form body; the description goes to the timeline
	if description != "" {
		_ = b.Comment(ctx, ref, description)
	}
	return ref, true
}

func (b *CRMBridge) Comment(ctx context.Context, ref domain.CaseRef, text string) bool {
	if ref.CRMItemID == nil {
		return false
	}
	_, err := b.c.Call(ctx, "crm.timeline.comment.add", map[string]string{
		"fields[ENTITY_TYPE_ID]": i64(b.entityType),
		"fields[ENTITY_ID]":      i64(*ref.CRMItemID),
		"fields[COMMENT]":        text,
	})
	return err == nil
}

func (b *CRMBridge) Close(ctx context.Context, ref domain.CaseRef, comment string) bool {
	if ref.CRMItemID == nil {
		return false
	}
	if comment == "" {
		return true
	}
	return b.Comment(ctx, ref, comment)
}
