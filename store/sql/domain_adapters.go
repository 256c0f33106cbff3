package sqlstore

import (
	"strings"
	"time"

	"github.com/ChasLui/nocodb/core"
)

func newIntegrationRecord(in core.CreateIntegrationInput, now time.Time) *integrationRecord {
	live := false
	return &integrationRecord{
		WorkspaceID: strings.TrimSpace(in.WorkspaceID),
		Type:        strings.TrimSpace(in.Type),
		SubType:     strings.TrimSpace(in.SubType),
		Title:       strings.TrimSpace(in.Title),
		Config:      in.Config,
		CreatedBy:   strings.TrimSpace(in.CreatedBy),
		Meta:        copyAnyMap(in.Meta),
		Deleted:     &live,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *integrationRecord) toDomain() core.Integration {
	if r == nil {
		return core.Integration{}
	}
	return core.Integration{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		Type:        r.Type,
		SubType:     r.SubType,
		Title:       r.Title,
		Config:      r.Config,
		CreatedBy:   r.CreatedBy,
		Meta:        copyAnyMap(r.Meta),
		DeleteState: core.DeleteStateOf(r.Deleted),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func newSourceRecord(source core.Source, now time.Time) *sourceRecord {
	record := &sourceRecord{
		ID:                strings.TrimSpace(source.ID),
		BaseID:            strings.TrimSpace(source.BaseID),
		Alias:             strings.TrimSpace(source.Alias),
		IntegrationConfig: source.IntegrationConfig,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if integrationID := strings.TrimSpace(source.IntegrationID); integrationID != "" {
		record.IntegrationID = &integrationID
	}
	if !source.DeleteState.Active() {
		flag := true
		record.Deleted = &flag
	} else {
		flag := false
		record.Deleted = &flag
	}
	return record
}

func (r *sourceRecord) toDomain() core.Source {
	if r == nil {
		return core.Source{}
	}
	source := core.Source{
		ID:                r.ID,
		BaseID:            r.BaseID,
		Alias:             r.Alias,
		IntegrationConfig: r.IntegrationConfig,
		DeleteState:       core.DeleteStateOf(r.Deleted),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.IntegrationID != nil {
		source.IntegrationID = strings.TrimSpace(*r.IntegrationID)
	}
	return source
}

func newBaseRecord(base core.Base, now time.Time) *baseRecord {
	return &baseRecord{
		ID:          strings.TrimSpace(base.ID),
		WorkspaceID: strings.TrimSpace(base.WorkspaceID),
		Title:       strings.TrimSpace(base.Title),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (r *baseRecord) toDomain() core.Base {
	if r == nil {
		return core.Base{}
	}
	return core.Base{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceID,
		Title:       r.Title,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
